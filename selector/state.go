package selector

// State is the lifecycle state of a [Selector].
//
//	StateIdle  -> StateBusy    [Select yields to the background wait]
//	StateBusy  -> StateIdle    [background wait completes]
//	StateIdle  -> StateClosed  [Close]
//	StateBusy  -> StateClosed  [Close, after waking and joining the wait]
type State uint32

const (
	// StateIdle means no background wait is outstanding.
	StateIdle State = iota
	// StateBusy means the last Select yielded, and the background wait is
	// still in flight.
	StateBusy
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateBusy:
		return "Busy"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
