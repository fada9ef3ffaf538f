package scheduler

type futureState uint8

const (
	futurePending futureState = iota
	futureDone
	futureCancelled
)

type doneCallback struct {
	fn func(f *Future)
}

// Future is the eventual result of an operation, bound to a [Loop].
//
// Futures are not safe for concurrent use: they must only be used from
// callbacks and tasks running on their loop. Use [Loop.CallSoonThreadsafe]
// to complete a future from another goroutine.
type Future struct {
	result any
	err    error
	loop   *Loop
	// cancelHook replaces Cancel, used by tasks
	cancelHook func() bool
	callbacks  []*doneCallback
	state      futureState
}

// CreateFuture returns a new pending Future bound to l.
func (l *Loop) CreateFuture() *Future {
	return &Future{loop: l}
}

// Loop returns the loop the future is bound to.
func (f *Future) Loop() *Loop {
	return f.loop
}

// Done reports whether the future has a result, an error, or was cancelled.
func (f *Future) Done() bool {
	return f.state != futurePending
}

// Cancelled reports whether the future was cancelled.
func (f *Future) Cancelled() bool {
	return f.state == futureCancelled
}

// Result returns the outcome of a done future. A cancelled future returns
// [ErrCancelled], and a pending one returns [ErrInvalidState].
func (f *Future) Result() (any, error) {
	switch f.state {
	case futurePending:
		return nil, ErrInvalidState
	case futureCancelled:
		return nil, ErrCancelled
	default:
		return f.result, f.err
	}
}

// SetResult completes the future with a value.
func (f *Future) SetResult(v any) error {
	if f.state != futurePending {
		return ErrInvalidState
	}
	f.result = v
	f.state = futureDone
	f.scheduleCallbacks()
	return nil
}

// SetError completes the future with an error.
func (f *Future) SetError(err error) error {
	if f.state != futurePending {
		return ErrInvalidState
	}
	f.err = err
	f.state = futureDone
	f.scheduleCallbacks()
	return nil
}

// Cancel cancels a pending future, returning false if it was already done.
// The future of a [Task] requests cancellation of the task instead.
func (f *Future) Cancel() bool {
	if f.cancelHook != nil {
		return f.cancelHook()
	}
	return f.cancel()
}

func (f *Future) cancel() bool {
	if f.state != futurePending {
		return false
	}
	f.state = futureCancelled
	f.scheduleCallbacks()
	return true
}

// AddDoneCallback arranges for fn to be called, via [Loop.CallSoon], once
// the future is done. If it is already done, fn is scheduled immediately.
func (f *Future) AddDoneCallback(fn func(f *Future)) {
	f.addDoneCallback(fn)
}

func (f *Future) addDoneCallback(fn func(f *Future)) *doneCallback {
	cb := &doneCallback{fn: fn}
	if f.state != futurePending {
		f.loop.CallSoon(func() { cb.fn(f) })
		return cb
	}
	f.callbacks = append(f.callbacks, cb)
	return cb
}

func (f *Future) removeDoneCallback(cb *doneCallback) {
	for i, v := range f.callbacks {
		if v == cb {
			f.callbacks = append(f.callbacks[:i], f.callbacks[i+1:]...)
			return
		}
	}
}

func (f *Future) scheduleCallbacks() {
	callbacks := f.callbacks
	f.callbacks = nil
	for _, cb := range callbacks {
		f.loop.CallSoon(func() { cb.fn(f) })
	}
}
