package scheduler

import (
	"sync/atomic"
)

// running is the single running-loop slot. It is held between BeginRun and
// EndRun.
var running atomic.Pointer[Loop]

// RunningLoop returns the loop currently between BeginRun and EndRun, or
// nil.
func RunningLoop() *Loop {
	return running.Load()
}

// BeginRun claims the running-loop slot for l. It fails with [ErrClosed] if
// l is closed, or [ErrAlreadyRunning] if any loop (including l) holds the
// slot.
func (l *Loop) BeginRun() error {
	if l.closed.Load() {
		return ErrClosed
	}
	if !running.CompareAndSwap(nil, l) {
		return ErrAlreadyRunning
	}
	l.logger.Debug().
		Uint64("loop", l.id).
		Log("scheduler: loop running")
	return nil
}

// EndRun releases the running-loop slot, and discards any stop request.
func (l *Loop) EndRun() {
	l.stopping.Store(false)
	if running.CompareAndSwap(l, nil) {
		l.logger.Debug().
			Uint64("loop", l.id).
			Log("scheduler: loop stopped")
	}
}
