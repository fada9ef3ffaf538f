package bridge

import (
	"errors"
	"slices"

	"github.com/joeycumines/go-asyncslot/scheduler"
)

// SlotFunc is a coroutine that receives the arguments of a host callback.
type SlotFunc func(tc *scheduler.TaskContext, args []any) error

// AsyncSlot adapts fn into a host callback, e.g. for [hostloop.NewSlot].
// Each call starts a task with [Loop.RunTask], so fn runs up to its first
// suspension point before the callback returns.
//
// Calls made while l is not running are logged and dropped. An error
// returned by fn is passed to the loop's exception handler.
func AsyncSlot(l *Loop, fn SlotFunc) func(args ...any) {
	return func(args ...any) {
		if !l.IsRunning() {
			l.logger.Err().
				Uint64("loop", l.ID()).
				Log("bridge: async slot called while loop is not running")
			return
		}
		args = slices.Clone(args)
		t, err := l.RunTask(func(tc *scheduler.TaskContext) (any, error) {
			return nil, fn(tc, args)
		})
		if err != nil {
			l.logger.Err().
				Uint64("loop", l.ID()).
				Err(err).
				Log("bridge: async slot failed to start")
			return
		}
		t.AddDoneCallback(func(f *scheduler.Future) {
			_, err := f.Result()
			if err == nil || errors.Is(err, scheduler.ErrCancelled) {
				return
			}
			if err := l.CallExceptionHandler(scheduler.ExceptionContext{
				Err:     err,
				Task:    t,
				Message: "bridge: async slot failed",
			}); err != nil {
				panic(&scheduler.EscalatedError{Err: err, Message: "bridge: async slot failed"})
			}
		})
	}
}

// Attach creates a loop, and enters it in attached mode. The returned
// function exits and closes the loop.
func Attach(opts ...Option) (*Loop, func() error, error) {
	l, err := New(opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := l.Enter(); err != nil {
		_ = l.Close()
		return nil, nil, err
	}
	return l, func() error {
		if err := l.Exit(); err != nil && !errors.Is(err, ErrNotAttached) {
			return err
		}
		return l.Close()
	}, nil
}
