package scheduler

import (
	"runtime/debug"
	"time"
)

// ExceptionContext describes an error the loop could not deliver anywhere
// else, e.g. a panicking callback.
type ExceptionContext struct {
	Err     error
	Handle  *Handle
	Task    *Task
	Message string
}

// ExceptionHandler receives errors from callbacks. Returning nil swallows
// the error. Returning an error aborts the current [Loop.RunOnce], which
// returns an [*EscalatedError] wrapping it.
type ExceptionHandler func(l *Loop, ctx ExceptionContext) error

// PropagateExceptions is an [ExceptionHandler] that escalates every error.
func PropagateExceptions(_ *Loop, ctx ExceptionContext) error {
	return ctx.Err
}

// DefaultExceptionHandler logs the error.
func (l *Loop) DefaultExceptionHandler(ctx ExceptionContext) {
	b := l.logger.Err()
	if b == nil {
		return
	}
	b = b.Err(ctx.Err).Uint64("loop", l.id)
	if ctx.Task != nil {
		b = b.Str("task", ctx.Task.Name())
	}
	if pe, ok := ctx.Err.(*PanicError); ok && pe.Stack != nil {
		b = b.Str("stack", string(pe.Stack))
	}
	msg := ctx.Message
	if msg == "" {
		msg = "scheduler: unhandled error"
	}
	b.Log(msg)
}

// CallExceptionHandler passes ctx to the configured exception handler, and
// returns its result. A panicking handler is logged, and treated as if it
// returned nil, unless the panic is fatal.
func (l *Loop) CallExceptionHandler(ctx ExceptionContext) (err error) {
	if l.exceptionHandler == nil {
		l.DefaultExceptionHandler(ctx)
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			if IsFatal(r) {
				panic(r)
			}
			l.logger.Err().
				Any("panic", r).
				Err(ctx.Err).
				Log("scheduler: exception handler panicked")
			err = nil
		}
	}()
	return l.exceptionHandler(l, ctx)
}

// invoke runs a callback, reporting non-fatal panics to the exception
// handler, and panicking with an [*EscalatedError] if the handler rejects
// them.
func (l *Loop) invoke(h *Handle) {
	if h.fn == nil {
		return
	}

	var start time.Time
	if l.slowCallbackLogging > 0 {
		start = time.Now()
		defer func() {
			if d := time.Since(start); d > l.slowCallbackLogging {
				l.logger.Warning().
					Uint64("loop", l.id).
					Dur("duration", d).
					Log("scheduler: slow callback")
			}
		}()
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if IsFatal(r) {
			panic(r)
		}
		ctx := ExceptionContext{
			Message: "scheduler: callback panicked",
			Err:     &PanicError{Value: r, Stack: debug.Stack()},
			Handle:  h,
		}
		if err := l.CallExceptionHandler(ctx); err != nil {
			panic(&EscalatedError{Err: err})
		}
	}()

	h.fn()
}
