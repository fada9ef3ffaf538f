package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned (or panicked, for scheduling calls) when using a
	// closed Loop.
	ErrClosed = errors.New("scheduler: loop is closed")

	// ErrAlreadyRunning is returned when a loop is started while it, or any
	// other loop, is already running.
	ErrAlreadyRunning = errors.New("scheduler: a loop is already running")

	// ErrCloseRunning is returned by Close on a running loop.
	ErrCloseRunning = errors.New("scheduler: cannot close a running loop")

	// ErrInvalidState is returned when a Future is completed twice, or its
	// result is read before it is done.
	ErrInvalidState = errors.New("scheduler: invalid future state")

	// ErrCancelled is the error of a cancelled Future or Task.
	ErrCancelled = errors.New("scheduler: cancelled")

	// ErrInterrupted is an interrupt request. Panicking with it (or any error
	// wrapping it) is never recovered by the loop.
	ErrInterrupted = errors.New("scheduler: interrupted")

	// ErrTaskRunning is panicked when a task step starts while another task
	// is the current task.
	ErrTaskRunning = errors.New("scheduler: another task is running")

	// ErrStoppedEarly is returned by RunUntilComplete if the loop stopped
	// before the future was done.
	ErrStoppedEarly = errors.New("scheduler: loop stopped before future completed")
)

// PanicError wraps a value recovered from a panicking callback or task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("scheduler: callback panicked: %v", e.Value)
}

// Unwrap returns the panic value, if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ExitError requests that the process exit with Code. Panicking with it is
// never recovered by the loop.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("scheduler: exit requested with code %d", e.Code)
}

// EscalatedError is raised when an [ExceptionHandler] returns an error,
// which aborts the current [Loop.RunOnce].
type EscalatedError struct {
	Err     error
	Message string
}

func (e *EscalatedError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *EscalatedError) Unwrap() error { return e.Err }

// IsFatal reports whether a panic value must propagate out of the loop
// rather than being reported to the exception handler.
func IsFatal(v any) bool {
	err, ok := v.(error)
	if !ok {
		return false
	}
	var (
		exitErr      *ExitError
		escalatedErr *EscalatedError
	)
	return errors.Is(err, ErrInterrupted) ||
		errors.As(err, &exitErr) ||
		errors.As(err, &escalatedErr)
}
