package bridge

import (
	"errors"
	"fmt"

	"github.com/joeycumines/go-asyncslot/scheduler"
)

var (
	// ErrClosed is returned when running a closed loop.
	ErrClosed = scheduler.ErrClosed

	// ErrAlreadyRunning is returned when running a loop while any loop is
	// running.
	ErrAlreadyRunning = scheduler.ErrAlreadyRunning

	// ErrNotInitialized is returned when running a loop before the host
	// application exists.
	ErrNotInitialized = errors.New("bridge: no host application")

	// ErrNotifierClosed is returned by [Notifier.Close] if it was already
	// closed.
	ErrNotifierClosed = errors.New("bridge: notifier is closed")

	// ErrNotAttached is returned by [Loop.Exit] if the loop is not running
	// in attached mode.
	ErrNotAttached = errors.New("bridge: loop is not running attached")
)

// ForeignLoopExitedError is returned by [Loop.RunForever] when the host
// event loop exits with a non-zero code that the loop did not ask for, e.g.
// because the host application exited.
type ForeignLoopExitedError struct {
	Code int
}

func (e *ForeignLoopExitedError) Error() string {
	return fmt.Sprintf("bridge: foreign event loop exited with code %d", e.Code)
}
