package selector

import (
	"errors"
)

var (
	// ErrYield is returned by [Selector.Select] when the wait has been moved
	// to the background. It is a control signal, not a failure: no result is
	// available yet, and the installed [Notifier] will be called once it is.
	ErrYield = errors.New("selector: yielded to background wait")

	// ErrClosed is returned by operations on a closed [Selector].
	ErrClosed = errors.New("selector: closed")

	// ErrFDOutOfRange is returned when an fd is negative or too large.
	ErrFDOutOfRange = errors.New("selector: fd out of range")

	// ErrFDAlreadyRegistered is returned by [Selector.Register] for an fd
	// that is already registered.
	ErrFDAlreadyRegistered = errors.New("selector: fd already registered")

	// ErrFDNotRegistered is returned by [Selector.Modify] and
	// [Selector.Unregister] for an unknown fd.
	ErrFDNotRegistered = errors.New("selector: fd not registered")

	// ErrInvalidEvents is returned when neither [EventRead] nor [EventWrite]
	// is requested.
	ErrInvalidEvents = errors.New("selector: events must include read or write")
)
