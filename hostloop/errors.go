package hostloop

import (
	"errors"
)

var (
	// ErrApplicationExists is returned by NewApplication while another
	// application is open.
	ErrApplicationExists = errors.New("hostloop: an application already exists")

	// ErrClosed is returned when posting to a closed application.
	ErrClosed = errors.New("hostloop: application is closed")

	// ErrNoApplication is returned when an operation requires an
	// application, and none is open.
	ErrNoApplication = errors.New("hostloop: no application")

	// ErrDestroyed is returned when connecting to or from a destroyed object.
	ErrDestroyed = errors.New("hostloop: object destroyed")

	// ErrNilSlot is returned when connecting a nil slot.
	ErrNilSlot = errors.New("hostloop: nil slot")
)
