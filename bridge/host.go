package bridge

import (
	"github.com/joeycumines/go-asyncslot/hostloop"
)

// Host is the foreign event loop a [Loop] runs inside.
type Host interface {
	// Post queues fn to run on the host's own goroutine. It must never call
	// fn before returning, and must be safe to call from any goroutine.
	Post(fn func()) error

	// NewEventLoop returns a nested event loop, used by nested runs.
	NewEventLoop() EventLoop
}

// EventLoop is a nested execution of a [Host]'s event queue.
type EventLoop interface {
	// Exec processes events until Exit is called, returning its code.
	Exec() int
	// Exit makes Exec return code.
	Exit(code int)
}

// ApplicationHost adapts app to [Host].
func ApplicationHost(app *hostloop.Application) Host {
	return applicationHost{app}
}

type applicationHost struct {
	app *hostloop.Application
}

func (x applicationHost) Post(fn func()) error { return x.app.Post(fn) }

func (x applicationHost) NewEventLoop() EventLoop { return x.app.NewEventLoop() }
