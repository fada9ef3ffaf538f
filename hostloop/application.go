package hostloop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// ExitClosed is the code returned by Exec when the application is closed
// while it is running.
const ExitClosed = -1

var instance atomic.Pointer[Application]

// Instance returns the open application, or nil.
func Instance() *Application {
	return instance.Load()
}

// Application is the process-wide event queue. At most one may be open.
type Application struct {
	logger *logiface.Logger[logiface.Event]
	main   *EventLoop
	name   string
	queue  []func()
	// running is the stack of event loops inside Exec
	running []*EventLoop
	cond    sync.Cond
	mu      sync.Mutex
	closed  bool
}

// NewApplication opens the application. It fails with
// [ErrApplicationExists] if one is already open.
func NewApplication(opts ...Option) (*Application, error) {
	cfg, err := resolveApplicationOptions(opts)
	if err != nil {
		return nil, err
	}
	a := &Application{
		logger: cfg.logger,
		name:   cfg.name,
	}
	a.cond.L = &a.mu
	a.main = a.NewEventLoop()
	if !instance.CompareAndSwap(nil, a) {
		return nil, ErrApplicationExists
	}
	a.logger.Debug().
		Str("app", a.name).
		Log("hostloop: application opened")
	return a, nil
}

// Logger returns the configured logger, which may be nil.
func (a *Application) Logger() *logiface.Logger[logiface.Event] { return a.logger }

// Post queues fn to be called by the innermost running event loop. It may
// be called from any goroutine, and never calls fn itself.
func (a *Application) Post(fn func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.queue = append(a.queue, fn)
	a.cond.Broadcast()
	return nil
}

// Pending returns the number of queued events.
func (a *Application) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// ProcessEvents dispatches the events queued at the time of the call, on
// the calling goroutine, returning how many were dispatched.
func (a *Application) ProcessEvents() int {
	a.mu.Lock()
	n := len(a.queue)
	a.mu.Unlock()
	var i int
	for ; i < n; i++ {
		fn, ok := a.next(nil)
		if !ok {
			break
		}
		fn()
	}
	return i
}

// Exec runs the main event loop until Exit is called.
func (a *Application) Exec() int {
	return a.main.Exec()
}

// Exit makes every running event loop return code from Exec.
func (a *Application) Exit(code int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.running {
		e.exitLocked(code)
	}
}

// Quit is Exit(0).
func (a *Application) Quit() {
	a.Exit(0)
}

// AfterFunc posts fn once d has elapsed.
func (a *Application) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.timer = time.AfterFunc(d, func() {
		if err := a.Post(func() {
			if t.state.CompareAndSwap(timerPending, timerFired) {
				fn()
			}
		}); err != nil {
			a.logger.Debug().
				Err(err).
				Log("hostloop: timer fired after close")
		}
	})
	return t
}

// Close discards queued events, makes running event loops return
// [ExitClosed], and releases the application instance.
func (a *Application) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.closed = true
	a.queue = nil
	for _, e := range a.running {
		e.exitLocked(ExitClosed)
	}
	a.cond.Broadcast()
	a.mu.Unlock()

	instance.CompareAndSwap(a, nil)
	a.logger.Debug().
		Str("app", a.name).
		Log("hostloop: application closed")
	return nil
}

// next pops the next event, blocking while the queue is empty if e is
// non-nil. It returns false if e should stop.
func (a *Application) next(e *EventLoop) (func(), bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		if e != nil && e.exiting {
			return nil, false
		}
		if len(a.queue) != 0 {
			fn := a.queue[0]
			a.queue[0] = nil
			a.queue = a.queue[1:]
			return fn, true
		}
		if e == nil {
			return nil, false
		}
		a.cond.Wait()
	}
}

const (
	timerPending int32 = iota
	timerFired
	timerStopped
)

// Timer is a single-shot timer created by [Application.AfterFunc].
type Timer struct {
	timer *time.Timer
	state atomic.Int32
}

// Stop prevents the timer's function from being called, returning false if
// it has already been called, or Stop was already called.
func (t *Timer) Stop() bool {
	t.timer.Stop()
	return t.state.CompareAndSwap(timerPending, timerStopped)
}
