package hostloop

// EventLoop is one (possibly nested) execution of the application's event
// queue.
type EventLoop struct {
	app     *Application
	code    int
	running bool
	exiting bool
}

// NewEventLoop returns an event loop for the application.
func (a *Application) NewEventLoop() *EventLoop {
	return &EventLoop{app: a}
}

// Exec dispatches posted events on the calling goroutine until Exit is
// called, returning the exit code. Calls may nest, and an inner Exec keeps
// running even if an outer loop is asked to exit.
//
// Events are not recovered: a panicking event handler unwinds Exec.
func (e *EventLoop) Exec() int {
	a := e.app

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ExitClosed
	}
	if e.running {
		a.mu.Unlock()
		a.logger.Warning().
			Str("app", a.name).
			Log("hostloop: event loop already running")
		return -1
	}
	e.running = true
	e.exiting = false
	a.running = append(a.running, e)
	depth := len(a.running)
	a.mu.Unlock()

	a.logger.Debug().
		Str("app", a.name).
		Int("depth", depth).
		Log("hostloop: exec")

	defer func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		e.running = false
		for i := len(a.running) - 1; i >= 0; i-- {
			if a.running[i] == e {
				a.running = append(a.running[:i], a.running[i+1:]...)
				break
			}
		}
	}()

	for {
		fn, ok := a.next(e)
		if !ok {
			break
		}
		fn()
	}

	a.mu.Lock()
	code := e.code
	a.mu.Unlock()
	return code
}

// Exit makes Exec return code. It has no effect if the loop is not running.
// It may be called from any goroutine.
func (e *EventLoop) Exit(code int) {
	e.app.mu.Lock()
	defer e.app.mu.Unlock()
	e.exitLocked(code)
}

// Quit is Exit(0).
func (e *EventLoop) Quit() {
	e.Exit(0)
}

// IsRunning reports whether the loop is inside Exec.
func (e *EventLoop) IsRunning() bool {
	e.app.mu.Lock()
	defer e.app.mu.Unlock()
	return e.running
}

func (e *EventLoop) exitLocked(code int) {
	if !e.running {
		return
	}
	e.exiting = true
	e.code = code
	e.app.cond.Broadcast()
}
