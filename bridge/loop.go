package bridge

import (
	"errors"
	"sync/atomic"

	"github.com/joeycumines/go-asyncslot/hostloop"
	"github.com/joeycumines/go-asyncslot/scheduler"
	"github.com/joeycumines/go-asyncslot/selector"
	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// RunState is how a [Loop] is currently running.
type RunState int32

const (
	// NotRunning is the state outside of any run.
	NotRunning RunState = iota
	// RunningNested is the state during RunForever, which owns the host
	// event loop it started.
	RunningNested
	// RunningAttached is the state between Enter and Exit.
	RunningAttached
)

func (s RunState) String() string {
	switch s {
	case NotRunning:
		return "NotRunning"
	case RunningNested:
		return "RunningNested"
	case RunningAttached:
		return "RunningAttached"
	default:
		return "Unknown"
	}
}

// Loop is a [scheduler.Loop] that runs inside a [Host]. See the package
// documentation.
//
// Scheduling methods wake the background wait, if the last tick yielded to
// it, so that new work is picked up promptly.
type Loop struct {
	*scheduler.Loop
	sel     *selector.Selector
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	host    Host
	// the fields below are set for the duration of a run
	notifier *Notifier
	foreign  EventLoop
	runErr   error
	state    atomic.Int32
	// blocked is set while the last tick yielded to a background wait
	blocked atomic.Bool
	// eager makes the next CallSoon run its callback immediately
	eager bool
}

// New creates a loop, with its own selector.
func New(opts ...Option) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	sel, err := selector.New(selector.WithLogger(cfg.logger))
	if err != nil {
		return nil, err
	}

	l := &Loop{
		sel:    sel,
		logger: cfg.logger,
		host:   cfg.host,
	}
	if len(cfg.lateNotifyRates) != 0 {
		l.limiter = catrate.NewLimiter(cfg.lateNotifyRates)
	}

	l.Loop, err = scheduler.New(
		sel,
		scheduler.WithLogger(cfg.logger),
		scheduler.WithExceptionHandler(cfg.exceptionHandler),
		scheduler.WithSlowCallbackLogging(cfg.slowCallbackLogging),
		scheduler.WithHooks(scheduler.Hooks{
			BeforeSchedule: l.beforeSchedule,
			AfterCallSoon:  l.afterCallSoon,
			Stop:           l.stop,
		}),
	)
	if err != nil {
		_ = sel.Close()
		return nil, err
	}

	return l, nil
}

// RunState returns how the loop is running.
func (l *Loop) RunState() RunState {
	return RunState(l.state.Load())
}

// BlockedInSelect reports whether the last tick yielded to a background
// wait, and no tick has run since.
func (l *Loop) BlockedInSelect() bool {
	return l.blocked.Load()
}

// RunForever runs the loop in a new host event loop, until Stop is called.
//
// It returns the error that aborted a tick, if any (see
// [scheduler.ExceptionHandler]), or a [*ForeignLoopExitedError] if the host
// event loop was made to exit by something else.
func (l *Loop) RunForever() (err error) {
	host := l.resolveHost()
	if host == nil {
		return ErrNotInitialized
	}

	foreign := host.NewEventLoop()
	if err := l.enter(host, foreign, RunningNested); err != nil {
		return err
	}
	defer l.exit()

	code := foreign.Exec()
	if code == 0 {
		return nil
	}

	if l.runErr != nil {
		err = l.runErr
	} else {
		err = &ForeignLoopExitedError{Code: code}
	}
	l.logger.Err().
		Uint64("loop", l.ID()).
		Int("code", code).
		Err(err).
		Log("bridge: nested run failed")
	return err
}

// RunUntilComplete runs the loop in a new host event loop, until f is done,
// returning its result.
func (l *Loop) RunUntilComplete(f *scheduler.Future) (any, error) {
	return scheduler.RunUntilComplete(l.Loop, f, l.RunForever)
}

// Enter starts running the loop in attached mode: ticks are dispatched by
// whichever host event loop is running, until Exit is called. A pending stop
// request is discarded.
//
// An error that aborts a tick is panicked out of the host's dispatch.
func (l *Loop) Enter() error {
	host := l.resolveHost()
	if host == nil {
		return ErrNotInitialized
	}
	return l.enter(host, nil, RunningAttached)
}

// Exit stops running the loop in attached mode.
func (l *Loop) Exit() error {
	if l.RunState() != RunningAttached {
		return ErrNotAttached
	}
	l.exit()
	return nil
}

// RunTask creates a task, and runs its first step before returning. It is
// intended to be called from host callbacks, and may also be called from a
// task.
func (l *Loop) RunTask(coro scheduler.Coroutine, opts ...scheduler.TaskOption) (*scheduler.Task, error) {
	l.eager = true
	defer func() { l.eager = false }()
	return l.CreateTask(coro, opts...)
}

func (l *Loop) resolveHost() Host {
	if l.host != nil {
		return l.host
	}
	if app := hostloop.Instance(); app != nil {
		return ApplicationHost(app)
	}
	return nil
}

func (l *Loop) enter(host Host, foreign EventLoop, mode RunState) error {
	if err := l.BeginRun(); err != nil {
		return err
	}

	l.runErr = nil
	if mode == RunningAttached {
		l.ClearStop()
	}

	n, err := NewNotifier(host, l.onNotified)
	if err != nil {
		l.EndRun()
		return err
	}
	n.logger = l.logger
	n.limiter = l.limiter

	// the first tick runs even if there is nothing to do
	n.Notify()

	if err := l.sel.SetNotifier(n); err != nil {
		_ = n.Close()
		l.EndRun()
		return err
	}

	l.notifier = n
	l.foreign = foreign
	l.state.Store(int32(mode))

	l.logger.Debug().
		Uint64("loop", l.ID()).
		Str("mode", mode.String()).
		Log("bridge: entered")

	return nil
}

func (l *Loop) exit() {
	if n := l.notifier; n != nil {
		if err := l.sel.SetNotifier(nil); err != nil && !errors.Is(err, selector.ErrClosed) {
			l.logger.Warning().
				Uint64("loop", l.ID()).
				Err(err).
				Log("bridge: failed to remove notifier")
		}
		_ = n.Close()
		l.notifier = nil
	}
	l.foreign = nil
	l.runErr = nil
	l.blocked.Store(false)
	l.state.Store(int32(NotRunning))
	l.EndRun()

	l.logger.Debug().
		Uint64("loop", l.ID()).
		Log("bridge: exited")
}

// onNotified runs one tick.
func (l *Loop) onNotified() {
	l.blocked.Store(false)

	err := l.RunOnce()
	switch {
	case err == nil:
	case errors.Is(err, selector.ErrYield):
		l.blocked.Store(true)
		return
	default:
		l.runErr = err
		if l.foreign != nil {
			l.foreign.Exit(1)
			return
		}
		l.logger.Err().
			Uint64("loop", l.ID()).
			Err(err).
			Log("bridge: attached tick failed")
		panic(err)
	}

	// a callback may have exited the run
	if l.RunState() == NotRunning {
		return
	}

	if l.Stopping() && l.foreign != nil {
		l.foreign.Exit(0)
		return
	}

	l.notifier.Notify()
}

func (l *Loop) beforeSchedule() {
	if l.blocked.Load() {
		_ = l.WriteToSelf()
	}
}

func (l *Loop) afterCallSoon(h *scheduler.Handle) {
	if !l.eager {
		return
	}
	l.eager = false

	// tasks may not nest, so the current task (if any) is set aside while
	// the new one takes its first step
	t := l.SuspendCurrentTask()
	defer func() {
		h.Cancel()
		l.ResumeTask(t)
	}()

	h.Run()
}

func (l *Loop) stop(request func()) {
	if l.RunState() == RunningAttached {
		l.logger.Debug().
			Uint64("loop", l.ID()).
			Log("bridge: stop ignored while attached")
		return
	}
	request()
	// the tick may be between choosing its timeout and yielding, so the
	// wake-up cannot depend on blocked
	if l.RunState() == RunningNested {
		_ = l.WriteToSelf()
	}
}
