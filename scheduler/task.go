package scheduler

import (
	"errors"
	"fmt"
	"iter"
	"runtime/debug"
	"time"
)

// Coroutine is the body of a [Task]. It runs on the loop, and suspends only
// inside the methods of its [TaskContext].
type Coroutine func(tc *TaskContext) (any, error)

type taskOptions struct {
	name string
}

// TaskOption configures a [Task].
type TaskOption interface {
	applyTask(*taskOptions)
}

type taskOptionFunc func(*taskOptions)

func (f taskOptionFunc) applyTask(opts *taskOptions) { f(opts) }

// WithTaskName names the task, for logging.
func WithTaskName(name string) TaskOption {
	return taskOptionFunc(func(opts *taskOptions) {
		opts.name = name
	})
}

// Task runs a [Coroutine] on a [Loop], one step at a time. Each step runs
// the coroutine until it awaits a pending future, or returns.
type Task struct {
	res        any
	err        error
	loop       *Loop
	fut        *Future
	tc         *TaskContext
	waiting    *Future
	waitingCb  *doneCallback
	coro       Coroutine
	next       func() (*Future, bool)
	stop       func()
	name       string
	started    bool
	mustCancel bool
	// resumeCancelled makes the current suspension point return ErrCancelled
	resumeCancelled bool
}

// TaskContext is the coroutine's view of its task.
type TaskContext struct {
	task  *Task
	yield func(*Future) bool
}

// CreateTask schedules coro to start running on the next iteration of the
// loop. Its first step is scheduled with [Loop.CallSoon].
func (l *Loop) CreateTask(coro Coroutine, opts ...TaskOption) (*Task, error) {
	if coro == nil {
		return nil, errors.New("scheduler: nil coroutine")
	}
	if l.closed.Load() {
		return nil, ErrClosed
	}
	var cfg taskOptions
	for _, opt := range opts {
		if opt != nil {
			opt.applyTask(&cfg)
		}
	}
	if cfg.name == "" {
		cfg.name = fmt.Sprintf("Task-%d", taskCounter.Add(1))
	}

	t := &Task{
		loop: l,
		fut:  l.CreateFuture(),
		coro: coro,
		name: cfg.name,
	}
	t.fut.cancelHook = t.Cancel
	t.tc = &TaskContext{task: t}
	t.next, t.stop = iter.Pull(t.run)
	l.tasks[t] = struct{}{}

	l.CallSoon(t.step)

	return t, nil
}

// Name returns the task's name.
func (t *Task) Name() string { return t.name }

// Future returns the future that completes with the task's outcome.
func (t *Task) Future() *Future { return t.fut }

// Done reports whether the task has finished.
func (t *Task) Done() bool { return t.fut.Done() }

// Cancelled reports whether the task finished by being cancelled.
func (t *Task) Cancelled() bool { return t.fut.Cancelled() }

// Result returns the outcome of the coroutine. See [Future.Result].
func (t *Task) Result() (any, error) { return t.fut.Result() }

// AddDoneCallback is shorthand for t.Future().AddDoneCallback.
func (t *Task) AddDoneCallback(fn func(f *Future)) { t.fut.AddDoneCallback(fn) }

func (t *Task) String() string { return t.name }

// Cancel requests cancellation. The awaited future, if any, is cancelled,
// otherwise the next suspension point of the coroutine returns
// [ErrCancelled]. A task cancelled before its first step never runs.
func (t *Task) Cancel() bool {
	if t.fut.Done() {
		return false
	}
	if t.waiting != nil && t.waiting.Cancel() {
		return true
	}
	t.mustCancel = true
	return true
}

func (t *Task) run(yield func(*Future) bool) {
	t.tc.yield = yield
	t.res, t.err = t.coro(t.tc)
}

func (t *Task) step() {
	if t.fut.Done() {
		return
	}

	l := t.loop
	l.enterTask(t)
	defer l.leaveTask(t)

	if t.mustCancel && !t.started {
		t.stop()
		t.err = ErrCancelled
		t.finish()
		return
	}
	t.started = true
	t.resumeCancelled = t.mustCancel
	t.mustCancel = false

	fut, ok := t.resume()
	if !ok {
		t.finish()
		return
	}

	if fut == nil {
		l.CallSoon(t.step)
		return
	}

	t.waiting = fut
	t.waitingCb = fut.addDoneCallback(t.wakeup)
	if t.mustCancel && fut.Cancel() {
		t.mustCancel = false
	}
}

// resume runs the coroutine until its next suspension point, converting
// panics into the task's error.
func (t *Task) resume() (fut *Future, ok bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		fut, ok = nil, false
		if IsFatal(r) {
			t.err = r.(error)
			t.finish()
			panic(r)
		}
		t.res = nil
		t.err = &PanicError{Value: r, Stack: debug.Stack()}
		t.loop.logger.Debug().
			Str("task", t.name).
			Err(t.err).
			Log("scheduler: task panicked")
	}()
	return t.next()
}

func (t *Task) wakeup(*Future) {
	t.waiting = nil
	t.waitingCb = nil
	t.step()
}

func (t *Task) finish() {
	delete(t.loop.tasks, t)
	switch {
	case errors.Is(t.err, ErrCancelled):
		t.fut.cancel()
	case t.err != nil:
		_ = t.fut.SetError(t.err)
	default:
		_ = t.fut.SetResult(t.res)
	}
}

// abandon unwinds a coroutine that will never be resumed, causing its
// pending suspension point to return ErrCancelled.
func (t *Task) abandon() {
	if t.waiting != nil && t.waitingCb != nil {
		t.waiting.removeDoneCallback(t.waitingCb)
	}
	t.waiting, t.waitingCb = nil, nil
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.loop.logger.Warning().
					Str("task", t.name).
					Any("panic", r).
					Log("scheduler: abandoned task panicked")
			}
		}()
		t.stop()
	}()
	if !t.fut.Done() {
		t.err = ErrCancelled
		t.finish()
	}
}

func (t *Task) consumeCancel() bool {
	if t.resumeCancelled {
		t.resumeCancelled = false
		return true
	}
	return false
}

// Loop returns the loop running the task.
func (tc *TaskContext) Loop() *Loop { return tc.task.loop }

// Task returns the task.
func (tc *TaskContext) Task() *Task { return tc.task }

// Await suspends the coroutine until f is done, then returns its result.
// It returns [ErrCancelled] if the task is cancelled while suspended.
func (tc *TaskContext) Await(f *Future) (any, error) {
	t := tc.task
	if f.loop != t.loop {
		return nil, errors.New("scheduler: future belongs to a different loop")
	}
	if f == t.fut {
		return nil, errors.New("scheduler: task cannot await itself")
	}
	if !f.Done() {
		if !tc.yield(f) {
			return nil, ErrCancelled
		}
		if t.consumeCancel() {
			return nil, ErrCancelled
		}
	}
	return f.Result()
}

// Yield suspends the coroutine for one iteration of the loop.
func (tc *TaskContext) Yield() error {
	if !tc.yield(nil) {
		return ErrCancelled
	}
	if tc.task.consumeCancel() {
		return ErrCancelled
	}
	return nil
}

// Sleep suspends the coroutine for at least d.
func (tc *TaskContext) Sleep(d time.Duration) error {
	if d <= 0 {
		return tc.Yield()
	}
	l := tc.task.loop
	f := l.CreateFuture()
	h := l.CallLater(d, func() { _ = f.SetResult(nil) })
	defer h.Cancel()
	_, err := tc.Await(f)
	return err
}

// CurrentTask returns the task whose step is running, if any.
func (l *Loop) CurrentTask() *Task {
	return l.current
}

// SuspendCurrentTask pushes the current task (possibly nil) onto the stack
// of suspended frames, so that another task's step may run nested inside
// it. Each call must be paired with [Loop.ResumeTask].
func (l *Loop) SuspendCurrentTask() *Task {
	t := l.current
	l.frames = append(l.frames, t)
	l.current = nil
	return t
}

// ResumeTask pops the frame pushed by the matching SuspendCurrentTask.
func (l *Loop) ResumeTask(t *Task) {
	n := len(l.frames)
	if n == 0 || l.frames[n-1] != t {
		panic(errors.New("scheduler: resumed task is not the most recently suspended"))
	}
	l.frames[n-1] = nil
	l.frames = l.frames[:n-1]
	l.current = t
}

func (l *Loop) enterTask(t *Task) {
	if l.current != nil {
		panic(fmt.Errorf("%w: cannot enter %s while %s is current", ErrTaskRunning, t.name, l.current.name))
	}
	l.current = t
}

func (l *Loop) leaveTask(t *Task) {
	if l.current != t {
		l.logger.Warning().
			Str("task", t.name).
			Log("scheduler: leaving task that is not current")
	}
	l.current = nil
}
