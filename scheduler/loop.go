package scheduler

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-asyncslot/selector"
	"github.com/joeycumines/logiface"
)

// Selector is the readiness multiplexer used by a [Loop]. It is satisfied by
// [*selector.Selector].
type Selector interface {
	Register(fd int, events selector.Events, data any) error
	Modify(fd int, events selector.Events, data any) error
	Unregister(fd int) error
	Select(timeout time.Duration) ([]selector.Ready, error)
	Wakeup() error
	Close() error
}

var (
	loopIDCounter atomic.Uint64
	taskCounter   atomic.Uint64
)

type fdHandlers struct {
	reader *Handle
	writer *Handle
}

func (x *fdHandlers) events() selector.Events {
	var events selector.Events
	if x.reader != nil {
		events |= selector.EventRead
	}
	if x.writer != nil {
		events |= selector.EventWrite
	}
	return events
}

// Loop is a single-threaded cooperative scheduler: a queue of ready
// callbacks, a heap of timers, and a [Selector] for I/O readiness.
//
// Except where noted, methods must be called from the goroutine that runs
// the loop, i.e. from callbacks and tasks.
type Loop struct {
	sel              Selector
	logger           *logiface.Logger[logiface.Event]
	exceptionHandler ExceptionHandler
	current          *Task
	fds              map[int]*fdHandlers
	tasks            map[*Task]struct{}
	hooks            Hooks
	// ready is guarded by mu, as CallSoonThreadsafe may append to it
	ready               []*Handle
	frames              []*Task
	timers              timerHeap
	id                  uint64
	timerSeq            uint64
	slowCallbackLogging time.Duration
	cancelledTimers     atomic.Int64
	mu                  sync.Mutex
	stopping            atomic.Bool
	closed              atomic.Bool
}

// New creates a Loop that waits on sel. The loop takes ownership of sel,
// closing it on Close.
func New(sel Selector, opts ...Option) (*Loop, error) {
	if sel == nil {
		return nil, errors.New("scheduler: nil selector")
	}
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Loop{
		id:                  loopIDCounter.Add(1),
		sel:                 sel,
		logger:              cfg.logger,
		exceptionHandler:    cfg.exceptionHandler,
		hooks:               cfg.hooks,
		slowCallbackLogging: cfg.slowCallbackLogging,
		fds:                 make(map[int]*fdHandlers),
		tasks:               make(map[*Task]struct{}),
	}, nil
}

// ID returns a unique identifier for the loop, for logging.
func (l *Loop) ID() uint64 { return l.id }

// Logger returns the configured logger, which may be nil.
func (l *Loop) Logger() *logiface.Logger[logiface.Event] { return l.logger }

// Selector returns the selector the loop waits on.
func (l *Loop) Selector() Selector { return l.sel }

// Time returns the loop's notion of the current time.
func (l *Loop) Time() time.Time { return time.Now() }

// CallSoon schedules fn to run on the next iteration of the loop, in FIFO
// order. It panics with [ErrClosed] if the loop is closed.
func (l *Loop) CallSoon(fn func()) *Handle {
	if l.hooks.BeforeSchedule != nil {
		l.hooks.BeforeSchedule()
	}
	h := l.newHandle(fn)
	l.mu.Lock()
	l.ready = append(l.ready, h)
	l.mu.Unlock()
	if l.hooks.AfterCallSoon != nil {
		l.hooks.AfterCallSoon(h)
	}
	return h
}

// CallSoonThreadsafe is like CallSoon, but may be called from any goroutine.
// It wakes the loop if it is waiting on the selector. Hooks are not called.
func (l *Loop) CallSoonThreadsafe(fn func()) (*Handle, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	h := &Handle{fn: fn, loop: l}
	l.mu.Lock()
	l.ready = append(l.ready, h)
	l.mu.Unlock()
	if err := l.WriteToSelf(); err != nil {
		return h, err
	}
	return h, nil
}

// CallLater schedules fn to run after d. It panics with [ErrClosed] if the
// loop is closed.
func (l *Loop) CallLater(d time.Duration, fn func()) *TimerHandle {
	return l.CallAt(l.Time().Add(d), fn)
}

// CallAt schedules fn to run at (or soon after) when. It panics with
// [ErrClosed] if the loop is closed.
func (l *Loop) CallAt(when time.Time, fn func()) *TimerHandle {
	if l.hooks.BeforeSchedule != nil {
		l.hooks.BeforeSchedule()
	}
	if l.closed.Load() {
		panic(ErrClosed)
	}
	l.timerSeq++
	t := &TimerHandle{
		when: when,
		seq:  l.timerSeq,
	}
	t.fn = fn
	t.loop = l
	heap.Push(&l.timers, t)
	return t
}

func (l *Loop) newHandle(fn func()) *Handle {
	if l.closed.Load() {
		panic(ErrClosed)
	}
	return &Handle{fn: fn, loop: l}
}

// WriteToSelf wakes the loop if it is waiting on the selector, or makes its
// next wait return immediately. It may be called from any goroutine.
func (l *Loop) WriteToSelf() error {
	err := l.sel.Wakeup()
	if err != nil && !errors.Is(err, selector.ErrClosed) {
		l.logger.Warning().
			Uint64("loop", l.id).
			Err(err).
			Log("scheduler: failed to wake selector")
	}
	return err
}

// Stop requests that the loop stop once the current iteration completes.
// It may be called from any goroutine. If the loop is not running, the next
// run performs one iteration and then stops.
func (l *Loop) Stop() {
	if l.hooks.Stop != nil {
		l.hooks.Stop(l.requestStop)
		return
	}
	l.requestStop()
}

func (l *Loop) requestStop() {
	l.stopping.Store(true)
}

// Stopping reports whether a stop has been requested.
func (l *Loop) Stopping() bool {
	return l.stopping.Load()
}

// ClearStop discards a pending stop request.
func (l *Loop) ClearStop() {
	l.stopping.Store(false)
}

// IsClosed reports whether Close has been called.
func (l *Loop) IsClosed() bool {
	return l.closed.Load()
}

// IsRunning reports whether the loop holds the running-loop slot.
func (l *Loop) IsRunning() bool {
	return RunningLoop() == l
}

// RunOnce runs one iteration of the loop: wait on the selector (without
// blocking if there is ready work, or a stop has been requested), then run
// the I/O callbacks, due timers, and callbacks that were ready at that
// point. Callbacks they schedule run on the next iteration.
//
// An error from the selector, including [selector.ErrYield], is returned
// before any callback runs. A fatal panic (see [IsFatal]) is returned as an
// error, leaving the callbacks not yet run in the queue.
func (l *Loop) RunOnce() (err error) {
	if l.closed.Load() {
		return ErrClosed
	}

	defer func() {
		if r := recover(); r != nil {
			if !IsFatal(r) {
				panic(r)
			}
			err = r.(error)
		}
	}()

	l.pruneTimers()

	var timeout time.Duration
	l.mu.Lock()
	haveReady := len(l.ready) != 0
	l.mu.Unlock()
	switch {
	case haveReady || l.stopping.Load():
		timeout = 0
	case len(l.timers) != 0:
		timeout = max(l.timers[0].when.Sub(l.Time()), 0)
	default:
		timeout = -1
	}

	events, err := l.sel.Select(timeout)
	if err != nil {
		return err
	}

	l.processEvents(events)

	now := l.Time()
	for len(l.timers) != 0 {
		t := l.timers[0]
		if t.when.After(now) {
			break
		}
		heap.Pop(&l.timers)
		if !t.Cancelled() {
			l.enqueue(&t.Handle)
		}
	}

	l.mu.Lock()
	ntodo := len(l.ready)
	l.mu.Unlock()
	for range ntodo {
		l.mu.Lock()
		h := l.ready[0]
		l.ready[0] = nil
		l.ready = l.ready[1:]
		l.mu.Unlock()
		if h.Cancelled() {
			continue
		}
		l.invoke(h)
	}

	return nil
}

// RunForever runs iterations until Stop is called. The selector must not
// have a notifier installed.
func (l *Loop) RunForever() error {
	if err := l.BeginRun(); err != nil {
		return err
	}
	defer l.EndRun()
	for {
		if err := l.RunOnce(); err != nil {
			return err
		}
		if l.stopping.Load() {
			return nil
		}
	}
}

// RunUntilComplete runs the loop until f is done, returning its result.
func (l *Loop) RunUntilComplete(f *Future) (any, error) {
	return RunUntilComplete(l, f, l.RunForever)
}

// RunUntilComplete is the implementation of [Loop.RunUntilComplete],
// parameterized by the function that runs the loop, for wrappers that
// replace RunForever.
func RunUntilComplete(l *Loop, f *Future, runForever func() error) (any, error) {
	if f.loop != l {
		return nil, errors.New("scheduler: future belongs to a different loop")
	}
	cb := f.addDoneCallback(func(*Future) { l.Stop() })
	defer f.removeDoneCallback(cb)
	if err := runForever(); err != nil {
		return nil, err
	}
	if !f.Done() {
		return nil, ErrStoppedEarly
	}
	return f.Result()
}

// AllTasks returns the tasks that have not finished.
func (l *Loop) AllTasks() []*Task {
	tasks := make([]*Task, 0, len(l.tasks))
	for t := range l.tasks {
		tasks = append(tasks, t)
	}
	return tasks
}

// Close discards all pending callbacks, unwinds unfinished tasks, and
// closes the selector. Calling Close more than once is a no-op.
func (l *Loop) Close() error {
	if l.IsRunning() {
		return ErrCloseRunning
	}
	if l.closed.Load() {
		return nil
	}

	for t := range l.tasks {
		t.abandon()
	}

	l.closed.Store(true)

	l.mu.Lock()
	l.ready = nil
	l.mu.Unlock()
	l.timers = nil
	l.fds = nil
	l.tasks = nil

	l.logger.Debug().
		Uint64("loop", l.id).
		Log("scheduler: loop closed")

	return l.sel.Close()
}

func (l *Loop) enqueue(h *Handle) {
	l.mu.Lock()
	l.ready = append(l.ready, h)
	l.mu.Unlock()
}

func (l *Loop) processEvents(events []selector.Ready) {
	for _, ev := range events {
		handlers, ok := l.fds[ev.FD]
		if !ok {
			continue
		}
		if ev.Events&(selector.EventRead|selector.EventError|selector.EventHangup) != 0 &&
			handlers.reader != nil && !handlers.reader.Cancelled() {
			l.enqueue(handlers.reader)
		}
		if ev.Events&(selector.EventWrite|selector.EventError|selector.EventHangup) != 0 &&
			handlers.writer != nil && !handlers.writer.Cancelled() {
			l.enqueue(handlers.writer)
		}
	}
}

// pruneTimers drops cancelled timers from the head of the heap, and
// rebuilds the heap if most of it is cancelled.
func (l *Loop) pruneTimers() {
	if n := len(l.timers); n > 64 && l.cancelledTimers.Load() > int64(n/2) {
		live := l.timers[:0]
		for _, t := range l.timers {
			if t.Cancelled() {
				t.index = -1
				t.dequeued()
				continue
			}
			live = append(live, t)
		}
		clear(l.timers[len(live):])
		l.timers = live
		for i, t := range l.timers {
			t.index = i
		}
		heap.Init(&l.timers)
	}
	for len(l.timers) != 0 && l.timers[0].Cancelled() {
		heap.Pop(&l.timers)
	}
}

// AddReader calls fn whenever fd is readable, replacing any existing
// reader for fd.
func (l *Loop) AddReader(fd int, fn func()) error {
	return l.addHandler(fd, fn, true)
}

// AddWriter calls fn whenever fd is writable, replacing any existing
// writer for fd.
func (l *Loop) AddWriter(fd int, fn func()) error {
	return l.addHandler(fd, fn, false)
}

// RemoveReader stops watching fd for reads, returning false if it was not.
func (l *Loop) RemoveReader(fd int) (bool, error) {
	return l.removeHandler(fd, true)
}

// RemoveWriter stops watching fd for writes, returning false if it was not.
func (l *Loop) RemoveWriter(fd int) (bool, error) {
	return l.removeHandler(fd, false)
}

func (l *Loop) addHandler(fd int, fn func(), read bool) error {
	if l.closed.Load() {
		return ErrClosed
	}
	h := &Handle{fn: fn, loop: l}
	handlers, ok := l.fds[fd]
	if !ok {
		handlers = &fdHandlers{}
	}
	next := *handlers
	if read {
		next.reader = h
	} else {
		next.writer = h
	}
	var err error
	if ok {
		err = l.sel.Modify(fd, next.events(), nil)
	} else {
		err = l.sel.Register(fd, next.events(), nil)
	}
	if err != nil {
		return err
	}
	if read && handlers.reader != nil {
		handlers.reader.Cancel()
	}
	if !read && handlers.writer != nil {
		handlers.writer.Cancel()
	}
	*handlers = next
	l.fds[fd] = handlers
	return nil
}

func (l *Loop) removeHandler(fd int, read bool) (bool, error) {
	if l.closed.Load() {
		return false, ErrClosed
	}
	handlers, ok := l.fds[fd]
	if !ok {
		return false, nil
	}
	h := &handlers.writer
	if read {
		h = &handlers.reader
	}
	if *h == nil {
		return false, nil
	}
	(*h).Cancel()
	*h = nil
	if handlers.reader == nil && handlers.writer == nil {
		delete(l.fds, fd)
		return true, l.sel.Unregister(fd)
	}
	return true, l.sel.Modify(fd, handlers.events(), nil)
}
