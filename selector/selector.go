package selector

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

// Events is a set of readiness conditions.
type Events uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead Events = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

func (e Events) String() string {
	if e == 0 {
		return "None"
	}
	var parts []string
	for _, v := range [...]struct {
		bit  Events
		name string
	}{
		{EventRead, "Read"},
		{EventWrite, "Write"},
		{EventError, "Error"},
		{EventHangup, "Hangup"},
	} {
		if e&v.bit != 0 {
			parts = append(parts, v.name)
		}
	}
	return strings.Join(parts, "|")
}

// Ready is a single result of [Selector.Select].
type Ready struct {
	// Data is the value given to Register or Modify.
	Data any
	// FD is the registered file descriptor.
	FD int
	// Events are the conditions that were reported.
	Events Events
}

// Notifier receives the completion of a background wait.
//
// Notify is called from the background goroutine, and must not block.
type Notifier interface {
	Notify()
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func()

func (f NotifierFunc) Notify() { f() }

type registration struct {
	data   any
	events Events
}

type rawEvent struct {
	fd     int
	events Events
}

type waitResult struct {
	err   error
	ready []Ready
}

// Selector is a readiness multiplexer that can yield instead of blocking.
// See the package documentation for details.
//
// All methods are safe for concurrent use. Concurrent Select calls are
// serialized.
type Selector struct {
	logger   *logiface.Logger[logiface.Event]
	backend  *backend
	notifier Notifier
	keys     map[int]*registration
	pending  *waitResult
	cond     sync.Cond
	mu       sync.Mutex
	state    State
	// waiting is set while any goroutine is inside the blocking kernel wait,
	// including the synchronous path used when no notifier is installed
	waiting bool
}

// New creates a Selector in [StateIdle].
func New(opts ...Option) (*Selector, error) {
	cfg, err := resolveSelectorOptions(opts)
	if err != nil {
		return nil, err
	}
	b, err := newBackend(cfg.maxEvents)
	if err != nil {
		return nil, err
	}
	s := &Selector{
		logger:  cfg.logger,
		backend: b,
		keys:    make(map[int]*registration),
	}
	s.cond.L = &s.mu
	return s, nil
}

// State returns the current state.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Register starts monitoring fd for the given events.
func (s *Selector) Register(fd int, events Events, data any) error {
	if fd < 0 || fd > math.MaxInt32 {
		return ErrFDOutOfRange
	}
	if events&(EventRead|EventWrite) == 0 {
		return ErrInvalidEvents
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	if _, ok := s.keys[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	events &= EventRead | EventWrite
	if err := s.backend.add(fd, events); err != nil {
		return err
	}
	s.keys[fd] = &registration{data: data, events: events}
	return nil
}

// Modify changes the events and data associated with a registered fd.
func (s *Selector) Modify(fd int, events Events, data any) error {
	if events&(EventRead|EventWrite) == 0 {
		return ErrInvalidEvents
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	reg, ok := s.keys[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	events &= EventRead | EventWrite
	if events != reg.events {
		if err := s.backend.modify(fd, reg.events, events); err != nil {
			return err
		}
	}
	reg.events = events
	reg.data = data
	return nil
}

// Unregister stops monitoring fd. It is safe to call after fd is closed.
func (s *Selector) Unregister(fd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	reg, ok := s.keys[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	delete(s.keys, fd)
	return s.backend.remove(fd, reg.events)
}

// Select waits for registered file descriptors to become ready. A negative
// timeout waits indefinitely, and a zero timeout never blocks.
//
// If a previous call yielded, and the background wait has since completed,
// its result is returned without polling. Otherwise, if nothing is ready,
// the timeout is non-zero, and a [Notifier] is installed, the wait is moved
// to a background goroutine and [ErrYield] is returned.
//
// A call to [Selector.Wakeup] causes the next (or current) wait to return
// early, with no results.
func (s *Selector) Select(timeout time.Duration) ([]Ready, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.waiting {
		s.cond.Wait()
	}

	if s.state == StateClosed {
		return nil, ErrClosed
	}

	if r := s.pending; r != nil {
		s.pending = nil
		return r.ready, r.err
	}

	raw, woken, err := s.waitOnce(0)
	if err != nil {
		return nil, err
	}
	if woken || len(raw) != 0 || timeout == 0 {
		return s.resolveLocked(raw), nil
	}

	timeoutMs := timeoutMillis(timeout)

	if s.notifier == nil {
		s.waiting = true
		s.mu.Unlock()
		raw, _, err = s.waitOnce(timeoutMs)
		s.mu.Lock()
		s.waiting = false
		s.cond.Broadcast()
		if err != nil {
			return nil, err
		}
		return s.resolveLocked(raw), nil
	}

	s.state = StateBusy
	s.waiting = true
	s.logger.Debug().
		Int("timeout_ms", timeoutMs).
		Log("selector: waiting in background")
	go s.background(timeoutMs)

	return nil, ErrYield
}

// SetNotifier installs the target for background wait completions, which
// may be nil. If a background wait is in flight, it is woken, and
// SetNotifier blocks until it completes. The completion is delivered to n.
func (s *Selector) SetNotifier(n Notifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	s.notifier = n
	if s.waiting {
		if err := s.backend.wake(); err != nil {
			return err
		}
		for s.waiting {
			s.cond.Wait()
		}
	}
	return nil
}

// Wakeup interrupts the current wait, or, if there is none, causes the next
// Select to return immediately. It may be called from any goroutine.
func (s *Selector) Wakeup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	return s.backend.wake()
}

// Close releases the selector's resources, after waking and joining any
// background wait. Registered file descriptors are not closed.
func (s *Selector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	if s.waiting {
		if err := s.backend.wake(); err != nil {
			s.logger.Warning().
				Err(err).
				Log("selector: failed to wake background wait")
		}
		for s.waiting {
			s.cond.Wait()
		}
	}
	s.state = StateClosed
	s.notifier = nil
	s.pending = nil
	s.keys = nil
	s.cond.Broadcast()
	return s.backend.close()
}

func (s *Selector) background(timeoutMs int) {
	raw, _, err := s.waitOnce(timeoutMs)

	s.mu.Lock()
	if err != nil {
		s.logger.Err().
			Err(err).
			Log("selector: background wait failed")
	}
	s.pending = &waitResult{ready: s.resolveLocked(raw), err: err}
	s.state = StateIdle
	s.waiting = false
	n := s.notifier
	s.cond.Broadcast()
	s.mu.Unlock()

	if n != nil {
		n.Notify()
	}
}

func (s *Selector) waitOnce(timeoutMs int) (raw []rawEvent, woken bool, err error) {
	woken, err = s.backend.wait(timeoutMs, func(fd int, events Events) {
		raw = append(raw, rawEvent{fd: fd, events: events})
	})
	return raw, woken, err
}

// resolveLocked maps kernel events to registrations, merging events for
// the same fd, and dropping any fd unregistered in the meantime.
func (s *Selector) resolveLocked(raw []rawEvent) []Ready {
	if len(raw) == 0 {
		return nil
	}
	ready := make([]Ready, 0, len(raw))
	index := make(map[int]int, len(raw))
	for _, ev := range raw {
		reg, ok := s.keys[ev.fd]
		if !ok {
			continue
		}
		if i, ok := index[ev.fd]; ok {
			ready[i].Events |= ev.events
			continue
		}
		index[ev.fd] = len(ready)
		ready = append(ready, Ready{FD: ev.fd, Events: ev.events, Data: reg.data})
	}
	return ready
}

// timeoutMillis rounds up, so a wait never returns before a deadline.
func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}
