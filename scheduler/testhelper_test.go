package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-asyncslot/selector"
	"github.com/stretchr/testify/require"
)

// fakeSelector never reports readiness. Blocking selects sleep for the
// timeout, capped at maxSleep, or until Wakeup.
type fakeSelector struct {
	wake     chan struct{}
	err      error
	timeouts []time.Duration
	mu       sync.Mutex
	maxSleep time.Duration
	closed   bool
}

func newFakeSelector() *fakeSelector {
	return &fakeSelector{
		wake:     make(chan struct{}, 1),
		maxSleep: time.Second,
	}
}

func (s *fakeSelector) Register(int, selector.Events, any) error { return nil }
func (s *fakeSelector) Modify(int, selector.Events, any) error   { return nil }
func (s *fakeSelector) Unregister(int) error                     { return nil }

func (s *fakeSelector) Select(timeout time.Duration) ([]selector.Ready, error) {
	s.mu.Lock()
	s.timeouts = append(s.timeouts, timeout)
	err := s.err
	if s.closed {
		err = selector.ErrClosed
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if timeout < 0 || timeout > s.maxSleep {
		timeout = s.maxSleep
	}
	if timeout > 0 {
		select {
		case <-s.wake:
		case <-time.After(timeout):
		}
	}
	return nil, nil
}

func (s *fakeSelector) Wakeup() error {
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *fakeSelector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSelector) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSelector) lastTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeouts[len(s.timeouts)-1]
}

func newTestLoop(t *testing.T, opts ...Option) (*Loop, *fakeSelector) {
	t.Helper()
	sel := newFakeSelector()
	l, err := New(sel, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		l.EndRun()
		_ = l.Close()
	})
	return l, sel
}

// runUntil runs iterations until cond holds, failing after a deadline.
func runUntil(t *testing.T, l *Loop, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		require.NoError(t, l.RunOnce())
	}
}
