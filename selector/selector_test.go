//go:build linux || darwin

package selector

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanNotifier struct {
	ch    chan struct{}
	count atomic.Int32
}

func newChanNotifier() *chanNotifier {
	return &chanNotifier{ch: make(chan struct{}, 16)}
}

func (n *chanNotifier) Notify() {
	n.count.Add(1)
	n.ch <- struct{}{}
}

func (n *chanNotifier) wait(t *testing.T) {
	t.Helper()
	select {
	case <-n.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func newTestSelector(t *testing.T) *Selector {
	t.Helper()
	s, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestPipe(t *testing.T) (r, w *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	return r, w
}

func TestSelector_zeroTimeoutNeverLeavesIdle(t *testing.T) {
	s := newTestSelector(t)
	n := newChanNotifier()
	require.NoError(t, s.SetNotifier(n))

	for range 100 {
		ready, err := s.Select(0)
		require.NoError(t, err)
		assert.Empty(t, ready)
		assert.Equal(t, StateIdle, s.State())
	}
	assert.Zero(t, n.count.Load())
}

func TestSelector_readyPipe(t *testing.T) {
	s := newTestSelector(t)
	r, w := newTestPipe(t)

	require.NoError(t, s.Register(int(r.Fd()), EventRead, "reader"))

	ready, err := s.Select(0)
	require.NoError(t, err)
	assert.Empty(t, ready)

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	ready, err = s.Select(-1)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, int(r.Fd()), ready[0].FD)
	assert.Equal(t, "reader", ready[0].Data)
	assert.NotZero(t, ready[0].Events&EventRead)

	require.NoError(t, s.Modify(int(r.Fd()), EventRead, "renamed"))
	ready, err = s.Select(0)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "renamed", ready[0].Data)

	require.NoError(t, s.Unregister(int(r.Fd())))
	ready, err = s.Select(0)
	require.NoError(t, err)
	assert.Empty(t, ready)
}

func TestSelector_readyWithNotifierDoesNotYield(t *testing.T) {
	s := newTestSelector(t)
	r, w := newTestPipe(t)
	require.NoError(t, s.Register(int(r.Fd()), EventRead, nil))
	require.NoError(t, s.SetNotifier(newChanNotifier()))

	_, err := w.Write([]byte("x"))
	require.NoError(t, err)

	ready, err := s.Select(-1)
	require.NoError(t, err)
	assert.Len(t, ready, 1)
	assert.Equal(t, StateIdle, s.State())
}

func TestSelector_yieldNotifiesExactlyOnce(t *testing.T) {
	s := newTestSelector(t)
	n := newChanNotifier()
	require.NoError(t, s.SetNotifier(n))

	ready, err := s.Select(20 * time.Millisecond)
	require.ErrorIs(t, err, ErrYield)
	assert.Nil(t, ready)

	n.wait(t)
	assert.Equal(t, StateIdle, s.State())

	// the stored (empty) result is returned without a new wait
	ready, err = s.Select(time.Hour)
	require.NoError(t, err)
	assert.Empty(t, ready)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), n.count.Load())
}

func TestSelector_backgroundWaitReportsReadiness(t *testing.T) {
	s := newTestSelector(t)
	r, w := newTestPipe(t)
	require.NoError(t, s.Register(int(r.Fd()), EventRead, 42))
	n := newChanNotifier()
	require.NoError(t, s.SetNotifier(n))

	_, err := s.Select(-1)
	require.ErrorIs(t, err, ErrYield)
	assert.Equal(t, StateBusy, s.State())

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	n.wait(t)

	ready, err := s.Select(-1)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, 42, ready[0].Data)
}

func TestSelector_setNotifierWhileBusy(t *testing.T) {
	s := newTestSelector(t)
	first := newChanNotifier()
	second := newChanNotifier()
	require.NoError(t, s.SetNotifier(first))

	_, err := s.Select(-1)
	require.ErrorIs(t, err, ErrYield)
	assert.Equal(t, StateBusy, s.State())

	require.NoError(t, s.SetNotifier(second))
	assert.Equal(t, StateIdle, s.State())

	second.wait(t)
	assert.Zero(t, first.count.Load())
	assert.Equal(t, int32(1), second.count.Load())
}

func TestSelector_setNotifierNilDropsNotification(t *testing.T) {
	s := newTestSelector(t)
	n := newChanNotifier()
	require.NoError(t, s.SetNotifier(n))

	_, err := s.Select(-1)
	require.ErrorIs(t, err, ErrYield)

	require.NoError(t, s.SetNotifier(nil))
	assert.Equal(t, StateIdle, s.State())
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, n.count.Load())

	// the result of the interrupted wait is still delivered
	ready, err := s.Select(-1)
	require.NoError(t, err)
	assert.Empty(t, ready)
}

func TestSelector_wakeupInterruptsBlockingSelect(t *testing.T) {
	s := newTestSelector(t)

	done := make(chan error, 1)
	go func() {
		_, err := s.Select(-1)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Wakeup())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("select did not return after wakeup")
	}
}

func TestSelector_wakeupBeforeSelect(t *testing.T) {
	s := newTestSelector(t)
	require.NoError(t, s.SetNotifier(newChanNotifier()))
	require.NoError(t, s.Wakeup())

	ready, err := s.Select(-1)
	require.NoError(t, err)
	assert.Empty(t, ready)
	assert.Equal(t, StateIdle, s.State())
}

func TestSelector_close(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	n := newChanNotifier()
	require.NoError(t, s.SetNotifier(n))

	_, err = s.Select(-1)
	require.ErrorIs(t, err, ErrYield)

	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.Close(), ErrClosed)

	_, err = s.Select(0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.SetNotifier(nil), ErrClosed)
	assert.ErrorIs(t, s.Wakeup(), ErrClosed)
	assert.ErrorIs(t, s.Register(0, EventRead, nil), ErrClosed)
}

func TestSelector_registerErrors(t *testing.T) {
	s := newTestSelector(t)
	r, _ := newTestPipe(t)
	fd := int(r.Fd())

	assert.ErrorIs(t, s.Register(-1, EventRead, nil), ErrFDOutOfRange)
	assert.ErrorIs(t, s.Register(fd, EventHangup, nil), ErrInvalidEvents)
	require.NoError(t, s.Register(fd, EventRead, nil))
	assert.ErrorIs(t, s.Register(fd, EventRead, nil), ErrFDAlreadyRegistered)
	assert.ErrorIs(t, s.Modify(fd+1000, EventRead, nil), ErrFDNotRegistered)
	assert.ErrorIs(t, s.Unregister(fd+1000), ErrFDNotRegistered)
}

func TestTimeoutMillis(t *testing.T) {
	for _, tc := range []struct {
		in   time.Duration
		want int
	}{
		{-1, -1},
		{-time.Hour, -1},
		{0, 0},
		{1, 1},
		{time.Millisecond, 1},
		{time.Millisecond + 1, 2},
		{1500 * time.Microsecond, 2},
		{time.Duration(1<<62), 1<<31 - 1},
	} {
		assert.Equal(t, tc.want, timeoutMillis(tc.in), "%v", tc.in)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Idle", StateIdle.String())
	assert.Equal(t, "Busy", StateBusy.String())
	assert.Equal(t, "Closed", StateClosed.String())
	assert.Equal(t, "Unknown", State(99).String())
	assert.Equal(t, "Read|Hangup", (EventRead | EventHangup).String())
	assert.Equal(t, "None", Events(0).String())
}
