//go:build linux || darwin

package bridge

import (
	"errors"
	"testing"

	"github.com/joeycumines/go-asyncslot/hostloop"
	"github.com/joeycumines/go-asyncslot/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncSlot(t *testing.T) {
	app := newTestApp(t)
	l := newTestLoop(t)

	sig := hostloop.NewSignal(nil, hostloop.WithSignalName("clicked"))
	var log []any
	_, err := sig.ConnectFunc(AsyncSlot(l, func(tc *scheduler.TaskContext, args []any) error {
		log = append(log, args...)
		if err := tc.Yield(); err != nil {
			return err
		}
		log = append(log, "after")
		l.Stop()
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, app.Post(func() {
		sig.Emit("button")
		assert.Equal(t, []any{"button"}, log)
	}))
	require.NoError(t, l.RunForever())
	assert.Equal(t, []any{"button", "after"}, log)
}

func TestAsyncSlot_borrowedArgs(t *testing.T) {
	app := newTestApp(t)
	l := newTestLoop(t)

	sig := hostloop.NewSignal(nil, hostloop.WithBorrowedArgs())
	var got [][]any
	_, err := sig.ConnectFunc(AsyncSlot(l, func(tc *scheduler.TaskContext, args []any) error {
		if err := tc.Yield(); err != nil {
			return err
		}
		got = append(got, args)
		if len(got) == 2 {
			l.Stop()
		}
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, app.Post(func() {
		sig.Emit(1)
		sig.Emit(2)
	}))
	require.NoError(t, l.RunForever())
	assert.Equal(t, [][]any{{1}, {2}}, got)
}

func TestAsyncSlot_error(t *testing.T) {
	app := newTestApp(t)
	l := newTestLoop(t, WithExceptionHandler(scheduler.PropagateExceptions))

	boom := errors.New("boom")
	slot := AsyncSlot(l, func(*scheduler.TaskContext, []any) error { return boom })
	require.NoError(t, app.Post(func() { slot() }))

	err := l.RunForever()
	assert.ErrorIs(t, err, boom)
}

func TestAsyncSlot_notRunning(t *testing.T) {
	newTestApp(t)
	l := newTestLoop(t)

	var called bool
	slot := AsyncSlot(l, func(*scheduler.TaskContext, []any) error {
		called = true
		return nil
	})
	slot()
	assert.False(t, called)
	assert.Empty(t, l.AllTasks())
}
