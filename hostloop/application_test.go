package hostloop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *Application {
	t.Helper()
	app, err := NewApplication(WithName(t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestApplication_singleton(t *testing.T) {
	require.Nil(t, Instance())

	app, err := NewApplication()
	require.NoError(t, err)
	assert.Same(t, app, Instance())

	_, err = NewApplication()
	assert.ErrorIs(t, err, ErrApplicationExists)

	require.NoError(t, app.Close())
	assert.Nil(t, Instance())
	assert.ErrorIs(t, app.Close(), ErrClosed)
	assert.ErrorIs(t, app.Post(func() {}), ErrClosed)
	assert.Equal(t, ExitClosed, app.Exec())

	again, err := NewApplication()
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestApplication_postIsQueued(t *testing.T) {
	app := newTestApp(t)

	var log []string
	require.NoError(t, app.Post(func() {
		log = append(log, "first")
		require.NoError(t, app.Post(func() {
			log = append(log, "third")
			app.Exit(7)
		}))
		log = append(log, "first done")
	}))
	require.NoError(t, app.Post(func() { log = append(log, "second") }))
	assert.Empty(t, log)

	assert.Equal(t, 7, app.Exec())
	assert.Equal(t, []string{"first", "first done", "second", "third"}, log)
}

func TestApplication_postFromOtherGoroutine(t *testing.T) {
	app := newTestApp(t)

	go func() {
		time.Sleep(10 * time.Millisecond)
		assert.NoError(t, app.Post(app.Quit))
	}()
	assert.Equal(t, 0, app.Exec())
}

func TestEventLoop_nested(t *testing.T) {
	app := newTestApp(t)

	var log []any
	require.NoError(t, app.Post(func() {
		inner := app.NewEventLoop()
		require.NoError(t, app.Post(func() {
			assert.True(t, inner.IsRunning())
			inner.Exit(3)
			log = append(log, "inner handler")
		}))
		code := inner.Exec()
		log = append(log, code)
		assert.False(t, inner.IsRunning())
		app.Exit(5)
	}))

	assert.Equal(t, 5, app.Exec())
	assert.Equal(t, []any{"inner handler", 3}, log)
}

func TestEventLoop_outerExitDoesNotStopInner(t *testing.T) {
	app := newTestApp(t)
	outer := app.NewEventLoop()

	var innerCode int
	require.NoError(t, app.Post(func() {
		inner := app.NewEventLoop()
		require.NoError(t, app.Post(func() {
			outer.Exit(1)
			require.NoError(t, app.Post(func() { inner.Exit(2) }))
		}))
		innerCode = inner.Exec()
	}))

	assert.Equal(t, 1, outer.Exec())
	assert.Equal(t, 2, innerCode)
}

func TestApplication_ExitEndsAllLoops(t *testing.T) {
	app := newTestApp(t)

	var innerCode int
	require.NoError(t, app.Post(func() {
		inner := app.NewEventLoop()
		require.NoError(t, app.Post(func() { app.Exit(9) }))
		innerCode = inner.Exec()
	}))
	assert.Equal(t, 9, app.Exec())
	assert.Equal(t, 9, innerCode)
}

func TestEventLoop_exitBeforeExecIsIgnored(t *testing.T) {
	app := newTestApp(t)
	loop := app.NewEventLoop()
	loop.Exit(4)
	require.NoError(t, app.Post(func() { loop.Exit(6) }))
	assert.Equal(t, 6, loop.Exec())
}

func TestApplication_closeWhileRunning(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, app.Post(func() { _ = app.Close() }))
	assert.Equal(t, ExitClosed, app.Exec())
}

func TestApplication_panicUnwindsExec(t *testing.T) {
	app := newTestApp(t)
	loop := app.NewEventLoop()
	require.NoError(t, app.Post(func() { panic("handler failed") }))
	assert.PanicsWithValue(t, "handler failed", func() { loop.Exec() })
	assert.False(t, loop.IsRunning())

	require.NoError(t, app.Post(func() { loop.Exit(0) }))
	assert.Equal(t, 0, loop.Exec())
}

func TestApplication_ProcessEvents(t *testing.T) {
	app := newTestApp(t)

	var count int
	for range 3 {
		require.NoError(t, app.Post(func() {
			count++
			// not dispatched by this call
			_ = app.Post(func() { count += 10 })
		}))
	}
	assert.Equal(t, 3, app.ProcessEvents())
	assert.Equal(t, 3, count)
	assert.Equal(t, 3, app.Pending())
	assert.Equal(t, 3, app.ProcessEvents())
	assert.Equal(t, 33, count)
	assert.Equal(t, 0, app.ProcessEvents())
}

func TestApplication_AfterFunc(t *testing.T) {
	app := newTestApp(t)

	var fired atomic.Int32
	stopped := app.AfterFunc(5*time.Millisecond, func() { fired.Add(100) })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	timer := app.AfterFunc(10*time.Millisecond, func() {
		fired.Add(1)
		app.Quit()
	})
	start := time.Now()
	assert.Equal(t, 0, app.Exec())
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, timer.Stop())
}

func TestTimer_stopAfterPostBeforeDispatch(t *testing.T) {
	app := newTestApp(t)

	var fired bool
	timer := app.AfterFunc(0, func() { fired = true })
	require.Eventually(t, func() bool { return app.Pending() == 1 }, time.Second, time.Millisecond)
	assert.True(t, timer.Stop())
	app.ProcessEvents()
	assert.False(t, fired)
}
