//go:build linux || darwin

package bridge

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-asyncslot/hostloop"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
)

// syncBuffer is written to by the selector's background goroutine.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (x *syncBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.Write(p)
}

func (x *syncBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.String()
}

func newBufferLogger(w io.Writer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()
}

func newTestApp(t *testing.T) *hostloop.Application {
	t.Helper()
	app, err := hostloop.NewApplication(hostloop.WithName(t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func newTestLoop(t *testing.T, opts ...Option) *Loop {
	t.Helper()
	var logs syncBuffer
	l, err := New(append([]Option{WithLogger(newBufferLogger(&logs))}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if l.RunState() == RunningAttached {
			_ = l.Exit()
		}
		_ = l.Close()
		if t.Failed() {
			t.Logf("loop logs:\n%s", logs.String())
		}
	})
	return l
}

// exitAfter makes every host event loop exit with code 99 after d, so that a
// hung run fails instead of blocking the test.
func exitAfter(t *testing.T, app *hostloop.Application, d time.Duration) {
	t.Helper()
	timer := app.AfterFunc(d, func() {
		t.Errorf("host event loop still running after %s", d)
		app.Exit(99)
	})
	t.Cleanup(func() { timer.Stop() })
}
