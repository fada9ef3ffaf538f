//go:build linux || darwin

package scheduler

import (
	"os"
	"testing"
	"time"

	"github.com/joeycumines/go-asyncslot/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_readersAndWriters(t *testing.T) {
	sel, err := selector.New()
	require.NoError(t, err)
	l, err := New(sel)
	require.NoError(t, err)
	defer l.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	rfd, wfd := int(r.Fd()), int(w.Fd())

	var reads, writes int
	require.NoError(t, l.AddWriter(wfd, func() {
		writes++
		removed, err := l.RemoveWriter(wfd)
		assert.True(t, removed)
		assert.NoError(t, err)
		_, err = w.Write([]byte("x"))
		assert.NoError(t, err)
	}))
	require.NoError(t, l.AddReader(rfd, func() {
		reads++
		var buf [1]byte
		_, _ = r.Read(buf[:])
		l.Stop()
	}))

	done := make(chan error, 1)
	go func() { done <- l.RunForever() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}

	assert.Equal(t, 1, writes)
	assert.Equal(t, 1, reads)

	removed, err := l.RemoveReader(rfd)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = l.RemoveReader(rfd)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestLoop_replaceReader(t *testing.T) {
	sel, err := selector.New()
	require.NoError(t, err)
	l, err := New(sel)
	require.NoError(t, err)
	defer l.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	rfd := int(r.Fd())

	var log []string
	require.NoError(t, l.AddReader(rfd, func() { log = append(log, "old") }))
	require.NoError(t, l.AddReader(rfd, func() {
		log = append(log, "new")
		var buf [1]byte
		_, _ = r.Read(buf[:])
		l.Stop()
	}))
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, l.RunForever())
	assert.Equal(t, []string{"new"}, log)
}
