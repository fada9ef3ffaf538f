package scheduler

import (
	"sync/atomic"
	"time"
)

// Handle is a callback scheduled on a [Loop].
type Handle struct {
	fn        func()
	loop      *Loop
	cancelled atomic.Bool
}

// Cancel prevents the callback from being run by the loop. It is safe to
// call from any goroutine.
func (h *Handle) Cancel() {
	h.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool {
	return h.cancelled.Load()
}

// Run invokes the callback immediately, on the calling goroutine, with the
// same panic handling the loop uses. It does not check for cancellation.
func (h *Handle) Run() {
	h.loop.invoke(h)
}

// TimerHandle is a callback scheduled to run at a point in time.
type TimerHandle struct {
	when time.Time
	Handle
	seq   uint64
	index int
	// state holds timerQueued and timerCancelled
	state atomic.Uint32
}

const (
	timerQueued uint32 = 1 << iota
	timerCancelled
)

// When returns the time the callback is scheduled for.
func (t *TimerHandle) When() time.Time {
	return t.when
}

// Cancel prevents the callback from being run. It is safe to call from any
// goroutine. The timer is removed from the heap lazily.
func (t *TimerHandle) Cancel() {
	t.cancelled.Store(true)
	for {
		s := t.state.Load()
		if s&timerCancelled != 0 {
			return
		}
		if t.state.CompareAndSwap(s, s|timerCancelled) {
			if s&timerQueued != 0 {
				t.loop.cancelledTimers.Add(1)
			}
			return
		}
	}
}

// dequeued marks t as removed from the heap, keeping the count of cancelled
// timers still in the heap exact.
func (t *TimerHandle) dequeued() {
	for {
		s := t.state.Load()
		if t.state.CompareAndSwap(s, s&^timerQueued) {
			if s&(timerQueued|timerCancelled) == timerQueued|timerCancelled {
				t.loop.cancelledTimers.Add(-1)
			}
			return
		}
	}
}

// timerHeap orders timers by deadline, then by scheduling order.
type timerHeap []*TimerHandle

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*TimerHandle)
	t.index = len(*h)
	t.state.Or(timerQueued)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	t.dequeued()
	*h = old[:n-1]
	return t
}
