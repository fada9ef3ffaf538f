// Package asyncsignal awaits host signals from scheduler tasks.
package asyncsignal

import (
	"errors"
	"slices"

	"github.com/joeycumines/go-asyncslot/hostloop"
	"github.com/joeycumines/go-asyncslot/scheduler"
)

// Source is something a slot can be connected to, e.g. [*hostloop.Signal].
//
// The connection must be dropped automatically once the slot is garbage
// collected, or either endpoint is destroyed: the functions in this package
// never disconnect explicitly, as the source may already be gone.
type Source interface {
	Connect(slot *hostloop.Slot, opts ...hostloop.ConnectOption) (*hostloop.Connection, error)
}

// Await suspends the task until src is emitted, and returns the arguments
// of that first emission. The connection is dropped once its slot is
// collected, which may happen as soon as the first emission returns.
func Await(tc *scheduler.TaskContext, src Source) ([]any, error) {
	var slot *hostloop.Slot
	fut, s, err := connect(tc.Loop(), src, func() { slot = nil })
	if err != nil {
		return nil, err
	}
	slot = s
	_ = slot
	// slot must stay reachable until it fires or Await returns, and no longer
	defer func() { slot = nil }()

	v, err := tc.Await(fut)
	if err != nil {
		return nil, err
	}
	return v.([]any), nil
}

// Future connects a new slot to src, returning a future that resolves with
// the arguments of the first emission. Later emissions are ignored.
// Emissions must happen on the goroutine running the loop, e.g. via a
// [hostloop.Queued] connection.
//
// The connection does not keep the slot alive: the caller must retain it
// for as long as it wants the result.
func Future(loop *scheduler.Loop, src Source) (*scheduler.Future, *hostloop.Slot, error) {
	return connect(loop, src, nil)
}

func connect(loop *scheduler.Loop, src Source, fired func()) (*scheduler.Future, *hostloop.Slot, error) {
	if loop == nil || src == nil {
		return nil, nil, errors.New("asyncsignal: nil loop or source")
	}
	var borrows bool
	if b, ok := src.(interface{ BorrowsArgs() bool }); ok {
		borrows = b.BorrowsArgs()
	}
	fut := loop.CreateFuture()
	slot := hostloop.NewSlot(func(args ...any) {
		if !fut.Done() {
			if borrows {
				args = slices.Clone(args)
			}
			if args == nil {
				args = []any{}
			}
			_ = fut.SetResult(args)
		}
		if fired != nil {
			fired()
		}
	})
	if _, err := src.Connect(slot); err != nil {
		return nil, nil, err
	}
	return fut, slot, nil
}
