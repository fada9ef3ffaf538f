package bridge

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

var notifierIDCounter atomic.Uint64

const lateNotifyCategory = "late-notify"

// Notifier runs a handler on the host's goroutine, once per call to Notify.
// Notify only ever posts the handler, so it never runs re-entrantly, and may
// be called from any goroutine.
//
// Notifier implements [selector.Notifier].
type Notifier struct {
	host    Host
	handler func()
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	id      uint64
	mu      sync.Mutex
}

// NewNotifier returns a notifier that posts handler to host.
func NewNotifier(host Host, handler func()) (*Notifier, error) {
	if host == nil {
		return nil, errors.New("bridge: nil host")
	}
	if handler == nil {
		return nil, errors.New("bridge: nil notifier handler")
	}
	return &Notifier{
		host:    host,
		handler: handler,
		id:      notifierIDCounter.Add(1),
	}, nil
}

// Notify queues one call of the handler.
func (n *Notifier) Notify() {
	if err := n.host.Post(n.dispatch); err != nil {
		n.logger.Warning().
			Uint64("notifier", n.id).
			Err(err).
			Log("bridge: failed to post notification")
	}
}

// Close detaches the handler. Notifications already posted are dropped when
// the host dispatches them. It returns [ErrNotifierClosed] if already
// closed.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.handler == nil {
		return ErrNotifierClosed
	}
	n.handler = nil
	return nil
}

func (n *Notifier) dispatch() {
	n.mu.Lock()
	handler := n.handler
	n.mu.Unlock()

	if handler != nil {
		handler()
		return
	}

	if n.limiter != nil {
		if _, ok := n.limiter.Allow(lateNotifyCategory); !ok {
			return
		}
	}
	n.logger.Warning().
		Uint64("notifier", n.id).
		Log("bridge: notification dispatched after close")
}
