package hostloop

import (
	"sync"
)

// Object is an endpoint with an explicit lifetime. Destroying an object
// disconnects every connection it sends or receives on.
type Object struct {
	destroyed   *Signal
	name        string
	signals     []*Signal
	connections map[*Connection]struct{}
	mu          sync.Mutex
	isDestroyed bool
}

// NewObject returns a new live object.
func NewObject(name string) *Object {
	o := &Object{
		name:        name,
		connections: make(map[*Connection]struct{}),
	}
	o.destroyed = NewSignal(o, WithSignalName("destroyed"))
	return o
}

// Name returns the object's name.
func (o *Object) Name() string { return o.name }

// Destroyed is emitted, with the object as its argument, when the object is
// destroyed.
func (o *Object) Destroyed() *Signal { return o.destroyed }

// IsDestroyed reports whether Destroy has been called.
func (o *Object) IsDestroyed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isDestroyed
}

// Destroy emits Destroyed, then disconnects all of the object's
// connections. Subsequent calls do nothing.
func (o *Object) Destroy() {
	o.mu.Lock()
	if o.isDestroyed {
		o.mu.Unlock()
		return
	}
	o.isDestroyed = true
	o.mu.Unlock()

	o.destroyed.Emit(o)

	o.mu.Lock()
	signals := o.signals
	connections := o.connections
	o.signals = nil
	o.connections = nil
	o.mu.Unlock()

	for c := range connections {
		c.Disconnect()
	}
	for _, s := range signals {
		s.DisconnectAll()
	}
}

func (o *Object) addSignal(s *Signal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.signals = append(o.signals, s)
}

func (o *Object) addConnection(c *Connection) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.isDestroyed {
		return false
	}
	o.connections[c] = struct{}{}
	return true
}

func (o *Object) removeConnection(c *Connection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.connections, c)
}
