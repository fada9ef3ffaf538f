package hostloop

import (
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"weak"
)

// Slot is a connectable function. Connections hold slots weakly unless
// connected with [Owned], so the caller decides how long a slot lives.
type Slot struct {
	fn func(args ...any)
}

// NewSlot wraps fn.
func NewSlot(fn func(args ...any)) *Slot {
	return &Slot{fn: fn}
}

// Call invokes the slot directly.
func (s *Slot) Call(args ...any) {
	s.fn(args...)
}

// Signal is a list of connections that Emit calls in order.
type Signal struct {
	sender      *Object
	name        string
	connections []*Connection
	buf         []any
	mu          sync.Mutex
	borrowed    bool
}

// NewSignal returns a signal emitted by sender, which may be nil. The
// signal is disconnected when sender is destroyed.
func NewSignal(sender *Object, opts ...SignalOption) *Signal {
	var cfg signalOptions
	for _, opt := range opts {
		if opt != nil {
			opt.applySignal(&cfg)
		}
	}
	s := &Signal{
		sender:   sender,
		name:     cfg.name,
		borrowed: cfg.borrowed,
	}
	if sender != nil {
		sender.addSignal(s)
	}
	return s
}

// Name returns the signal's name.
func (s *Signal) Name() string { return s.name }

// BorrowsArgs reports whether slots may receive a reused argument buffer,
// which they must copy to retain.
func (s *Signal) BorrowsArgs() bool { return s.borrowed }

// Connection is a link between a signal and a slot.
type Connection struct {
	signal     *Signal
	strong     *Slot
	weak       weak.Pointer[Slot]
	receiver   *Object
	transform  func(args []any) []any
	cleanup    runtime.Cleanup
	connected  atomic.Bool
	queued     bool
	hasCleanup bool
}

// Connect connects slot. See [ConnectOption] for the available behaviors.
func (s *Signal) Connect(slot *Slot, opts ...ConnectOption) (*Connection, error) {
	if slot == nil {
		return nil, ErrNilSlot
	}
	var cfg connectOptions
	for _, opt := range opts {
		if opt != nil {
			opt.applyConnect(&cfg)
		}
	}
	if s.sender != nil && s.sender.IsDestroyed() {
		return nil, ErrDestroyed
	}

	c := &Connection{
		signal:    s,
		receiver:  cfg.receiver,
		transform: cfg.transform,
		queued:    cfg.queued,
	}
	if cfg.owned {
		c.strong = slot
	} else {
		c.weak = weak.Make(slot)
	}
	c.connected.Store(true)

	if !cfg.owned {
		c.cleanup = runtime.AddCleanup(slot, func(c *Connection) { c.Disconnect() }, c)
		c.hasCleanup = true
	}
	if c.receiver != nil && !c.receiver.addConnection(c) {
		c.connected.Store(false)
		if c.hasCleanup {
			c.cleanup.Stop()
		}
		return nil, ErrDestroyed
	}

	s.mu.Lock()
	s.connections = append(s.connections, c)
	s.mu.Unlock()
	runtime.KeepAlive(slot)

	return c, nil
}

// ConnectFunc connects fn, owned by the connection.
func (s *Signal) ConnectFunc(fn func(args ...any), opts ...ConnectOption) (*Connection, error) {
	return s.Connect(NewSlot(fn), append(opts, Owned())...)
}

// Emit calls every connected slot with args. Direct connections are called
// in connection order before Emit returns, queued connections are posted to
// the application.
func (s *Signal) Emit(args ...any) {
	s.mu.Lock()
	connections := slices.Clone(s.connections)
	var argv []any
	if s.borrowed {
		s.buf = append(s.buf[:0], args...)
		argv = s.buf
	} else {
		argv = slices.Clone(args)
	}
	s.mu.Unlock()

	for _, c := range connections {
		if !c.connected.Load() {
			continue
		}
		slot := c.Slot()
		if slot == nil {
			c.Disconnect()
			continue
		}
		callArgs := argv
		if c.queued {
			callArgs = slices.Clone(argv)
		}
		if c.transform != nil {
			callArgs = c.transform(callArgs)
		}
		if !c.queued {
			slot.fn(callArgs...)
			continue
		}
		app := Instance()
		if app == nil {
			continue
		}
		// a weak slot may be collected before delivery
		if err := app.Post(func() {
			if target := c.Slot(); target != nil {
				target.fn(callArgs...)
			}
		}); err != nil {
			app.logger.Debug().
				Str("signal", s.name).
				Err(err).
				Log("hostloop: dropped queued emission")
		}
	}
}

// Connections returns the number of live connections.
func (s *Signal) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, c := range s.connections {
		if c.connected.Load() && (c.strong != nil || c.weak.Value() != nil) {
			n++
		}
	}
	return n
}

// DisconnectAll disconnects every connection.
func (s *Signal) DisconnectAll() {
	s.mu.Lock()
	connections := s.connections
	s.connections = nil
	s.mu.Unlock()
	for _, c := range connections {
		c.Disconnect()
	}
}

// Slot returns the connected slot, or nil if the connection was dropped or
// the slot collected.
func (c *Connection) Slot() *Slot {
	if !c.connected.Load() {
		return nil
	}
	if c.strong != nil {
		return c.strong
	}
	return c.weak.Value()
}

// Connected reports whether the connection is still live.
func (c *Connection) Connected() bool {
	return c.connected.Load()
}

// Disconnect removes the connection, returning false if it was already
// removed. It is safe to call from any goroutine.
func (c *Connection) Disconnect() bool {
	if !c.connected.Swap(false) {
		return false
	}
	if c.hasCleanup {
		c.cleanup.Stop()
	}

	s := c.signal
	s.mu.Lock()
	if i := slices.Index(s.connections, c); i >= 0 {
		s.connections = slices.Delete(s.connections, i, i+1)
	}
	s.mu.Unlock()

	if c.receiver != nil {
		c.receiver.removeConnection(c)
	}
	return true
}
