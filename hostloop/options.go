package hostloop

import (
	"github.com/joeycumines/logiface"
)

type applicationOptions struct {
	logger *logiface.Logger[logiface.Event]
	name   string
}

// Option configures an [Application].
type Option interface {
	applyApplication(*applicationOptions) error
}

type applicationOptionImpl struct {
	applyApplicationFunc func(*applicationOptions) error
}

func (o *applicationOptionImpl) applyApplication(opts *applicationOptions) error {
	return o.applyApplicationFunc(opts)
}

// WithLogger configures structured logging. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &applicationOptionImpl{func(opts *applicationOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithName sets the application name, for logging.
func WithName(name string) Option {
	return &applicationOptionImpl{func(opts *applicationOptions) error {
		opts.name = name
		return nil
	}}
}

func resolveApplicationOptions(opts []Option) (*applicationOptions, error) {
	cfg := &applicationOptions{
		name: "hostloop",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyApplication(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

type connectOptions struct {
	receiver  *Object
	transform func(args []any) []any
	queued    bool
	owned     bool
}

// ConnectOption configures a [Connection].
type ConnectOption interface {
	applyConnect(*connectOptions)
}

type connectOptionFunc func(*connectOptions)

func (f connectOptionFunc) applyConnect(opts *connectOptions) { f(opts) }

// Queued delivers emissions by posting them to the application, instead of
// calling the slot from Emit.
func Queued() ConnectOption {
	return connectOptionFunc(func(opts *connectOptions) {
		opts.queued = true
	})
}

// Owned makes the connection hold a strong reference to the slot, so the
// slot lives as long as the connection. By default connections do not keep
// their slot alive, and are dropped once the slot is garbage collected.
func Owned() ConnectOption {
	return connectOptionFunc(func(opts *connectOptions) {
		opts.owned = true
	})
}

// WithReceiver ties the connection to obj: it is disconnected when obj is
// destroyed.
func WithReceiver(obj *Object) ConnectOption {
	return connectOptionFunc(func(opts *connectOptions) {
		opts.receiver = obj
	})
}

// WithTransform rewrites the arguments of each emission, before they are
// passed to the slot.
func WithTransform(fn func(args []any) []any) ConnectOption {
	return connectOptionFunc(func(opts *connectOptions) {
		opts.transform = fn
	})
}

type signalOptions struct {
	name     string
	borrowed bool
}

// SignalOption configures a [Signal].
type SignalOption interface {
	applySignal(*signalOptions)
}

type signalOptionFunc func(*signalOptions)

func (f signalOptionFunc) applySignal(opts *signalOptions) { f(opts) }

// WithBorrowedArgs makes the signal reuse a single argument buffer for every
// emission. Direct connections receive the buffer itself, which is only
// valid until the slot returns.
func WithBorrowedArgs() SignalOption {
	return signalOptionFunc(func(opts *signalOptions) {
		opts.borrowed = true
	})
}

// WithSignalName names the signal, for logging.
func WithSignalName(name string) SignalOption {
	return signalOptionFunc(func(opts *signalOptions) {
		opts.name = name
	})
}
