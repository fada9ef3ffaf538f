package scheduler

import (
	"time"

	"github.com/joeycumines/logiface"
)

// Hooks lets a wrapper extend the loop's scheduling operations. All hooks
// are optional, and are called on the goroutine making the call.
type Hooks struct {
	// BeforeSchedule is called at the start of CallSoon, CallLater and
	// CallAt.
	BeforeSchedule func()

	// AfterCallSoon is called with the handle enqueued by CallSoon.
	AfterCallSoon func(h *Handle)

	// Stop replaces Stop. It should call stop to record the stop request,
	// or not call it, to ignore the request.
	Stop func(stop func())
}

type loopOptions struct {
	logger              *logiface.Logger[logiface.Event]
	exceptionHandler    ExceptionHandler
	hooks               Hooks
	slowCallbackLogging time.Duration
}

// Option configures a [Loop].
type Option interface {
	applyLoop(*loopOptions) error
}

type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (o *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return o.applyLoopFunc(opts)
}

// WithLogger configures structured logging. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithExceptionHandler replaces the default exception handler, which logs
// the error. See [ExceptionHandler].
func WithExceptionHandler(handler ExceptionHandler) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.exceptionHandler = handler
		return nil
	}}
}

// WithHooks installs scheduling hooks.
func WithHooks(hooks Hooks) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.hooks = hooks
		return nil
	}}
}

// WithSlowCallbackLogging logs a warning for every callback that runs for
// longer than d. Zero (the default) disables it.
func WithSlowCallbackLogging(d time.Duration) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.slowCallbackLogging = d
		return nil
	}}
}

func resolveLoopOptions(opts []Option) (*loopOptions, error) {
	cfg := &loopOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
