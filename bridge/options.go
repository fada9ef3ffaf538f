package bridge

import (
	"time"

	"github.com/joeycumines/go-asyncslot/scheduler"
	"github.com/joeycumines/logiface"
)

type loopOptions struct {
	logger              *logiface.Logger[logiface.Event]
	host                Host
	exceptionHandler    scheduler.ExceptionHandler
	lateNotifyRates     map[time.Duration]int
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

// WithLogger configures structured logging, for the loop, its scheduler and
// its selector. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithHost sets the host the loop runs inside. By default, the open
// [hostloop.Application] is used, resolved each time the loop starts
// running.
func WithHost(host Host) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.host = host
		return nil
	}}
}

// WithExceptionHandler is passed through to the scheduler. See
// [scheduler.WithExceptionHandler].
func WithExceptionHandler(handler scheduler.ExceptionHandler) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.exceptionHandler = handler
		return nil
	}}
}

// WithSlowCallbackLogging is passed through to the scheduler. See
// [scheduler.WithSlowCallbackLogging].
func WithSlowCallbackLogging(d time.Duration) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.slowCallbackLogging = d
		return nil
	}}
}

// WithLateNotifyRates sets the rate limits applied to the warning logged
// when a notification is dispatched after its run ended, as accepted by
// [catrate.NewLimiter].
func WithLateNotifyRates(rates map[time.Duration]int) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.lateNotifyRates = rates
		return nil
	}}
}

func resolveLoopOptions(opts []Option) (*loopOptions, error) {
	cfg := &loopOptions{
		lateNotifyRates: map[time.Duration]int{
			time.Second: 1,
			time.Minute: 10,
		},
	}
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
