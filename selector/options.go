package selector

import (
	"errors"

	"github.com/joeycumines/logiface"
)

type selectorOptions struct {
	logger    *logiface.Logger[logiface.Event]
	maxEvents int
}

// Option configures a [Selector].
type Option interface {
	applySelector(*selectorOptions) error
}

type selectorOptionImpl struct {
	applySelectorFunc func(*selectorOptions) error
}

func (o *selectorOptionImpl) applySelector(opts *selectorOptions) error {
	return o.applySelectorFunc(opts)
}

// WithLogger configures structured logging. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &selectorOptionImpl{func(opts *selectorOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMaxEvents sets the maximum number of kernel events read per wait.
// Defaults to 256.
func WithMaxEvents(n int) Option {
	return &selectorOptionImpl{func(opts *selectorOptions) error {
		if n <= 0 {
			return errors.New("selector: max events must be positive")
		}
		opts.maxEvents = n
		return nil
	}}
}

func resolveSelectorOptions(opts []Option) (*selectorOptions, error) {
	cfg := &selectorOptions{
		maxEvents: 256,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applySelector(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
