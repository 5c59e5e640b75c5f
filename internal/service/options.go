package service

import (
	"time"

	"go.uber.org/zap"
)

// Option customizes a service.
type Option func(*options)

type options struct {
	now func() time.Time
	log *zap.Logger
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, log: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}
