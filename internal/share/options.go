package share

import (
	"time"

	"go.uber.org/zap"
)

const (
	defaultTTL         = 7 * 24 * time.Hour
	defaultMaxSize     = 50 * 1024 * 1024
	defaultMaxAttempts = 5
)

type options struct {
	ttl         time.Duration
	maxSize     int64
	maxAttempts uint
	nowFunc     func() time.Time
	logger      *zap.Logger
	observer    Observer
}

// Option configures a Manager or Service.
type Option func(*options)

// WithTTL sets how long new shares stay retrievable.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithMaxSize caps artifact size in bytes. Zero disables the limit.
func WithMaxSize(n int64) Option {
	return func(o *options) { o.maxSize = n }
}

// WithMaxCodeAttempts bounds how many codes are tried per create.
func WithMaxCodeAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = uint(n)
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.nowFunc = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers lifecycle callbacks.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		ttl:         defaultTTL,
		maxSize:     defaultMaxSize,
		maxAttempts: defaultMaxAttempts,
		nowFunc:     time.Now,
		logger:      zap.NewNop(),
		observer:    noopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
