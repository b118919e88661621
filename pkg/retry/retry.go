// Package retry re-runs an operation that failed with a server-side (5xx)
// status on a fixed exponential schedule.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
)

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type config struct {
	maxRetries   int
	initialDelay time.Duration
	sleep        SleepFunc
	onRetry      func(attempt int, delay time.Duration, err error)
}

type Option func(*config)

// WithMaxRetries caps the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithInitialDelay sets the first delay; each following one doubles.
func WithInitialDelay(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.initialDelay = d
		}
	}
}

// WithSleep replaces the wall-clock sleep, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(c *config) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithOnRetry registers a hook called before every delay. attempt is zero
// based.
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(c *config) {
		c.onRetry = fn
	}
}

// Retryable reports whether err carries a status in [500, 600).
func Retryable(err error) bool {
	var sc StatusCoder
	if !errors.As(err, &sc) {
		return false
	}
	status := sc.HTTPStatus()
	return status >= 500 && status < 600
}

// Schedule returns the delays Do waits between attempts.
func Schedule(opts ...Option) []time.Duration {
	cfg := newConfig(opts)
	b := newBackOff(cfg)

	out := make([]time.Duration, 0, cfg.maxRetries)
	for i := 0; i < cfg.maxRetries; i++ {
		out = append(out, b.NextBackOff())
	}
	return out
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. The last error is returned unchanged.
func Do(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) error {
	cfg := newConfig(opts)
	b := newBackOff(cfg)

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) || attempt >= cfg.maxRetries {
			return err
		}

		delay := b.NextBackOff()
		if cfg.onRetry != nil {
			cfg.onRetry(attempt, delay, err)
		}
		if sleepErr := cfg.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{
		maxRetries:   DefaultMaxRetries,
		initialDelay: DefaultInitialDelay,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// newBackOff yields initialDelay * 2^attempt with no jitter.
func newBackOff(cfg *config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.initialDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = cfg.initialDelay << uint(cfg.maxRetries+1)
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
