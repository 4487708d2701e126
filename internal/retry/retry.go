// Package retry runs transient operations under a bounded exponential
// backoff policy.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retry loop. MaxAttempts counts the first try.
type Policy struct {
	MaxAttempts     int           `toml:"max_attempts" json:"max_attempts" yaml:"max_attempts"`
	InitialInterval time.Duration `toml:"initial_interval" json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `toml:"max_interval" json:"max_interval" yaml:"max_interval"`
	Multiplier      float64       `toml:"multiplier" json:"multiplier" yaml:"multiplier"`
}

// DefaultPolicy is used for persistence writes.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     5,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	if p.Multiplier >= 1 {
		eb.Multiplier = p.Multiplier
	}
	// Attempts bound the loop, not wall time.
	eb.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a Permanent error, the context
// ends, or the policy's attempts are exhausted. On exhaustion the last
// error from op is returned unchanged.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	return DoNotify(ctx, p, op, nil)
}

// DoNotify is Do with a logger that records each failed attempt.
func DoNotify(ctx context.Context, p Policy, op func(context.Context) error, logger *slog.Logger) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return op(ctx)
	}

	var notify backoff.Notify
	if logger != nil {
		notify = func(err error, wait time.Duration) {
			logger.Warn("retrying operation",
				"attempt", attempt,
				"max_attempts", p.MaxAttempts,
				"wait", wait,
				"error", err)
		}
	}

	err := backoff.RetryNotify(wrapped, p.backOff(ctx), notify)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
