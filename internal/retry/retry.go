// Package retry runs cluster and embedding calls with bounded exponential backoff.
// Only idempotent calls are retried, and only for transient failures or timeouts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

// Policy bounds the retries of one call
type Policy struct {
	// MaxAttempts includes the first call. Values below 1 are treated as 1.
	MaxAttempts int

	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// OnRetry is called before each wait (optional)
	OnRetry func(err error, wait time.Duration)
}

// DefaultPolicy returns three attempts starting at 200ms
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
	}
}

// Func is one attempt. attempt starts at 1.
type Func func(ctx context.Context, attempt int) error

// Do runs fn once, then again for retryable errors while attempts remain.
// Non-idempotent calls run exactly once.
func Do(ctx context.Context, p Policy, idempotent bool, fn Func) error {
	if !idempotent || p.MaxAttempts <= 1 {
		return fn(ctx, 1)
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()

	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var notify backoff.Notify
	if p.OnRetry != nil {
		notify = p.OnRetry
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
	return backoff.RetryNotify(op, policy, notify)
}
