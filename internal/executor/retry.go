package executor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds retries of transient RPC failures. Delays grow
// exponentially from Initial up to Max without jitter, so a fake sleeper sees
// the same schedule every run.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy matches the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, Initial: 500 * time.Millisecond, Max: 5 * time.Second, Multiplier: 2}
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	b.RandomizationFactor = 0
	if p.Multiplier > 1 {
		b.Multiplier = p.Multiplier
	}
	b.Reset()
	return b
}

// Do runs op until it succeeds, returns a non-transient error, or MaxAttempts
// is reached. It returns the number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, sleep SleepFunc, op func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := max(p.MaxAttempts, 1)
	b := p.newBackOff()

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = op(ctx, attempt); err == nil {
			return attempt, nil
		}
		if !IsTransient(err) || attempt == maxAttempts {
			return attempt, err
		}
		if serr := sleep(ctx, b.NextBackOff()); serr != nil {
			return attempt, err
		}
	}
	return maxAttempts, err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p RetryPolicy, sleep SleepFunc, op func(ctx context.Context) (T, error)) (T, int, error) {
	var out T
	n, err := p.Do(ctx, sleep, func(ctx context.Context, _ int) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, n, err
}
