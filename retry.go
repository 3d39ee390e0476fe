package ygggo_pg

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls how often the Pool retries opening a connection.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseBackoff time.Duration `json:"base_backoff"`
	MaxBackoff  time.Duration `json:"max_backoff"`
	Jitter      bool          `json:"jitter"`
	MaxElapsed  time.Duration `json:"max_elapsed"`
}

// retryable reports whether an error of class c is worth another attempt.
func retryable(c ErrorClass) bool {
	return c == ErrClassRetryable || c == ErrClassReadonly || c == ErrClassConnection
}

// newBackOff turns pol into a backoff schedule bound to ctx.
func (pol RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	if pol.MaxAttempts <= 0 {
		pol.MaxAttempts = 1
	}
	if pol.BaseBackoff <= 0 {
		pol.BaseBackoff = 10 * time.Millisecond
	}
	if pol.MaxBackoff < pol.BaseBackoff {
		pol.MaxBackoff = pol.BaseBackoff
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = pol.BaseBackoff
	eb.MaxInterval = pol.MaxBackoff
	eb.MaxElapsedTime = pol.MaxElapsed
	eb.Multiplier = 2
	if !pol.Jitter {
		eb.RandomizationFactor = 0
	}
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(pol.MaxAttempts-1)), ctx)
}

// retryWithPolicy runs op until it succeeds, fails with an error classify
// does not consider retryable, or pol is exhausted. The last error is
// returned.
func retryWithPolicy(ctx context.Context, pol RetryPolicy, op func() error, classify func(error) ErrorClass) error {
	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := op()
		if err != nil && !retryable(classify(err)) {
			return backoff.Permanent(err)
		}
		return err
	}, pol.newBackOff(ctx))
}
