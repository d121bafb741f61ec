package store

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy is a retry budget and the delay to wait before each retry.
type RetryPolicy struct {
	// MaxRetries is how many times a busy operation is retried after the
	// first attempt. Negative means no limit.
	MaxRetries int
	// Backoff returns the delay before retry number attempt (1-based).
	Backoff func(attempt int) time.Duration
}

// LinearBackoff waits base, 2*base, 3*base, ...
func LinearBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// ConstantBackoff always waits d.
func ConstantBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// RetryFunc is called before each retry with the retry number, the delay about
// to be waited and the error that caused it.
type RetryFunc func(attempt int, delay time.Duration, err error)

// Retry runs op until it succeeds, returns an error that classify does not
// accept, or the policy's budget runs out. Running out is reported as
// *ExhaustedRetriesError wrapping the last error.
func Retry(ctx context.Context, p RetryPolicy, classify func(error) bool, onRetry RetryFunc, op func(context.Context) error) error {
	var (
		lastErr error
		retries int
	)

	var backoff retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		retries++
		delay := p.Backoff(retries)
		if onRetry != nil {
			onRetry(retries, delay, lastErr)
		}
		return delay, false
	})
	if p.MaxRetries >= 0 {
		backoff = retry.WithMaxRetries(uint64(p.MaxRetries), backoff)
	}

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && classify(err) {
			lastErr = err
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && lastErr != nil && classify(err) {
		return &ExhaustedRetriesError{Attempts: retries + 1, Err: lastErr}
	}
	return err
}
