package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	var delays []time.Duration
	err := Retry(context.Background(),
		RetryPolicy{MaxRetries: 3, Backoff: LinearBackoff(time.Millisecond)},
		IsBusy,
		func(_ int, d time.Duration, _ error) { delays = append(delays, d) },
		func(context.Context) error {
			calls++
			if calls < 3 {
				return ErrBusy
			}
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond}
	if len(delays) != len(want) || delays[0] != want[0] || delays[1] != want[1] {
		t.Errorf("delays = %v, want %v", delays, want)
	}
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	err := Retry(context.Background(),
		RetryPolicy{MaxRetries: 3, Backoff: ConstantBackoff(time.Millisecond)},
		IsBusy, nil,
		func(context.Context) error {
			calls++
			return ErrBusy
		})

	var exhausted *ExhaustedRetriesError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want *ExhaustedRetriesError", err)
	}
	if calls != 4 || exhausted.Attempts != 4 {
		t.Errorf("calls = %d, attempts = %d, want 4", calls, exhausted.Attempts)
	}
}

func TestRetryNonRetryable(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(),
		RetryPolicy{MaxRetries: 3, Backoff: ConstantBackoff(time.Millisecond)},
		IsBusy, nil,
		func(context.Context) error {
			calls++
			if calls == 1 {
				return ErrBusy
			}
			return boom
		})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryZeroBudget(t *testing.T) {
	calls := 0
	err := Retry(context.Background(),
		RetryPolicy{MaxRetries: 0, Backoff: ConstantBackoff(time.Hour)},
		IsBusy, nil,
		func(context.Context) error {
			calls++
			return ErrBusy
		})
	if !errors.Is(err, ErrBusy) || calls != 1 {
		t.Errorf("err = %v after %d calls, want busy after 1", err, calls)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Retry(ctx,
		RetryPolicy{MaxRetries: -1, Backoff: ConstantBackoff(time.Hour)},
		IsBusy,
		func(int, time.Duration, error) { cancel() },
		func(context.Context) error { return ErrBusy })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestLinearBackoff(t *testing.T) {
	b := LinearBackoff(500 * time.Millisecond)
	for attempt, want := range map[int]time.Duration{1: 500 * time.Millisecond, 2: time.Second, 3: 1500 * time.Millisecond} {
		if got := b(attempt); got != want {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, got, want)
		}
	}
}
