// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"math/rand/v2"
	"time"

	"github.com/jllopis/concord/pkg/errors"
)

// RetryConfig is an exponential backoff policy for outbound calls such as
// audit deliveries. The zero value makes a single attempt.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Jitter is the +/- fraction applied to every delay, 0.1 for 10%.
	Jitter float64
	// IsRecoverable decides whether an error is worth another attempt.
	// Nil means Recoverable.
	IsRecoverable func(error) bool
}

// DefaultRetryConfig makes three attempts starting at 100ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		Jitter:        0.1,
		IsRecoverable: Recoverable,
	}
}

func (rc RetryConfig) WithMaxAttempts(n int) RetryConfig {
	rc.MaxAttempts = n
	return rc
}

func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

func (rc RetryConfig) WithMaxDelay(d time.Duration) RetryConfig {
	rc.MaxDelay = d
	return rc
}

func (rc RetryConfig) WithIsRecoverable(fn func(error) bool) RetryConfig {
	rc.IsRecoverable = fn
	return rc
}

// Do runs fn until it succeeds, fails with an unrecoverable error, or the
// attempts run out. The last error is returned.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	recoverable := rc.IsRecoverable
	if recoverable == nil {
		recoverable = Recoverable
	}
	attempts := max(rc.MaxAttempts, 1)

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(rc.backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return contextError(ctx.Err(), 0).
					WithContext("attempt", attempt).
					WithContext("last_error", err.Error())
			case <-timer.C:
			}
		}
		if err = fn(); err == nil || !recoverable(err) {
			return err
		}
	}
	return err
}

// Retry is Do for functions returning a value.
func Retry[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	var out T
	err := rc.Do(ctx, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// backoff doubles InitialDelay per attempt, capped at MaxDelay.
func (rc RetryConfig) backoff(attempt int) time.Duration {
	d := rc.InitialDelay << (attempt - 1)
	if rc.MaxDelay > 0 && (d > rc.MaxDelay || d <= 0) {
		d = rc.MaxDelay
	}
	if rc.Jitter > 0 {
		d += time.Duration(float64(d) * rc.Jitter * (2*rand.Float64() - 1))
	}
	return max(d, 0)
}

// Recoverable retries untyped errors and typed errors flagged recoverable.
// A canceled context never is.
func Recoverable(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) {
		return false
	}
	var typed *errors.Error
	if stderrors.As(err, &typed) {
		return typed.Recoverable
	}
	return true
}
