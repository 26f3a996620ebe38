// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jllopis/concord/pkg/errors"
)

// CallWithTimeout runs fn with a deadline of d and returns as soon as ctx is
// done, even if fn has not returned yet. Only an expired deadline is
// reported as TIMEOUT; a canceled parent yields an INTERNAL error wrapping
// context.Canceled. A zero d runs fn without a bound.
func CallWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn(ctx)
		done <- result{value, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, contextError(ctx.Err(), d)
	case res := <-done:
		return res.value, res.err
	}
}

// contextError types a done context. Callers match cancellation with
// errors.Is(err, context.Canceled).
func contextError(cause error, d time.Duration) *errors.Error {
	if stderrors.Is(cause, context.DeadlineExceeded) {
		return errors.New(errors.CodeTimeout, "operation exceeded timeout", cause).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	}
	return errors.New(errors.CodeInternal, "operation canceled", cause).
		WithRecoverable(false)
}
