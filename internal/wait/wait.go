// Package wait provides the bounded polling primitive every journey step
// shares, so all wait sites have the same timeout and cancellation
// semantics.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maxeo-ai/journey-canary/internal/domain"
)

// Condition probes external state once. A returned error is treated as a
// failed tick and polling continues, unless the error is (or wraps) a
// *FatalError, which aborts the wait immediately.
type Condition func(ctx context.Context) (domain.VerificationResult, error)

// FatalError marks a probe failure as irrecoverable for the enclosing
// wait, e.g. a lost database connection.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal probe error: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err so that Until aborts instead of retrying.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// Until evaluates cond every interval until it succeeds or timeout
// elapses. The first check runs immediately. On timeout the last observed
// result is returned with a nil error, so callers can distinguish "timed
// out with last-known state" from "never observed success" through the
// result itself. The returned error is non-nil only for fatal probe
// errors and context cancellation.
func Until(ctx context.Context, cond Condition, interval, timeout time.Duration) (domain.VerificationResult, error) {
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(timeout)
	last := domain.Fail("condition never evaluated", nil)

	for {
		res, err := cond(ctx)
		if err != nil {
			var fatal *FatalError
			if errors.As(err, &fatal) {
				return last, err
			}
			last = domain.Fail(err.Error(), nil)
		} else {
			last = res
			if res.Success {
				return res, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return last, nil
		}
		pause := interval
		if remaining < pause {
			pause = remaining
		}

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}
	}
}
