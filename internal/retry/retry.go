package retry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mosas2000/sprintfund/internal/utils"
)

// Policy defines retry behavior for failed operations.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Exponential bool
}

// LinearPolicy waits base*attempt between attempts.
func LinearPolicy(maxAttempts int, base time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, BaseDelay: base}
}

// ExponentialPolicy waits min(base*2^(attempt-1), cap) between attempts.
func ExponentialPolicy(maxAttempts int, base, cap time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, BaseDelay: base, MaxDelay: cap, Exponential: true}
}

// Executor runs fallible operations with bounded retries and backoff. It is
// stateless between calls; every remote call in the pipeline goes through it.
type Executor struct {
	logger *logrus.Logger
}

// NewExecutor creates a retry executor.
func NewExecutor(logger *logrus.Logger) *Executor {
	return &Executor{logger: logger}
}

// Do invokes op, retrying per policy. Cancellation is returned immediately
// without a retry. After the attempt limit, the last error is returned
// unchanged so callers can distinguish failure kinds.
func (e *Executor) Do(ctx context.Context, name string, policy Policy, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.WithFields(logrus.Fields{
					"operation": name,
					"attempts":  attempt,
				}).Info("Operation recovered after retry")
			}
			return nil
		}

		if utils.IsCancellation(err) {
			return err
		}

		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Delay(attempt)
		e.logger.WithFields(logrus.Fields{
			"operation": name,
			"attempt":   attempt,
			"error":     err.Error(),
			"delay":     delay,
		}).Warn("Operation failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	e.logger.WithFields(logrus.Fields{
		"operation": name,
		"attempts":  policy.MaxAttempts,
		"error":     lastErr.Error(),
	}).Error("Operation failed after all retries")

	return lastErr
}

// Delay returns the wait after a failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if p.Exponential {
		delay := p.BaseDelay << (attempt - 1)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		return delay
	}
	return p.BaseDelay * time.Duration(attempt)
}
