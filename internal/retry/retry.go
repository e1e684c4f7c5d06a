// Package retry wraps remote calls with bounded exponential backoff, gated
// by the connectivity monitor. Every data-fetching call in the app routes
// through an Executor so offline failures are cheap and transient backend
// hiccups are absorbed locally.
package retry

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Abhishek8642/MindPal-1.3/internal/fault"
	"github.com/Abhishek8642/MindPal-1.3/internal/netmon"
)

// Policy bounds a retried operation. Immutable per call.
type Policy struct {
	MaxAttempts int           // total attempts, inclusive of the first
	BaseDelay   time.Duration // wait before the second attempt
	Multiplier  float64       // backoff growth factor
}

// DefaultPolicy matches the app-wide default of 3 attempts, 1s base, 2x.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2.0}

// StatusSource reports current connectivity. Implemented by netmon.Monitor.
type StatusSource interface {
	Snapshot() netmon.Snapshot
}

// Executor runs operations under a retry policy.
type Executor struct {
	status StatusSource
	logger *zap.Logger
}

// NewExecutor creates an executor gated by the given connectivity source.
func NewExecutor(status StatusSource, logger *zap.Logger) *Executor {
	return &Executor{status: status, logger: logger}
}

// Run executes op under the policy. Before every attempt, including after a
// backoff wait, local connectivity is re-evaluated and the call fails fast
// with NetworkUnavailable if it is gone. Transient failures are retried with
// exponential backoff; non-transient failures propagate on first occurrence;
// the final failure is returned verbatim.
func (e *Executor) Run(ctx context.Context, op string, policy Policy, fn func(context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff(policy, attempt-1)
			if e.logger != nil {
				e.logger.Info("retrying operation",
					zap.String("op", op),
					zap.Int("attempt", attempt+1),
					zap.Duration("backoff", delay),
					zap.Error(lastErr))
			}
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		if e.status != nil && !e.status.Snapshot().IsOnline {
			return fault.New(fault.NetworkUnavailable, op, "no local connectivity")
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 && e.logger != nil {
				e.logger.Info("operation recovered", zap.String("op", op), zap.Int("attempts", attempt+1))
			}
			return nil
		}
		lastErr = err

		if !fault.IsTransient(err) {
			return err
		}
	}
	return lastErr
}

// Run executes an operation returning a value under the policy. See
// Executor.Run for the retry semantics.
func Run[T any](ctx context.Context, e *Executor, op string, policy Policy, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := e.Run(ctx, op, policy, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func backoff(p Policy, failures int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(failures)))
}

// sleep is a cancellable wait; the calling context yields rather than
// busy-waiting.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
