package model

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/brdforge/internal/backoff"
	"github.com/fyrsmithlabs/brdforge/internal/logging"
	"go.uber.org/zap"
)

// Retrying retries retryable failures of an inner Client. Rate limits wait on
// RateLimit; other retryable errors wait on Transient. Both draw from the
// attempt budget of Transient.
type Retrying struct {
	inner     Client
	transient backoff.Policy
	rateLimit backoff.Policy
	logger    *logging.Logger
}

// NewRetrying wraps inner.
func NewRetrying(inner Client, transient, rateLimit backoff.Policy, logger *logging.Logger) *Retrying {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Retrying{inner: inner, transient: transient, rateLimit: rateLimit, logger: logger.Named("model.retry")}
}

// Complete calls the inner client until it succeeds, fails permanently, or
// the attempt budget runs out.
func (r *Retrying) Complete(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	attempts := r.transient.Attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := r.inner.Complete(ctx, messages, jsonMode)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == attempts {
			break
		}

		policy := r.transient
		if IsRateLimit(err) {
			policy = r.rateLimit
		}
		delay := policy.Delay(attempt)
		r.logger.Warn(ctx, "retrying model call",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.String("kind", string(KindOf(err))),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := backoff.Sleep(ctx, delay); err != nil {
			return "", &Error{Kind: KindPermanent, Err: err}
		}
	}

	return "", fmt.Errorf("model call failed: %w", lastErr)
}

var _ Client = (*Retrying)(nil)
