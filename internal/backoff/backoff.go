// Package backoff provides the exponential retry delay shared by the batch
// classifier, the model retry wrapper, the section agents, and the validator.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// maxDelay keeps float to Duration conversions in range.
const maxDelay = float64(1 << 62)

// Policy describes an exponential backoff schedule.
type Policy struct {
	// MaxAttempts is the total number of calls allowed, including the first.
	MaxAttempts int

	// Base is the delay before the second attempt. Zero disables sleeping.
	Base time.Duration

	// Cap bounds a single delay. Zero means uncapped.
	Cap time.Duration

	// Jitter spreads each delay by up to ±Jitter of its value (0 to 1).
	Jitter float64
}

// DefaultTransient is the uncapped policy used for transient and malformed failures.
func DefaultTransient() Policy {
	return Policy{MaxAttempts: 3, Base: time.Second}
}

// DefaultRateLimit is the policy used when the model reports a rate limit.
func DefaultRateLimit() Policy {
	return Policy{MaxAttempts: 3, Base: 2 * time.Second, Cap: 60 * time.Second}
}

// Delay returns the wait before attempt+1, where attempt counts failed calls so far (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if p.Base <= 0 || attempt < 1 {
		return 0
	}

	f := float64(p.Base) * math.Pow(2, float64(attempt-1))
	if f > maxDelay {
		f = maxDelay
	}
	d := time.Duration(f)
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}

	if p.Jitter > 0 {
		spread := (rand.Float64()*2 - 1) * p.Jitter
		d = time.Duration(math.Min(float64(d)*(1+spread), maxDelay))
		if p.Cap > 0 && d > p.Cap {
			d = p.Cap
		}
	}
	return d
}

// Attempts returns MaxAttempts, treating values below 1 as 1.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
