package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a model failure for retry decisions.
type Kind string

const (
	KindTransient Kind = "transient"
	KindRateLimit Kind = "rate_limit"
	KindPermanent Kind = "permanent"
)

// Error is returned by adapters for every failed call.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("model %s error (%d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("model %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports how err should be treated. Cancellation is permanent and
// unclassified errors are assumed transient.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindPermanent
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindTransient
}

// IsRateLimit reports whether err is a rate-limit rejection.
func IsRateLimit(err error) bool { return KindOf(err) == KindRateLimit }

// IsRetryable reports whether another attempt may succeed.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindTransient || k == KindRateLimit
}

// IsPermanent reports whether retrying is pointless.
func IsPermanent(err error) bool { return KindOf(err) == KindPermanent }

// kindForStatus maps an HTTP status onto a Kind.
func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code >= 500, code == http.StatusRequestTimeout:
		return KindTransient
	default:
		return KindPermanent
	}
}
