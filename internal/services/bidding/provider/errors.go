package provider

import (
	"errors"
	"fmt"
)

// Kind classifies provider failures.
type Kind string

const (
	// KindRateLimited means the local sliding window is full.
	KindRateLimited Kind = "rate_limited"
	// KindUnavailable means the provider is unknown or recovering.
	KindUnavailable Kind = "unavailable"
	// KindTimeout means the call exceeded its time budget.
	KindTimeout Kind = "timeout"
	// KindStatus means the provider answered with a non-success status.
	KindStatus Kind = "status"
	// KindInvalidResponse means the answer was empty, too short or malformed.
	KindInvalidResponse Kind = "invalid_response"
	// KindCanceled means the caller gave up before the provider answered.
	KindCanceled Kind = "canceled"
	// KindTransport covers every other client failure.
	KindTransport Kind = "transport"
)

// ErrInvalidResponse is the cause attached to empty or too-short content.
var ErrInvalidResponse = errors.New("invalid provider response")

// ProviderError reports a failed call to one provider.
type ProviderError struct {
	Provider ID
	Kind     Kind
	Status   int
	Cause    error
}

// Error implements error.
func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Cause)
	}
	if e.Cause != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Cause)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

// Unwrap returns the cause.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// marksUnhealthy reports whether the failure should take the provider out of
// rotation. Local rejections and caller cancellation leave health untouched.
func (e *ProviderError) marksUnhealthy() bool {
	switch e.Kind {
	case KindRateLimited, KindUnavailable, KindCanceled:
		return false
	}
	return true
}

// StatusError is returned by clients for non-success HTTP statuses.
type StatusError struct {
	Code int
	Body string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// IsRateLimited reports whether err is a local rate-limit rejection.
func IsRateLimited(err error) bool {
	return kindOf(err) == KindRateLimited
}

// IsTimeout reports whether err is a timed-out provider call.
func IsTimeout(err error) bool {
	return kindOf(err) == KindTimeout
}

// IsUnavailable reports whether err is a rejection of an unknown or
// recovering provider.
func IsUnavailable(err error) bool {
	return kindOf(err) == KindUnavailable
}

func kindOf(err error) Kind {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Kind
	}
	return ""
}
