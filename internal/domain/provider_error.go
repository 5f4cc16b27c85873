package domain

import (
	"fmt"
	"time"
)

// QuotaLimit identifies which provider quota window was exhausted.
type QuotaLimit string

const (
	QuotaRPM QuotaLimit = "RPM" // requests per minute
	QuotaRPD QuotaLimit = "RPD" // requests per day
)

// RetryAfter returns the default retry hint for the limit kind.
func (l QuotaLimit) RetryAfter() int {
	if l == QuotaRPD {
		return 86400
	}
	return 60
}

// ProviderError is the classified form of a model-provider failure. It is
// implemented only by *QuotaExceededError and *UnclassifiedProviderError;
// callers discriminate with a type switch.
type ProviderError interface {
	error
	providerError()
}

// QuotaExceededError reports that the upstream model provider rejected a call
// because a usage quota was exhausted.
type QuotaExceededError struct {
	Limit             QuotaLimit
	RetryAfterSeconds int
	Cause             error
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("provider quota exceeded (%s, retry after %ds): %v", e.Limit, e.RetryAfterSeconds, e.Cause)
}

// Unwrap exposes both the rate-limit sentinel and the provider's original error.
func (e *QuotaExceededError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrRateLimit}
	}
	return []error{ErrRateLimit, e.Cause}
}

// RefreshTime returns the earliest time a retry is expected to succeed.
func (e *QuotaExceededError) RefreshTime(now time.Time) time.Time {
	return now.Add(time.Duration(e.RetryAfterSeconds) * time.Second)
}

func (*QuotaExceededError) providerError() {}

// UnclassifiedProviderError carries any provider failure that is not a quota
// failure. Its message is the cause's message, unchanged.
type UnclassifiedProviderError struct {
	Cause error
}

func (e *UnclassifiedProviderError) Error() string {
	if e.Cause == nil {
		return ErrProviderError.Error()
	}
	return e.Cause.Error()
}

func (e *UnclassifiedProviderError) Unwrap() error { return e.Cause }

func (*UnclassifiedProviderError) providerError() {}

// APIError is a non-2xx response from a provider's HTTP API. Its message
// keeps the "API error <status>: <body>" form providers have always emitted.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
	// QuotaID names the exhausted quota when the provider reports one
	// (e.g. "GenerateRequestsPerDayPerProjectPerModel-FreeTier").
	QuotaID string
	// RetryAfter is the provider's own retry hint, zero when absent.
	RetryAfter time.Duration
	// Err is the domain sentinel the status maps to.
	Err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return e.Err }
