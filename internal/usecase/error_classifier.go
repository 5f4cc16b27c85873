package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"agentdesk/internal/domain"
)

// quotaMarkers identify a quota failure in provider error text (case-insensitive).
var quotaMarkers = []string{"429", "quota", "resource has been exhausted"}

// ErrorClassifier turns raw provider failures into domain.ProviderError values.
// Structured status and quota details win over message text.
type ErrorClassifier struct {
	logger *slog.Logger
}

// NewErrorClassifier creates a classifier. logger may be nil.
func NewErrorClassifier(logger *slog.Logger) *ErrorClassifier {
	return &ErrorClassifier{logger: logger}
}

// Classify returns *domain.QuotaExceededError for quota failures and
// *domain.UnclassifiedProviderError for everything else. It returns nil for nil.
func (c *ErrorClassifier) Classify(err error) domain.ProviderError {
	if err == nil {
		return nil
	}

	var already domain.ProviderError
	if errors.As(err, &already) {
		return already
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.UnclassifiedProviderError{Cause: err}
	}

	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return c.classifyAPIQuota(err, apiErr)
	}

	return c.classifyByText(err)
}

// Wrap classifies err and returns it as an error value, nil for nil.
func (c *ErrorClassifier) Wrap(err error) error {
	pe := c.Classify(err)
	if pe == nil {
		return nil
	}
	if q, ok := pe.(*domain.QuotaExceededError); ok && c.logger != nil {
		c.logger.Warn("provider quota exceeded",
			"limit", q.Limit,
			"retry_after_s", q.RetryAfterSeconds,
			"error", q.Cause,
		)
	}
	return pe
}

func (c *ErrorClassifier) classifyAPIQuota(err error, apiErr *domain.APIError) *domain.QuotaExceededError {
	var limit domain.QuotaLimit
	switch {
	case apiErr.QuotaID != "" && strings.Contains(apiErr.QuotaID, "PerDay"):
		limit = domain.QuotaRPD
	case apiErr.QuotaID != "":
		limit = domain.QuotaRPM
	default:
		limit = dayScaleLimit(err.Error())
	}

	retry := limit.RetryAfter()
	if apiErr.RetryAfter > 0 {
		retry = int(math.Ceil(apiErr.RetryAfter.Seconds()))
	}
	return &domain.QuotaExceededError{Limit: limit, RetryAfterSeconds: retry, Cause: err}
}

func (c *ErrorClassifier) classifyByText(err error) domain.ProviderError {
	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) {
			limit := dayScaleLimit(msg)
			return &domain.QuotaExceededError{Limit: limit, RetryAfterSeconds: limit.RetryAfter(), Cause: err}
		}
	}
	return &domain.UnclassifiedProviderError{Cause: err}
}

// dayScaleLimit reports RPD when msg names a daily quota ("per day", or the
// capitalized "Day" of ids like "PerDay"), RPM otherwise.
func dayScaleLimit(msg string) domain.QuotaLimit {
	if strings.Contains(strings.ToLower(msg), "per day") || strings.Contains(msg, "Day") {
		return domain.QuotaRPD
	}
	return domain.QuotaRPM
}
