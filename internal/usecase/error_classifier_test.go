package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdesk/internal/domain"
)

func TestClassifyTextRules(t *testing.T) {
	tests := []struct {
		name      string
		msg       string
		wantQuota bool
		wantLimit domain.QuotaLimit
		wantRetry int
	}{
		{"status 429", "request failed with status 429", true, domain.QuotaRPM, 60},
		{"quota word", "You exceeded your current QUOTA", true, domain.QuotaRPM, 60},
		{"resource exhausted", "Resource has been exhausted (e.g. check quota).", true, domain.QuotaRPM, 60},
		{"per day", "429: limit of 50 requests per day reached", true, domain.QuotaRPD, 86400},
		{"PerDay id", "quota GenerateRequestsPerDayPerProjectPerModel exceeded", true, domain.QuotaRPD, 86400},
		{"network", "ECONNRESET", false, "", 0},
		{"server error", "API error 500: internal", false, "", 0},
	}

	c := NewErrorClassifier(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := errors.New(tt.msg)
			got := c.Classify(orig)
			switch pe := got.(type) {
			case *domain.QuotaExceededError:
				require.True(t, tt.wantQuota, "unexpected quota classification")
				assert.Equal(t, tt.wantLimit, pe.Limit)
				assert.Equal(t, tt.wantRetry, pe.RetryAfterSeconds)
				assert.ErrorIs(t, pe, orig)
			case *domain.UnclassifiedProviderError:
				require.False(t, tt.wantQuota, "expected quota classification")
				assert.Same(t, orig, pe.Cause)
				assert.Equal(t, tt.msg, pe.Error())
			default:
				t.Fatalf("unexpected variant %T", got)
			}
		})
	}
}

func TestClassifyStructuredAPIError(t *testing.T) {
	c := NewErrorClassifier(nil)

	daily := &domain.APIError{
		Provider: "gemini", StatusCode: 429, Body: "RESOURCE_EXHAUSTED",
		QuotaID: "GenerateRequestsPerDayPerProjectPerModel-FreeTier", RetryAfter: 39500 * time.Millisecond,
		Err: domain.ErrRateLimit,
	}
	q, ok := c.Classify(fmt.Errorf("route: %w", daily)).(*domain.QuotaExceededError)
	require.True(t, ok)
	assert.Equal(t, domain.QuotaRPD, q.Limit)
	assert.Equal(t, 40, q.RetryAfterSeconds)

	minute := &domain.APIError{
		Provider: "gemini", StatusCode: 429, Body: "RESOURCE_EXHAUSTED",
		QuotaID: "GenerateRequestsPerMinutePerProjectPerModel-FreeTier", Err: domain.ErrRateLimit,
	}
	q, ok = c.Classify(minute).(*domain.QuotaExceededError)
	require.True(t, ok)
	assert.Equal(t, domain.QuotaRPM, q.Limit)
	assert.Equal(t, 60, q.RetryAfterSeconds)

	bare := &domain.APIError{Provider: "openai", StatusCode: 429, Body: "slow down", RetryAfter: 7 * time.Second, Err: domain.ErrRateLimit}
	q, ok = c.Classify(bare).(*domain.QuotaExceededError)
	require.True(t, ok)
	assert.Equal(t, domain.QuotaRPM, q.Limit)
	assert.Equal(t, 7, q.RetryAfterSeconds)
}

func TestClassifyNeverMasksCancellation(t *testing.T) {
	c := NewErrorClassifier(nil)
	err := fmt.Errorf("quota check aborted: %w", context.Canceled)
	got := c.Classify(err)
	_, ok := got.(*domain.UnclassifiedProviderError)
	require.True(t, ok, "cancellation must not be reported as quota")
	assert.ErrorIs(t, got, context.Canceled)
}

func TestClassifyIdempotent(t *testing.T) {
	c := NewErrorClassifier(nil)
	first := c.Classify(errors.New("429 too many"))
	second := c.Classify(fmt.Errorf("dispatch: %w", first))
	assert.Same(t, first, second)
	assert.Nil(t, c.Classify(nil))
	assert.NoError(t, c.Wrap(nil))
}

func TestWrapReturnsTypedError(t *testing.T) {
	c := NewErrorClassifier(newTestLogger())
	err := c.Wrap(errors.New("quota exceeded"))
	var q *domain.QuotaExceededError
	require.ErrorAs(t, err, &q)
	assert.ErrorIs(t, err, domain.ErrRateLimit)
}
