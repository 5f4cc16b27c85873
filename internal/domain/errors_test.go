package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Tool.Execute", ErrToolNotFound, "tool 'foo'")
	want := "Tool.Execute: tool 'foo': tool not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Store.Open", ErrStore, "")
	want := "Store.Open: store operation failed"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Chat.Send", ErrConversationNotFound, "conv-9")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Error("errors.Is should match ErrConversationNotFound")
	}
}

func TestWrapOpNil(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Error("WrapOp(nil) should be nil")
	}
}

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeToolNotFound, ErrorCodeOf(ErrToolNotFound))
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(ErrRateLimit))
	assert.Equal(t, CodeInvalidInput, ErrorCodeOf(ErrInvalidInput))
}

func TestErrorCodeOf_WrappedError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", ErrMalformedOutput)
	assert.Equal(t, CodeMalformedOutput, ErrorCodeOf(wrapped))
}

func TestErrorCodeOf_SubSystem(t *testing.T) {
	err := NewSubSystemError("order", "Store.OrderByNumber", ErrNotFound, "ORD-404")
	assert.Equal(t, CodeOrderNotFound, ErrorCodeOf(err))
	assert.Equal(t, CodeOrderNotFound, err.Code())

	generic := NewSubSystemError("faq", "Store.SearchFAQs", ErrNotFound, "")
	assert.Equal(t, CodeNotFound, ErrorCodeOf(generic))
}

func TestErrorCodeOf_Quota(t *testing.T) {
	err := fmt.Errorf("route: %w", &QuotaExceededError{Limit: QuotaRPM, RetryAfterSeconds: 60, Cause: fmt.Errorf("API error 429: x: %w", ErrProviderError)})
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(err))
}

func TestErrorCodeOf_Unknown(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(fmt.Errorf("some random error")))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}

func TestQuotaExceededError(t *testing.T) {
	cause := errors.New("429 Too Many Requests")
	err := &QuotaExceededError{Limit: QuotaRPD, RetryAfterSeconds: QuotaRPD.RetryAfter(), Cause: cause}

	require.ErrorIs(t, err, ErrRateLimit)
	require.ErrorIs(t, err, cause)
	assert.Equal(t, 86400, err.RetryAfterSeconds)
	assert.Contains(t, err.Error(), "RPD")
	assert.Equal(t, 60, QuotaRPM.RetryAfter())

	var pe ProviderError = err
	switch pe.(type) {
	case *QuotaExceededError:
	default:
		t.Fatalf("unexpected variant %T", pe)
	}
}

func TestUnclassifiedProviderErrorKeepsCause(t *testing.T) {
	err := &UnclassifiedProviderError{Cause: fmt.Errorf("chat: %w", context.Canceled)}
	assert.Equal(t, "chat: context canceled", err.Error())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "provider error", (&UnclassifiedProviderError{}).Error())
}
