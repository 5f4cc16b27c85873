package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"agentdesk/internal/domain"
)

type mockProvider struct {
	name     string
	chatFunc func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error)
}

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return m.chatFunc(ctx, req)
}
func (m *mockProvider) Name() string { return m.name }

func TestFailoverPrimarySuccess(t *testing.T) {
	primary := &mockProvider{
		name: "primary",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return &domain.ChatResponse{Message: domain.Message{Content: "primary response"}}, nil
		},
	}
	fallback := &mockProvider{
		name: "fallback",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			t.Fatal("fallback should not be called")
			return nil, nil
		},
	}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, slog.Default())
	resp, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content != "primary response" {
		t.Errorf("content = %q, want %q", resp.Message.Content, "primary response")
	}
}

func TestFailoverPrimaryFailFallbackSuccess(t *testing.T) {
	primary := &mockProvider{
		name: "primary",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, errors.New("primary down")
		},
	}
	fallback := &mockProvider{
		name: "fallback",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return &domain.ChatResponse{Message: domain.Message{Content: "fallback response"}}, nil
		},
	}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, slog.Default())
	resp, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content != "fallback response" {
		t.Errorf("content = %q, want %q", resp.Message.Content, "fallback response")
	}
}

func TestFailoverAllFail(t *testing.T) {
	primary := &mockProvider{
		name: "primary",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, errors.New("primary down")
		},
	}
	fallback := &mockProvider{
		name: "fallback",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, errors.New("fallback down")
		},
	}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, slog.Default())
	_, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
}

func TestFailoverKeepsTypedCause(t *testing.T) {
	primary := &mockProvider{
		name: "gemini",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, &domain.APIError{Provider: "gemini", StatusCode: 429, Body: "quota", QuotaID: "PerDay", Err: domain.ErrRateLimit}
		},
	}
	fallback := &mockProvider{
		name: "openai",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, errors.New("openai down")
		},
	}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, slog.Default())
	_, err := fp.Chat(context.Background(), domain.ChatRequest{})

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("errors.As(*APIError) failed for %v", err)
	}
	if apiErr.QuotaID != "PerDay" {
		t.Errorf("QuotaID = %q", apiErr.QuotaID)
	}
	if !errors.Is(err, domain.ErrRateLimit) {
		t.Error("joined error should still match ErrRateLimit")
	}
}

func TestFailoverStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &mockProvider{
		name: "primary",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			cancel()
			return nil, context.Canceled
		},
	}
	fallback := &mockProvider{
		name: "fallback",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			t.Fatal("fallback should not be called after cancellation")
			return nil, nil
		},
	}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, slog.Default())
	_, err := fp.Chat(ctx, domain.ChatRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFailoverName(t *testing.T) {
	primary := &mockProvider{name: "openai"}
	fp := NewFailoverProvider(primary, nil, slog.Default())
	if fp.Name() != "openai+failover" {
		t.Errorf("Name = %q, want %q", fp.Name(), "openai+failover")
	}
}

// TestFailoverProvider_AggregatesAllErrors verifies that when all providers fail,
// the error message contains information about ALL failures, not just the last one.
// This helps with debugging and understanding why failover didn't work.
func TestFailoverProvider_AggregatesAllErrors(t *testing.T) {
	primary := &mockProvider{
		name: "primary",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, errors.New("primary connection timeout")
		},
	}
	fb1 := &mockProvider{
		name: "gemini",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, errors.New("gemini rate limit exceeded")
		},
	}
	fb2 := &mockProvider{
		name: "openai",
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, errors.New("openai API key invalid")
		},
	}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fb1, fb2}, slog.Default())

	ctx := context.Background()
	req := domain.ChatRequest{
		Model: "test",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "test"},
		},
	}

	_, err := fp.Chat(ctx, req)

	if err == nil {
		t.Fatal("expected error when all providers fail")
	}

	// Error should contain information about ALL failures, not just last one
	errStr := err.Error()

	// Check that all provider names are mentioned
	requiredSubstrings := []string{"primary", "gemini", "openai"}
	for _, substr := range requiredSubstrings {
		if !strings.Contains(errStr, substr) {
			t.Errorf("error should mention provider %q, got: %v", substr, err)
		}
	}

	// Should also contain error reasons
	if !strings.Contains(errStr, "timeout") || !strings.Contains(errStr, "invalid") {
		t.Errorf("error should contain failure reasons, got: %v", err)
	}
}
