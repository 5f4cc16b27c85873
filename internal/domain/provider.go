package domain

import (
	"context"
	"encoding/json"
)

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "gemini", "openai").
	Name() string
}

// StructuredRequest asks the model for a single JSON object matching Schema.
type StructuredRequest struct {
	SystemPrompt string
	SchemaName   string
	Schema       json.RawMessage
	Messages     []Message
}

// StructuredResult holds the validated JSON object and the call's usage.
type StructuredResult struct {
	Object json.RawMessage
	Usage  Usage
}

// ToolRequest asks the model for a text answer, letting it call Tools for at
// most MaxSteps model invocations.
type ToolRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        ToolExecutor
	MaxSteps     int
}

// ToolRunResult is the final text plus the names of every tool invoked, in
// invocation order.
type ToolRunResult struct {
	Text      string
	ToolCalls []string
	Usage     Usage
}

// ModelInvoker is the model-invocation capability the orchestration core
// depends on. Implementations must honor context cancellation and must not
// retry on their own.
type ModelInvoker interface {
	GenerateStructured(ctx context.Context, req StructuredRequest) (*StructuredResult, error)
	GenerateWithTools(ctx context.Context, req ToolRequest) (*ToolRunResult, error)
}

// TokenCounter estimates token counts for context budgeting.
type TokenCounter interface {
	CountTokens(text string) int
	CountMessages(msgs []Message) int
}
