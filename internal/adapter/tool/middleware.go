package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"agentdesk/internal/domain"
	"agentdesk/internal/infra/tracer"
)

// Result is the JSON envelope every tool hands back to the model.
type Result struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Miss is a lookup that ran fine but found nothing, e.g. "Order not found".
// It is reported as success:false without marking the call as failed.
type Miss string

func (m Miss) Error() string { return string(m) }

// Execute is the standard tool execution pipeline: parse params -> start trace -> run handler -> wrap result.
//
// The handler receives the parsed params and an active trace span. It should return:
//   - (any Go value, nil): marshaled as the envelope's data
//   - (nil, Miss): success:false with the miss text, not logged
//   - (nil, error): success:false, logged, and flagged as an error result
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	var p P
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &p); err != nil {
			tracer.RecordError(span, err)
			return errorResult(Result{Error: fmt.Sprintf("invalid params: %v", err)}), nil
		}
	}

	data, err := handler(ctx, span, p)
	if err != nil {
		var miss Miss
		if errors.As(err, &miss) {
			tracer.SetOK(span)
			return encodeResult(Result{Error: miss.Error()}, false), nil
		}
		tracer.RecordError(span, err)
		logger.Warn(spanName+" failed", "error", err)
		return errorResult(Result{Error: err.Error(), Retryable: classifyToolError(err)}), nil
	}

	tracer.SetOK(span)
	return encodeResult(Result{Success: true, Data: data}, false), nil
}

func errorResult(r Result) *domain.ToolResult {
	return encodeResult(r, true)
}

func encodeResult(r Result, isError bool) *domain.ToolResult {
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(Result{Error: fmt.Sprintf("failed to format response: %v", err)})
		isError = true
	}
	return &domain.ToolResult{Content: string(b), IsError: isError}
}
