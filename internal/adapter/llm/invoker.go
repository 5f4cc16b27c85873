package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"
	"go.opentelemetry.io/otel/trace"

	"agentdesk/internal/domain"
	"agentdesk/internal/infra/tracer"
)

var _ domain.ModelInvoker = (*Invoker)(nil)

// Invoker implements domain.ModelInvoker on top of a raw chat provider. It
// never retries: failures are returned to the caller as-is.
type Invoker struct {
	provider domain.LLMProvider
	logger   *slog.Logger

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewInvoker creates an invoker that sends every model call to provider.
func NewInvoker(provider domain.LLMProvider, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		provider: provider,
		logger:   logger,
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// GenerateStructured asks the model for one JSON object and validates it
// against req.Schema. Output that is not JSON or fails validation is reported
// as domain.ErrMalformedOutput.
func (inv *Invoker) GenerateStructured(ctx context.Context, req domain.StructuredRequest) (*domain.StructuredResult, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.generate_structured",
		trace.WithAttributes(tracer.StringAttr("schema.name", req.SchemaName)),
	)
	defer span.End()

	schema, err := inv.compile(req.Schema)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("compile schema %s: %w", req.SchemaName, err)
	}

	resp, err := inv.provider.Chat(ctx, domain.ChatRequest{
		Messages:       withSystemPrompt(req.SystemPrompt, req.Messages),
		ResponseSchema: req.Schema,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	raw := stripCodeFences(resp.Message.Content)
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		err = fmt.Errorf("%w: %s: %v", domain.ErrMalformedOutput, req.SchemaName, err)
		tracer.RecordError(span, err)
		return nil, err
	}
	if result := schema.Validate(data); !result.IsValid() {
		err := fmt.Errorf("%w: %s: %s", domain.ErrMalformedOutput, req.SchemaName, result.Error())
		tracer.RecordError(span, err)
		return nil, err
	}

	setUsageAttrs(span, resp.Usage)
	tracer.SetOK(span)
	return &domain.StructuredResult{Object: json.RawMessage(raw), Usage: resp.Usage}, nil
}

// GenerateWithTools runs the tool loop: each step is one model call, and the
// tool calls it requests are executed concurrently before the next step.
// The loop ends when the model answers without tool calls or after MaxSteps
// model calls. Tool calls requested by the last allowed step still run, but
// no further model call is made to read their results.
func (inv *Invoker) GenerateWithTools(ctx context.Context, req domain.ToolRequest) (*domain.ToolRunResult, error) {
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 1
	}

	ctx, span := tracer.StartSpan(ctx, "llm.generate_with_tools",
		trace.WithAttributes(tracer.IntAttr("llm.max_steps", maxSteps)),
	)
	defer span.End()

	var schemas []domain.ToolSchema
	if req.Tools != nil {
		schemas = req.Tools.Schemas()
	}

	msgs := withSystemPrompt(req.SystemPrompt, req.Messages)
	result := &domain.ToolRunResult{}

	for step := 1; step <= maxSteps; step++ {
		resp, err := inv.provider.Chat(ctx, domain.ChatRequest{Messages: msgs, Tools: schemas})
		if err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		result.Usage.Add(resp.Usage)
		result.Text = resp.Message.Content

		calls := resp.Message.ToolCalls
		inv.logger.Debug("tool loop step",
			"step", step,
			"tool_calls", len(calls),
			"tokens", resp.Usage.TotalTokens,
		)
		if len(calls) == 0 {
			break
		}

		for _, c := range calls {
			result.ToolCalls = append(result.ToolCalls, c.Name)
		}
		msgs = append(msgs, resp.Message)
		msgs = append(msgs, inv.executeTools(ctx, req.Tools, calls)...)

		if step == maxSteps {
			inv.logger.Debug("tool loop step budget exhausted", "last_step_tool_calls", len(calls))
		}
	}

	span.SetAttributes(tracer.IntAttr("llm.tool_calls", len(result.ToolCalls)))
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	return result, nil
}

// executeTools runs calls in parallel. Results are collected in an indexed
// slice to preserve the original call order.
func (inv *Invoker) executeTools(ctx context.Context, tools domain.ToolExecutor, calls []domain.ToolCall) []domain.Message {
	out := make([]domain.Message, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c domain.ToolCall) {
			defer wg.Done()
			out[idx] = inv.executeTool(ctx, tools, c)
		}(i, call)
	}
	wg.Wait()
	return out
}

// executeTool runs a single tool call and returns the result as a tool turn.
// Lookup and execution failures are reported to the model, not the caller.
func (inv *Invoker) executeTool(ctx context.Context, tools domain.ToolExecutor, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "llm.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	msg := domain.Message{
		Role:       domain.RoleTool,
		Name:       call.Name,
		ToolCallID: call.ID,
		Timestamp:  time.Now(),
	}

	if tools == nil {
		msg.Content = toolErrorContent(fmt.Errorf("%w: %s", domain.ErrToolNotFound, call.Name))
		tracer.RecordError(span, domain.ErrToolNotFound)
		return msg
	}
	tool, err := tools.Get(call.Name)
	if err != nil {
		msg.Content = toolErrorContent(err)
		tracer.RecordError(span, err)
		return msg
	}

	res, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		inv.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		msg.Content = toolErrorContent(err)
		tracer.RecordError(span, err)
		return msg
	}
	msg.Content = res.Content
	tracer.SetOK(span)
	return msg
}

func toolErrorContent(err error) string {
	b, _ := json.Marshal(map[string]any{"success": false, "error": err.Error()})
	return string(b)
}

// compile returns the cached compiled form of a JSON Schema document.
func (inv *Invoker) compile(raw json.RawMessage) (*jsonschema.Schema, error) {
	key := string(raw)
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if s, ok := inv.schemas[key]; ok {
		return s, nil
	}
	s, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return nil, err
	}
	inv.schemas[key] = s
	return s, nil
}

// withSystemPrompt returns a new slice with the prompt as the leading system turn.
func withSystemPrompt(prompt string, history []domain.Message) []domain.Message {
	msgs := make([]domain.Message, 0, len(history)+1)
	if prompt != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: prompt})
	}
	return append(msgs, history...)
}

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// stripCodeFences removes markdown code fences if the LLM wrapped its output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}
