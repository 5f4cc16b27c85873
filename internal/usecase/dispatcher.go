package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"agentdesk/internal/domain"
	"agentdesk/internal/infra/tracer"
)

// defaultMaxToolSteps bounds model invocations per dispatched message.
const defaultMaxToolSteps = 2

// Dispatcher runs a message through one specialist agent with that agent's
// prompt and tool set.
type Dispatcher struct {
	invoker    domain.ModelInvoker
	profiles   map[domain.AgentType]AgentProfile
	classifier *ErrorClassifier
	maxSteps   int
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher. profiles must contain domain.AgentSupport,
// which serves every unrecognized agent type.
func NewDispatcher(invoker domain.ModelInvoker, profiles map[domain.AgentType]AgentProfile, classifier *ErrorClassifier, maxSteps int, logger *slog.Logger) (*Dispatcher, error) {
	if _, ok := profiles[domain.AgentSupport]; !ok {
		return nil, fmt.Errorf("dispatcher: missing %q profile: %w", domain.AgentSupport, domain.ErrInvalidInput)
	}
	if maxSteps <= 0 {
		maxSteps = defaultMaxToolSteps
	}
	return &Dispatcher{
		invoker:    invoker,
		profiles:   profiles,
		classifier: classifier,
		maxSteps:   maxSteps,
		logger:     logger,
	}, nil
}

// Profile returns the profile serving agent, falling back to support.
func (d *Dispatcher) Profile(agent domain.AgentType) AgentProfile {
	if p, ok := d.profiles[agent]; ok {
		return p
	}
	return d.profiles[domain.AgentSupport]
}

// Dispatch produces the agent's answer to message.
func (d *Dispatcher) Dispatch(ctx context.Context, agent domain.AgentType, message string, history []domain.Message) (domain.AgentResult, error) {
	profile := d.Profile(agent)

	ctx, span := tracer.StartSpan(ctx, "dispatcher.dispatch")
	defer span.End()
	span.SetAttributes(tracer.AgentAttr(string(profile.Type)))

	res, err := d.invoker.GenerateWithTools(ctx, domain.ToolRequest{
		SystemPrompt: profile.SystemPrompt,
		Messages:     withUserTurn(history, message),
		Tools:        profile.Tools,
		MaxSteps:     d.maxSteps,
	})
	if err != nil {
		err = d.classifier.Wrap(err)
		tracer.RecordError(span, err)
		return domain.AgentResult{}, err
	}

	reasoning := "Processed by " + string(profile.Type)
	if len(res.ToolCalls) > 0 {
		reasoning = "Used tools: " + strings.Join(res.ToolCalls, ", ")
	}

	d.logger.Debug("dispatcher: agent answered",
		"agent", profile.Type,
		"tools", res.ToolCalls,
		"tokens", res.Usage.TotalTokens,
	)
	span.SetAttributes(tracer.IntAttr("agent.tool_calls", len(res.ToolCalls)))
	tracer.SetOK(span)

	return domain.AgentResult{
		Content:        res.Text,
		AgentType:      profile.Type,
		Reasoning:      reasoning,
		TokensConsumed: res.Usage.TotalTokens,
	}, nil
}
