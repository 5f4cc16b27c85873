package usecase

import (
	"context"
	"log/slog"

	"agentdesk/internal/domain"
	"agentdesk/internal/infra/tracer"
)

const defaultClarification = "Could you please provide more details?"

// Orchestrator is the single entry point for answering a user message:
// compact history, route, then dispatch or ask for clarification.
type Orchestrator struct {
	compactor  *Compactor
	router     *Router
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewOrchestrator wires the orchestration pipeline.
func NewOrchestrator(compactor *Compactor, router *Router, dispatcher *Dispatcher, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		compactor:  compactor,
		router:     router,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// HandleMessage answers message in the context of history (oldest first).
// Errors are domain.ProviderError values; nothing is retried here.
func (o *Orchestrator) HandleMessage(ctx context.Context, message string, history []domain.Message) (domain.AgentResult, error) {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.handle_message")
	defer span.End()

	compacted := o.compactor.Compact(history)

	decision, err := o.router.Route(ctx, message, compacted)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.AgentResult{}, err
	}

	if decision.Kind == domain.RouteClarify {
		content := decision.ClarifyingMessage
		if content == "" {
			content = defaultClarification
		}
		o.logger.Info("orchestrator: asking for clarification", "reasoning", decision.Reasoning)
		tracer.SetOK(span)
		return domain.AgentResult{
			Content:        content,
			AgentType:      domain.AgentRouter,
			Reasoning:      decision.Reasoning,
			TokensConsumed: 0,
		}, nil
	}

	result, err := o.dispatcher.Dispatch(ctx, decision.TargetAgent, message, compacted)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.AgentResult{}, err
	}

	result.Reasoning = decision.Reasoning + " → " + result.Reasoning
	result.TokensConsumed += decision.TokensConsumed

	span.SetAttributes(
		tracer.AgentAttr(string(result.AgentType)),
		tracer.IntAttr("tokens", result.TokensConsumed),
	)
	tracer.SetOK(span)
	return result, nil
}
