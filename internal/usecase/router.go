package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"agentdesk/internal/domain"
	"agentdesk/internal/infra/tracer"
)

const routerSystemPrompt = `You are a Router Agent. Analyze the conversation and decide the user's intent.
Routing Rules:
- "order": order status, tracking, or delivery.
- "billing": invoices, payments, refunds.
- "support": general questions, technical help.
If unclear, choose "clarify".`

// routerSchema constrains the router's structured output.
var routerSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "type": {"type": "string", "enum": ["route", "clarify"]},
    "agentType": {"type": "string", "enum": ["support", "order", "billing"]},
    "reasoning": {"type": "string"},
    "content": {"type": "string"}
  },
  "required": ["type", "reasoning"]
}`)

const (
	downgradeMessage   = "I'm not sure which department to connect you with."
	downgradeReasoning = "Model routed but failed to provide agentType"
)

// routerOutput is the decoded structured response.
type routerOutput struct {
	Type      string `json:"type"`
	AgentType string `json:"agentType,omitempty"`
	Reasoning string `json:"reasoning"`
	Content   string `json:"content,omitempty"`
}

// Router classifies a user message into a specialist agent or a
// clarification request with one structured model call.
type Router struct {
	invoker    domain.ModelInvoker
	classifier *ErrorClassifier
	logger     *slog.Logger
}

// NewRouter creates a Router. A nil logger falls back to slog.Default.
func NewRouter(invoker domain.ModelInvoker, classifier *ErrorClassifier, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{invoker: invoker, classifier: classifier, logger: logger}
}

// Route decides which agent handles message given the prior history.
// Provider failures are returned classified; a "route" verdict without a
// usable target is downgraded to a clarification.
func (r *Router) Route(ctx context.Context, message string, history []domain.Message) (domain.RoutingDecision, error) {
	ctx, span := tracer.StartSpan(ctx, "router.route")
	defer span.End()

	res, err := r.invoker.GenerateStructured(ctx, domain.StructuredRequest{
		SystemPrompt: routerSystemPrompt,
		SchemaName:   "routing_decision",
		Schema:       routerSchema,
		Messages:     withUserTurn(history, message),
	})
	if err != nil {
		err = r.classifier.Wrap(err)
		tracer.RecordError(span, err)
		return domain.RoutingDecision{}, err
	}

	var out routerOutput
	if err := json.Unmarshal(res.Object, &out); err != nil {
		err = r.classifier.Wrap(fmt.Errorf("decode routing decision: %w: %w", domain.ErrMalformedOutput, err))
		tracer.RecordError(span, err)
		return domain.RoutingDecision{}, err
	}

	decision := r.decide(out, res.Usage.TotalTokens)
	span.SetAttributes(
		tracer.StringAttr("route.kind", string(decision.Kind)),
		tracer.StringAttr("route.agent", string(decision.TargetAgent)),
		tracer.IntAttr("route.tokens", decision.TokensConsumed),
	)
	tracer.SetOK(span)
	return decision, nil
}

func (r *Router) decide(out routerOutput, tokens int) domain.RoutingDecision {
	switch out.Type {
	case string(domain.RouteToAgent):
		target := domain.AgentType(out.AgentType)
		if !target.IsSpecialist() {
			r.logger.Warn("router: route verdict without a valid agent, asking for clarification",
				"agent_type", out.AgentType,
				"reasoning", out.Reasoning,
			)
			return domain.RoutingDecision{
				Kind:              domain.RouteClarify,
				Reasoning:         downgradeReasoning,
				ClarifyingMessage: downgradeMessage,
				TokensConsumed:    tokens,
			}
		}
		return domain.RoutingDecision{
			Kind:           domain.RouteToAgent,
			TargetAgent:    target,
			Reasoning:      out.Reasoning,
			TokensConsumed: tokens,
		}
	default:
		return domain.RoutingDecision{
			Kind:              domain.RouteClarify,
			Reasoning:         out.Reasoning,
			ClarifyingMessage: out.Content,
			TokensConsumed:    tokens,
		}
	}
}

// withUserTurn returns a new slice of history followed by the user message.
func withUserTurn(history []domain.Message, message string) []domain.Message {
	msgs := make([]domain.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	return append(msgs, domain.Message{Role: domain.RoleUser, Content: message})
}
