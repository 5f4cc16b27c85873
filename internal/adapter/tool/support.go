package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"agentdesk/internal/domain"
	"agentdesk/internal/infra/tracer"
)

const maxFAQQueryLen = 256

// SearchFAQsTool searches the FAQ knowledge base.
type SearchFAQsTool struct {
	store  domain.CommerceStore
	logger *slog.Logger
}

// NewSearchFAQsTool creates the searchFAQs tool.
func NewSearchFAQsTool(store domain.CommerceStore, logger *slog.Logger) *SearchFAQsTool {
	return &SearchFAQsTool{store: store, logger: logger}
}

func (t *SearchFAQsTool) Name() string        { return "searchFAQs" }
func (t *SearchFAQsTool) Description() string { return "Search the FAQ database for answers" }

func (t *SearchFAQsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Words to look for in FAQ questions and answers"}
			},
			"required": ["query"]
		}`),
	}
}

type faqParams struct {
	Query string `json:"query"`
}

type faqResults struct {
	Results []domain.FAQ `json:"results"`
}

func (t *SearchFAQsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.search_faqs", t.logger, params,
		func(ctx context.Context, span trace.Span, p faqParams) (any, error) {
			if err := ValidateAll(
				RequireField("query", p.Query),
				ValidateMaxLength("query", p.Query, maxFAQQueryLen),
			); err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.StringAttr("faq.query", p.Query))

			faqs, err := t.store.SearchFAQs(ctx, p.Query)
			if err != nil {
				return nil, err
			}
			if faqs == nil {
				faqs = []domain.FAQ{}
			}
			span.SetAttributes(tracer.IntAttr("faq.results", len(faqs)))
			return faqResults{Results: faqs}, nil
		},
	)
}
