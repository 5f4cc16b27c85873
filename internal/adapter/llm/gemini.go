package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"agentdesk/internal/domain"
	"agentdesk/internal/infra/config"
	"agentdesk/internal/infra/tracer"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiProvider implements domain.LLMProvider for the Google Gemini API.
type GeminiProvider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewGeminiProvider creates a provider for the Google Gemini API.
func NewGeminiProvider(cfg config.ProviderConfig, logger *slog.Logger) *GeminiProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultGeminiModel
	}

	return &GeminiProvider{
		name:    cfg.Name,
		model:   model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  NewHTTPClient(cfg),
		logger:  logger,
	}
}

// Chat implements domain.LLMProvider.
func (p *GeminiProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}

	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	gemReq, err := toGeminiRequest(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	body, err := json.Marshal(gemReq)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	// The key travels in a header so it never appears in transport errors.
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(req.Model))
	headers := map[string]string{"x-goog-api-key": p.apiKey}

	respBody, err := doJSONRequest(ctx, p.client, p.name, endpoint, body, headers)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var gemResp geminiResponse
	if err := json.Unmarshal(respBody, &gemResp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if gemResp.PromptFeedback != nil && gemResp.PromptFeedback.BlockReason != "" && len(gemResp.Candidates) == 0 {
		err := fmt.Errorf("%w: prompt blocked: %s", domain.ErrProviderError, gemResp.PromptFeedback.BlockReason)
		tracer.RecordError(span, err)
		return nil, err
	}

	result := fromGeminiResponse(gemResp)
	result.Model = req.Model
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)

	return result, nil
}

// Name implements domain.LLMProvider.
func (p *GeminiProvider) Name() string { return p.name }

// --- Gemini API wire types ---

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	Tools             []geminiTool     `json:"tools,omitempty"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiGenConfig struct {
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxOutputTokens  int             `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string              `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFuncResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type geminiFuncResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFuncDecl `json:"functionDeclarations"`
}

type geminiFuncDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	UsageMetadata  *geminiUsage          `json:"usageMetadata,omitempty"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

func toGeminiRequest(req domain.ChatRequest) (geminiRequest, error) {
	gemReq := geminiRequest{}
	var systemParts []geminiPart

	for _, m := range req.Messages {
		switch {
		case m.Role == domain.RoleSystem:
			systemParts = append(systemParts, geminiPart{Text: m.Content})
			continue

		case m.Role == domain.RoleTool:
			part := geminiPart{FunctionResponse: &geminiFuncResponse{
				Name:     m.Name,
				Response: map[string]any{"content": toolResponseValue(m.Content)},
			}}
			// Results of one step's parallel calls share a single turn.
			if n := len(gemReq.Contents); n > 0 && isFunctionResponseTurn(gemReq.Contents[n-1]) {
				gemReq.Contents[n-1].Parts = append(gemReq.Contents[n-1].Parts, part)
				continue
			}
			gemReq.Contents = append(gemReq.Contents, geminiContent{Role: "user", Parts: []geminiPart{part}})
			continue
		}

		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}
		gc := geminiContent{Role: role}
		if m.Content != "" {
			gc.Parts = append(gc.Parts, geminiPart{Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			gc.Parts = append(gc.Parts, geminiPart{
				FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: tc.Arguments},
			})
		}
		if len(gc.Parts) == 0 {
			gc.Parts = []geminiPart{{Text: ""}}
		}
		gemReq.Contents = append(gemReq.Contents, gc)
	}

	if len(systemParts) > 0 {
		gemReq.SystemInstruction = &geminiContent{Parts: systemParts}
	}

	if len(req.Tools) > 0 {
		decls := make([]geminiFuncDecl, 0, len(req.Tools))
		for _, t := range req.Tools {
			params, err := geminiSchema(t.Parameters)
			if err != nil {
				return geminiRequest{}, fmt.Errorf("tool %s parameters: %w", t.Name, err)
			}
			decls = append(decls, geminiFuncDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			})
		}
		gemReq.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	gen := &geminiGenConfig{MaxOutputTokens: req.MaxTokens}
	if req.Temperature != 0 {
		temp := req.Temperature
		gen.Temperature = &temp
	}
	if len(req.ResponseSchema) > 0 {
		schema, err := geminiSchema(req.ResponseSchema)
		if err != nil {
			return geminiRequest{}, fmt.Errorf("response schema: %w", err)
		}
		gen.ResponseMimeType = "application/json"
		gen.ResponseSchema = schema
	}
	if gen.Temperature != nil || gen.MaxOutputTokens > 0 || gen.ResponseMimeType != "" {
		gemReq.GenerationConfig = gen
	}

	return gemReq, nil
}

func isFunctionResponseTurn(c geminiContent) bool {
	return len(c.Parts) > 0 && c.Parts[0].FunctionResponse != nil
}

// toolResponseValue embeds JSON tool output as an object, anything else as text.
func toolResponseValue(content string) any {
	var v any
	if err := json.Unmarshal([]byte(content), &v); err == nil {
		return v
	}
	return content
}

// geminiUnsupportedKeys are JSON Schema keywords the Gemini schema subset rejects.
var geminiUnsupportedKeys = []string{"$schema", "$id", "additionalProperties", "default", "examples", "title"}

// geminiSchema strips JSON Schema keywords the Gemini API does not accept.
func geminiSchema(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var schema any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	return json.Marshal(stripSchemaKeys(schema))
}

func stripSchemaKeys(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for _, k := range geminiUnsupportedKeys {
			delete(node, k)
		}
		for k, child := range node {
			node[k] = stripSchemaKeys(child)
		}
		return node
	case []any:
		for i, child := range node {
			node[i] = stripSchemaKeys(child)
		}
		return node
	default:
		return v
	}
}

func fromGeminiResponse(resp geminiResponse) *domain.ChatResponse {
	result := &domain.ChatResponse{
		CreatedAt: time.Now(),
	}

	if resp.UsageMetadata != nil {
		result.Usage = domain.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}

	msg := domain.Message{
		Role:      domain.RoleAssistant,
		Timestamp: result.CreatedAt,
	}

	if len(resp.Candidates) > 0 {
		var text strings.Builder
		for i, part := range resp.Candidates[0].Content.Parts {
			if part.FunctionCall != nil {
				args := part.FunctionCall.Args
				if len(args) == 0 {
					args = json.RawMessage(`{}`)
				}
				msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
					ID:        fmt.Sprintf("call_%d_%s", i, part.FunctionCall.Name),
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
			} else if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
		msg.Content = text.String()
	}

	result.Message = msg
	return result
}

// --- google.rpc error details ---

type googleErrorEnvelope struct {
	Error struct {
		Details []googleErrorDetail `json:"details"`
	} `json:"error"`
}

type googleErrorDetail struct {
	Type       string `json:"@type"`
	RetryDelay string `json:"retryDelay,omitempty"`
	Violations []struct {
		QuotaID     string `json:"quotaId"`
		QuotaMetric string `json:"quotaMetric"`
	} `json:"violations,omitempty"`
}

// parseGoogleQuotaDetails extracts the exhausted quota id and the retry delay
// from a google.rpc error body. Unknown bodies yield zero values.
func parseGoogleQuotaDetails(body []byte) (quotaID string, retryAfter time.Duration) {
	var env googleErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", 0
	}
	for _, d := range env.Error.Details {
		switch {
		case strings.HasSuffix(d.Type, "google.rpc.QuotaFailure"):
			for _, v := range d.Violations {
				if v.QuotaID == "" {
					continue
				}
				// A day-scale violation outranks any minute-scale one.
				if quotaID == "" || strings.Contains(v.QuotaID, "PerDay") {
					quotaID = v.QuotaID
				}
			}
		case strings.HasSuffix(d.Type, "google.rpc.RetryInfo"):
			if delay, err := time.ParseDuration(d.RetryDelay); err == nil {
				retryAfter = delay
			}
		}
	}
	return quotaID, retryAfter
}
