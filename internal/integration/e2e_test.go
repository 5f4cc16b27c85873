//go:build integration
// +build integration

package integration

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdesk/internal/adapter/llm"
	"agentdesk/internal/adapter/store"
	"agentdesk/internal/adapter/tool"
	"agentdesk/internal/domain"
	"agentdesk/internal/infra/config"
	"agentdesk/internal/usecase"
)

// newChatService wires the full pipeline against a seeded temp database.
func newChatService(t *testing.T, provider domain.LLMProvider) (*usecase.ChatService, *store.SQLiteStore) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	st, err := store.Open(filepath.Join(t.TempDir(), "e2e.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	_, err = st.Seed(t.Context())
	require.NoError(t, err)

	sets, err := tool.NewSets(st, log)
	require.NoError(t, err)
	profiles := usecase.DefaultProfiles(sets.Order, sets.Billing, sets.Support)

	invoker := llm.NewInvoker(provider, log)
	classifier := usecase.NewErrorClassifier(log)
	dispatcher, err := usecase.NewDispatcher(invoker, profiles, classifier, 2, log)
	require.NoError(t, err)

	orchestrator := usecase.NewOrchestrator(
		usecase.NewCompactor(usecase.CompactionConfig{}, usecase.HeuristicCounter{}, log),
		usecase.NewRouter(invoker, classifier, log),
		dispatcher,
		log,
	)
	return usecase.NewChatService(st, orchestrator, profiles, 20, log), st
}

// skipOnQuota turns free-tier exhaustion into a skip rather than a failure.
func skipOnQuota(t *testing.T, err error) {
	t.Helper()
	var quota *domain.QuotaExceededError
	if errors.As(err, &quota) {
		t.Skipf("provider quota exhausted (%s), retry in %ds", quota.Limit, quota.RetryAfterSeconds)
	}
}

func runOrderLookup(t *testing.T, provider domain.LLMProvider, timeoutCfg *Config) {
	ctx := NewTestContext(t, timeoutCfg.TestTimeout)
	chat, st := newChatService(t, provider)

	out, err := chat.SendMessage(ctx, usecase.SendMessageInput{
		Message: "What is the status of my order ORD-2024-001?",
	})
	skipOnQuota(t, err)
	require.NoError(t, err)

	t.Logf("agent=%s reasoning=%q reply=%q", out.Result.AgentType, out.Result.Reasoning, out.Result.Content)
	assert.Equal(t, domain.AgentOrder, out.Result.AgentType)
	assert.NotEmpty(t, out.Result.Content)

	msgs, err := st.Messages(ctx, out.ConversationID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestE2E_GeminiOrderLookup(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoAPIKey(t, cfg.GeminiKey, "GOOGLE_GENERATIVE_AI_API_KEY")

	provider := llm.NewGeminiProvider(config.ProviderConfig{
		Name:   "gemini",
		APIKey: cfg.GeminiKey,
		Model:  config.DefaultGeminiModel,
	}, slog.Default())
	runOrderLookup(t, provider, cfg)
}

func TestE2E_OpenAIOrderLookup(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoAPIKey(t, cfg.OpenAIKey, "OPENAI_API_KEY")

	provider := llm.NewOpenAIProvider(config.ProviderConfig{
		Name:   "openai",
		APIKey: cfg.OpenAIKey,
		Model:  config.DefaultOpenAIModel,
	}, slog.Default())
	runOrderLookup(t, provider, cfg)
}

func TestE2E_ClarifiesVagueMessage(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoAPIKey(t, cfg.GeminiKey, "GOOGLE_GENERATIVE_AI_API_KEY")
	if cfg.SkipSlow {
		t.Skip("SKIP_SLOW_TESTS set")
	}

	provider := llm.NewGeminiProvider(config.ProviderConfig{
		Name:   "gemini",
		APIKey: cfg.GeminiKey,
	}, slog.Default())
	chat, _ := newChatService(t, provider)

	out, err := chat.SendMessage(NewTestContext(t, cfg.TestTimeout), usecase.SendMessageInput{Message: "hmm"})
	skipOnQuota(t, err)
	require.NoError(t, err)
	t.Logf("agent=%s reply=%q", out.Result.AgentType, out.Result.Content)
	assert.NotEmpty(t, out.Result.Content)
}
