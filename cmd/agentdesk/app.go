package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"agentdesk/internal/adapter/llm"
	"agentdesk/internal/adapter/store"
	"agentdesk/internal/adapter/tool"
	"agentdesk/internal/infra/config"
	"agentdesk/internal/infra/logger"
	"agentdesk/internal/infra/tracer"
	"agentdesk/internal/usecase"
)

// app holds the wired components shared by every command.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	store *store.SQLiteStore
	chat  *usecase.ChatService

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.log != nil {
			a.log.Warn("shutdown step failed", "error", err)
		}
	}
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	if err := config.LoadEnvFile(opts.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// openStore opens the database and seeds demo data when configured.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*store.SQLiteStore, error) {
	if dir := filepath.Dir(cfg.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if cfg.Store.Seed {
		seeded, err := st.Seed(ctx)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
		if seeded {
			log.Info("seeded demo data", "path", cfg.Store.Path)
		}
	}
	return st, nil
}

// newApp loads configuration and wires the orchestration pipeline. Each
// adjust func may tweak the loaded config before anything is built.
func newApp(ctx context.Context, opts *rootOptions, adjust ...func(*config.Config)) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	for _, fn := range adjust {
		fn(cfg)
	}

	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a.log = log
	a.closers = append(a.closers, logCloser)

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.closers = append(a.closers, func() error { return tracerShutdown(context.Background()) })

	provider, err := initLLM(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	sets, err := tool.NewSets(st, logger.Component(log, "tools"))
	if err != nil {
		return nil, fmt.Errorf("tools: %w", err)
	}
	profiles := usecase.DefaultProfiles(sets.Order, sets.Billing, sets.Support)

	counter, err := usecase.NewTokenCounter(cfg.Orchestrator.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}

	invoker := llm.NewInvoker(provider, logger.Component(log, "invoker"))
	classifier := usecase.NewErrorClassifier(logger.Component(log, "classifier"))
	compactor := usecase.NewCompactor(usecase.CompactionConfig{
		Threshold:  cfg.Orchestrator.CompactionThreshold,
		KeepRecent: cfg.Orchestrator.KeepRecent,
	}, counter, logger.Component(log, "compactor"))
	router := usecase.NewRouter(invoker, classifier, logger.Component(log, "router"))
	dispatcher, err := usecase.NewDispatcher(invoker, profiles, classifier,
		cfg.Orchestrator.MaxToolSteps, logger.Component(log, "dispatcher"))
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	orchestrator := usecase.NewOrchestrator(compactor, router, dispatcher, logger.Component(log, "orchestrator"))

	a.chat = usecase.NewChatService(st, orchestrator, profiles, cfg.Orchestrator.HistoryLimit, logger.Component(log, "chat"))

	log.Info("agentdesk ready",
		"provider", cfg.LLM.DefaultProvider,
		"tokenizer", cfg.Orchestrator.Tokenizer,
		"tools", len(sets.Order.Names())+len(sets.Billing.Names())+len(sets.Support.Names()),
	)
	ok = true
	return a, nil
}
