package main

import (
	"fmt"
	"log/slog"

	"agentdesk/internal/adapter/llm"
	"agentdesk/internal/domain"
	"agentdesk/internal/infra/config"
)

// createLLMProvider builds the client for one configured provider. Type
// defaults to the provider name.
func createLLMProvider(pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	kind := pc.Type
	if kind == "" {
		kind = pc.Name
	}
	switch kind {
	case "gemini":
		return llm.NewGeminiProvider(pc, log), nil
	case "openai":
		return llm.NewOpenAIProvider(pc, log), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", kind)
	}
}

// initLLM registers every configured provider and returns the one the
// orchestrator talks to, wrapped with failover when fallbacks are configured.
func initLLM(cfg *config.Config, log *slog.Logger) (domain.LLMProvider, error) {
	registry := llm.NewRegistry()

	cbCfg := cfg.LLM.CircuitBreaker
	for _, pc := range cfg.LLM.Providers {
		provider, err := createLLMProvider(pc, log)
		if err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}

		// Pace before the breaker so waiting callers never count as failures.
		provider = llm.NewThrottledProvider(provider, pc.RequestsPerMinute, pc.Burst)

		if cbCfg.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, llm.CircuitBreakerConfig{
				MaxFailures: cbCfg.MaxFailures,
				Timeout:     cbCfg.Timeout,
				Interval:    cbCfg.Interval,
			}, log)
		}

		if err := registry.Register(provider); err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}
	}

	log.Info("llm providers registered", "providers", registry.List())

	if cbCfg.Enabled {
		log.Info("llm circuit breaker enabled",
			"max_failures", cbCfg.MaxFailures,
			"timeout", cbCfg.Timeout,
			"interval", cbCfg.Interval,
		)
	}

	defaultLLM, err := registry.Get(cfg.LLM.DefaultProvider)
	if err != nil {
		return nil, fmt.Errorf("default llm provider (registered: %v): %w", registry.List(), err)
	}

	if cfg.LLM.Failover.Enabled && len(cfg.LLM.Failover.Fallbacks) > 0 {
		var fallbacks []domain.LLMProvider
		for _, name := range cfg.LLM.Failover.Fallbacks {
			fb, err := registry.Get(name)
			if err != nil {
				return nil, fmt.Errorf("failover provider %s: %w", name, err)
			}
			fallbacks = append(fallbacks, fb)
		}
		defaultLLM = llm.NewFailoverProvider(defaultLLM, fallbacks, log)
		log.Info("model failover enabled", "fallbacks", cfg.LLM.Failover.Fallbacks)
	}

	return defaultLLM, nil
}
