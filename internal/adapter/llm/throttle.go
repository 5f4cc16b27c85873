package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"agentdesk/internal/domain"
)

var _ domain.LLMProvider = (*ThrottledProvider)(nil)

// ThrottledProvider paces outgoing calls to stay under a provider's
// requests-per-minute allowance. Callers block until a slot frees up or
// their context ends.
type ThrottledProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
}

// NewThrottledProvider wraps inner with a token bucket refilled at
// requestsPerMinute. A non-positive requestsPerMinute returns inner unchanged.
func NewThrottledProvider(inner domain.LLMProvider, requestsPerMinute, burst int) domain.LLMProvider {
	if requestsPerMinute <= 0 {
		return inner
	}
	if burst <= 0 {
		burst = 1
	}
	return &ThrottledProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst),
	}
}

// Chat implements domain.LLMProvider.
func (p *ThrottledProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle %s: %w", p.inner.Name(), err)
	}
	return p.inner.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *ThrottledProvider) Name() string { return p.inner.Name() }
