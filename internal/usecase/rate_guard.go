package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"agentdesk/internal/domain"
)

// rateWindow is the admission state for one key.
type rateWindow struct {
	count   int
	resetAt time.Time
}

// RateGuard admits at most limit calls per key within a fixed window that
// starts at the first admitted call. It is safe for concurrent use.
type RateGuard struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*rateWindow
	logger  *slog.Logger
	now     func() time.Time // for testing
}

// NewRateGuard creates a guard. Non-positive arguments take the defaults of
// 5 calls per 60 seconds.
func NewRateGuard(limit int, window time.Duration, logger *slog.Logger) *RateGuard {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateGuard{
		limit:   limit,
		window:  window,
		windows: make(map[string]*rateWindow),
		logger:  logger,
		now:     time.Now,
	}
}

// Check records an attempt for key and reports whether it is admitted.
func (g *RateGuard) Check(key string) domain.RateDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	w, ok := g.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &rateWindow{count: 1, resetAt: now.Add(g.window)}
		g.windows[key] = w
		return domain.RateDecision{Allowed: true, Remaining: g.limit - 1, ResetAt: w.resetAt}
	}

	if w.count < g.limit {
		w.count++
		return domain.RateDecision{Allowed: true, Remaining: g.limit - w.count, ResetAt: w.resetAt}
	}

	g.logger.Info("rate guard: request rejected", "key", key, "reset_at", w.resetAt)
	return domain.RateDecision{Allowed: false, Remaining: 0, ResetAt: w.resetAt}
}

// Sweep drops windows that have already expired. An expired window and a
// missing one produce the same decision, so sweeping never changes outcomes.
func (g *RateGuard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	removed := 0
	for key, w := range g.windows {
		if now.After(w.resetAt) {
			delete(g.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (g *RateGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.windows)
}

// Run sweeps expired windows every interval until ctx is cancelled.
func (g *RateGuard) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := g.Sweep(); n > 0 {
				g.logger.Debug("rate guard: swept expired windows", "removed", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
