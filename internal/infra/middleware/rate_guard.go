package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agentdesk/internal/domain"
)

// LimitTypeIP marks a rejection by the per-client request gate.
const LimitTypeIP = "IP_LIMIT"

// Limiter decides whether a keyed request may proceed.
type Limiter interface {
	Check(key string) domain.RateDecision
}

// RateGuardConfig configures the per-client request gate.
type RateGuardConfig struct {
	TrustedProxies []string
	// PathPrefix limits the gate to matching paths; empty gates everything.
	PathPrefix string
	Logger     *slog.Logger
	Now        func() time.Time
}

// RateGuard rejects requests once the client's fixed window is exhausted.
// Rejections are answered with 429, a Retry-After header and a JSON body
// carrying limitType IP_LIMIT.
func RateGuard(limiter Limiter, cfg RateGuardConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.PathPrefix != "" && !strings.HasPrefix(r.URL.Path, cfg.PathPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r, cfg.TrustedProxies)
			decision := limiter.Check(ip)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := RetryAfterSeconds(decision.ResetAt, now())
			logger.Info("request rejected by rate guard",
				"client_ip", ip,
				"retry_after_s", retryAfter,
				"request_id", RequestIDFrom(r.Context()),
			)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			WriteJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error: "Rate limit exceeded. Please try again later.",
				Code:  string(domain.CodeRateLimit),
				Details: &LimitDetails{
					Message:           "You are sending messages too quickly.",
					LimitType:         LimitTypeIP,
					RetryAfterSeconds: retryAfter,
					RefreshTime:       decision.ResetAt.UTC().Format(time.RFC3339Nano),
				},
			})
		})
	}
}

// RetryAfterSeconds rounds the wait until resetAt up to whole seconds.
func RetryAfterSeconds(resetAt, now time.Time) int {
	d := resetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
