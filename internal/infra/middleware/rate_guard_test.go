package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdesk/internal/domain"
)

// countingLimiter allows the first n checks per key.
type countingLimiter struct {
	n       int
	resetAt time.Time
	seen    map[string]int
}

func (l *countingLimiter) Check(key string) domain.RateDecision {
	if l.seen == nil {
		l.seen = make(map[string]int)
	}
	l.seen[key]++
	used := l.seen[key]
	if used > l.n {
		return domain.RateDecision{Allowed: false, Remaining: 0, ResetAt: l.resetAt}
	}
	return domain.RateDecision{Allowed: true, Remaining: l.n - used, ResetAt: l.resetAt}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateGuard_AllowsThenRejects(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := &countingLimiter{n: 2, resetAt: now.Add(42*time.Second + 300*time.Millisecond)}
	handler := RateGuard(limiter, RateGuardConfig{Now: func() time.Time { return now }})(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/api/chat/messages", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	req := httptest.NewRequest("POST", "/api/chat/messages", nil)
	req.RemoteAddr = "192.168.1.1:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "43", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	require.NotNil(t, body.Details)
	assert.Equal(t, LimitTypeIP, body.Details.LimitType)
	assert.Equal(t, 43, body.Details.RetryAfterSeconds)
	assert.Equal(t, "2024-01-01T12:00:42.3Z", body.Details.RefreshTime)
}

func TestRateGuard_SeparatesClientsByIP(t *testing.T) {
	limiter := &countingLimiter{n: 1, resetAt: time.Now().Add(time.Minute)}
	handler := RateGuard(limiter, RateGuardConfig{})(okHandler())

	codes := map[string][]int{}
	for _, addr := range []string{"10.0.0.1:1", "10.0.0.1:2", "10.0.0.2:1"} {
		req := httptest.NewRequest("GET", "/api/agents", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes[addr[:8]] = append(codes[addr[:8]], w.Code)
	}

	assert.Equal(t, []int{200, 429}, codes["10.0.0.1"])
	assert.Equal(t, []int{200}, codes["10.0.0.2"])
}

func TestRateGuard_PathPrefix(t *testing.T) {
	limiter := &countingLimiter{n: 0, resetAt: time.Now().Add(time.Minute)}
	handler := RateGuard(limiter, RateGuardConfig{PathPrefix: "/api/"})(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, limiter.seen)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRetryAfterSeconds(t *testing.T) {
	now := time.Unix(1000, 0)
	assert.Equal(t, 0, RetryAfterSeconds(now.Add(-time.Second), now))
	assert.Equal(t, 0, RetryAfterSeconds(now, now))
	assert.Equal(t, 1, RetryAfterSeconds(now.Add(time.Millisecond), now))
	assert.Equal(t, 60, RetryAfterSeconds(now.Add(time.Minute), now))
}
