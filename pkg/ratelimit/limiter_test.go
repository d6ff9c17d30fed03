package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_ExactBoundary(t *testing.T) {
	l := NewLimiter(3, time.Minute)

	for i := 1; i <= 3; i++ {
		result := l.Allow("1.2.3.4")
		assert.True(t, result.Allowed, "request %d should pass", i)
		assert.Equal(t, i, result.Current)
		assert.Equal(t, 3, result.Limit)
	}

	denied := l.Allow("1.2.3.4")
	assert.False(t, denied.Allowed)
	assert.Equal(t, 3, denied.Current)
	assert.Greater(t, denied.RetryAfter, time.Duration(0))
}

func TestLimiter_PerIdentifierIsolation(t *testing.T) {
	l := NewLimiter(1, time.Minute)

	assert.True(t, l.Allow("a").Allowed)
	assert.False(t, l.Allow("a").Allowed)
	assert.True(t, l.Allow("b").Allowed, "a different client has its own window")
}

func TestLimiter_WindowSlides(t *testing.T) {
	current := time.Now()
	l := NewLimiter(2, time.Minute)
	l.now = func() time.Time { return current }

	assert.True(t, l.Allow("ip").Allowed)
	assert.True(t, l.Allow("ip").Allowed)
	assert.False(t, l.Allow("ip").Allowed)

	// After the window passes, the history ages out.
	current = current.Add(time.Minute + time.Second)
	result := l.Allow("ip")
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.Current)
}

func TestLimiter_RetryAfterShrinksOverTime(t *testing.T) {
	current := time.Now()
	l := NewLimiter(1, time.Minute)
	l.now = func() time.Time { return current }

	l.Allow("ip")
	first := l.Allow("ip")
	require.False(t, first.Allowed)

	current = current.Add(30 * time.Second)
	second := l.Allow("ip")
	require.False(t, second.Allowed)
	assert.Less(t, second.RetryAfter, first.RetryAfter)
}

func TestLimiter_Reset(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	l.Allow("ip")
	require.False(t, l.Allow("ip").Allowed)

	l.Reset("ip")
	assert.True(t, l.Allow("ip").Allowed)
}

func TestLimiter_PruneDropsAgedIdentifiers(t *testing.T) {
	current := time.Now()
	l := NewLimiter(5, time.Minute)
	l.now = func() time.Time { return current }

	l.Allow("old")
	current = current.Add(2 * time.Minute)
	l.Allow("fresh")
	l.Prune()

	l.mu.Lock()
	_, oldKept := l.history["old"]
	_, freshKept := l.history["fresh"]
	l.mu.Unlock()
	assert.False(t, oldKept)
	assert.True(t, freshKept)
}

func TestLimiter_Defaults(t *testing.T) {
	l := NewLimiter(0, 0)
	assert.Equal(t, DefaultMaxRequests, l.maxRequests)
	assert.Equal(t, DefaultWindow, l.window)
}

func TestMiddleware_Returns429WithRPCError(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	handler := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/a2a/health", nil)
	req.RemoteAddr = "10.0.0.1:4321"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var resp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, -32603, resp.Error.Code)
}

func TestMiddleware_HonorsForwardedFor(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	handler := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "127.0.0.1:1111"
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.5"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.5, 10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("203.0.113.9"), "distinct forwarded client gets its own window")
}
