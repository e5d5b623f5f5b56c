package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/darkpool/internal/cache/memory"
	"github.com/alanyoungcy/darkpool/internal/server/middleware"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = io.WriteString(w, "ok")
})

func serve(h http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	h := middleware.Auth("s3cret")(ok)

	tests := []struct {
		name    string
		method  string
		headers map[string]string
		want    int
	}{
		{"read needs no key", http.MethodGet, nil, http.StatusOK},
		{"missing key", http.MethodPost, nil, http.StatusUnauthorized},
		{"wrong bearer", http.MethodPost, map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"bearer", http.MethodPost, map[string]string{"Authorization": "bearer s3cret"}, http.StatusOK},
		{"x-api-key", http.MethodDelete, map[string]string{"X-API-Key": " s3cret "}, http.StatusOK},
		{"basic scheme ignored", http.MethodPost, map[string]string{"Authorization": "Basic s3cret"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.method, "/api/commit", tt.headers)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestAuth_PrivatePrefixGuardsReads(t *testing.T) {
	h := middleware.Auth("s3cret", "/api/commitments")(ok)

	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/api/commitments", nil).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/commitments", map[string]string{"X-API-Key": "s3cret"}).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodOptions, "/api/commitments", nil).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/markets", nil).Code)
}

func TestAuth_EmptyKeyDisables(t *testing.T) {
	rec := serve(middleware.Auth("")(ok), http.MethodPost, "/api/commit", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	h := middleware.CORS([]string{"https://app.example"})(ok)

	rec := serve(h, http.MethodOptions, "/api/commit", map[string]string{"Origin": "https://APP.example"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://APP.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), middleware.RequestIDHeader)

	rec = serve(h, http.MethodGet, "/api/markets", map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLogging_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := middleware.Logging(logger)(ok)

	rec := serve(h, http.MethodGet, "/api/markets?limit=5", nil)
	id := rec.Header().Get(middleware.RequestIDHeader)
	require.Len(t, id, 36)
	assert.Contains(t, buf.String(), `"request_id":"`+id+`"`)
	assert.Contains(t, buf.String(), `"bytes":2`)
	assert.Contains(t, buf.String(), `"query":"limit=5"`)

	rec = serve(h, http.MethodGet, "/api/health", map[string]string{middleware.RequestIDHeader: "from-proxy"})
	assert.Equal(t, "from-proxy", rec.Header().Get(middleware.RequestIDHeader))
	assert.Contains(t, buf.String(), `"level":"DEBUG"`)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimit(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := middleware.RateLimit(memory.NewRateLimiter(), 2, time.Minute, quiet)(ok)
	ip := map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}

	for range 2 {
		assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/api/commit", ip).Code)
	}
	rec := serve(h, http.MethodPost, "/api/commit", ip)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))

	// Reads and other clients are unaffected.
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/markets", ip).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/api/commit", map[string]string{"X-Real-IP": "198.51.100.1"}).Code)

	failOpen := middleware.RateLimit(brokenLimiter{}, 1, time.Minute, quiet)(ok)
	assert.Equal(t, http.StatusOK, serve(failOpen, http.MethodPost, "/api/commit", ip).Code)
}
