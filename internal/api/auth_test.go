package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"curbly/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authConfig(rps float64, burst int) config.APIConfig {
	return config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: "secret-key-1", Name: "dispatch-app"},
				{Key: "secret-key-2", Name: "admin-panel"},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: rps, Burst: burst},
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHTTPAuth(t *testing.T) {
	auth := NewHTTPAuth(authConfig(100, 100))
	handler := auth.Wrap(okHandler())

	do := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/open", nil)
		if key != "" {
			req.Header.Set("x-api-key", key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do(""))
	assert.Equal(t, http.StatusUnauthorized, do("wrong-key"))
	assert.Equal(t, http.StatusOK, do("secret-key-1"))
	assert.Equal(t, http.StatusOK, do("secret-key-2"))
}

func TestHTTPAuthDisabled(t *testing.T) {
	auth := NewHTTPAuth(config.APIConfig{})
	handler := auth.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/open", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPAuthRateLimit(t *testing.T) {
	auth := NewHTTPAuth(authConfig(1, 2))
	handler := auth.Wrap(okHandler())

	do := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/open", nil)
		req.Header.Set("x-api-key", key)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do("secret-key-1"))
	require.Equal(t, http.StatusOK, do("secret-key-1"))
	assert.Equal(t, http.StatusTooManyRequests, do("secret-key-1"))

	// Each key gets its own limiter.
	assert.Equal(t, http.StatusOK, do("secret-key-2"))
}
