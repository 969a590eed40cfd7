package api

import (
	"crypto/subtle"
	"net/http"
	"sync"

	"curbly/internal/config"
	"curbly/internal/models"

	"golang.org/x/time/rate"
)

// HTTPAuth checks the api-key header against the configured client keys
// and rate-limits each key independently.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // key -> *rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	clients := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, c := range cfg.Auth.APIKeys {
		clients[c.Key] = c
	}
	return &HTTPAuth{cfg: cfg, clients: clients}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Auth.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(a.cfg.Auth.HeaderAPIKey)
		client, ok := a.lookup(key)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}

		if !a.allow(client.Key) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// lookup compares against every configured key in constant time so that
// the check does not leak which prefix matched.
func (a *HTTPAuth) lookup(key string) (config.APIClientKey, bool) {
	if key == "" {
		return config.APIClientKey{}, false
	}
	for stored, client := range a.clients {
		if subtle.ConstantTimeCompare([]byte(stored), []byte(key)) == 1 {
			return client, true
		}
	}
	return config.APIClientKey{}, false
}

func (a *HTTPAuth) allow(key string) bool {
	rps := a.cfg.RateLimit.RPS
	if rps <= 0 {
		rps = models.RateLimitRPS
	}
	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = models.RateLimitBurst
	}

	v, _ := a.limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(rps), burst))
	return v.(*rate.Limiter).Allow()
}
