// Package middleware holds HTTP middleware for the control surface that
// doesn't belong to a single handler group.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/bikeshrana/pmbacktest/internal/config"
)

// RateLimiter enforces a global per-client request rate, with tighter limits
// on a few named endpoints (the snapshot stream and token issuance).
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	logger   zerolog.Logger

	globalRate  rate.Limit
	globalBurst int

	endpointLimits map[string]rate.Limit
	endpointBurst  map[string]int

	cleanupInterval time.Duration
}

type visitor struct {
	limiters map[string]*rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a RateLimiter from cfg and starts its background
// cleanup of idle clients.
func NewRateLimiter(cfg config.RateLimitConfig, logger zerolog.Logger) *RateLimiter {
	rl := &RateLimiter{
		visitors:        make(map[string]*visitor),
		logger:          logger,
		globalRate:      rate.Limit(cfg.RequestsPerSecond),
		globalBurst:     cfg.Burst,
		endpointLimits:  map[string]rate.Limit{},
		endpointBurst:   map[string]int{},
		cleanupInterval: cfg.CleanupInterval,
	}

	if cfg.StreamRPS > 0 {
		rl.endpointLimits["/snapshots/stream"] = rate.Limit(cfg.StreamRPS)
		rl.endpointBurst["/snapshots/stream"] = max(int(cfg.StreamRPS), 1)
	}
	if cfg.TokenRPS > 0 {
		rl.endpointLimits["/auth/token"] = rate.Limit(cfg.TokenRPS)
		rl.endpointBurst["/auth/token"] = max(int(cfg.TokenRPS), 1)
	}

	if rl.cleanupInterval > 0 {
		go rl.cleanupVisitors()
	}

	logger.Info().
		Float64("global_rps", cfg.RequestsPerSecond).
		Int("global_burst", cfg.Burst).
		Msg("rate limiter initialized")

	return rl
}

// Limit returns middleware that rejects requests past the configured rate
// with 429, keyed by client IP and further scoped by path for the endpoints
// in endpointLimits.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := clientIdentifier(r)
		if !rl.allow(clientID, r.URL.Path) {
			rl.logger.Warn().
				Str("client_id", clientID).
				Str("path", r.URL.Path).
				Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(clientID, path string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[clientID]
	if !ok {
		v = &visitor{limiters: make(map[string]*rate.Limiter)}
		rl.visitors[clientID] = v
	}
	v.lastSeen = time.Now()

	key := "*"
	limit, burst := rl.globalRate, rl.globalBurst
	if l, ok := rl.endpointLimits[path]; ok {
		key, limit, burst = path, l, rl.endpointBurst[path]
	}

	limiter, ok := v.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(limit, burst)
		v.limiters[key] = limiter
	}
	return limiter.Allow()
}

func clientIdentifier(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return "ip:" + xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return "ip:" + xri
	}
	return "ip:" + r.RemoteAddr
}

func (rl *RateLimiter) cleanupVisitors() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		threshold := time.Now().Add(-3 * time.Minute)
		for id, v := range rl.visitors {
			if v.lastSeen.Before(threshold) {
				delete(rl.visitors, id)
			}
		}
		rl.mu.Unlock()
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
