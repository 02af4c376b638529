package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fernando-live/internal/api"
	"fernando-live/internal/observability/logging"
)

// RateLimitConfig tunes both the global request limiter and the dedicated
// go-live throttle. Zero values disable the corresponding limiter.
type RateLimitConfig struct {
	GlobalRPS   float64
	GlobalBurst int

	// GoLiveLimit broadcast starts are allowed per creator within
	// GoLiveWindow. Encoders stuck in a retry loop otherwise hammer the
	// one-live-per-creator conflict path.
	GoLiveLimit  int
	GoLiveWindow time.Duration

	// Redis* point the go-live throttle at a shared counter store so the
	// window holds across replicas. Empty RedisAddr keeps counters local.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// tokenStore counts events per key inside a fixed window.
type tokenStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
	Close() error
}

type rateLimiter struct {
	cfg        RateLimitConfig
	global     *rate.Limiter
	store      tokenStore
	trustProxy bool
	logger     *slog.Logger
}

func newRateLimiter(cfg RateLimitConfig, trustProxy bool, logger *slog.Logger) *rateLimiter {
	limiter := &rateLimiter{
		cfg:        cfg,
		trustProxy: trustProxy,
		logger:     logging.WithComponent(logger, "ratelimit"),
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(cfg.GlobalRPS)
			if burst < 1 {
				burst = 1
			}
		}
		limiter.global = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), burst)
	}
	if cfg.GoLiveLimit > 0 && cfg.GoLiveWindow > 0 {
		if cfg.RedisAddr != "" {
			store, err := newRedisTokenStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			if err != nil {
				limiter.logger.Warn("redis throttle unavailable, using local counters", "error", err)
			} else {
				limiter.store = store
			}
		}
		if limiter.store == nil {
			limiter.store = newMemoryTokenStore()
		}
	}
	return limiter
}

func (l *rateLimiter) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.global != nil && !l.global.Allow() {
			api.WriteError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		if l.store != nil && r.Method == http.MethodPost && r.URL.Path == "/api/streams/go-live" {
			key := r.Header.Get("X-Creator-Id")
			if key == "" {
				key = extractClientIP(r, l.trustProxy)
			}
			allowed, retryAfter, err := l.store.Allow(r.Context(), "golive:"+key, l.cfg.GoLiveLimit, l.cfg.GoLiveWindow)
			if err != nil {
				// Availability over strictness when the counter store is down.
				l.logger.Warn("go-live throttle check failed", "error", err)
			} else if !allowed {
				if retryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+1)))
				}
				api.WriteError(w, http.StatusTooManyRequests,
					fmt.Errorf("too many broadcast starts, retry in %s", retryAfter.Round(time.Second)))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type windowCounter struct {
	count   int
	resetAt time.Time
}

// memoryTokenStore is the single-replica fallback: fixed windows kept in a
// map, expired entries dropped whenever a key is touched.
type memoryTokenStore struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	now      func() time.Time
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{
		counters: make(map[string]*windowCounter),
		now:      time.Now,
	}
}

func (s *memoryTokenStore) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok || now.After(counter.resetAt) {
		s.counters[key] = &windowCounter{count: 1, resetAt: now.Add(window)}
		s.sweepLocked(now)
		return true, 0, nil
	}
	if counter.count >= limit {
		return false, counter.resetAt.Sub(now), nil
	}
	counter.count++
	return true, 0, nil
}

func (s *memoryTokenStore) sweepLocked(now time.Time) {
	for key, counter := range s.counters {
		if now.After(counter.resetAt) {
			delete(s.counters, key)
		}
	}
}

func (s *memoryTokenStore) Close() error { return nil }
