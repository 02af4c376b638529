// Package server assembles the HTTP surface: routing, request identifiers,
// rate limiting, metrics, and request logging around the API handlers.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"fernando-live/internal/api"
	"fernando-live/internal/observability/logging"
	"fernando-live/internal/observability/metrics"
)

type Config struct {
	Addr      string
	RateLimit RateLimitConfig
	Logger    *slog.Logger
	Metrics   *metrics.Recorder

	// TrustProxyHeaders controls whether X-Forwarded-For / X-Real-Ip are
	// honored when attributing clients. Enable only behind a trusted proxy.
	TrustProxyHeaders bool
}

type Server struct {
	httpServer *http.Server
	limiter    *rateLimiter
	logger     *slog.Logger
}

// New builds the server around the API handlers. Routes are registered on a
// plain ServeMux; sub-resource dispatch happens inside the handlers.
func New(handler *api.Handler, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/api/streams/go-live", handler.GoLive)
	mux.HandleFunc("/api/streams/live", handler.LiveDirectory)
	mux.HandleFunc("/api/streams/mine", handler.MyStreams)
	mux.HandleFunc("/api/streams/ingest-config", handler.IngestConfig)
	mux.HandleFunc("/api/streams/recordings", handler.Recordings)
	mux.HandleFunc("/api/streams/", handler.StreamByID)
	mux.HandleFunc("/api/recordings", handler.Recordings)
	mux.HandleFunc("/api/creators", handler.Creators)
	mux.HandleFunc("/api/creators/", handler.CreatorByID)
	mux.HandleFunc("/api/categories", handler.Categories)

	limiter := newRateLimiter(cfg.RateLimit, cfg.TrustProxyHeaders, logger)

	handlerChain := http.Handler(mux)
	handlerChain = limiter.middleware(handlerChain)
	handlerChain = metricsMiddleware(recorder, handlerChain)
	handlerChain = logging.RequestLogger(logging.RequestLoggerConfig{Logger: logger})(handlerChain)
	handlerChain = requestIDMiddleware(handlerChain)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handlerChain,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		limiter: limiter,
		logger:  logging.WithComponent(logger, "server"),
	}
}

// Handler exposes the fully wrapped handler chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if closeErr := s.limiter.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// requestIDMiddleware assigns every request an identifier, honoring one
// supplied by the gateway, and echoes it on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

func metricsMiddleware(recorder *metrics.Recorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := metrics.NewResponseRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r)
		recorder.ObserveRequest(r.Method, r.URL.Path, rec.Status(), time.Since(start))
	})
}

// extractClientIP attributes the request to a client address. Forwarding
// headers are only consulted when the deployment trusts its proxy.
func extractClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
			if first != "" {
				return first
			}
		}
		if real := strings.TrimSpace(r.Header.Get("X-Real-Ip")); real != "" {
			return real
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
