package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fernando-live/internal/api"
	"fernando-live/internal/ivs"
	"fernando-live/internal/observability/logging"
	"fernando-live/internal/observability/metrics"
	"fernando-live/internal/recording"
	"fernando-live/internal/server"
	"fernando-live/internal/storage"
	"fernando-live/internal/viewers"
)

func main() {
	// A missing .env file is fine; deployments set real environment variables.
	_ = godotenv.Load()

	var (
		addr          = flag.String("addr", "", "listen address (FERNANDO_LIVE_ADDR)")
		dataFile      = flag.String("data-file", "", "path to the JSON datastore (FERNANDO_LIVE_DATA_FILE)")
		postgresDSN   = flag.String("postgres-dsn", "", "Postgres connection string; overrides the JSON datastore (FERNANDO_LIVE_POSTGRES_DSN)")
		logLevel      = flag.String("log-level", "", "log level: debug, info, warn, error (FERNANDO_LIVE_LOG_LEVEL)")
		logFormat     = flag.String("log-format", "", "log format: json or text (FERNANDO_LIVE_LOG_FORMAT)")
		adminToken    = flag.String("admin-token", "", "token accepted on X-Admin-Token (FERNANDO_LIVE_ADMIN_TOKEN)")
		redisAddr     = flag.String("redis-addr", "", "Redis address for viewer counters and throttles (FERNANDO_LIVE_REDIS_ADDR)")
		redisPassword = flag.String("redis-password", "", "Redis password (FERNANDO_LIVE_REDIS_PASSWORD)")
		redisDB       = flag.Int("redis-db", 0, "Redis database number (FERNANDO_LIVE_REDIS_DB)")
		globalRPS     = flag.Float64("global-rps", 50, "global request rate limit, 0 disables (FERNANDO_LIVE_GLOBAL_RPS)")
		globalBurst   = flag.Int("global-burst", 100, "global rate limit burst (FERNANDO_LIVE_GLOBAL_BURST)")
		goLiveLimit   = flag.Int("golive-limit", 5, "broadcast starts allowed per creator per window, 0 disables (FERNANDO_LIVE_GOLIVE_LIMIT)")
		goLiveWindow  = flag.Duration("golive-window", time.Minute, "go-live throttle window (FERNANDO_LIVE_GOLIVE_WINDOW)")
		trustProxy    = flag.Bool("trust-proxy", false, "honor X-Forwarded-For from a fronting proxy (FERNANDO_LIVE_TRUST_PROXY)")
	)
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("FERNANDO_LIVE_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("FERNANDO_LIVE_LOG_FORMAT")),
	})

	if err := run(logger, settings{
		addr:          firstNonEmpty(*addr, os.Getenv("FERNANDO_LIVE_ADDR"), ":8080"),
		dataFile:      firstNonEmpty(*dataFile, os.Getenv("FERNANDO_LIVE_DATA_FILE"), "data/fernando-live.json"),
		postgresDSN:   firstNonEmpty(*postgresDSN, os.Getenv("FERNANDO_LIVE_POSTGRES_DSN")),
		adminToken:    firstNonEmpty(*adminToken, os.Getenv("FERNANDO_LIVE_ADMIN_TOKEN")),
		redisAddr:     firstNonEmpty(*redisAddr, os.Getenv("FERNANDO_LIVE_REDIS_ADDR")),
		redisPassword: firstNonEmpty(*redisPassword, os.Getenv("FERNANDO_LIVE_REDIS_PASSWORD")),
		redisDB:       resolveInt("FERNANDO_LIVE_REDIS_DB", *redisDB),
		globalRPS:     resolveFloat("FERNANDO_LIVE_GLOBAL_RPS", *globalRPS),
		globalBurst:   resolveInt("FERNANDO_LIVE_GLOBAL_BURST", *globalBurst),
		goLiveLimit:   resolveInt("FERNANDO_LIVE_GOLIVE_LIMIT", *goLiveLimit),
		goLiveWindow:  resolveDuration("FERNANDO_LIVE_GOLIVE_WINDOW", *goLiveWindow),
		trustProxy:    resolveBool("FERNANDO_LIVE_TRUST_PROXY", *trustProxy),
	}); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type settings struct {
	addr          string
	dataFile      string
	postgresDSN   string
	adminToken    string
	redisAddr     string
	redisPassword string
	redisDB       int
	globalRPS     float64
	globalBurst   int
	goLiveLimit   int
	goLiveWindow  time.Duration
	trustProxy    bool
}

func run(logger *slog.Logger, cfg settings) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(logger, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ingest, err := ivs.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load ingest configuration: %w", err)
	}

	var lister recording.Lister
	if ingest.RecordingEnabled() {
		s3Lister, err := recording.NewS3Lister(ctx, ingest.RecordingBucket, ingest.RecordingRegion)
		if err != nil {
			return fmt.Errorf("connect recording bucket: %w", err)
		}
		lister = s3Lister
		logger.Info("recording reconciliation enabled", "bucket", ingest.RecordingBucket)
	} else {
		logger.Info("recording reconciliation disabled; bucket or channel identity not configured")
	}
	reconciler := recording.NewReconciler(store, lister, ingest, logger, metrics.Default())

	tracker := openTracker(ctx, logger, cfg)
	defer tracker.Close()

	handler := api.NewHandler(store, reconciler, tracker, ingest)
	handler.Logger = logger
	handler.AdminToken = cfg.adminToken
	if cfg.adminToken == "" {
		logger.Warn("no admin token configured; admin endpoints are disabled")
	}

	srv := server.New(handler, server.Config{
		Addr:   cfg.addr,
		Logger: logger,
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     cfg.globalRPS,
			GlobalBurst:   cfg.globalBurst,
			GoLiveLimit:   cfg.goLiveLimit,
			GoLiveWindow:  cfg.goLiveWindow,
			RedisAddr:     cfg.redisAddr,
			RedisPassword: cfg.redisPassword,
			RedisDB:       cfg.redisDB,
		},
		TrustProxyHeaders: cfg.trustProxy,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(logger *slog.Logger, cfg settings) (storage.Repository, func(), error) {
	if cfg.postgresDSN != "" {
		repo, err := storage.NewPostgresRepository(cfg.postgresDSN,
			storage.WithPostgresApplicationName("fernando-live"))
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres datastore: %w", err)
		}
		logger.Info("using postgres datastore")
		return repo, func() {
			if closer, ok := repo.(interface{ Close(context.Context) error }); ok {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = closer.Close(closeCtx)
			}
		}, nil
	}

	store, err := storage.NewJSONRepository(cfg.dataFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open json datastore at %s: %w", cfg.dataFile, err)
	}
	logger.Info("using json datastore", "path", cfg.dataFile)
	return store, func() {}, nil
}

func openTracker(ctx context.Context, logger *slog.Logger, cfg settings) viewers.Tracker {
	if cfg.redisAddr == "" {
		return viewers.NewMemoryTracker()
	}
	tracker, err := viewers.NewRedisTracker(ctx, cfg.redisAddr, cfg.redisPassword, cfg.redisDB)
	if err != nil {
		logger.Warn("redis viewer tracker unavailable, using in-memory counters", "error", err)
		return viewers.NewMemoryTracker()
	}
	logger.Info("using redis viewer tracker", "addr", cfg.redisAddr)
	return tracker
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func resolveInt(env string, fallback int) int {
	if raw := strings.TrimSpace(os.Getenv(env)); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			return value
		}
	}
	return fallback
}

func resolveFloat(env string, fallback float64) float64 {
	if raw := strings.TrimSpace(os.Getenv(env)); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil {
			return value
		}
	}
	return fallback
}

func resolveBool(env string, fallback bool) bool {
	if raw := strings.TrimSpace(os.Getenv(env)); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			return value
		}
	}
	return fallback
}

func resolveDuration(env string, fallback time.Duration) time.Duration {
	if raw := strings.TrimSpace(os.Getenv(env)); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil {
			return value
		}
	}
	return fallback
}
