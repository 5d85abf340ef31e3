// Package main is the entry point for the librarybot catalog server.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"librarybot/internal/cache"
	"librarybot/internal/catalog"
	"librarybot/internal/config"
	"librarybot/internal/database"
	"librarybot/internal/handlers"
	"librarybot/internal/metrics"
	"librarybot/internal/middleware"
	"librarybot/internal/router"
	"librarybot/internal/session"
	"librarybot/internal/store"
	"librarybot/internal/telemetry"
	"librarybot/internal/upload"
)

// sessionBackend is an upload session store that can also report its size
// for the sessions_active gauge.
type sessionBackend interface {
	upload.SessionStore
	Count(ctx context.Context) (int, error)
}

func main() {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg))
	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"cache_backend", cfg.CacheBackend,
	)

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:  "librarybot",
		Environment:  cfg.Env,
		Endpoint:     cfg.OTelEndpoint,
		Insecure:     cfg.OTelInsecure,
		SamplingRate: cfg.OTelSamplingRate,
	})
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	// Connect to PostgreSQL.
	db, err := database.Connect(ctx, cfg.DSN(), database.PoolOptions{})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run pending migrations.
	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Sessions, remembered searches and the statistics memo live in Valkey
	// unless the memory backend is selected.
	var (
		sessions sessionBackend
		searches catalog.SearchCache
		memo     store.StatsCache
	)
	switch cfg.CacheBackend {
	case "memory":
		slog.Warn("using in-process caches, upload sessions will not survive a restart")
		sessions = session.NewMemoryStore(cfg.SessionTTL)
		searches = cache.NewMemorySearchCache(cfg.SearchCacheSize)
	default:
		valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword, cfg.ValkeyDB)
		if err != nil {
			slog.Error("failed to connect to valkey", "error", err)
			os.Exit(1)
		}
		defer valkeyClient.Close()

		sessions = session.NewValkeyStore(valkeyClient, cfg.SessionTTL)
		searches = cache.NewSearchCache(valkeyClient, cfg.SearchCacheSize, cfg.SearchCacheTTL)
		memo = cache.NewStatsMemo(valkeyClient, cfg.StatsCacheTTL)
	}

	prometheus.MustRegister(metrics.NewActiveSessions(sessions.Count))

	// Initialize data stores. Every catalog mutation drops the statistics memo.
	statsStore := store.NewStatsStore(db, memo)
	categoryStore := store.NewCategoryStore(db, store.WithInvalidation(statsStore.Invalidate))
	bookStore := store.NewBookStore(db, store.WithInvalidation(statsStore.Invalidate))

	manager := upload.NewManager(upload.NewMachine(categoryStore, bookStore), sessions)
	svc := catalog.NewService(categoryStore, bookStore, statsStore, searches, cfg.DefaultPageSize)

	var searchLimiter *middleware.RateLimiter
	if cfg.SearchRateLimit > 0 {
		searchLimiter = middleware.NewRateLimiter(cfg.SearchRateLimit, time.Minute)
		defer searchLimiter.Stop()
	}

	r := router.New(
		handlers.NewCatalog(svc),
		handlers.NewAdmin(categoryStore, bookStore, statsStore, cfg.PurgeAfter()),
		handlers.NewUploads(manager),
		searchLimiter,
	)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("tracer shutdown failed", "error", err)
	}

	slog.Info("server stopped gracefully")
}

// newLogger builds the structured logger: JSON outside development, text
// in development, at the configured level.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
