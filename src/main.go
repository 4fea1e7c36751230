package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fincil-server/src/api"
	"fincil-server/src/config"
	"fincil-server/src/db"
	pgsql "fincil-server/src/db/sql"
	"fincil-server/src/db/sqlstore"
	"fincil-server/src/handlers"
	"fincil-server/src/logger"
	"fincil-server/src/middleware"
	"fincil-server/src/telemetry"
	"fincil-server/src/workflow"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// appStore is what both the workflow and the HTTP handlers persist through.
type appStore interface {
	handlers.Store
	workflow.Store
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info")
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.New(cfg.LogLevel)
	ctx := context.Background()

	shutdownTracing := telemetry.InitTracing(log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("DB connection failed")
	}
	defer closeStore()

	opts := []workflow.Option{
		workflow.WithMetrics(metrics),
		workflow.WithLogger(log),
		workflow.WithRecentTransactionLimit(cfg.RecentTransactionLimit),
	}
	routerCfg := api.RouterConfig{
		Store:          store,
		Gatherer:       registry,
		Logger:         log,
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		DemoMode:       cfg.DemoMode,
	}

	if cfg.ProfileCache {
		cache, err := db.NewProfileCache()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create profile cache")
		}
		defer cache.Close()
		opts = append(opts, workflow.WithProfileCache(cache))
		routerCfg.Cache = cache
	}
	routerCfg.Council = workflow.NewService(store, opts...)

	idempotency, closeIdempotency := openIdempotencyStore(ctx, cfg, log)
	defer closeIdempotency()
	routerCfg.Idempotency = idempotency

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	defer rateLimiter.Stop()
	routerCfg.RateLimiter = rateLimiter

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("driver", cfg.StoreDriver).Bool("demo", cfg.DemoMode).Msg("API server running")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("Server failed")
	case <-quit:
		log.Info().Msg("Shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Tracer shutdown failed")
	}
}

func openStore(ctx context.Context, cfg config.Config) (appStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.DriverMySQL:
		s, err := sqlstore.OpenMySQL(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pgsql.NewPostgresStore(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// openIdempotencyStore uses Redis when REDIS_ADDR is set and reachable, and
// an in-process store otherwise.
func openIdempotencyStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (middleware.IdempotencyStore, func()) {
	if cfg.RedisAddr != "" {
		r := db.NewRedisIdempotencyStore(cfg.RedisAddr)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		err := r.Ping(pingCtx)
		if err == nil {
			log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis for idempotency keys")
			return r, func() { _ = r.Close() }
		}
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unreachable, keeping idempotency keys in memory")
		_ = r.Close()
	}
	m := db.NewMemoryIdempotencyStore()
	return m, m.Stop
}
