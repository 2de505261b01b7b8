// Command server starts the AI career gateway HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/careerforge/ai-gateway/internal/adapter/ai/openrouter"
	"github.com/careerforge/ai-gateway/internal/adapter/ai/tokencount"
	"github.com/careerforge/ai-gateway/internal/adapter/cache/rediscache"
	"github.com/careerforge/ai-gateway/internal/adapter/events/redpanda"
	"github.com/careerforge/ai-gateway/internal/adapter/httpserver"
	"github.com/careerforge/ai-gateway/internal/adapter/repo/postgres"
	"github.com/careerforge/ai-gateway/internal/app"
	"github.com/careerforge/ai-gateway/internal/config"
	"github.com/careerforge/ai-gateway/internal/domain"
	"github.com/careerforge/ai-gateway/internal/observability"
	"github.com/careerforge/ai-gateway/internal/registry"
	"github.com/careerforge/ai-gateway/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := connectDB(ctx, cfg)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Repositories
	usageRepo := postgres.NewUsageRepo(pool)
	credRepo := postgres.NewCredentialRepo(pool)
	subsRepo := postgres.NewSubscriptionRepo(pool)

	// Response cache: Redis when configured, Postgres otherwise.
	var cache domain.CacheStore
	var cachePinger app.Pinger
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("bad redis url", slog.Any("error", err))
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		store := rediscache.New(rdb)
		cache = store
		cachePinger = store
		slog.Info("response cache on redis")
	} else {
		cache = postgres.NewCacheRepo(pool)
		slog.Info("response cache on postgres")
	}

	// Usage event stream is optional.
	var events domain.UsageEventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			slog.Error("redpanda producer connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer producer.Close()
		events = producer
	}

	// Operation registry with optional operator overrides.
	reg := registry.New()
	if cfg.RegistryOverrides != "" {
		if err := reg.ApplyOverridesFile(cfg.RegistryOverrides); err != nil {
			slog.Error("registry overrides failed", slog.String("path", cfg.RegistryOverrides), slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("registry overrides applied", slog.String("path", cfg.RegistryOverrides))
	}

	model := openrouter.New(cfg.ModelBaseURL, cfg.ModelTimeout)
	processor := usecase.NewProcessor(reg, model, credRepo, tokencount.NewEstimator(), cfg.CredentialSecret, cfg.PlatformAPIKey)
	gateway := usecase.NewGateway(processor, cache, usageRepo, subsRepo, events, cfg.SelfHosted())

	ready := app.BuildReadinessCheck(pool, cachePinger)
	srv := httpserver.NewServer(gateway, usageRepo, credRepo, reg, cfg.CredentialSecret, ready)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("mode", cfg.DeploymentMode))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

// connectDB waits for the database with exponential backoff. This is the
// only retry loop in the process; request paths never retry.
func connectDB(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.DBConnectMaxWait
	err := backoff.Retry(func() error {
		p, err := postgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("op=main.connect_db: %w", err)
	}
	return pool, nil
}
