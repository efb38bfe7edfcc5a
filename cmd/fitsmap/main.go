package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/fits-map-service/internal/adapter/fits"
	httpadapter "github.com/couchcryptid/fits-map-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/fits-map-service/internal/adapter/kafka"
	"github.com/couchcryptid/fits-map-service/internal/adapter/valkey"
	"github.com/couchcryptid/fits-map-service/internal/config"
	"github.com/couchcryptid/fits-map-service/internal/observability"
	"github.com/couchcryptid/fits-map-service/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	client := fits.NewClient(cfg.FITSBaseURL, cfg.FITSTimeout, metrics, logger)
	checks := httpadapter.Checks{client}

	// Shared response cache: Valkey when configured, otherwise in memory.
	var store fits.Store
	var valkeyStore *valkey.Store
	if cfg.ValkeyAddr != "" {
		valkeyStore, err = valkey.New(cfg.ValkeyAddr)
		if err != nil {
			logger.Error("failed to connect to valkey", "addr", cfg.ValkeyAddr, "error", err)
			os.Exit(1)
		}
		store = valkeyStore
		checks = append(checks, valkeyStore)
		logger.Info("valkey response cache enabled", "addr", cfg.ValkeyAddr, "ttl", cfg.ResponseCacheTTL)
	} else {
		store = fits.NewMemoryStore(cfg.ResponseCacheSize, clock)
		logger.Info("in-memory response cache enabled", "size", cfg.ResponseCacheSize, "ttl", cfg.ResponseCacheTTL)
	}
	cached := fits.NewCachedFetcher(client, store, cfg.ResponseCacheTTL, metrics, logger)
	source := fits.NewSource(cached)

	registry := session.NewRegistry(source, session.Options{
		CacheSize:   cfg.CacheSize,
		CacheTTL:    cfg.CacheTTL,
		IdleTimeout: cfg.SessionIdleTimeout,
		ChartWidth:  cfg.ChartWidth,
		ChartHeight: cfg.ChartHeight,
	}, clock, metrics, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, registry, checks, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go registry.Run(ctx)

	// Update notices (feature-flagged via KAFKA_ENABLED).
	var consumer *kafkaadapter.Consumer
	if cfg.KafkaEnabled {
		consumer = kafkaadapter.NewConsumer(cfg, metrics, logger, registry, cached)
		go consumer.Run(ctx)
		logger.Info("update notices enabled", "topic", cfg.KafkaTopic, "group_id", cfg.KafkaGroupID)
	} else {
		logger.Info("update notices disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if valkeyStore != nil {
		valkeyStore.Close()
	}

	logger.Info("shutdown complete")
}
