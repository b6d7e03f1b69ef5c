package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldops/funnel/internal/api"
	"github.com/fieldops/funnel/internal/assignment"
	"github.com/fieldops/funnel/internal/catalog"
	"github.com/fieldops/funnel/internal/config"
	"github.com/fieldops/funnel/internal/events"
	"github.com/fieldops/funnel/internal/funnel"
	"github.com/fieldops/funnel/internal/geo"
	"github.com/fieldops/funnel/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database; an in-memory store keeps local development simple.
	var db store.Store
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		db = pg
		logger.Info("connected to database")
	} else {
		db = store.NewMemoryStore()
		logger.Warn("no database configured, assignments are not persisted")
	}
	defer db.Close()

	// Events (optional)
	var eventsClient events.Client
	if cfg.Events.URL != "" {
		ec, err := events.NewNATSClient(ctx, cfg.Events.URL, logger)
		if err != nil {
			logger.Warn("failed to connect to nats, running without events", "error", err)
		} else {
			eventsClient = ec
			defer ec.Close()
			logger.Info("connected to nats")
		}
	}

	// Catalog
	catalogClient := catalog.NewHTTPClient(cfg.Catalog.URL, cfg.Catalog.Token)

	// Distance resolution
	var matrix geo.MatrixClient
	if cfg.Distance.APIKey != "" {
		matrix = geo.NewHTTPMatrixClient(cfg.Distance.BaseURL, cfg.Distance.APIKey)
	}
	resolver := geo.NewResolver(matrix, cfg.DistanceTimeout(), logger)

	pipeline := funnel.NewPipeline(catalogClient, resolver, funnel.Config{
		Weights:             cfg.Funnel.Weights,
		Bands:               cfg.Funnel.Bands,
		RiskPenaltyPerLevel: cfg.Funnel.RiskPenaltyPerLevel,
		DistanceMethod:      cfg.Distance.Method,
		DistanceTimeout:     cfg.DistanceTimeout(),
		DistanceConcurrency: cfg.Funnel.DistanceConcurrency,
	}, logger)

	svc := assignment.New(db, catalogClient, pipeline, eventsClient, assignment.Config{
		BroadcastTopN: cfg.Assignment.BroadcastTopN,
		OfferTTL:      cfg.OfferTTL(),
		ExpiryTick:    cfg.ExpiryTick(),
	}, logger)
	svc.Start(ctx)
	defer svc.Stop()
	logger.Info("assignment service started", "offer_ttl", cfg.OfferTTL())

	// API server
	router := api.NewRouter(db, svc, cfg.Server.AdminToken, logger)
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Metrics server
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: api.NewMetricsRouter(),
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
		}
	}()

	go func() {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
