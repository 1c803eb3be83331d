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

	"github.com/hibiken/asynq"

	"github.com/invio-erp/invio/internal/alerts"
	"github.com/invio-erp/invio/internal/analytics"
	"github.com/invio-erp/invio/internal/app"
	"github.com/invio-erp/invio/internal/ingest"
	"github.com/invio-erp/invio/internal/observability"
	"github.com/invio-erp/invio/internal/platform/cache"
	"github.com/invio-erp/invio/internal/platform/db"
	"github.com/invio-erp/invio/internal/suppliers"
	"github.com/invio-erp/invio/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, cfg.IngestJobTimeout)
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	queueInspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := queueInspector.Close(); err != nil {
			logger.Warn("queue inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(queueInspector, logger)

	analyticsCache := analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL)
	analyticsService := analytics.NewService(analytics.NewRepository(pool), analyticsCache)
	analyticsHandler := analytics.NewHandler(logger, analyticsService)

	suppliersService := suppliers.NewService(pool, suppliers.NewRepository(pool), logger)
	suppliersHandler := suppliers.NewHandler(logger, suppliersService)

	alertsService := alerts.NewService(alerts.NewRepository(pool))
	alertsHandler := alerts.NewHandler(logger, alertsService)

	ingestService := ingest.NewService(
		ingest.NewStore(pool),
		ingest.NewJobStore(pool),
		logger,
		cfg.AlertThresholdPct,
		analyticsCache,
	)
	ingestHandler := ingest.NewHandler(logger, ingestService, queueClient, cfg.IngestSpoolDir)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          observability.NewMetrics(),
		IngestHandler:    ingestHandler,
		AnalyticsHandler: analyticsHandler,
		SuppliersHandler: suppliersHandler,
		AlertsHandler:    alertsHandler,
		JobsHandler:      jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
}
