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

	"github.com/DruboPaul/web-surveyscriber/internal/common"
	"github.com/DruboPaul/web-surveyscriber/internal/core"
	"github.com/DruboPaul/web-surveyscriber/internal/core/async"
	"github.com/DruboPaul/web-surveyscriber/internal/export"
	"github.com/DruboPaul/web-surveyscriber/internal/metrics"
	"github.com/DruboPaul/web-surveyscriber/internal/pipeline"
	"github.com/DruboPaul/web-surveyscriber/internal/progress"
	"github.com/DruboPaul/web-surveyscriber/internal/repository"
	"github.com/DruboPaul/web-surveyscriber/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		batchRepo repository.BatchRepository
		usageRepo repository.UsageRepository
	)
	if cfg.Settings.EnableHistory {
		db, err := repository.Open(ctx, repository.Config{
			DSN:             cfg.Database.DSN,
			SQLitePath:      cfg.Database.SQLitePath,
			MaxConns:        cfg.Database.MaxConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			DialTimeout:     cfg.Database.DialTimeout,
		}, logger)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close(logger)
		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		batchRepo = repository.NewBatchRepository(db, logger)
		usageRepo = repository.NewUsageRepository(db, logger)
	} else {
		logger.Info("history persistence disabled")
	}

	collector := metrics.NewCollector(nil)
	tracker := progress.NewMemoryStore(time.Hour)
	exporter := export.NewService(cfg.Paths.OutputDir, logger)
	step := pipeline.NewStep(cfg.Queue.CallTimeout, logger)
	settings := common.NewSettingsStore(os.Getenv("SETTINGS_FILE"), cfg.Settings)

	processor := core.NewProcessor(logger, settings, cfg.Paths.UploadDir,
		step, tracker, exporter, batchRepo, usageRepo, collector, cfg.Queue.MaxWorkers)

	queue := async.NewBatchQueue(processor, logger,
		async.WithWorkers(cfg.Queue.BatchWorkers),
		async.WithQueueSize(cfg.Queue.QueueSize),
	)

	srv := server.New(processor, queue, tracker, usageRepo, settings, cfg.Paths.UploadDir, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("surveyscriberd listening", "addr", cfg.Server.Addr)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
}
