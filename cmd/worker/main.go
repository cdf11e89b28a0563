package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/morava-erp/morava-erp/internal/app"
	"github.com/morava-erp/morava-erp/internal/ledger"
	"github.com/morava-erp/morava-erp/internal/platform/cache"
	"github.com/morava-erp/morava-erp/internal/platform/db"
	"github.com/morava-erp/morava-erp/internal/vat/periods"
	"github.com/morava-erp/morava-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}
	_ = godotenv.Load()

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

	periodRepo := periods.NewPgRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	snapshotCache := periods.NewSnapshotCache(redisClient, cfg.SnapshotCacheTTL)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{
				Type: jobs.TaskVATStaleScan,
				Handler: jobs.NewStaleScanHandler(jobs.StaleScanDeps{
					Periods: periodRepo,
					Ledger:  ledgerRepo,
					Logger:  logger,
				}),
			},
			{
				Type: jobs.TaskSnapshotWarmup,
				Handler: jobs.NewSnapshotWarmupHandler(jobs.SnapshotWarmupDeps{
					Periods: periodRepo,
					Cache:   snapshotCache,
					Logger:  logger,
				}),
			},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.StaleScanCron, Task: jobs.NewStaleScanTask()},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("build job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	listener := jobs.NewEventListener(redisClient, jobClient, logger)
	go func() {
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event listener", slog.Any("error", err))
		}
	}()

	logger.Info("starting worker", slog.String("cron", cfg.StaleScanCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shut down")
}
