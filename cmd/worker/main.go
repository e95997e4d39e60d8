package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/stocklane/stocklane/internal/app"
	jobmetrics "github.com/stocklane/stocklane/internal/jobs"
	"github.com/stocklane/stocklane/internal/platform/cache"
	"github.com/stocklane/stocklane/internal/platform/db"
	"github.com/stocklane/stocklane/internal/reports"
	"github.com/stocklane/stocklane/jobs"
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

	metrics := jobmetrics.NewMetrics(nil)

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportsService := reports.NewService(pool, reportCache, logger)

	notifyJob := jobs.NewSaleNotificationJob(pool, logger, metrics)
	lowStockJob := jobs.NewLowStockScanJob(pool, logger, metrics)
	warmupJob := jobs.NewReportWarmupJob(reportsService, pool, logger, metrics)

	lowStockTask, err := jobs.NewLowStockScanTask(5)
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewReportWarmupTask(time.Now().UTC())
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSaleNotification, Handler: notifyJob.Handle},
			{Type: jobs.TaskLowStockScan, Handler: lowStockJob.Handle},
			{Type: jobs.TaskReportWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 * * * *", Task: lowStockTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 1 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
