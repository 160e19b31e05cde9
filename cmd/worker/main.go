package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/coopledger/coopledger/internal/app"
	"github.com/coopledger/coopledger/internal/reports"
	"github.com/coopledger/coopledger/internal/shared"
	"github.com/coopledger/coopledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportRepo := reports.NewRepository(pool)
	reportService := reports.NewService(reportRepo, reportCache, logger)

	scanner := jobs.NewIntegrityScanner(jobs.NewPGIntegrityReader(pool), auditLogger, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrity, Handler: scanner.HandlerFunc()},
			{Type: jobs.TaskReportWarmup, Handler: jobs.WarmupHandler(reportService, logger)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.CleanupHandler(idempotencyStore, cfg.IdempotencyRetention, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: jobs.NewLedgerIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 1 * * *", Task: jobs.NewReportWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * 0", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
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
