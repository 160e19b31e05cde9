package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/coopledger/coopledger/internal/app"
	"github.com/coopledger/coopledger/internal/funds"
	"github.com/coopledger/coopledger/internal/invoices"
	"github.com/coopledger/coopledger/internal/ledger"
	"github.com/coopledger/coopledger/internal/loans"
	"github.com/coopledger/coopledger/internal/members"
	"github.com/coopledger/coopledger/internal/reports"
	"github.com/coopledger/coopledger/internal/reports/export"
	"github.com/coopledger/coopledger/internal/shared"
	"github.com/coopledger/coopledger/jobs"
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

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, reportCache, idempotencyStore, logger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	fundsRepo := funds.NewRepository(pool)
	fundsService := funds.NewService(fundsRepo, ledgerService, auditLogger, logger)
	fundsHandler := funds.NewHandler(logger, fundsService)

	invoiceRepo := invoices.NewRepository(pool)
	invoiceService := invoices.NewService(invoiceRepo, ledgerService, auditLogger, logger)
	invoiceHandler := invoices.NewHandler(logger, invoiceService)

	loanRepo := loans.NewRepository(pool)
	loanService := loans.NewService(loanRepo, ledgerService, auditLogger, logger)
	loanHandler := loans.NewHandler(logger, loanService)

	memberRepo := members.NewRepository(pool)
	memberService := members.NewService(memberRepo, auditLogger, logger)
	memberHandler := members.NewHandler(logger, memberService)

	reportRepo := reports.NewRepository(pool)
	reportService := reports.NewService(reportRepo, reportCache, logger)
	reportHandler := reports.NewHandler(logger, reportService, func(w http.ResponseWriter, gl reports.GeneralLedger) error {
		return export.WriteGeneralLedgerCSV(w, gl)
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		LedgerHandler:   ledgerHandler,
		FundsHandler:    fundsHandler,
		InvoicesHandler: invoiceHandler,
		LoansHandler:    loanHandler,
		MembersHandler:  memberHandler,
		ReportsHandler:  reportHandler,
		JobHandler:      jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
