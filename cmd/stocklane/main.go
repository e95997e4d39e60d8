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
	"github.com/joho/godotenv"

	"github.com/stocklane/stocklane/internal/app"
	"github.com/stocklane/stocklane/internal/auth"
	"github.com/stocklane/stocklane/internal/franchises"
	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/observability"
	"github.com/stocklane/stocklane/internal/orders"
	"github.com/stocklane/stocklane/internal/platform/cache"
	"github.com/stocklane/stocklane/internal/platform/db"
	"github.com/stocklane/stocklane/internal/products"
	"github.com/stocklane/stocklane/internal/reports"
	"github.com/stocklane/stocklane/internal/sales"
	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/transfers"
	"github.com/stocklane/stocklane/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	coord := db.NewCoordinator(pool)
	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

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

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, redisClient, cfg.TokenTTL)
	authHandler := auth.NewHandler(logger, authService)

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportsService := reports.NewService(pool, reportCache, logger)
	reportsHandler := reports.NewHandler(logger, reportsService)

	ledgerService := ledger.NewService(logger).WithObserver(metrics)

	productsRepo := products.NewRepository(pool, coord)
	productsService := products.NewService(productsRepo, ledgerService, auditLogger, reportCache, logger)
	productsHandler := products.NewHandler(logger, productsService)

	franchisesRepo := franchises.NewRepository(pool)
	franchisesService := franchises.NewService(franchisesRepo, logger)
	franchisesHandler := franchises.NewHandler(logger, franchisesService)

	ordersRepo := orders.NewRepository(pool, coord)
	ordersService := orders.NewService(ordersRepo, ledgerService, auditLogger, reportCache, jobClient, logger)
	ordersHandler := orders.NewHandler(logger, ordersService)

	transfersRepo := transfers.NewRepository(pool, coord)
	transfersService := transfers.NewService(transfersRepo, ledgerService, auditLogger, reportCache, logger)
	transfersHandler := transfers.NewHandler(logger, transfersService)

	salesRepo := sales.NewRepository(pool, coord)
	salesService := sales.NewService(salesRepo, ledgerService, auditLogger, reportCache, jobClient, logger)
	salesHandler := sales.NewHandler(logger, salesService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AuthService:       authService,
		AuthHandler:       authHandler,
		ProductsHandler:   productsHandler,
		FranchisesHandler: franchisesHandler,
		OrdersHandler:     ordersHandler,
		TransfersHandler:  transfersHandler,
		SalesHandler:      salesHandler,
		ReportsHandler:    reportsHandler,
		JobsHandler:       jobsHandler,
		Metrics:           metrics,
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
