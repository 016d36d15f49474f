package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/ticket-inventory/internal/allocation"
	"github.com/iliyamo/ticket-inventory/internal/config"
	"github.com/iliyamo/ticket-inventory/internal/database"
	"github.com/iliyamo/ticket-inventory/internal/handler"
	"github.com/iliyamo/ticket-inventory/internal/history"
	"github.com/iliyamo/ticket-inventory/internal/inventory"
	"github.com/iliyamo/ticket-inventory/internal/middleware"
	"github.com/iliyamo/ticket-inventory/internal/queue"
	"github.com/iliyamo/ticket-inventory/internal/repository"
	"github.com/iliyamo/ticket-inventory/internal/router"
	"github.com/iliyamo/ticket-inventory/internal/sales"
	"github.com/iliyamo/ticket-inventory/internal/service"
	"github.com/iliyamo/ticket-inventory/internal/transfer"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("service", "ticket-inventory"))
	slog.SetDefault(logger)

	cfg := config.Load() // Load environment config
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// History goes to MySQL when configured, otherwise it lives in memory.
	var store history.Store = history.NewMemoryStore()
	if cfg.UseDatabase() {
		db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			logger.Error("database unavailable", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()
		if err := repository.Migrate(ctx, db); err != nil {
			logger.Error("schema migration failed", slog.Any("error", err))
			os.Exit(1)
		}
		store = repository.NewHistoryRepo(db)
		logger.Info("history persisted in mysql", slog.String("host", cfg.DBHost), slog.String("db", cfg.DBName))
	}

	var pub history.Publisher
	if cfg.AMQPURL != "" {
		pub = service.NewPublisher(cfg.AMQPURL, logger)
		if cfg.AuditConsumer {
			go func() {
				if err := queue.StartAuditConsumer(ctx, cfg.AMQPURL, cfg.AuditLogDir, logger); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("audit consumer stopped", slog.Any("error", err))
				}
			}()
		}
	}

	ledger := inventory.NewLedger()
	rec := history.NewRecorder(store, pub, logger)
	inv := handler.NewInventoryHandler(
		allocation.NewService(ledger, rec, logger),
		sales.NewService(ledger, rec, logger),
		transfer.NewService(ledger, rec, logger),
		store,
	)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	e.Use(middleware.Metrics())

	// A missing Redis disables rate limiting rather than the API.
	var limit echo.MiddlewareFunc
	if rdb := config.NewRedisClient(ctx); rdb != nil {
		defer rdb.Close()
		limit = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	} else {
		logger.Warn("redis unavailable; rate limiting disabled")
	}

	router.RegisterRoutes(e, handler.NewScheduleHandler(ledger), inv, router.Options{
		JWTSecret:      cfg.JWTSecret,
		RateLimit:      limit,
		MetricsEnabled: !cfg.MetricsDisabled,
	})

	addr := ":" + cfg.Port // Address string with port
	go func() {
		logger.Info("listening", slog.String("addr", addr), slog.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
