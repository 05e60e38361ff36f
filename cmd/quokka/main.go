package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quokka-track/quokka/internal/app"
	"github.com/quokka-track/quokka/internal/ledger"
	ledgerhttp "github.com/quokka-track/quokka/internal/ledger/http"
	"github.com/quokka-track/quokka/internal/platform/cache"
	"github.com/quokka-track/quokka/internal/platform/db"
	"github.com/quokka-track/quokka/internal/registry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	var (
		ledgerRepo   ledger.Repository
		registryRepo registry.Repository
	)
	switch cfg.DBDriver {
	case app.DriverPostgres:
		pool, err := db.NewPostgres(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()

		lr := ledger.NewPostgresRepository(pool)
		rr := registry.NewPostgresRepository(pool)
		if err := lr.EnsureSchema(ctx); err != nil {
			logger.Error("ensure ledger schema", slog.Any("error", err))
			os.Exit(1)
		}
		if err := rr.EnsureSchema(ctx); err != nil {
			logger.Error("ensure registry schema", slog.Any("error", err))
			os.Exit(1)
		}
		ledgerRepo, registryRepo = lr, rr
	case app.DriverSQLite:
		handle, err := db.NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Error("open sqlite", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := handle.Close(); err != nil {
				logger.Warn("sqlite close", slog.Any("error", err))
			}
		}()

		lr := ledger.NewSQLiteRepository(handle)
		rr := registry.NewSQLiteRepository(handle)
		if err := lr.EnsureSchema(ctx); err != nil {
			logger.Error("ensure ledger schema", slog.Any("error", err))
			os.Exit(1)
		}
		if err := rr.EnsureSchema(ctx); err != nil {
			logger.Error("ensure registry schema", slog.Any("error", err))
			os.Exit(1)
		}
		ledgerRepo, registryRepo = lr, rr
	}

	sharedFields, err := ledger.ParseSharedFields(cfg.SharedFields)
	if err != nil {
		logger.Error("parse shared fields", slog.Any("error", err))
		os.Exit(1)
	}

	var listCache *ledgerhttp.ListCache
	if cfg.RedisAddr != "" {
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, listing cache disabled", slog.Any("error", err))
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
			listCache = ledgerhttp.NewListCache(redisClient, cfg.CacheTTL)
		}
	}

	registryService := registry.NewService(registryRepo)
	// Registry changes alter the warnings and deep links embedded in cached
	// entry listings.
	registryHandler := registry.NewHandler(logger, registryService, listCache.Bump)

	ledgerService := ledger.New(ledger.Config{
		Repository:   ledgerRepo,
		Accounts:     registryService,
		Links:        registryService,
		SharedFields: sharedFields,
		HistoryLimit: cfg.HistoryLimit,
		Logger:       logger,
	})
	if err := ledgerService.Load(ctx); err != nil {
		logger.Error("load ledger", slog.Any("error", err))
		os.Exit(1)
	}

	ledgerHandler := ledgerhttp.NewHandler(logger, ledgerService, listCache)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		LedgerHandler:   ledgerHandler,
		RegistryHandler: registryHandler,
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
