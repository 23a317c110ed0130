package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/tenet/internal/api"
	"github.com/Harshitk-cp/tenet/internal/buildconfig"
	"github.com/Harshitk-cp/tenet/internal/config"
	"github.com/Harshitk-cp/tenet/internal/store"
	"github.com/Harshitk-cp/tenet/internal/store/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if level, err := zapcore.ParseLevel(config.LogLevel()); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(level)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func main() {
	// Config must load first: it decides the log level.
	configErr := config.Load()
	logger := newLogger()
	defer func() { _ = logger.Sync() }()
	if configErr != nil {
		logger.Fatal("failed to load config", zap.Error(configErr))
	}
	logger.Info("starting tenet", zap.String("version", buildconfig.Version()), zap.String("commit", buildconfig.Commit()))

	policy, err := config.LoadPolicy(config.PolicyFile())
	if err != nil {
		logger.Fatal("failed to load engine policy", zap.Error(err))
	}

	ctx := context.Background()

	var stores api.Stores
	switch backend := config.StoreBackend(); backend {
	case config.BackendPostgres:
		dbURL := config.DatabaseURL()
		if dbURL == "" {
			logger.Fatal("DATABASE_URL is required for the postgres backend")
		}
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}
		if err := store.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		logger.Info("connected to database")

		stores = api.Stores{
			Tenants: store.NewTenantStore(pool),
			Beliefs: store.NewBeliefStore(pool),
			Facts:   store.NewFactStore(pool),
			Records: store.NewMemoryRecordStore(pool),
			Ping:    pool.Ping,
		}
	default:
		logger.Warn("using the in-memory store, state is lost on restart", zap.String("backend", backend))
		stores = api.MemoryStores()
	}

	app, err := api.NewApp(stores, policy, logger)
	if err != nil {
		logger.Fatal("failed to build engine", zap.Error(err))
	}
	app.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// In-flight requests are done; apply whatever belief updates remain.
	app.Stop()
	logger.Info("server stopped")
}
