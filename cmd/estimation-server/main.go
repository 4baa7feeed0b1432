// cmd/estimation-server/main.go
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"carprice-estimator/internal/common/config"
	"carprice-estimator/internal/common/database"
	"carprice-estimator/internal/common/logger"
	"carprice-estimator/internal/common/observability"
	"carprice-estimator/internal/estimation"
	"carprice-estimator/internal/estimation/cache"
	"carprice-estimator/internal/estimation/marketplace"
	"carprice-estimator/internal/estimation/options"
	"carprice-estimator/internal/observation"
	"carprice-estimator/internal/server"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config load failed: %v", err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting estimation server...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New("estimation-server")
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rc *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rc, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rc.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rc.Close()
	zapLog.Info("Redis connected successfully")

	// --- Assemble the estimation pipeline ---
	cacheTTL := time.Duration(cfg.Estimation.CacheTTL) * time.Minute
	store := cache.New(rc.Client, cacheTTL, log)

	sweepInterval := time.Duration(cfg.Estimation.SweepInterval) * time.Minute
	go store.RunSweeper(ctx, sweepInterval)

	client := marketplace.NewClient(cfg.Marketplace, log)
	detector := options.NewDetector(cfg.Options, log)
	sink := observation.NewSink(pg.DB, log)

	engine := estimation.NewEngine(
		cfg.Estimation,
		store,
		client,
		detector,
		sink,
		obs,
		log,
	)

	srv := server.New(cfg.Server, engine, log)

	if err := srv.Run(ctx); err != nil {
		zapLog.Fatal("http server failed", zap.Error(err))
	}

	zapLog.Info("Shutdown complete")
}
