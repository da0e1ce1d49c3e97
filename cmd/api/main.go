// cmd/api/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lead-pipeline/internal/api"
	"lead-pipeline/internal/common/config"
	"lead-pipeline/internal/common/database"
	"lead-pipeline/internal/common/logger"
	"lead-pipeline/internal/common/observability"
	"lead-pipeline/internal/crm"
	"lead-pipeline/internal/orchestrator"
	"lead-pipeline/internal/queue"
	"lead-pipeline/internal/store"
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
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting API server...")

	obs := observability.New("api")
	defer obs.Shutdown()

	ctx := context.Background()

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
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- CRM provider ---
	provider, err := crm.NewProvider(&cfg.CRM, log)
	if err != nil {
		zapLog.Fatal("CRM provider init failed", zap.Error(err))
	}
	if result := provider.TestConnection(ctx); !result.Success {
		// Connectivity problems are tolerated at startup; the queue absorbs
		// them at runtime.
		zapLog.Warn("CRM connection probe failed", zap.String("error", result.Error))
	}

	// --- Queue + orchestrator + router ---
	q := queue.New(rdb.GetClient(), queue.Options{
		Prefix:         cfg.Queue.Prefix,
		Attempts:       cfg.Queue.DefaultAttempts,
		BackoffBase:    config.GetDuration(cfg.Queue.BackoffBase),
		StalledTimeout: config.GetDuration(cfg.Queue.StalledTimeout),
		CompletedTTL:   time.Duration(cfg.Queue.CompletedTTL) * time.Hour,
		FailedTTL:      time.Duration(cfg.Queue.FailedTTL) * time.Hour,
	}, log)

	submissions := store.NewPostgresSubmissions(pg.GetDB(), log)
	orch := orchestrator.New(submissions, provider, q, &cfg.Telegram, log)
	router := api.NewRouter(orch, q, log)

	// --- Metrics server ---
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Metrics server listening", zap.String("addr", cfg.HTTP.MetricsListenAddr))
		if err := http.ListenAndServe(cfg.HTTP.MetricsListenAddr, mux); err != nil {
			zapLog.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// --- HTTP server with graceful shutdown ---
	srv := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLog.Info("API listening", zap.String("addr", cfg.HTTP.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining connections...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP shutdown failed", zap.Error(err))
	}

	zapLog.Info("API server stopped gracefully")
}
