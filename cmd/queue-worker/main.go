// cmd/queue-worker/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lead-pipeline/internal/common/config"
	"lead-pipeline/internal/common/database"
	"lead-pipeline/internal/common/logger"
	"lead-pipeline/internal/common/observability"
	"lead-pipeline/internal/crm"
	"lead-pipeline/internal/notify"
	"lead-pipeline/internal/queue"

	cs "lead-pipeline/internal/workers/lead/crm-sync"
	la "lead-pipeline/internal/workers/lead/log-activity"
	sn "lead-pipeline/internal/workers/notification/send-notification"
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

	zapLog.Info("Starting queue worker...")

	obs := observability.New("queue-worker")
	defer obs.Shutdown()

	ctx := context.Background()

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

	// --- Dispatchers ---
	telegram := notify.NewTelegramDispatcher(notify.TelegramOptions{
		BotToken: cfg.Telegram.BotToken,
		Timeout:  config.GetDuration(cfg.Telegram.Timeout),
	}, log)

	mirror, err := notify.NewEmailMirror(ctx, &cfg.Notifications, log)
	if err != nil {
		zapLog.Fatal("email mirror init failed", zap.Error(err))
	}

	// --- Queue + handlers ---
	q := queue.New(rdb.GetClient(), queue.Options{
		Prefix:         cfg.Queue.Prefix,
		Attempts:       cfg.Queue.DefaultAttempts,
		BackoffBase:    config.GetDuration(cfg.Queue.BackoffBase),
		StalledTimeout: config.GetDuration(cfg.Queue.StalledTimeout),
		CompletedTTL:   time.Duration(cfg.Queue.CompletedTTL) * time.Hour,
		FailedTTL:      time.Duration(cfg.Queue.FailedTTL) * time.Hour,
	}, log)

	w := queue.NewWorker(q, queue.WorkerOptions{
		Concurrency:   cfg.Queue.Concurrency,
		RatePerSecond: cfg.Queue.RatePerSecond,
		PollInterval:  config.GetDuration(cfg.Queue.PollInterval),
	}, log)

	registered := 0

	// CRM lead sync
	if name := "crm-sync"; cfg.Workers[name].Enabled {
		hcfg := cs.DefaultConfig()
		if t := config.GetDuration(cfg.Workers[name].Timeout); t > 0 {
			hcfg.Timeout = t
		}
		if err := hcfg.Validate(); err != nil {
			zapLog.Fatal("invalid crm-sync config", zap.Error(err))
		}
		w.Register(cs.Operation, cs.NewHandler(hcfg, provider, log))
		registered++
	}

	// CRM activity logging
	if name := "log-activity"; cfg.Workers[name].Enabled {
		hcfg := la.DefaultConfig()
		if t := config.GetDuration(cfg.Workers[name].Timeout); t > 0 {
			hcfg.Timeout = t
		}
		if err := hcfg.Validate(); err != nil {
			zapLog.Fatal("invalid log-activity config", zap.Error(err))
		}
		w.Register(la.Operation, la.NewHandler(hcfg, provider, log))
		registered++
	}

	// Telegram notifications (+ optional email mirror)
	if name := "send-notification"; cfg.Workers[name].Enabled {
		hcfg := sn.DefaultConfig()
		if t := config.GetDuration(cfg.Workers[name].Timeout); t > 0 {
			hcfg.Timeout = t
		}
		if err := hcfg.Validate(); err != nil {
			zapLog.Fatal("invalid send-notification config", zap.Error(err))
		}
		w.Register(sn.Operation, sn.NewHandler(hcfg, telegram, mirror, log))
		registered++
	}

	if err := w.Start(); err != nil {
		zapLog.Fatal("worker start failed", zap.Error(err))
	}
	zapLog.Info("All enabled queue handlers registered",
		zap.Int("handlers", registered),
		zap.Int("concurrency", cfg.Queue.Concurrency),
		zap.Int("ratePerSecond", cfg.Queue.RatePerSecond),
	)

	// --- Health & Metrics Server ---
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			health := q.CheckHealth(r.Context())
			w.Header().Set("Content-Type", "application/json")
			if health.Status == queue.StatusError {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			json.NewEncoder(w).Encode(health)
		})
		mux.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("addr", cfg.HTTP.MetricsListenAddr))
		if err := http.ListenAndServe(cfg.HTTP.MetricsListenAddr, mux); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining in-flight jobs...")
	w.Close()

	zapLog.Info("Queue worker stopped gracefully")
}
