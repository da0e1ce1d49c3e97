// internal/queue/worker.go
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	pipeerrors "lead-pipeline/internal/common/errors"
	"lead-pipeline/internal/common/logger"
	"lead-pipeline/internal/common/metrics"
)

// Handler processes one borrowed job. A returned error counts as a failed
// attempt; whether it is retried depends on the error's retryability.
type Handler interface {
	Process(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *Job) error

func (f HandlerFunc) Process(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// WorkerOptions control the consumer pool.
type WorkerOptions struct {
	Concurrency     int           // simultaneous handlers, default 5
	RatePerSecond   int           // max jobs started per second, default 10
	PollInterval    time.Duration // idle sleep, default 250ms
	PurgeInterval   time.Duration // retention sweep, default 10m
	StalledInterval time.Duration // stalled-job reclaim sweep, default 30s
}

func (o *WorkerOptions) withDefaults() WorkerOptions {
	out := *o
	if out.Concurrency == 0 {
		out.Concurrency = 5
	}
	if out.RatePerSecond == 0 {
		out.RatePerSecond = 10
	}
	if out.PollInterval == 0 {
		out.PollInterval = 250 * time.Millisecond
	}
	if out.PurgeInterval == 0 {
		out.PurgeInterval = 10 * time.Minute
	}
	if out.StalledInterval == 0 {
		out.StalledInterval = 30 * time.Second
	}
	return out
}

// Worker is the long-lived consumer: it pops jobs, dispatches them to the
// handler registered for the operation, and reports the outcome back to the
// queue for retry bookkeeping.
type Worker struct {
	queue    *Queue
	opts     WorkerOptions
	logger   logger.Logger
	handlers map[string]Handler

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight sync.WaitGroup
}

func NewWorker(q *Queue, opts WorkerOptions, log logger.Logger) *Worker {
	return &Worker{
		queue:    q,
		opts:     opts.withDefaults(),
		logger:   log.WithFields(map[string]interface{}{"component": "queue-worker"}),
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to an operation. Must be called before Start.
func (w *Worker) Register(operation string, handler Handler) {
	w.handlers[operation] = handler
}

// Start launches the polling loop. It returns immediately.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("worker already started")
	}
	if len(w.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.started = true

	go w.run(ctx)

	w.logger.Info("worker started", map[string]interface{}{
		"concurrency":   w.opts.Concurrency,
		"ratePerSecond": w.opts.RatePerSecond,
		"operations":    len(w.handlers),
	})
	return nil
}

// Close drains: stops polling for new jobs, waits for in-flight handlers to
// finish, then returns. Safe to call once.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	cancel()
	<-done
	w.inFlight.Wait()
	w.logger.Info("worker stopped", nil)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	// Token window rate limiter: at most RatePerSecond job starts per
	// rolling one-second window.
	windowStart := time.Now()
	startedInWindow := 0

	sem := make(chan struct{}, w.opts.Concurrency)
	lastPurge := time.Now()

	// Zero so the first loop iteration reclaims jobs a previous process
	// left in the active set when it died.
	var lastStalled time.Time

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if time.Since(lastPurge) > w.opts.PurgeInterval {
			if err := w.queue.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("retention purge failed", map[string]interface{}{"error": err.Error()})
			}
			lastPurge = time.Now()
		}

		if time.Since(lastStalled) > w.opts.StalledInterval {
			if n, err := w.queue.RequeueStalled(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("stalled sweep failed", map[string]interface{}{"error": err.Error()})
			} else if n > 0 {
				w.logger.Info("stalled jobs reclaimed", map[string]interface{}{"count": n})
			}
			lastStalled = time.Now()
		}

		if time.Since(windowStart) >= time.Second {
			windowStart = time.Now()
			startedInWindow = 0
		}
		if startedInWindow >= w.opts.RatePerSecond {
			w.sleep(ctx, time.Until(windowStart.Add(time.Second)))
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		job, err := w.queue.Pop(ctx)
		if err != nil {
			<-sem
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("pop failed", map[string]interface{}{"error": err.Error()})
			w.sleep(ctx, w.opts.PollInterval)
			continue
		}
		if job == nil {
			<-sem
			w.sleep(ctx, w.opts.PollInterval)
			continue
		}

		startedInWindow++
		w.inFlight.Add(1)
		go func(job *Job) {
			defer w.inFlight.Done()
			defer func() { <-sem }()
			w.process(job)
		}(job)
	}
}

// process runs one attempt. It deliberately uses a background context: a job
// runs to completion or failure even while the worker is draining.
func (w *Worker) process(job *Job) {
	ctx := context.Background()

	metrics.QueueJobsActive.Inc()
	defer metrics.QueueJobsActive.Dec()

	start := time.Now()
	handler, ok := w.handlers[job.Operation]
	if !ok {
		err := pipeerrors.NewUnknownOperationError(job.Operation)
		if rErr := w.queue.Retry(ctx, job, err, false); rErr != nil {
			w.logger.Error("retry bookkeeping failed", map[string]interface{}{
				"jobId": job.ID, "error": rErr.Error(),
			})
		}
		return
	}

	err := handler.Process(ctx, job)
	metrics.QueueJobDuration.WithLabelValues(job.Operation).Observe(time.Since(start).Seconds())

	if err != nil {
		if rErr := w.queue.Retry(ctx, job, err, pipeerrors.IsRetryable(err)); rErr != nil {
			w.logger.Error("retry bookkeeping failed", map[string]interface{}{
				"jobId": job.ID, "error": rErr.Error(),
			})
		}
		return
	}

	if aErr := w.queue.Ack(ctx, job); aErr != nil {
		w.logger.Error("ack failed", map[string]interface{}{
			"jobId": job.ID, "error": aErr.Error(),
		})
		return
	}

	w.logger.Info("job completed", map[string]interface{}{
		"jobId":     job.ID,
		"operation": job.Operation,
		"duration":  time.Since(start).String(),
	})
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
