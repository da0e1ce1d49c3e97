// internal/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	pipeerrors "lead-pipeline/internal/common/errors"
	"lead-pipeline/internal/common/logger"
	"lead-pipeline/internal/common/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Key layout, all under a configurable prefix:
//
//	<prefix>:wait       list of job ids ready to run (LPUSH/RPOP)
//	<prefix>:delayed    zset of job ids scored by ready-at unix ms
//	<prefix>:active     zset of borrowed job ids scored by borrow unix ms
//	<prefix>:completed  zset of job ids scored by completion unix ms
//	<prefix>:failed     zset of dead-lettered job ids scored by failure unix ms
//	<prefix>:job:<id>   JSON-encoded Job
//
// The job JSON is the single source of truth; the sets/lists only hold ids.

// errStalled is recorded as the attempt error when a job is reclaimed from a
// borrower that never reported back.
var errStalled = errors.New("attempt abandoned: borrowing worker stalled")

// Options control per-queue policy.
type Options struct {
	Prefix         string
	Attempts       int
	BackoffBase    time.Duration
	StalledTimeout time.Duration
	CompletedTTL   time.Duration
	FailedTTL      time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Prefix == "" {
		out.Prefix = "leadpipe"
	}
	if out.Attempts == 0 {
		out.Attempts = DefaultAttempts
	}
	if out.BackoffBase == 0 {
		out.BackoffBase = DefaultBackoffBase
	}
	if out.StalledTimeout == 0 {
		out.StalledTimeout = DefaultStalledTimeout
	}
	if out.CompletedTTL == 0 {
		out.CompletedTTL = 24 * time.Hour
	}
	if out.FailedTTL == 0 {
		out.FailedTTL = 7 * 24 * time.Hour
	}
	return out
}

// Counts is a snapshot of the queue's per-state sizes.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// Queue is a durable, at-least-once job queue on a shared Redis client.
type Queue struct {
	rdb    *redis.Client
	opts   Options
	logger logger.Logger
}

func New(rdb *redis.Client, opts Options, log logger.Logger) *Queue {
	return &Queue{
		rdb:    rdb,
		opts:   opts.withDefaults(),
		logger: log.WithFields(map[string]interface{}{"component": "queue"}),
	}
}

func (q *Queue) key(parts ...string) string {
	k := q.opts.Prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (q *Queue) jobKey(id string) string {
	return q.key("job", id)
}

// Enqueue adds a job with the queue's default retry policy and returns it.
func (q *Queue) Enqueue(ctx context.Context, operation, provider string, payload interface{}) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	job := &Job{
		ID:          uuid.New().String(),
		Operation:   operation,
		Provider:    provider,
		Payload:     data,
		Attempts:    q.opts.Attempts,
		BackoffBase: q.opts.BackoffBase.Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}

	if err := q.saveJob(ctx, job); err != nil {
		return nil, err
	}
	if err := q.rdb.LPush(ctx, q.key("wait"), job.ID).Err(); err != nil {
		return nil, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}

	metrics.QueueJobsEnqueued.WithLabelValues(operation).Inc()
	q.logger.Info("job enqueued", map[string]interface{}{
		"jobId":     job.ID,
		"operation": operation,
		"provider":  provider,
	})
	return job, nil
}

func (q *Queue) saveJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.Set(ctx, q.jobKey(job.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (q *Queue) loadJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.rdb.Get(ctx, q.jobKey(id)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// promoteDelayed moves due delayed jobs back onto the wait list.
func (q *Queue) promoteDelayed(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.rdb.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min: "0",
		Max: now,
	}).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		removed, err := q.rdb.ZRem(ctx, q.key("delayed"), id).Result()
		if err != nil {
			return err
		}
		// Another worker may have promoted it first.
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, q.key("wait"), id).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Pop borrows the next ready job, or returns nil when the queue is idle.
func (q *Queue) Pop(ctx context.Context) (*Job, error) {
	if err := q.promoteDelayed(ctx); err != nil {
		return nil, fmt.Errorf("promote delayed: %w", err)
	}

	id, err := q.rdb.RPop(ctx, q.key("wait")).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop: %w", err)
	}

	borrowed := redis.Z{Score: float64(time.Now().UnixMilli()), Member: id}
	if err := q.rdb.ZAdd(ctx, q.key("active"), borrowed).Err(); err != nil {
		return nil, fmt.Errorf("mark active: %w", err)
	}

	job, err := q.loadJob(ctx, id)
	if err != nil {
		// Job body is gone; drop the orphaned id.
		q.rdb.ZRem(ctx, q.key("active"), id)
		return nil, err
	}
	return job, nil
}

// RequeueStalled reclaims jobs whose borrowing worker died mid-attempt: any
// id sitting in the active set past the stall timeout is treated as one more
// failed attempt and goes back through the normal retry bookkeeping. Returns
// how many jobs were reclaimed.
func (q *Queue) RequeueStalled(ctx context.Context) (int, error) {
	cutoff := strconv.FormatInt(time.Now().Add(-q.opts.StalledTimeout).UnixMilli(), 10)
	ids, err := q.rdb.ZRangeByScore(ctx, q.key("active"), &redis.ZRangeBy{
		Min: "0",
		Max: cutoff,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan stalled: %w", err)
	}

	reclaimed := 0
	for _, id := range ids {
		removed, err := q.rdb.ZRem(ctx, q.key("active"), id).Result()
		if err != nil {
			return reclaimed, err
		}
		// Another sweeper got it first, or the worker acked in time.
		if removed == 0 {
			continue
		}

		job, err := q.loadJob(ctx, id)
		if err != nil {
			// Body is gone; the id is already out of the active set.
			continue
		}
		if err := q.Retry(ctx, job, errStalled, true); err != nil {
			return reclaimed, err
		}
		reclaimed++
		q.logger.Warn("stalled job reclaimed", map[string]interface{}{
			"jobId":        job.ID,
			"operation":    job.Operation,
			"attemptsMade": job.AttemptsMade,
		})
	}
	return reclaimed, nil
}

// Ack marks a borrowed job as completed.
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	job.CompletedAt = &now
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.key("active"), job.ID)
	pipe.ZAdd(ctx, q.key("completed"), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack job %s: %w", job.ID, err)
	}

	metrics.QueueJobsCompleted.WithLabelValues(job.Operation).Inc()
	return nil
}

// Retry records a failed attempt. The job is re-enqueued with backoff unless
// the retry budget is spent or the failure is non-retryable, in which case it
// is dead-lettered.
func (q *Queue) Retry(ctx context.Context, job *Job, jobErr error, retryable bool) error {
	job.AttemptsMade++
	job.LastError = jobErr.Error()

	metrics.QueueJobsFailed.WithLabelValues(job.Operation, errorCode(jobErr)).Inc()

	if !retryable || job.Exhausted() {
		return q.deadLetter(ctx, job)
	}

	readyAt := time.Now().Add(job.NextBackoff())
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.key("active"), job.ID)
	pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(readyAt.UnixMilli()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeue job %s: %w", job.ID, err)
	}

	q.logger.Warn("job attempt failed, requeued", map[string]interface{}{
		"jobId":        job.ID,
		"operation":    job.Operation,
		"attemptsMade": job.AttemptsMade,
		"attempts":     job.Attempts,
		"nextRetryIn":  job.NextBackoff().String(),
		"error":        jobErr.Error(),
	})
	return nil
}

func (q *Queue) deadLetter(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	job.FailedAt = &now
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.key("active"), job.ID)
	pipe.ZAdd(ctx, q.key("failed"), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead-letter job %s: %w", job.ID, err)
	}

	metrics.QueueJobsDeadLettered.WithLabelValues(job.Operation).Inc()
	q.logger.Error("job dead-lettered", map[string]interface{}{
		"jobId":        job.ID,
		"operation":    job.Operation,
		"attemptsMade": job.AttemptsMade,
		"error":        job.LastError,
	})
	return nil
}

// Len returns waiting + delayed + active, the health-check queue depth.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	counts, err := q.GetCounts(ctx)
	if err != nil {
		return 0, err
	}
	return counts.Waiting + counts.Delayed + counts.Active, nil
}

// GetCounts returns the sizes of every job state.
func (q *Queue) GetCounts(ctx context.Context) (*Counts, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, q.key("wait"))
	active := pipe.ZCard(ctx, q.key("active"))
	completed := pipe.ZCard(ctx, q.key("completed"))
	failed := pipe.ZCard(ctx, q.key("failed"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue counts: %w", err)
	}

	return &Counts{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
	}, nil
}

// RecentFailures returns the newest dead-letter summaries, most recent first.
func (q *Queue) RecentFailures(ctx context.Context, limit int64) ([]FailureRecord, error) {
	ids, err := q.rdb.ZRevRange(ctx, q.key("failed"), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("recent failures: %w", err)
	}

	records := make([]FailureRecord, 0, len(ids))
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err != nil {
			continue
		}
		rec := FailureRecord{
			ID:        job.ID,
			Operation: job.Operation,
			Attempts:  job.AttemptsMade,
			Error:     job.LastError,
		}
		if job.FailedAt != nil {
			rec.Timestamp = *job.FailedAt
		}
		records = append(records, rec)
	}
	return records, nil
}

// PurgeExpired drops completed jobs older than 24h and dead-lettered jobs
// older than 7d, along with their job bodies.
func (q *Queue) PurgeExpired(ctx context.Context) error {
	if err := q.purgeSet(ctx, q.key("completed"), q.opts.CompletedTTL); err != nil {
		return err
	}
	return q.purgeSet(ctx, q.key("failed"), q.opts.FailedTTL)
}

func (q *Queue) purgeSet(ctx context.Context, key string, ttl time.Duration) error {
	cutoff := strconv.FormatInt(time.Now().Add(-ttl).UnixMilli(), 10)

	ids, err := q.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "0", Max: cutoff}).Result()
	if err != nil {
		return fmt.Errorf("purge scan %s: %w", key, err)
	}
	if len(ids) == 0 {
		return nil
	}

	jobKeys := make([]string, 0, len(ids))
	for _, id := range ids {
		jobKeys = append(jobKeys, q.jobKey(id))
	}

	pipe := q.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", cutoff)
	pipe.Del(ctx, jobKeys...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("purge %s: %w", key, err)
	}
	return nil
}

func errorCode(err error) string {
	if stdErr, ok := err.(*pipeerrors.StandardError); ok {
		return string(stdErr.Code)
	}
	return "UNKNOWN"
}
