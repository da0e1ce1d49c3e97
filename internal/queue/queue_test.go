// internal/queue/queue_test.go
package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"lead-pipeline/internal/common/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func newTestQueue(t *testing.T) (*miniredis.Miniredis, *Queue) {
	mr, client := setupRedis(t)
	// Short backoff so retry tests don't wait out the production default.
	q := New(client, Options{Prefix: "test", BackoffBase: 20 * time.Millisecond}, logger.NewNoOpLogger())
	return mr, q
}

type leadPayload struct {
	FirstName string `json:"firstName"`
	Phone     string `json:"phone"`
}

// ==========================
// Enqueue / Counts
// ==========================

func TestQueue_Enqueue_AssignsIDAndDefaults(t *testing.T) {
	_, client := setupRedis(t)
	q := New(client, Options{Prefix: "test"}, logger.NewNoOpLogger())
	ctx := context.Background()

	job, err := q.Enqueue(ctx, OpCreateLead, "alfa", &leadPayload{FirstName: "Aida", Phone: "77071234567"})
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, OpCreateLead, job.Operation)
	assert.Equal(t, "alfa", job.Provider)
	assert.Equal(t, DefaultAttempts, job.Attempts)
	assert.Equal(t, int64(1000), job.BackoffBase)
	assert.Equal(t, 0, job.AttemptsMade)

	length, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}

func TestQueue_Len_CountsWaitingDelayedActive(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, OpSendNotification, "", &leadPayload{FirstName: "A", Phone: "1"})
		require.NoError(t, err)
	}

	length, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), length)

	// Borrow one: it moves from waiting to active, total stays 3.
	job, err := q.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	length, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), length)

	// Complete all three: queue drains to zero.
	require.NoError(t, q.Ack(ctx, job))
	for i := 0; i < 2; i++ {
		j, err := q.Pop(ctx)
		require.NoError(t, err)
		require.NotNil(t, j)
		require.NoError(t, q.Ack(ctx, j))
	}

	length, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)

	counts, err := q.GetCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Completed)
}

func TestQueue_Pop_EmptyReturnsNil(t *testing.T) {
	_, q := newTestQueue(t)

	job, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueue_Pop_DecodesPayload(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, OpCreateLead, "alfa", &leadPayload{FirstName: "Dana", Phone: "77001112233"})
	require.NoError(t, err)

	job, err := q.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	var payload leadPayload
	require.NoError(t, job.DecodePayload(&payload))
	assert.Equal(t, "Dana", payload.FirstName)
	assert.Equal(t, "77001112233", payload.Phone)
}

// ==========================
// Retry / Dead-letter
// ==========================

func TestQueue_Retry_IncrementsAttemptsByOne(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, OpCreateLead, "alfa", &leadPayload{})
	require.NoError(t, err)

	job, err := q.Pop(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Retry(ctx, job, errors.New("crm down"), true))
	assert.Equal(t, 1, job.AttemptsMade)
	assert.Equal(t, "crm down", job.LastError)

	counts, err := q.GetCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Delayed)
	assert.Equal(t, int64(0), counts.Active)
	assert.Equal(t, int64(0), counts.Failed)

	// Not due yet: backoff holds it in the delayed set.
	popped, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Nil(t, popped)

	// After the backoff elapses the job is promoted again.
	time.Sleep(50 * time.Millisecond)
	popped, err = q.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, job.ID, popped.ID)
	assert.Equal(t, 1, popped.AttemptsMade)
}

func TestQueue_Retry_DeadLettersWhenExhausted(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, OpCreateLead, "alfa", &leadPayload{})
	require.NoError(t, err)

	for attempt := 1; attempt <= DefaultAttempts; attempt++ {
		job, err := q.Pop(ctx)
		require.NoError(t, err)
		require.NotNil(t, job, "attempt %d should find the job", attempt)

		require.NoError(t, q.Retry(ctx, job, errors.New("still down"), true))
		assert.Equal(t, attempt, job.AttemptsMade)

		// Exponential backoff off a 20ms base stays well under this.
		time.Sleep(150 * time.Millisecond)
	}

	counts, err := q.GetCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Failed)
	assert.Equal(t, int64(0), counts.Delayed)

	// Dead-lettered jobs are never handed out again.
	job, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueue_Retry_NonRetryableDeadLettersImmediately(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, OpCreateLead, "alfa", &leadPayload{})
	require.NoError(t, err)

	job, err := q.Pop(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Retry(ctx, job, errors.New("invalid_email"), false))

	counts, err := q.GetCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Failed)
	assert.Equal(t, 1, job.AttemptsMade)
}

// ==========================
// Stalled-job reclaim
// ==========================

func TestQueue_RequeueStalled_ReclaimsOrphanedJob(t *testing.T) {
	_, client := setupRedis(t)
	q := New(client, Options{
		Prefix:         "test",
		BackoffBase:    20 * time.Millisecond,
		StalledTimeout: 30 * time.Millisecond,
	}, logger.NewNoOpLogger())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, OpCreateLead, "alfa", &leadPayload{FirstName: "Dana"})
	require.NoError(t, err)

	// Borrow and never report back, as a crashed worker would.
	job, err := q.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	// Still within the stall timeout: the borrow is honored.
	n, err := q.RequeueStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	time.Sleep(60 * time.Millisecond)

	n, err = q.RequeueStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counts, err := q.GetCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Active)
	assert.Equal(t, int64(1), counts.Delayed)

	// After the retry backoff the job is handed out again, with the lost
	// attempt on the books.
	time.Sleep(100 * time.Millisecond)
	popped, err := q.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, job.ID, popped.ID)
	assert.Equal(t, 1, popped.AttemptsMade)
	assert.Contains(t, popped.LastError, "stalled")
}

func TestQueue_RequeueStalled_DeadLettersWhenBudgetSpent(t *testing.T) {
	_, client := setupRedis(t)
	q := New(client, Options{
		Prefix:         "test",
		Attempts:       1,
		BackoffBase:    20 * time.Millisecond,
		StalledTimeout: 10 * time.Millisecond,
	}, logger.NewNoOpLogger())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, OpCreateLead, "alfa", &leadPayload{})
	require.NoError(t, err)

	_, err = q.Pop(ctx)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	n, err := q.RequeueStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counts, err := q.GetCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Active)
	assert.Equal(t, int64(1), counts.Failed)
}

func TestQueue_RecentFailures_ReportsDeadLetters(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, OpLogActivity, "alfa", &leadPayload{})
	require.NoError(t, err)

	job, err := q.Pop(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Retry(ctx, job, errors.New("boom"), false))

	failures, err := q.RecentFailures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, job.ID, failures[0].ID)
	assert.Equal(t, OpLogActivity, failures[0].Operation)
	assert.Equal(t, "boom", failures[0].Error)
	assert.Equal(t, 1, failures[0].Attempts)
	assert.False(t, failures[0].Timestamp.IsZero())
}

// ==========================
// Backoff
// ==========================

func TestJob_NextBackoff_DoublesPerAttempt(t *testing.T) {
	job := &Job{BackoffBase: 1000}

	job.AttemptsMade = 1
	assert.Equal(t, time.Second, job.NextBackoff())

	job.AttemptsMade = 2
	assert.Equal(t, 2*time.Second, job.NextBackoff())

	job.AttemptsMade = 3
	assert.Equal(t, 4*time.Second, job.NextBackoff())
}

// ==========================
// Retention
// ==========================

func TestQueue_PurgeExpired_DropsOldCompleted(t *testing.T) {
	_, client := setupRedis(t)
	q := New(client, Options{Prefix: "test", CompletedTTL: 50 * time.Millisecond}, logger.NewNoOpLogger())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, OpCreateLead, "alfa", &leadPayload{})
	require.NoError(t, err)

	job, err := q.Pop(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, job))

	// Within retention: survives the sweep.
	require.NoError(t, q.PurgeExpired(ctx))
	counts, err := q.GetCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Completed)

	time.Sleep(100 * time.Millisecond)

	require.NoError(t, q.PurgeExpired(ctx))
	counts, err = q.GetCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Completed)
}

// ==========================
// Health
// ==========================

func TestQueue_CheckHealth_OK(t *testing.T) {
	_, q := newTestQueue(t)

	health := q.CheckHealth(context.Background())
	assert.True(t, health.Healthy)
	assert.Equal(t, StatusOK, health.Status)
	assert.NotNil(t, health.RecentFailures)
}

func TestQueue_CheckHealth_DegradedOnBacklog(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 150; i++ {
		_, err := q.Enqueue(ctx, OpSendNotification, "", &leadPayload{})
		require.NoError(t, err)
	}

	health := q.CheckHealth(ctx)
	assert.False(t, health.Healthy)
	assert.Equal(t, StatusDegraded, health.Status)
	assert.Equal(t, int64(150), health.Counts.Waiting)
}

func TestQueue_CheckHealth_DegradedOnFailures(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := q.Enqueue(ctx, OpCreateLead, "alfa", &leadPayload{})
		require.NoError(t, err)
		job, err := q.Pop(ctx)
		require.NoError(t, err)
		require.NoError(t, q.Retry(ctx, job, errors.New("bad data"), false))
	}

	health := q.CheckHealth(ctx)
	assert.False(t, health.Healthy)
	assert.Equal(t, StatusDegraded, health.Status)
	assert.Len(t, health.RecentFailures, 10)
}

func TestQueue_CheckHealth_ErrorWhenUnreachable(t *testing.T) {
	mr, q := newTestQueue(t)
	mr.Close()

	health := q.CheckHealth(context.Background())
	assert.False(t, health.Healthy)
	assert.Equal(t, StatusError, health.Status)
}
