// internal/queue/job.go
package queue

import (
	"encoding/json"
	"time"
)

// Operations the queue knows how to route.
const (
	OpCreateLead       = "createLead"
	OpLogActivity      = "logActivity"
	OpSendNotification = "sendNotification"
)

// Default retry policy: 3 attempts, exponential backoff starting at 1s. A
// borrowed job still unacknowledged after a minute is presumed orphaned by a
// dead worker and goes back through retry bookkeeping.
const (
	DefaultAttempts       = 3
	DefaultBackoffBase    = time.Second
	DefaultStalledTimeout = time.Minute
)

// Job is one queue entry. The queue owns it; a worker borrows it for the
// duration of a single processing attempt and hands it back via ack, retry or
// dead-letter.
type Job struct {
	ID           string          `json:"id"`
	Operation    string          `json:"operation"`
	Provider     string          `json:"provider,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	AttemptsMade int             `json:"attemptsMade"`
	Attempts     int             `json:"attempts"`
	BackoffBase  int64           `json:"backoffBase"` // milliseconds
	LastError    string          `json:"lastError,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	FailedAt     *time.Time      `json:"failedAt,omitempty"`
}

// NextBackoff returns the delay before the next attempt, doubling per attempt
// already made.
func (j *Job) NextBackoff() time.Duration {
	base := time.Duration(j.BackoffBase) * time.Millisecond
	if base <= 0 {
		base = DefaultBackoffBase
	}

	delay := base
	for i := 1; i < j.AttemptsMade; i++ {
		delay *= 2
	}
	return delay
}

// Exhausted reports whether the retry budget is spent.
func (j *Job) Exhausted() bool {
	return j.AttemptsMade >= j.Attempts
}

// DecodePayload unmarshals the job payload into out.
func (j *Job) DecodePayload(out interface{}) error {
	return json.Unmarshal(j.Payload, out)
}

// FailureRecord is a dead-letter summary surfaced on the health endpoint.
type FailureRecord struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}
