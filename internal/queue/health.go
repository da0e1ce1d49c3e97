// internal/queue/health.go
package queue

import "context"

// Health thresholds: the queue is considered unhealthy when the backlog, the
// dead-letter set, or the stuck-processing count crosses these lines.
const (
	HealthMaxWaiting = 100
	HealthMaxFailed  = 10
	HealthMaxActive  = 20
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// Health is the monitoring snapshot served by the health endpoint.
type Health struct {
	Healthy        bool            `json:"healthy"`
	Status         string          `json:"status"`
	Counts         *Counts         `json:"counts"`
	RecentFailures []FailureRecord `json:"recentFailures"`
}

// CheckHealth inspects the queue and applies the thresholds. A queue that
// cannot be reached reports status "error".
func (q *Queue) CheckHealth(ctx context.Context) *Health {
	counts, err := q.GetCounts(ctx)
	if err != nil {
		return &Health{
			Healthy: false,
			Status:  StatusError,
			Counts:  &Counts{},
		}
	}

	failures, err := q.RecentFailures(ctx, 10)
	if err != nil {
		failures = nil
	}
	if failures == nil {
		failures = []FailureRecord{}
	}

	healthy := counts.Waiting < HealthMaxWaiting &&
		counts.Failed < HealthMaxFailed &&
		counts.Active < HealthMaxActive

	status := StatusOK
	if !healthy {
		status = StatusDegraded
	}

	return &Health{
		Healthy:        healthy,
		Status:         status,
		Counts:         counts,
		RecentFailures: failures,
	}
}
