// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueueJobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_enqueued_total",
			Help: "Total number of jobs added to the queue",
		},
		[]string{"operation"},
	)

	QueueJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_completed_total",
			Help: "Total number of jobs completed by the worker",
		},
		[]string{"operation"},
	)

	QueueJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_failed_total",
			Help: "Total number of job attempts that failed",
		},
		[]string{"operation", "error_code"},
	)

	QueueJobsDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_dead_lettered_total",
			Help: "Total number of jobs moved to the dead-letter set",
		},
		[]string{"operation"},
	)

	QueueJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "queue_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"operation"},
	)

	QueueJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_jobs_active",
			Help: "Number of jobs currently being processed",
		},
	)

	CRMLeadsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_leads_duplicate_total",
			Help: "Leads the CRM reported as fingerprint duplicates",
		},
	)
)
