// internal/models/submission.go
package models

import "time"

// Submission statuses. Persistence is fire-and-forget-success: a record is
// written once and never updated by the pipeline.
const (
	SubmissionStatusSubmitted  = "submitted"
	SubmissionStatusProcessing = "processing"
)

// SubmissionRecord is the persisted application/lead, the record of truth for
// a form submission. Immutable once created.
type SubmissionRecord struct {
	ID                string                 `json:"id"`
	TrackingCode      string                 `json:"trackingCode"`
	Name              string                 `json:"name"`
	Phone             string                 `json:"phone"`
	Email             string                 `json:"email,omitempty"`
	Preferences       map[string]interface{} `json:"preferences,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	Source            string                 `json:"source,omitempty"`
	SourceDescription string                 `json:"sourceDescription,omitempty"`
	ReferralCode      string                 `json:"referralCode,omitempty"`
	Status            string                 `json:"status"`
	CreatedAt         time.Time              `json:"createdAt"`
}
