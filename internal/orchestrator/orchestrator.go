// internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"strings"
	"time"

	"lead-pipeline/internal/common/config"
	pipeerrors "lead-pipeline/internal/common/errors"
	"lead-pipeline/internal/common/logger"
	"lead-pipeline/internal/crm"
	"lead-pipeline/internal/models"
	"lead-pipeline/internal/notify"
	"lead-pipeline/internal/queue"
	"lead-pipeline/internal/store"
)

// CRM sync outcomes of one submission. Persisted is the only durable state;
// the CRM outcome is advisory for the caller.
const (
	CRMStatusSynced   = "synced"
	CRMStatusQueued   = "queued"
	CRMStatusRejected = "rejected"
)

// SubmissionResult is what the HTTP layer reports back to the applicant.
type SubmissionResult struct {
	Submission       *models.SubmissionRecord `json:"submission"`
	CRMStatus        string                   `json:"crmStatus"`
	CRMID            string                   `json:"crmId,omitempty"`
	CRMDuplicate     bool                     `json:"crmDuplicate,omitempty"`
	CRMError         string                   `json:"crmError,omitempty"`
	ValidationErrors []string                 `json:"validationErrors,omitempty"`
	QueueError       string                   `json:"queueError,omitempty"`
}

// ActivityResult reports the outcome of a messenger-touch submission.
type ActivityResult struct {
	Queued     bool   `json:"queued"`
	QueueError string `json:"queueError,omitempty"`
}

// Orchestrator owns the request-path sequencing for a submission: persist,
// best-effort inline CRM sync, queue the rest.
type Orchestrator struct {
	submissions store.SubmissionRepository
	provider    crm.Provider
	queue       *queue.Queue
	telegram    *config.TelegramConfig
	logger      logger.Logger
}

func New(
	submissions store.SubmissionRepository,
	provider crm.Provider,
	q *queue.Queue,
	telegram *config.TelegramConfig,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		submissions: submissions,
		provider:    provider,
		queue:       q,
		telegram:    telegram,
		logger:      log,
	}
}

// SubmitApplication runs the submission state machine. The persist step is
// the only one allowed to fail the request; every later failure degrades
// into a queued retry or an advisory error in the result.
func (o *Orchestrator) SubmitApplication(ctx context.Context, record *models.SubmissionRecord) (*SubmissionResult, error) {
	if err := o.submissions.Create(ctx, record); err != nil {
		return nil, pipeerrors.NewDatabaseInsertFailedError(err)
	}

	lead := o.buildLead(record)
	result := &SubmissionResult{Submission: record}

	syncCtx, cancel := context.WithTimeout(ctx, SyncTimeout)
	defer cancel()
	crmResult := o.provider.CreateLead(syncCtx, lead)
	switch {
	case crmResult.Success:
		result.CRMStatus = CRMStatusSynced
		result.CRMID = crmResult.ID
		result.CRMDuplicate = crmResult.Duplicate

	case len(crmResult.ValidationErrors) > 0:
		// Data the CRM will reject forever; requeueing is pointless and the
		// caller has to fix the payload.
		result.CRMStatus = CRMStatusRejected
		result.CRMError = crmResult.Error
		result.ValidationErrors = crmResult.ValidationErrors

	default:
		result.CRMStatus = CRMStatusQueued
		result.CRMError = crmResult.Error
		if _, err := o.queue.Enqueue(ctx, queue.OpCreateLead, o.providerName(), lead); err != nil {
			// Redis down on top of a CRM failure. The submission is still
			// persisted, so the request succeeds; the gap is reported for
			// operators to replay.
			result.QueueError = err.Error()
			o.logger.Error("CRM sync lost: inline attempt failed and enqueue failed", map[string]interface{}{
				"submissionId": record.ID,
				"crmError":     crmResult.Error,
				"queueError":   err.Error(),
			})
		}
	}

	o.enqueueLeadNotification(ctx, lead, result)

	o.logger.Info("submission processed", map[string]interface{}{
		"submissionId": record.ID,
		"trackingCode": record.TrackingCode,
		"crmStatus":    result.CRMStatus,
	})
	return result, nil
}

// SubmitCallRequest handles the lighter "call me back" form: no persistence,
// just the Telegram notification through the queue.
func (o *Orchestrator) SubmitCallRequest(ctx context.Context, call *models.CallRequest) *ActivityResult {
	payload := &models.NotificationPayload{
		ChannelID: o.telegram.LeadChatID,
		Message:   notify.FormatCall(call),
		ParseMode: models.ParseModeHTML,
	}

	result := &ActivityResult{Queued: true}
	if _, err := o.queue.Enqueue(ctx, queue.OpSendNotification, "", payload); err != nil {
		result.Queued = false
		result.QueueError = err.Error()
		o.logger.Error("failed to enqueue call-request notification", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return result
}

// TrackActivity records a messenger touch: one logActivity job for the CRM
// and one notification for the ops channel. Nothing is persisted locally.
func (o *Orchestrator) TrackActivity(ctx context.Context, activity *models.ActivityData) *ActivityResult {
	if activity.ReferralCode == "" {
		activity.ReferralCode = models.DefaultReferralCode
	}

	result := &ActivityResult{Queued: true}
	if _, err := o.queue.Enqueue(ctx, queue.OpLogActivity, o.providerName(), activity); err != nil {
		result.Queued = false
		result.QueueError = err.Error()
		o.logger.Error("failed to enqueue activity", map[string]interface{}{
			"channel": activity.Channel,
			"error":   err.Error(),
		})
	}

	payload := &models.NotificationPayload{
		ChannelID:           o.telegram.ActivityChatID,
		Message:             notify.FormatActivity(activity),
		ParseMode:           models.ParseModeHTML,
		DisableNotification: true, // touches are low-urgency
	}
	if _, err := o.queue.Enqueue(ctx, queue.OpSendNotification, "", payload); err != nil {
		o.logger.Warn("failed to enqueue activity notification", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return result
}

// buildLead maps the persisted record into the provider shape, applying the
// referral fallback and the dedup fingerprint.
func (o *Orchestrator) buildLead(record *models.SubmissionRecord) *models.LeadData {
	firstName, lastName := splitName(record.Name)

	referral := record.ReferralCode
	if referral == "" {
		referral = models.DefaultReferralCode
	}

	lead := &models.LeadData{
		FirstName:         firstName,
		LastName:          lastName,
		Phone:             record.Phone,
		Email:             record.Email,
		ReferralCode:      referral,
		Source:            record.Source,
		SourceDescription: record.SourceDescription,
		FingerprintKey:    models.FingerprintKey(record.Email, record.Phone),
	}

	applyPreferences(lead, record.Preferences)
	return lead
}

func (o *Orchestrator) enqueueLeadNotification(ctx context.Context, lead *models.LeadData, result *SubmissionResult) {
	payload := &models.NotificationPayload{
		ChannelID:   o.telegram.LeadChatID,
		Message:     notify.FormatLead(lead),
		ParseMode:   models.ParseModeHTML,
		EmailMirror: true,
		Subject:     "New application: " + lead.FirstName,
	}

	if _, err := o.queue.Enqueue(ctx, queue.OpSendNotification, "", payload); err != nil {
		if result.QueueError == "" {
			result.QueueError = err.Error()
		}
		o.logger.Warn("failed to enqueue lead notification", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (o *Orchestrator) providerName() string {
	// The queue records which adapter should replay the job. With one
	// configured provider this is informational.
	type named interface{ Name() string }
	if n, ok := o.provider.(named); ok {
		return n.Name()
	}
	return ""
}

func splitName(full string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(full), " ", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

// applyPreferences copies the free-form preference map into the typed lead
// fields the CRM understands. Unknown keys are ignored.
func applyPreferences(lead *models.LeadData, prefs map[string]interface{}) {
	if len(prefs) == 0 {
		return
	}

	if v, ok := prefs["universities"]; ok {
		lead.Universities = toStringSlice(v)
	}
	if v, ok := prefs["programs"]; ok {
		lead.Programs = toStringSlice(v)
	}
	lead.UserType = stringValue(prefs, "userType", lead.UserType)
	lead.Language = stringValue(prefs, "language", lead.Language)
	lead.Scholarship = stringValue(prefs, "scholarship", lead.Scholarship)
	lead.UniversityChosen = stringValue(prefs, "universityChosen", lead.UniversityChosen)
	lead.AdditionalInfo = stringValue(prefs, "additionalInfo", lead.AdditionalInfo)
	lead.Session = stringValue(prefs, "session", lead.Session)
}

func stringValue(m map[string]interface{}, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func toStringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// SyncTimeout bounds the inline CRM attempt so a slow provider cannot hold
// the HTTP response hostage beyond the client's own timeout.
const SyncTimeout = 20 * time.Second
