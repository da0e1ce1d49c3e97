// internal/api/handlers.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lead-pipeline/internal/common/logger"
	"lead-pipeline/internal/common/validation"
	"lead-pipeline/internal/models"
	"lead-pipeline/internal/orchestrator"
	"lead-pipeline/internal/queue"
)

type handlers struct {
	orch   *orchestrator.Orchestrator
	queue  *queue.Queue
	logger logger.Logger
}

type crmStatusBody struct {
	Status    string `json:"status"`
	ID        string `json:"id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
}

type submissionResponse struct {
	SubmissionID     string        `json:"submissionId"`
	TrackingCode     string        `json:"trackingCode"`
	CRM              crmStatusBody `json:"crm"`
	QueueError       string        `json:"queueError,omitempty"`
	ValidationErrors []string      `json:"validationErrors,omitempty"`
}

// submitApplication is the main form-submission endpoint. Schema rejections
// are 422; a persisted submission always answers 201 unless the CRM itself
// rejected the data as malformed.
func (h *handlers) submitApplication(c *gin.Context) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	if result := validation.ValidateSubmission(payload); !result.Valid {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "validation failed",
			"errors": result.Errors,
		})
		return
	}

	record := buildSubmission(payload)

	result, err := h.orch.SubmitApplication(c.Request.Context(), record)
	if err != nil {
		h.logger.WithError(err).Error("submission persist failed", map[string]interface{}{
			"phone": record.Phone,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store submission"})
		return
	}

	body := submissionResponse{
		SubmissionID: record.ID,
		TrackingCode: record.TrackingCode,
		CRM: crmStatusBody{
			Status:    result.CRMStatus,
			ID:        result.CRMID,
			Duplicate: result.CRMDuplicate,
			Error:     result.CRMError,
		},
		QueueError:       result.QueueError,
		ValidationErrors: result.ValidationErrors,
	}

	if result.CRMStatus == orchestrator.CRMStatusRejected {
		// Persisted, but the CRM considers the data malformed. The caller
		// has to fix it; retrying the same payload is pointless.
		c.JSON(http.StatusUnprocessableEntity, body)
		return
	}

	c.JSON(http.StatusCreated, body)
}

func (h *handlers) submitCall(c *gin.Context) {
	var call models.CallRequest
	if err := c.ShouldBindJSON(&call); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	if call.Name == "" || len(validation.DigitsOf(call.Phone)) < 10 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "name and a phone with at least 10 digits are required",
		})
		return
	}

	result := h.orch.SubmitCallRequest(c.Request.Context(), &call)
	c.JSON(http.StatusAccepted, result)
}

func (h *handlers) trackActivity(c *gin.Context) {
	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	if result := validation.ValidateActivity(payload); !result.Valid {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "validation failed",
			"errors": result.Errors,
		})
		return
	}

	activity := &models.ActivityData{
		Channel:      stringField(payload, "channel"),
		ReferralCode: stringField(payload, "ref"),
		Session:      stringField(payload, "session"),
		UTM:          stringMapField(payload, "utm"),
		Metadata:     mapField(payload, "metadata"),
	}

	result := h.orch.TrackActivity(c.Request.Context(), activity)
	c.JSON(http.StatusAccepted, result)
}

func (h *handlers) health(c *gin.Context) {
	health := h.queue.CheckHealth(c.Request.Context())

	status := http.StatusOK
	if health.Status == queue.StatusError {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

// buildSubmission maps the validated wire payload into the persistence shape.
// Typed preference fields are folded into the Preferences map the CRM
// mapping understands.
func buildSubmission(payload map[string]interface{}) *models.SubmissionRecord {
	prefs := mapField(payload, "preferences")
	if prefs == nil {
		prefs = make(map[string]interface{})
	}

	copyPref := func(wireKey, prefKey string) {
		if v, ok := payload[wireKey]; ok {
			prefs[prefKey] = v
		}
	}
	copyPref("universities", "universities")
	copyPref("programs", "programs")
	copyPref("user_type", "userType")
	copyPref("language", "language")
	copyPref("scholarship", "scholarship")
	copyPref("university_chosen", "universityChosen")
	copyPref("additional_info", "additionalInfo")
	copyPref("session", "session")

	if len(prefs) == 0 {
		prefs = nil
	}

	return &models.SubmissionRecord{
		Name:              stringField(payload, "name"),
		Phone:             stringField(payload, "phone"),
		Email:             stringField(payload, "email"),
		Source:            stringField(payload, "source"),
		SourceDescription: stringField(payload, "source_description"),
		ReferralCode:      stringField(payload, "ref"),
		Preferences:       prefs,
		Metadata:          mapField(payload, "metadata"),
	}
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func mapField(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

func stringMapField(m map[string]interface{}, key string) map[string]string {
	raw := mapField(m, key)
	if raw == nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
