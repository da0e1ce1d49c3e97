// internal/workers/lead/crm-sync/handler.go
package crmsync

import (
	"context"
	"errors"
	"fmt"

	pipeerrors "lead-pipeline/internal/common/errors"
	"lead-pipeline/internal/common/logger"
	"lead-pipeline/internal/crm"
	"lead-pipeline/internal/models"
	"lead-pipeline/internal/queue"
)

const Operation = queue.OpCreateLead

// Handler replays lead creations that failed inline during the HTTP request.
type Handler struct {
	config   *Config
	provider crm.Provider
	logger   logger.Logger
}

func NewHandler(config *Config, provider crm.Provider, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		provider: provider,
		logger:   log.WithFields(map[string]interface{}{"operation": Operation}),
	}
}

func (h *Handler) Process(ctx context.Context, job *queue.Job) error {
	var lead models.LeadData
	if err := job.DecodePayload(&lead); err != nil {
		return pipeerrors.NewValidationFailedError([]string{fmt.Sprintf("payload: %v", err)})
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	result := h.provider.CreateLead(ctx, &lead)

	if result.Success {
		h.logger.Info("lead synced to CRM", map[string]interface{}{
			"jobId":     job.ID,
			"leadId":    result.ID,
			"duplicate": result.Duplicate,
		})
		return nil
	}

	if len(result.ValidationErrors) > 0 {
		// The CRM will reject this payload forever.
		return pipeerrors.NewValidationFailedError(result.ValidationErrors)
	}

	return pipeerrors.NewCRMAPIError(errors.New(result.Error))
}
