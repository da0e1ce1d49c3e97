// internal/workers/lead/log-activity/handler.go
package logactivity

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

const Operation = queue.OpLogActivity

// Handler pushes messenger-touch events into the CRM as activities.
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
	var activity models.ActivityData
	if err := job.DecodePayload(&activity); err != nil {
		return pipeerrors.NewValidationFailedError([]string{fmt.Sprintf("payload: %v", err)})
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	result := h.provider.LogMessengerEvent(ctx, &activity)

	if result.Success {
		h.logger.Info("activity logged to CRM", map[string]interface{}{
			"jobId":   job.ID,
			"channel": activity.Channel,
		})
		return nil
	}

	if len(result.ValidationErrors) > 0 {
		return pipeerrors.NewValidationFailedError(result.ValidationErrors)
	}

	return pipeerrors.NewCRMAPIError(errors.New(result.Error))
}
