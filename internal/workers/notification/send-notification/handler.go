// internal/workers/notification/send-notification/handler.go
package sendnotification

import (
	"context"
	"errors"
	"fmt"

	pipeerrors "lead-pipeline/internal/common/errors"
	"lead-pipeline/internal/common/logger"
	"lead-pipeline/internal/models"
	"lead-pipeline/internal/queue"
)

const Operation = queue.OpSendNotification

// Dispatcher delivers one formatted message; mocked in tests.
type Dispatcher interface {
	Send(ctx context.Context, payload *models.NotificationPayload) *models.SendResult
}

// Mirror is the optional email copy of lead notifications.
type Mirror interface {
	Enabled() bool
	Send(ctx context.Context, subject, message string) error
}

// Handler drains sendNotification jobs into Telegram, mirroring to email
// when the payload asks for it.
type Handler struct {
	config     *Config
	dispatcher Dispatcher
	mirror     Mirror
	logger     logger.Logger
}

func NewHandler(config *Config, dispatcher Dispatcher, mirror Mirror, log logger.Logger) *Handler {
	return &Handler{
		config:     config,
		dispatcher: dispatcher,
		mirror:     mirror,
		logger:     log.WithFields(map[string]interface{}{"operation": Operation}),
	}
}

func (h *Handler) Process(ctx context.Context, job *queue.Job) error {
	var payload models.NotificationPayload
	if err := job.DecodePayload(&payload); err != nil {
		return pipeerrors.NewValidationFailedError([]string{fmt.Sprintf("payload: %v", err)})
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	result := h.dispatcher.Send(ctx, &payload)
	if !result.Success {
		return pipeerrors.NewNotificationSendFailedError("telegram", errors.New(result.Error))
	}

	h.logger.Info("notification delivered", map[string]interface{}{
		"jobId":     job.ID,
		"chatId":    payload.ChannelID,
		"messageId": result.MessageID,
	})

	// The mirror is best effort: the Telegram message is already out, so a
	// mirror failure must not requeue the job and post it twice.
	if payload.EmailMirror && h.mirror != nil && h.mirror.Enabled() {
		if err := h.mirror.Send(ctx, payload.Subject, payload.Message); err != nil {
			h.logger.Warn("email mirror failed", map[string]interface{}{
				"jobId": job.ID,
				"error": err.Error(),
			})
		}
	}

	return nil
}
