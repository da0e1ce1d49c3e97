// internal/workers/notification/send-notification/handler_test.go
package sendnotification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pipeerrors "lead-pipeline/internal/common/errors"
	"lead-pipeline/internal/common/logger"
	"lead-pipeline/internal/models"
	"lead-pipeline/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockDispatcher struct {
	SendFunc func(ctx context.Context, payload *models.NotificationPayload) *models.SendResult
	LastSent *models.NotificationPayload
}

func (m *MockDispatcher) Send(ctx context.Context, payload *models.NotificationPayload) *models.SendResult {
	m.LastSent = payload
	return m.SendFunc(ctx, payload)
}

type MockMirror struct {
	EnabledVal bool
	SendFunc   func(ctx context.Context, subject, message string) error
	Sent       int
}

func (m *MockMirror) Enabled() bool { return m.EnabledVal }

func (m *MockMirror) Send(ctx context.Context, subject, message string) error {
	m.Sent++
	if m.SendFunc != nil {
		return m.SendFunc(ctx, subject, message)
	}
	return nil
}

func newJob(t *testing.T, payload *models.NotificationPayload) *queue.Job {
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: "job-1", Operation: Operation, Payload: data}
}

func TestProcess_DeliversMessage(t *testing.T) {
	dispatcher := &MockDispatcher{
		SendFunc: func(ctx context.Context, payload *models.NotificationPayload) *models.SendResult {
			return &models.SendResult{Success: true, MessageID: 42, Timestamp: time.Now().UTC()}
		},
	}
	h := NewHandler(DefaultConfig(), dispatcher, &MockMirror{}, logger.NewNoOpLogger())

	err := h.Process(context.Background(), newJob(t, &models.NotificationPayload{
		ChannelID: "-100111",
		Message:   "<b>🎓 New Application</b>",
	}))

	require.NoError(t, err)
	require.NotNil(t, dispatcher.LastSent)
	assert.Equal(t, "-100111", dispatcher.LastSent.ChannelID)
}

func TestProcess_SendFailureIsRetryable(t *testing.T) {
	dispatcher := &MockDispatcher{
		SendFunc: func(ctx context.Context, payload *models.NotificationPayload) *models.SendResult {
			return &models.SendResult{Success: false, Error: "Too Many Requests: retry after 5"}
		},
	}
	h := NewHandler(DefaultConfig(), dispatcher, &MockMirror{}, logger.NewNoOpLogger())

	err := h.Process(context.Background(), newJob(t, &models.NotificationPayload{
		ChannelID: "-100111",
		Message:   "hello",
	}))

	require.Error(t, err)
	assert.True(t, pipeerrors.IsRetryable(err))
	assert.Contains(t, err.(*pipeerrors.StandardError).Details, "Too Many Requests")
}

func TestProcess_MirrorsWhenRequested(t *testing.T) {
	dispatcher := &MockDispatcher{
		SendFunc: func(ctx context.Context, payload *models.NotificationPayload) *models.SendResult {
			return &models.SendResult{Success: true, MessageID: 1}
		},
	}
	mirror := &MockMirror{EnabledVal: true}
	h := NewHandler(DefaultConfig(), dispatcher, mirror, logger.NewNoOpLogger())

	err := h.Process(context.Background(), newJob(t, &models.NotificationPayload{
		ChannelID:   "-100111",
		Message:     "body",
		EmailMirror: true,
		Subject:     "New application: Dana",
	}))

	require.NoError(t, err)
	assert.Equal(t, 1, mirror.Sent)
}

func TestProcess_MirrorFailureDoesNotRequeue(t *testing.T) {
	dispatcher := &MockDispatcher{
		SendFunc: func(ctx context.Context, payload *models.NotificationPayload) *models.SendResult {
			return &models.SendResult{Success: true, MessageID: 1}
		},
	}
	mirror := &MockMirror{
		EnabledVal: true,
		SendFunc: func(ctx context.Context, subject, message string) error {
			return errors.New("throttled")
		},
	}
	h := NewHandler(DefaultConfig(), dispatcher, mirror, logger.NewNoOpLogger())

	err := h.Process(context.Background(), newJob(t, &models.NotificationPayload{
		ChannelID:   "-100111",
		Message:     "body",
		EmailMirror: true,
	}))

	assert.NoError(t, err, "Telegram already delivered; retrying would double-post")
}

func TestProcess_SkipsMirrorWhenDisabled(t *testing.T) {
	dispatcher := &MockDispatcher{
		SendFunc: func(ctx context.Context, payload *models.NotificationPayload) *models.SendResult {
			return &models.SendResult{Success: true, MessageID: 1}
		},
	}
	mirror := &MockMirror{EnabledVal: false}
	h := NewHandler(DefaultConfig(), dispatcher, mirror, logger.NewNoOpLogger())

	err := h.Process(context.Background(), newJob(t, &models.NotificationPayload{
		ChannelID:   "-100111",
		Message:     "body",
		EmailMirror: true,
	}))

	require.NoError(t, err)
	assert.Equal(t, 0, mirror.Sent)
}

func TestProcess_MalformedPayloadIsNotRetryable(t *testing.T) {
	h := NewHandler(DefaultConfig(), &MockDispatcher{}, &MockMirror{}, logger.NewNoOpLogger())

	err := h.Process(context.Background(), &queue.Job{ID: "job-1", Operation: Operation, Payload: []byte("{")})

	require.Error(t, err)
	assert.False(t, pipeerrors.IsRetryable(err))
}
