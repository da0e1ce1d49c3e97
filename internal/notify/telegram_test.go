// internal/notify/telegram_test.go
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"lead-pipeline/internal/common/logger"
	"lead-pipeline/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, handler http.HandlerFunc) *TelegramDispatcher {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTelegramDispatcher(TelegramOptions{
		BotToken: "123:abc",
		BaseURL:  srv.URL,
		Timeout:  2 * time.Second,
	}, logger.NewNoOpLogger())
}

func TestTelegramSend_Success(t *testing.T) {
	var gotReq sendMessageRequest
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":     true,
			"result": map[string]interface{}{"message_id": 4242},
		})
	})

	result := d.Send(context.Background(), &models.NotificationPayload{
		ChannelID: "-100555",
		Message:   "<b>🎓 New Application</b>",
	})

	require.True(t, result.Success)
	assert.Equal(t, int64(4242), result.MessageID)
	assert.False(t, result.Timestamp.IsZero())

	assert.Equal(t, "-100555", gotReq.ChatID)
	assert.Equal(t, models.ParseModeHTML, gotReq.ParseMode, "HTML is the default parse mode")
	assert.True(t, gotReq.DisableWebPagePreview, "previews are disabled unless the payload opts in")
	assert.False(t, gotReq.DisableNotification, "sound stays on unless explicitly muted")
}

func TestTelegramSend_PayloadEnablesPreview(t *testing.T) {
	var gotReq sendMessageRequest
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":     true,
			"result": map[string]interface{}{"message_id": 7},
		})
	})

	enablePreview := false
	result := d.Send(context.Background(), &models.NotificationPayload{
		ChannelID:             "-100555",
		Message:               "see https://example.edu",
		DisableWebPagePreview: &enablePreview,
	})

	require.True(t, result.Success)
	assert.False(t, gotReq.DisableWebPagePreview)
}

func TestTelegramSend_MutedNotification(t *testing.T) {
	var gotReq sendMessageRequest
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":     true,
			"result": map[string]interface{}{"message_id": 1},
		})
	})

	result := d.Send(context.Background(), &models.NotificationPayload{
		ChannelID:           "-100555",
		Message:             "quiet",
		DisableNotification: true,
	})

	require.True(t, result.Success)
	assert.True(t, gotReq.DisableNotification)
}

func TestTelegramSend_APIRejection(t *testing.T) {
	var calls int64
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":          false,
			"description": "Bad Request: chat not found",
		})
	})

	result := d.Send(context.Background(), &models.NotificationPayload{
		ChannelID: "-1",
		Message:   "hello",
	})

	require.False(t, result.Success)
	assert.Equal(t, "Bad Request: chat not found", result.Error)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "dispatcher never retries on its own")
}

func TestTelegramSend_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	d := NewTelegramDispatcher(TelegramOptions{
		BotToken: "123:abc",
		BaseURL:  srv.URL,
		Timeout:  500 * time.Millisecond,
	}, logger.NewNoOpLogger())

	result := d.Send(context.Background(), &models.NotificationPayload{
		ChannelID: "-100555",
		Message:   "hello",
	})

	require.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestTelegramSend_GarbageResponse(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>nginx error page</html>"))
	})

	result := d.Send(context.Background(), &models.NotificationPayload{
		ChannelID: "-100555",
		Message:   "hello",
	})

	require.False(t, result.Success)
	assert.Contains(t, result.Error, "502")
}
