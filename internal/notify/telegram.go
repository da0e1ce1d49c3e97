// internal/notify/telegram.go
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"lead-pipeline/internal/common/logger"
	"lead-pipeline/internal/models"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramDispatcher sends one formatted message per call via the Bot API's
// sendMessage method and classifies the outcome. It never retries; retry
// policy belongs to the queue layer.
type TelegramDispatcher struct {
	baseURL    string
	botToken   string
	httpClient *http.Client
	logger     logger.Logger
}

// TelegramOptions configures the dispatcher. BaseURL is overridable for
// tests; empty means the public Bot API.
type TelegramOptions struct {
	BotToken string
	BaseURL  string
	Timeout  time.Duration
}

func NewTelegramDispatcher(opts TelegramOptions, log logger.Logger) *TelegramDispatcher {
	if opts.BaseURL == "" {
		opts.BaseURL = telegramAPIBase
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	return &TelegramDispatcher{
		baseURL:  opts.BaseURL,
		botToken: opts.BotToken,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		logger: log,
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
	DisableNotification   bool   `json:"disable_notification"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// Send delivers one message. API-level "ok:false" responses and transport
// failures are normalized into the same SendResult shape; the caller cannot
// and need not distinguish them.
func (d *TelegramDispatcher) Send(ctx context.Context, payload *models.NotificationPayload) *models.SendResult {
	parseMode := payload.ParseMode
	if parseMode == "" {
		parseMode = models.ParseModeHTML
	}

	disablePreview := true
	if payload.DisableWebPagePreview != nil {
		disablePreview = *payload.DisableWebPagePreview
	}

	req := sendMessageRequest{
		ChatID:                payload.ChannelID,
		Text:                  payload.Message,
		ParseMode:             parseMode,
		DisableWebPagePreview: disablePreview,
		DisableNotification:   payload.DisableNotification,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return failure(fmt.Sprintf("failed to marshal request: %v", err))
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", d.baseURL, d.botToken)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return failure(fmt.Sprintf("failed to create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return failure(fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(fmt.Sprintf("failed to read response: %v", err))
	}

	var apiResp sendMessageResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return failure(fmt.Sprintf("unexpected response (status %d): %s", resp.StatusCode, string(body)))
	}

	if !apiResp.OK {
		desc := apiResp.Description
		if desc == "" {
			desc = fmt.Sprintf("sendMessage failed (status %d)", resp.StatusCode)
		}
		return failure(desc)
	}

	d.logger.Debug("telegram message delivered", map[string]interface{}{
		"chatId":    payload.ChannelID,
		"messageId": apiResp.Result.MessageID,
	})

	return &models.SendResult{
		Success:   true,
		MessageID: apiResp.Result.MessageID,
		Timestamp: time.Now().UTC(),
	}
}

func failure(msg string) *models.SendResult {
	return &models.SendResult{
		Success:   false,
		Error:     msg,
		Timestamp: time.Now().UTC(),
	}
}
