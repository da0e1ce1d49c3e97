// internal/models/notification.go
package models

import "time"

// Telegram parse modes supported by the dispatcher.
const (
	ParseModeHTML       = "HTML"
	ParseModeMarkdown   = "Markdown"
	ParseModeMarkdownV2 = "MarkdownV2"
)

// NotificationPayload is the queue payload for a sendNotification job: a
// formatted message bound to one destination channel.
type NotificationPayload struct {
	ChannelID string `json:"channelId"`
	Message   string `json:"message"`
	ParseMode string `json:"parseMode,omitempty"`
	// DisableWebPagePreview left unset means previews stay disabled; set it
	// to false explicitly to let Telegram unfurl links.
	DisableWebPagePreview *bool `json:"disableWebPagePreview,omitempty"`
	DisableNotification   bool  `json:"disableNotification,omitempty"`
	// EmailMirror asks the worker to also send the plain-text copy to the
	// agency inbox when the email channel is enabled.
	EmailMirror bool   `json:"emailMirror,omitempty"`
	Subject     string `json:"subject,omitempty"`
}

// SendResult is the dispatcher's uniform outcome for one send attempt.
type SendResult struct {
	Success   bool      `json:"success"`
	MessageID int64     `json:"messageId,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CallRequest is a "request a call" event, lighter than a full application.
type CallRequest struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Source       string `json:"source,omitempty"`
	ReferralCode string `json:"referralCode,omitempty"`
}
