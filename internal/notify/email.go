// internal/notify/email.go
package notify

import (
	"context"
	"fmt"
	"strings"

	"lead-pipeline/internal/common/config"
	"lead-pipeline/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the slice of the SES API the mirror needs; mocked in tests.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailMirror sends a plain-text copy of lead notifications to the agency
// inbox. Disabled mirrors accept sends and do nothing, so callers never
// branch on configuration.
type EmailMirror struct {
	enabled   bool
	fromEmail string
	toEmail   string
	sesClient SESService
	logger    logger.Logger
}

func NewEmailMirror(ctx context.Context, cfg *config.NotificationConfig, log logger.Logger) (*EmailMirror, error) {
	if !cfg.Email.Enabled {
		return &EmailMirror{enabled: false, logger: log}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &EmailMirror{
		enabled:   true,
		fromEmail: cfg.Email.FromEmail,
		toEmail:   cfg.Email.ToEmail,
		sesClient: ses.NewFromConfig(awsCfg),
		logger:    log,
	}, nil
}

// NewEmailMirrorWithClient injects a prebuilt SES client; used in tests.
func NewEmailMirrorWithClient(client SESService, fromEmail, toEmail string, log logger.Logger) *EmailMirror {
	return &EmailMirror{
		enabled:   true,
		fromEmail: fromEmail,
		toEmail:   toEmail,
		sesClient: client,
		logger:    log,
	}
}

// Enabled reports whether sends reach SES.
func (m *EmailMirror) Enabled() bool {
	return m.enabled
}

// Send mirrors one notification. The message arrives in Telegram HTML; tags
// are stripped for the plain-text body.
func (m *EmailMirror) Send(ctx context.Context, subject, message string) error {
	if !m.enabled {
		return nil
	}

	_, err := m.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{m.toEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(stripHTML(message))},
			},
		},
		Source: aws.String(m.fromEmail),
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}

	m.logger.Debug("notification mirrored to email", map[string]interface{}{
		"to": m.toEmail,
	})
	return nil
}

// stripHTML removes the bold/italic tags the formatter emits and restores
// escaped entities.
func stripHTML(s string) string {
	replacer := strings.NewReplacer(
		"<b>", "", "</b>", "",
		"<i>", "", "</i>", "",
		"&lt;", "<", "&gt;", ">", "&amp;", "&",
	)
	return replacer.Replace(s)
}
