// internal/crm/provider.go
package crm

import (
	"context"
	"fmt"

	"lead-pipeline/internal/common/config"
	"lead-pipeline/internal/common/logger"
	"lead-pipeline/internal/crm/alfa"
	"lead-pipeline/internal/models"
)

// Provider is the single surface the rest of the pipeline talks to. Methods
// never return Go errors; every failure mode is encoded in the result struct
// so that callers can distinguish retryable outages from permanent rejections
// without type switches.
type Provider interface {
	CreateLead(ctx context.Context, lead *models.LeadData) *models.CRMResult
	LogMessengerEvent(ctx context.Context, activity *models.ActivityData) *models.CRMResult
	TestConnection(ctx context.Context) *models.ConnectionResult
}

// NewProvider selects the configured adapter once at startup. An unknown
// provider string fails fast here rather than on the first request.
func NewProvider(cfg *config.CRMConfig, log logger.Logger) (Provider, error) {
	switch cfg.Provider {
	case "alfa":
		return alfa.NewClient(alfa.Options{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Timeout:    config.GetDuration(cfg.Timeout),
			MaxRetries: cfg.MaxRetries,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown CRM provider %q", cfg.Provider)
	}
}
