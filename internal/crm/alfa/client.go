// internal/crm/alfa/client.go
package alfa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"lead-pipeline/internal/common/logger"
	"lead-pipeline/internal/common/metrics"
	"lead-pipeline/internal/models"
)

// ==========================
// CLIENT
// ==========================

// Options configures the Alfa CRM HTTP client.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration // per-request, applied via http.Client
	MaxRetries int           // extra attempts for transient failures only
}

// Client talks to the Alfa education-CRM REST API. All public methods honor
// the provider contract: failures come back inside the result struct, never
// as a Go error.
type Client struct {
	baseURL    string
	apiKey     string
	maxRetries int
	httpClient *http.Client
	logger     logger.Logger
}

func NewClient(opts Options, log logger.Logger) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		maxRetries: opts.MaxRetries,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		logger: log,
	}
}

// Name identifies the adapter on queued jobs.
func (c *Client) Name() string { return "alfa" }

// ==========================
// WIRE SHAPES
// ==========================

type leadRequest struct {
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name,omitempty"`
	Phone          string   `json:"phone"`
	Email          string   `json:"email,omitempty"`
	ReferralCode   string   `json:"referral_code"`
	Source         string   `json:"source,omitempty"`
	Note           string   `json:"note,omitempty"`
	Universities   []string `json:"universities,omitempty"`
	Programs       []string `json:"programs,omitempty"`
	Session        string   `json:"session,omitempty"`
	FingerprintKey string   `json:"fingerprint_key,omitempty"`
}

type activityRequest struct {
	Channel        string            `json:"channel"`
	ReferralCode   string            `json:"referral_code"`
	Session        string            `json:"session,omitempty"`
	UTM            map[string]string `json:"utm,omitempty"`
	FingerprintKey string            `json:"fingerprint_key,omitempty"`
}

type apiResponse struct {
	Success   bool              `json:"success"`
	ID        string            `json:"id,omitempty"`
	Duplicate bool              `json:"duplicate,omitempty"`
	Message   string            `json:"message,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// ==========================
// SOURCE MAPPING
// ==========================

// sourceMap translates internal CTA tags to the enumerated values Alfa
// accepts. Unmapped tags are logged and the field omitted; a cosmetic field
// never blocks a lead.
var sourceMap = map[string]string{
	"landing_hero":       "Website",
	"landing_footer":     "Website",
	"landing_popup":      "Website",
	"instagram_bio":      "Instagram",
	"instagram_ad":       "Instagram Ads",
	"telegram_channel":   "Telegram",
	"whatsapp_broadcast": "WhatsApp",
	"google_ads":         "Google Ads",
	"referral_link":      "Referral",
	"offline_event":      "Event",
}

func (c *Client) mapSource(tag string) string {
	if tag == "" {
		return ""
	}
	mapped, ok := sourceMap[tag]
	if !ok {
		c.logger.Warn("unmapped source tag, omitting from CRM payload", map[string]interface{}{
			"source": tag,
		})
		return ""
	}
	return mapped
}

// ==========================
// PROVIDER METHODS
// ==========================

// CreateLead pushes one lead into Alfa. Remote field-level validation errors
// come back in ValidationErrors and are never retried; transient transport
// and 5xx failures are retried up to MaxRetries before the failure is
// reported to the caller.
func (c *Client) CreateLead(ctx context.Context, lead *models.LeadData) *models.CRMResult {
	note := lead.AdditionalInfo
	if lead.SourceDescription != "" {
		if note != "" {
			note = lead.SourceDescription + "\n" + note
		} else {
			note = lead.SourceDescription
		}
	}

	req := leadRequest{
		FirstName:      lead.FirstName,
		LastName:       lead.LastName,
		Phone:          lead.Phone,
		Email:          lead.Email,
		ReferralCode:   lead.ReferralCode,
		Source:         c.mapSource(lead.Source),
		Note:           note,
		Universities:   lead.Universities,
		Programs:       lead.Programs,
		Session:        lead.Session,
		FingerprintKey: lead.FingerprintKey,
	}

	result := c.post(ctx, "/v2/leads", req)
	if result.Success && result.Duplicate {
		metrics.CRMLeadsDuplicate.Inc()
		c.logger.Info("CRM collapsed submission into existing lead", map[string]interface{}{
			"id":             result.ID,
			"fingerprintKey": lead.FingerprintKey,
		})
	}
	return result
}

// LogMessengerEvent records a messenger touch (contact-link click) as a CRM
// activity rather than a full lead.
func (c *Client) LogMessengerEvent(ctx context.Context, activity *models.ActivityData) *models.CRMResult {
	req := activityRequest{
		Channel:      activity.Channel,
		ReferralCode: activity.ReferralCode,
		Session:      activity.Session,
		UTM:          activity.UTM,
	}
	return c.post(ctx, "/v2/activities", req)
}

// TestConnection probes the API with an authenticated ping.
func (c *Client) TestConnection(ctx context.Context) *models.ConnectionResult {
	url := c.baseURL + "/v2/ping"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &models.ConnectionResult{Success: false, Error: err.Error()}
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.ConnectionResult{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &models.ConnectionResult{
			Success: false,
			Error:   fmt.Sprintf("ping failed (status %d): %s", resp.StatusCode, string(body)),
		}
	}
	return &models.ConnectionResult{Success: true}
}

// ==========================
// TRANSPORT
// ==========================

func (c *Client) post(ctx context.Context, path string, payload interface{}) *models.CRMResult {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return &models.CRMResult{Success: false, Error: fmt.Sprintf("failed to marshal payload: %v", err)}
	}

	var lastErr string
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying CRM request", map[string]interface{}{
				"path":    path,
				"attempt": attempt,
				"error":   lastErr,
			})
			select {
			case <-ctx.Done():
				return &models.CRMResult{Success: false, Error: ctx.Err().Error()}
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		result, transientErr := c.doOnce(ctx, path, jsonData)
		if result != nil {
			return result
		}
		lastErr = transientErr
	}

	return &models.CRMResult{Success: false, Error: lastErr}
}

// doOnce performs a single HTTP round trip. It returns a non-nil result when
// the outcome is final (success, duplicate, validation rejection, or a 4xx we
// will not retry); otherwise the failure was transient and the second return
// describes it for the retry loop.
func (c *Client) doOnce(ctx context.Context, path string, jsonData []byte) (*models.CRMResult, string) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return &models.CRMResult{Success: false, Error: fmt.Sprintf("failed to create request: %v", err)}, ""
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failure or client timeout. Worth another attempt.
		return nil, fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Sprintf("failed to read response: %v", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Sprintf("server error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return &models.CRMResult{
			Success: false,
			Error:   fmt.Sprintf("unexpected response (status %d): %s", resp.StatusCode, string(body)),
		}, ""
	}

	if resp.StatusCode == http.StatusUnprocessableEntity || len(apiResp.Errors) > 0 {
		fieldErrors := make([]string, 0, len(apiResp.Errors))
		for field, msg := range apiResp.Errors {
			fieldErrors = append(fieldErrors, fmt.Sprintf("%s: %s", field, msg))
		}
		return &models.CRMResult{
			Success:          false,
			Error:            apiResp.Message,
			ValidationErrors: fieldErrors,
		}, ""
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &models.CRMResult{
			Success: false,
			Error:   fmt.Sprintf("rejected (status %d): %s", resp.StatusCode, apiResp.Message),
		}, ""
	}

	if !apiResp.Success {
		return &models.CRMResult{Success: false, Error: apiResp.Message}, ""
	}

	return &models.CRMResult{
		Success:   true,
		ID:        apiResp.ID,
		Duplicate: apiResp.Duplicate,
	}, ""
}
