// internal/models/lead.go
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// DefaultReferralCode is used when a submission carries no referral.
const DefaultReferralCode = "DIRECT"

// LeadData is the normalized shape handed to CRM providers.
type LeadData struct {
	FirstName         string   `json:"firstName"`
	LastName          string   `json:"lastName,omitempty"`
	Phone             string   `json:"phone"`
	Email             string   `json:"email,omitempty"`
	ReferralCode      string   `json:"referralCode"`
	Source            string   `json:"source"`
	SourceDescription string   `json:"sourceDescription,omitempty"`
	Universities      []string `json:"universities,omitempty"`
	Programs          []string `json:"programs,omitempty"`
	UserType          string   `json:"userType,omitempty"`
	Language          string   `json:"language,omitempty"`
	Scholarship       string   `json:"scholarship,omitempty"`
	UniversityChosen  string   `json:"universityChosen,omitempty"`
	AdditionalInfo    string   `json:"additionalInfo,omitempty"`
	Session           string   `json:"session,omitempty"`
	FingerprintKey    string   `json:"fingerprintKey,omitempty"`
}

// CRMResult is the uniform return contract of every provider method. Provider
// methods never return Go errors across their public boundary; all failure is
// encoded here.
type CRMResult struct {
	Success          bool     `json:"success"`
	ID               string   `json:"id,omitempty"`
	Error            string   `json:"error,omitempty"`
	Duplicate        bool     `json:"duplicate,omitempty"`
	ValidationErrors []string `json:"validationErrors,omitempty"`
}

// Retryable reports whether a failed result is worth requeueing. Remote
// validation errors would fail identically forever.
func (r *CRMResult) Retryable() bool {
	return !r.Success && len(r.ValidationErrors) == 0
}

// ConnectionResult is the outcome of a provider connectivity probe.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// FingerprintKey derives the deduplication hint from normalized email+phone.
// The CRM may use it to collapse repeat submissions into one lead.
func FingerprintKey(email, phone string) string {
	normEmail := strings.ToLower(strings.TrimSpace(email))
	normPhone := digitsOnly(phone)
	if normEmail == "" && normPhone == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(normEmail + "|" + normPhone))
	return hex.EncodeToString(sum[:16])
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
