// internal/models/lead_test.go
package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintKey_NormalizesInput(t *testing.T) {
	// Casing, surrounding whitespace and phone punctuation must not change
	// the fingerprint.
	base := FingerprintKey("dana@example.com", "77001112233")

	assert.Equal(t, base, FingerprintKey("Dana@Example.COM", "+7 (700) 111-22-33"))
	assert.Equal(t, base, FingerprintKey("  dana@example.com  ", "7-700-111-22-33"))
}

func TestFingerprintKey_DistinctContactsDiffer(t *testing.T) {
	a := FingerprintKey("dana@example.com", "77001112233")
	b := FingerprintKey("aida@example.com", "77001112233")
	c := FingerprintKey("dana@example.com", "77009998877")

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestFingerprintKey_EmptyContactYieldsEmpty(t *testing.T) {
	assert.Empty(t, FingerprintKey("", ""))
	assert.NotEmpty(t, FingerprintKey("", "77001112233"))
	assert.NotEmpty(t, FingerprintKey("dana@example.com", ""))
}

func TestCRMResult_Retryable(t *testing.T) {
	assert.False(t, (&CRMResult{Success: true}).Retryable())
	assert.True(t, (&CRMResult{Success: false, Error: "timeout"}).Retryable())
	assert.False(t, (&CRMResult{Success: false, ValidationErrors: []string{"phone: bad"}}).Retryable())
}

func TestLeadData_JSONRoundTrip(t *testing.T) {
	lead := &LeadData{
		FirstName:         "Aigerim",
		Phone:             "+77071234567",
		ReferralCode:      "PARTNER42",
		Source:            "landing_hero",
		SourceDescription: "Spring campaign banner",
	}

	data, err := json.Marshal(lead)
	require.NoError(t, err)

	var decoded LeadData
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, lead.Source, decoded.Source)
	assert.Equal(t, lead.SourceDescription, decoded.SourceDescription)
	assert.Equal(t, lead.ReferralCode, decoded.ReferralCode)
}
