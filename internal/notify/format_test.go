// internal/notify/format_test.go
package notify

import (
	"strings"
	"testing"

	"lead-pipeline/internal/models"

	"github.com/stretchr/testify/assert"
)

// ==========================
// LEAD FORMATTING
// ==========================

func TestFormatLead_FullSubmission(t *testing.T) {
	lead := &models.LeadData{
		FirstName:         "Aigerim",
		LastName:          "Bekova",
		Phone:             "+77071234567",
		Email:             "aigerim@example.com",
		ReferralCode:      "PARTNER42",
		Source:            "landing_hero",
		SourceDescription: "Spring campaign banner",
		Universities:      []string{"TU Munich", "RWTH Aachen"},
		Programs:          []string{"Computer Science"},
		UserType:          "student",
		Language:          "de",
		Session:           "2027 Winter",
	}

	msg := FormatLead(lead)

	assert.True(t, strings.HasPrefix(msg, "<b>🎓 New Application</b>"))
	assert.Contains(t, msg, "<b>Name:</b> Aigerim Bekova")
	assert.Contains(t, msg, "<b>Phone:</b> +77071234567")
	assert.Contains(t, msg, "<b>Referral:</b> PARTNER42")
	assert.Contains(t, msg, "<b>Universities:</b> TU Munich, RWTH Aachen")
	assert.Contains(t, msg, "<b>Intake:</b> 2027 Winter")
}

func TestFormatLead_OmitsEmptyFields(t *testing.T) {
	lead := &models.LeadData{
		FirstName:    "Dana",
		Phone:        "+77001112233",
		ReferralCode: "DIRECT",
	}

	msg := FormatLead(lead)

	assert.Contains(t, msg, "<b>Name:</b> Dana")
	assert.NotContains(t, msg, "Email")
	assert.NotContains(t, msg, "Universities")
	assert.NotContains(t, msg, "N/A")
}

func TestFormatLead_EscapesMarkup(t *testing.T) {
	lead := &models.LeadData{
		FirstName:      "<script>alert(1)</script>",
		Phone:          "+77001112233",
		ReferralCode:   "DIRECT",
		AdditionalInfo: "wants info about B&B housing <urgently>",
	}

	msg := FormatLead(lead)

	assert.NotContains(t, msg, "<script>")
	assert.Contains(t, msg, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.Contains(t, msg, "B&amp;B housing &lt;urgently&gt;")
}

func TestFormatLead_TruncatesLongFreeText(t *testing.T) {
	lead := &models.LeadData{
		FirstName:      "Dana",
		Phone:          "+77001112233",
		ReferralCode:   "DIRECT",
		AdditionalInfo: strings.Repeat("ы", 500),
	}

	msg := FormatLead(lead)

	assert.Contains(t, msg, "…")
	assert.NotContains(t, msg, strings.Repeat("ы", 301))
	assert.Contains(t, msg, strings.Repeat("ы", 300))
}

func TestFormatLead_Deterministic(t *testing.T) {
	lead := &models.LeadData{
		FirstName:    "Dana",
		Phone:        "+77001112233",
		ReferralCode: "DIRECT",
	}

	assert.Equal(t, FormatLead(lead), FormatLead(lead))
}

// ==========================
// CALL + ACTIVITY FORMATTING
// ==========================

func TestFormatCall(t *testing.T) {
	msg := FormatCall(&models.CallRequest{
		Name:  "Nursultan",
		Phone: "+77051234567",
	})

	assert.True(t, strings.HasPrefix(msg, "<b>📞 Call Request</b>"))
	assert.Contains(t, msg, "<b>Name:</b> Nursultan")
	assert.NotContains(t, msg, "Source")
}

func TestFormatActivity(t *testing.T) {
	msg := FormatActivity(&models.ActivityData{
		Channel:      models.ChannelTelegram,
		ReferralCode: "PARTNER42",
		UTM: map[string]string{
			"utm_campaign": "spring",
			"utm_source":   "instagram",
		},
	})

	assert.True(t, strings.HasPrefix(msg, "<b>💬 Messenger Touch</b>"))
	assert.Contains(t, msg, "<b>Channel:</b> telegram")
	// UTM keys render in a fixed order regardless of map iteration.
	srcIdx := strings.Index(msg, "utm_source")
	campIdx := strings.Index(msg, "utm_campaign")
	assert.Greater(t, campIdx, srcIdx)
}
