// internal/notify/format.go
package notify

import (
	"fmt"
	"strings"

	"lead-pipeline/internal/models"
)

// maxFreeTextRunes bounds free-text fields so one verbose submission cannot
// flood the channel or trip Telegram's message-size limit.
const maxFreeTextRunes = 300

// FormatLead renders a new-application notification as Telegram HTML. Pure
// function: the same lead always yields the same string.
func FormatLead(lead *models.LeadData) string {
	var b strings.Builder

	b.WriteString("<b>🎓 New Application</b>\n\n")

	name := lead.FirstName
	if lead.LastName != "" {
		name += " " + lead.LastName
	}
	writeLine(&b, "Name", name)
	writeLine(&b, "Phone", lead.Phone)
	writeLine(&b, "Email", lead.Email)
	writeLine(&b, "Referral", lead.ReferralCode)
	writeLine(&b, "Source", lead.Source)
	writeLine(&b, "Details", truncate(lead.SourceDescription))
	writeLine(&b, "Universities", strings.Join(lead.Universities, ", "))
	writeLine(&b, "Programs", strings.Join(lead.Programs, ", "))
	writeLine(&b, "Applicant", lead.UserType)
	writeLine(&b, "Language", lead.Language)
	writeLine(&b, "Scholarship", lead.Scholarship)
	writeLine(&b, "Chosen university", lead.UniversityChosen)
	writeLine(&b, "Intake", lead.Session)
	writeLine(&b, "Comment", truncate(lead.AdditionalInfo))

	return strings.TrimRight(b.String(), "\n")
}

// FormatCall renders a call-back request.
func FormatCall(call *models.CallRequest) string {
	var b strings.Builder

	b.WriteString("<b>📞 Call Request</b>\n\n")
	writeLine(&b, "Name", call.Name)
	writeLine(&b, "Phone", call.Phone)
	writeLine(&b, "Source", call.Source)
	writeLine(&b, "Referral", call.ReferralCode)

	return strings.TrimRight(b.String(), "\n")
}

// FormatActivity renders a messenger-touch event.
func FormatActivity(activity *models.ActivityData) string {
	var b strings.Builder

	b.WriteString("<b>💬 Messenger Touch</b>\n\n")
	writeLine(&b, "Channel", activity.Channel)
	writeLine(&b, "Referral", activity.ReferralCode)
	writeLine(&b, "Session", activity.Session)

	if len(activity.UTM) > 0 {
		for _, key := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term"} {
			if v, ok := activity.UTM[key]; ok {
				writeLine(&b, key, v)
			}
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// writeLine appends a labeled line only when the value is non-empty. Absent
// data gets no "N/A" placeholder.
func writeLine(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "<b>%s:</b> %s\n", EscapeHTML(label), EscapeHTML(value))
}

// EscapeHTML neutralizes the characters Telegram's HTML parse mode treats as
// markup, so user-supplied text cannot break message rendering.
func EscapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxFreeTextRunes {
		return s
	}
	return string(runes[:maxFreeTextRunes]) + "…"
}
