// internal/models/activity.go
package models

// Messenger channels a visitor can touch before submitting a full lead.
const (
	ChannelTelegram  = "telegram"
	ChannelWhatsApp  = "whatsapp"
	ChannelInstagram = "instagram"
)

// ActivityData records a low-friction "messenger touch": the visitor clicked
// a contact link without filling the application form.
type ActivityData struct {
	Channel      string                 `json:"channel"`
	ReferralCode string                 `json:"referralCode"`
	Session      string                 `json:"session,omitempty"`
	UTM          map[string]string      `json:"utm,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}
