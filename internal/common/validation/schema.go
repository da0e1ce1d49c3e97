// internal/common/validation/schema.go
package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationResult carries the outcome of ingress validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Messages flattens errors to plain strings for error payloads.
func (r *ValidationResult) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return out
}

const submissionSchema = `{
	"type": "object",
	"properties": {
		"name":        {"type": "string", "minLength": 1, "maxLength": 200},
		"phone":       {"type": "string", "minLength": 1},
		"email":       {"type": "string"},
		"source":      {"type": "string", "maxLength": 100},
		"source_description": {"type": "string", "maxLength": 300},
		"ref":         {"type": "string", "maxLength": 100},
		"universities": {"type": "array", "items": {"type": "string"}},
		"programs":     {"type": "array", "items": {"type": "string"}},
		"user_type":    {"type": "string"},
		"language":     {"type": "string"},
		"scholarship":  {"type": "string"},
		"university_chosen": {"type": "string"},
		"additional_info":   {"type": "string", "maxLength": 5000},
		"session":      {"type": "string"},
		"preferences":  {"type": "object"},
		"metadata":     {"type": "object"}
	},
	"required": ["name", "phone"],
	"additionalProperties": true
}`

const activitySchema = `{
	"type": "object",
	"properties": {
		"channel": {"type": "string", "enum": ["telegram", "whatsapp", "instagram"]},
		"ref":     {"type": "string", "maxLength": 100},
		"session": {"type": "string"},
		"utm":     {"type": "object"},
		"metadata": {"type": "object"}
	},
	"required": ["channel"],
	"additionalProperties": true
}`

var (
	submissionLoader = gojsonschema.NewStringLoader(submissionSchema)
	activityLoader   = gojsonschema.NewStringLoader(activitySchema)
)

// ValidateSubmission checks an application payload against the submission
// schema plus the phone-digit rule: at least 10 digits once everything that
// is not a digit is stripped.
func ValidateSubmission(payload map[string]interface{}) *ValidationResult {
	result := validateAgainst(submissionLoader, payload)

	if phone, ok := payload["phone"].(string); ok {
		if len(DigitsOf(phone)) < 10 {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   "phone",
				Message: "must contain at least 10 digits",
				Code:    "PHONE_TOO_SHORT",
			})
		}
	}

	if email, ok := payload["email"].(string); ok && email != "" {
		if !looksLikeEmail(email) {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   "email",
				Message: "invalid email format",
				Code:    "INVALID_EMAIL",
			})
		}
	}

	return result
}

// ValidateActivity checks a messenger-touch payload.
func ValidateActivity(payload map[string]interface{}) *ValidationResult {
	return validateAgainst(activityLoader, payload)
}

func validateAgainst(schema gojsonschema.JSONLoader, payload map[string]interface{}) *ValidationResult {
	docLoader := gojsonschema.NewGoLoader(payload)

	res, err := gojsonschema.Validate(schema, docLoader)
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{Field: "_schema", Message: err.Error(), Code: "SCHEMA_ERROR"},
			},
		}
	}

	out := &ValidationResult{Valid: res.Valid()}
	for _, e := range res.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
			Code:    strings.ToUpper(e.Type()),
		})
	}
	return out
}

// DigitsOf strips everything that is not a digit.
func DigitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func looksLikeEmail(email string) bool {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) == 0 {
		return false
	}
	return strings.Contains(parts[1], ".")
}
