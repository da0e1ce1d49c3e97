// internal/store/submissions.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lead-pipeline/internal/common/logger"
	"lead-pipeline/internal/models"

	"github.com/google/uuid"
)

// SubmissionRepository persists form submissions. Records are immutable:
// there is no update path.
type SubmissionRepository interface {
	Create(ctx context.Context, record *SubmissionRecord) error
	GetByTrackingCode(ctx context.Context, trackingCode string) (*SubmissionRecord, error)
}

// SubmissionRecord mirrors models.SubmissionRecord at the storage boundary.
type SubmissionRecord = models.SubmissionRecord

// PostgresSubmissions is the production repository.
type PostgresSubmissions struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresSubmissions(db *sql.DB, log logger.Logger) *PostgresSubmissions {
	return &PostgresSubmissions{db: db, logger: log}
}

// Create inserts one submission. ID, tracking code, status and timestamp are
// filled in when the caller left them empty.
func (r *PostgresSubmissions) Create(ctx context.Context, record *SubmissionRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.TrackingCode == "" {
		record.TrackingCode = NewTrackingCode()
	}
	if record.Status == "" {
		record.Status = models.SubmissionStatusSubmitted
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	preferences, err := json.Marshal(record.Preferences)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO submissions (id, tracking_code, name, phone, email, preferences, metadata,
			source, source_description, referral_code, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.TrackingCode,
		record.Name,
		record.Phone,
		record.Email,
		preferences,
		metadata,
		record.Source,
		record.SourceDescription,
		record.ReferralCode,
		record.Status,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	r.logger.Info("submission persisted", map[string]interface{}{
		"id":           record.ID,
		"trackingCode": record.TrackingCode,
	})
	return nil
}

// GetByTrackingCode looks up one submission by its human-facing code.
// Returns sql.ErrNoRows when the code is unknown.
func (r *PostgresSubmissions) GetByTrackingCode(ctx context.Context, trackingCode string) (*SubmissionRecord, error) {
	query := `
		SELECT id, tracking_code, name, phone, email, preferences, metadata,
			source, source_description, referral_code, status, created_at
		FROM submissions
		WHERE tracking_code = $1`

	var record SubmissionRecord
	var preferences, metadata []byte

	err := r.db.QueryRowContext(ctx, query, trackingCode).Scan(
		&record.ID,
		&record.TrackingCode,
		&record.Name,
		&record.Phone,
		&record.Email,
		&preferences,
		&metadata,
		&record.Source,
		&record.SourceDescription,
		&record.ReferralCode,
		&record.Status,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(preferences) > 0 {
		if err := json.Unmarshal(preferences, &record.Preferences); err != nil {
			return nil, fmt.Errorf("unmarshal preferences: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &record, nil
}

// NewTrackingCode builds the short human code handed back to the applicant,
// e.g. "APP-9F2C4A".
func NewTrackingCode() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "APP-" + id[:6]
}
