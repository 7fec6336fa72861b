package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/dialer/internal/domain"
)

// CallRecordRepo implements campaign.CallRecordRepository against PostgreSQL.
// Call records are immutable once written; there is no update path.
type CallRecordRepo struct{ db *sql.DB }

// NewCallRecordRepo creates a Postgres-backed call record repository.
func NewCallRecordRepo(db *sql.DB) *CallRecordRepo { return &CallRecordRepo{db: db} }

func (r *CallRecordRepo) CreateCallRecord(ctx context.Context, rec *domain.CallRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dialer_call_records
			(id, campaign_id, transcript_url, recording_url, started_at, ended_at,
			 duration_seconds, outcome, sample_rate_hz, bit_depth, channels, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	`, rec.ID, rec.CampaignID, rec.TranscriptURL, rec.RecordingURL,
		rec.StartedAt, rec.EndedAt, rec.Duration, rec.Outcome,
		rec.SampleRateHz, rec.BitDepth, rec.Channels)
	if err != nil {
		return fmt.Errorf("create call record: %w", err)
	}
	return nil
}

// ListForCampaign returns a campaign's call records, newest first.
func (r *CallRecordRepo) ListForCampaign(ctx context.Context, campaignID string) ([]domain.CallRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, transcript_url, recording_url, started_at, ended_at,
		       duration_seconds, outcome, sample_rate_hz, bit_depth, channels, created_at
		FROM dialer_call_records
		WHERE campaign_id = $1
		ORDER BY started_at DESC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list call records: %w", err)
	}
	defer rows.Close()

	var out []domain.CallRecord
	for rows.Next() {
		var rec domain.CallRecord
		if err := rows.Scan(
			&rec.ID, &rec.CampaignID, &rec.TranscriptURL, &rec.RecordingURL,
			&rec.StartedAt, &rec.EndedAt, &rec.Duration, &rec.Outcome,
			&rec.SampleRateHz, &rec.BitDepth, &rec.Channels, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan call record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
