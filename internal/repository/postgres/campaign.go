// Package postgres implements the campaign repository contracts against
// PostgreSQL. The document store is the single source of truth: every
// mutation re-reads the current row and persists through one conditional
// UPDATE keyed on (id, status, version), so concurrent writers on the same
// campaign produce exactly one winner.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/dialer/internal/domain"
	"github.com/ignite/dialer/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	id, contact_id, status, COALESCE(message_history, '[]'::jsonb),
	last_completed_step, last_call_outcome, last_call_date, next_call_date,
	thread_id, version, created_at, updated_at`

func (r *CampaignRepo) FindByID(ctx context.Context, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM dialer_campaigns
		WHERE id = $1
	`, id)
	return scanCampaign(row)
}

// ApplyAtomic implements the read-check-write cycle as a single conditional
// UPDATE. The in-memory mutation is never authoritative: if another writer
// changed the row between our read and our write, the WHERE clause on
// (status, version) matches zero rows and the caller gets ErrConflict.
func (r *CampaignRepo) ApplyAtomic(ctx context.Context, id string, expected domain.CampaignStatus, fn campaign.Mutation) (*domain.Campaign, error) {
	cur, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != expected {
		return nil, campaign.ErrConflict
	}

	prevVersion := cur.Version
	if err := fn(cur); err != nil {
		return nil, err
	}

	history, err := json.Marshal(cur.MessageHistory)
	if err != nil {
		return nil, fmt.Errorf("marshal message history: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE dialer_campaigns
		SET status = $3,
		    message_history = $4,
		    last_completed_step = $5,
		    last_call_outcome = $6,
		    last_call_date = $7,
		    next_call_date = $8,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2 AND version = $9
		RETURNING `+campaignColumns+`
	`, id, expected, cur.Status, history, cur.LastCompletedStep,
		outcomeArg(cur.LastCallOutcome), timeArg(cur.LastCallDate), timeArg(cur.NextCallDate),
		prevVersion)

	updated, err := scanCampaign(row)
	if errors.Is(err, campaign.ErrNotFound) {
		// The row exists (we just read it); someone else won the write.
		return nil, campaign.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("apply atomic: %w", err)
	}
	return updated, nil
}

func (r *CampaignRepo) FindDueForCall(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM dialer_campaigns
		WHERE status IN ('PENDING', 'IN_PROGRESS')
		  AND next_call_date IS NOT NULL
		  AND next_call_date <= $1
		ORDER BY next_call_date ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) CountActiveForContact(ctx context.Context, contactID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM dialer_campaigns
		WHERE contact_id = $1 AND status IN ('PENDING', 'IN_PROGRESS')
	`, contactID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active campaigns: %w", err)
	}
	return n, nil
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	history, err := json.Marshal(c.MessageHistory)
	if err != nil {
		return fmt.Errorf("marshal message history: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO dialer_campaigns
			(id, contact_id, status, message_history, last_completed_step,
			 next_call_date, thread_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, NOW(), NOW())
	`, c.ID, c.ContactID, c.Status, history, c.LastCompletedStep,
		timeArg(c.NextCallDate), c.ThreadID)
	if err != nil {
		// The partial unique index on active campaigns per contact is the
		// authoritative duplicate check; the service's count is a pre-check.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return campaign.ErrDuplicateCampaign
		}
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row scanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var (
		history  []byte
		outcome  sql.NullString
		lastCall sql.NullTime
		nextCall sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.ContactID, &c.Status, &history,
		&c.LastCompletedStep, &outcome, &lastCall, &nextCall,
		&c.ThreadID, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &c.MessageHistory); err != nil {
			return nil, fmt.Errorf("unmarshal message history: %w", err)
		}
	}
	if outcome.Valid {
		o := domain.CallOutcome(outcome.String)
		c.LastCallOutcome = &o
	}
	if lastCall.Valid {
		t := lastCall.Time
		c.LastCallDate = &t
	}
	if nextCall.Valid {
		t := nextCall.Time
		c.NextCallDate = &t
	}
	return c, nil
}

func outcomeArg(o *domain.CallOutcome) interface{} {
	if o == nil {
		return nil
	}
	return string(*o)
}

func timeArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
