package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/dialer/internal/domain"
	"github.com/ignite/dialer/internal/service/campaign"
)

// ContactRepo implements campaign.ContactRepository against PostgreSQL.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

func (r *ContactRepo) FindContact(ctx context.Context, id string) (*domain.Contact, error) {
	c := &domain.Contact{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, practice, phone, email, timezone,
		       COALESCE(best_time_to_call, '{}'), created_at, updated_at
		FROM dialer_contacts
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.Name, &c.Practice, &c.Phone, &c.Email, &c.Timezone,
		pq.Array(&c.BestTimeToCall), &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find contact: %w", err)
	}
	return c, nil
}

func (r *ContactRepo) CreateContact(ctx context.Context, c *domain.Contact) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dialer_contacts
			(id, name, practice, phone, email, timezone, best_time_to_call, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, c.ID, c.Name, c.Practice, c.Phone, c.Email, c.Timezone, pq.Array(c.BestTimeToCall))
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	return nil
}
