package campaign

import (
	"context"
	"time"

	"github.com/ignite/dialer/internal/domain"
)

// Mutation rewrites a freshly-read campaign in place. It must be free of
// side effects: the repository may discard the mutated copy on conflict.
type Mutation func(c *domain.Campaign) error

// Repository defines the data access contract for campaigns. The backing
// store is the single source of truth; no in-memory copy of campaign state
// is authoritative. Implementations must be safe for concurrent use.
type Repository interface {
	// FindByID returns a single campaign. Returns ErrNotFound if it
	// doesn't exist.
	FindByID(ctx context.Context, id string) (*domain.Campaign, error)

	// ApplyAtomic is the sole mutation entry point for the state machine.
	// It re-reads the campaign, rejects with ErrConflict if its status is
	// not expected, applies fn, and persists the result as one conditional
	// write keyed on the prior status and version. Two concurrent writers
	// on the same campaign produce exactly one winner; the loser gets
	// ErrConflict, never a lost update. Errors returned by fn abort the
	// write and are passed through unchanged.
	ApplyAtomic(ctx context.Context, id string, expected domain.CampaignStatus, fn Mutation) (*domain.Campaign, error)

	// FindDueForCall returns campaigns eligible for a call attempt at now:
	// status PENDING or IN_PROGRESS with nextCallDate <= now, ordered by
	// nextCallDate ascending, at most limit rows.
	FindDueForCall(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)

	// CountActiveForContact returns the number of non-terminal campaigns
	// referencing the contact. Supports the one-active-campaign-per-contact
	// invariant at creation time.
	CountActiveForContact(ctx context.Context, contactID string) (int, error)

	// Create inserts a new campaign. Returns ErrDuplicateCampaign if the
	// store's uniqueness constraint on active campaigns per contact is
	// violated (the authoritative check; CountActiveForContact is only a
	// fast pre-check).
	Create(ctx context.Context, c *domain.Campaign) error
}

// ContactRepository is the minimal contact access the state machine needs.
type ContactRepository interface {
	// FindContact returns a contact by ID. Returns ErrContactNotFound if
	// it doesn't exist.
	FindContact(ctx context.Context, id string) (*domain.Contact, error)
}

// CallRecordRepository persists immutable call-attempt artifacts.
type CallRecordRepository interface {
	// CreateCallRecord inserts a record. Records are never updated.
	CreateCallRecord(ctx context.Context, r *domain.CallRecord) error
}
