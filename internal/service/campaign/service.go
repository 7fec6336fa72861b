package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/dialer/internal/domain"
	"github.com/ignite/dialer/internal/validation"
)

// Service implements the campaign lifecycle state machine. All public
// methods are safe for concurrent use if the underlying repository is
// concurrency-safe; per-campaign linearization comes from ApplyAtomic.
type Service struct {
	repo     Repository
	contacts ContactRepository
	now      func() time.Time
}

// NewService creates a campaign service backed by the given repositories.
func NewService(repo Repository, contacts ContactRepository) *Service {
	return &Service{repo: repo, contacts: contacts, now: time.Now}
}

// SetClock overrides the service clock (used by tests).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.FindByID(ctx, id)
}

// Due lists non-terminal campaigns whose next call date has arrived, oldest
// schedule first.
func (s *Service) Due(ctx context.Context, limit int) ([]domain.Campaign, error) {
	return s.repo.FindDueForCall(ctx, s.now(), limit)
}

// Create constructs a campaign in PENDING with empty history, step 0, and a
// fresh unique thread ID. It fails with ErrDuplicateCampaign if the contact
// already has a non-terminal campaign, and with ErrInvalidSchedule if
// firstCallDate is not strictly in the future.
func (s *Service) Create(ctx context.Context, contactID string, firstCallDate time.Time) (*domain.Campaign, error) {
	if _, err := s.contacts.FindContact(ctx, contactID); err != nil {
		return nil, err
	}

	now := s.now()
	if err := validation.Schedule("firstCallDate", firstCallDate, now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	active, err := s.repo.CountActiveForContact(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("count active campaigns: %w", err)
	}
	if active > 0 {
		return nil, ErrDuplicateCampaign
	}

	c := &domain.Campaign{
		ID:           uuid.New().String(),
		ContactID:    contactID,
		Status:       domain.CampaignPending,
		ThreadID:     domain.NewThreadID(),
		NextCallDate: &firstCallDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := validation.Campaign(c); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Transition moves a campaign along a legal lifecycle edge. Entering a
// terminal state clears nextCallDate as part of the same atomic mutation.
// Illegal edges, including any edge out of COMPLETED/FAILED, fail with
// ErrIllegalTransition. Concurrent transitions on the same campaign produce
// one winner; the rest receive ErrConflict.
func (s *Service) Transition(ctx context.Context, id string, next domain.CampaignStatus) (*domain.Campaign, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, next)
	}

	cur, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cur.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cur.Status, next)
	}

	return s.repo.ApplyAtomic(ctx, id, cur.Status, func(c *domain.Campaign) error {
		// Re-check against the store's current value; the first read may
		// be stale by the time the conditional write runs.
		if !c.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, c.Status, next)
		}
		c.Status = next
		if next.IsTerminal() {
			c.NextCallDate = nil
		}
		return validation.Campaign(c)
	})
}

// OutcomeDetails carries per-outcome context for RecordOutcome.
type OutcomeDetails struct {
	// Reason is appended to the history as a SYSTEM message when a call
	// is DECLINED with a stated reason.
	Reason string

	// CallDate is when the attempt happened; zero means "now".
	CallDate time.Time

	// NextCallDate reschedules the campaign after a non-terminal outcome.
	// Ignored on terminal outcomes, which always clear the schedule.
	NextCallDate *time.Time
}

// RecordOutcome applies a call attempt's result onto the campaign:
//
//	MEETING_SCHEDULED  -> COMPLETED, schedule cleared
//	FAILED             -> FAILED, schedule cleared
//	DECLINED           -> stays IN_PROGRESS; reason appended as SYSTEM message
//	anything else      -> status unchanged, campaign stays schedulable
//
// lastCallOutcome and lastCallDate are always updated. The outcome must be
// legal for the campaign's current status (terminal campaigns accept none
// beyond their defining outcome, which is still rejected as a re-apply).
func (s *Service) RecordOutcome(ctx context.Context, id string, outcome domain.CallOutcome, details OutcomeDetails) (*domain.Campaign, error) {
	cur, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.IsTerminal() {
		// Nothing may be recorded against a terminal campaign, including
		// an idempotent-looking repeat of its defining outcome.
		return nil, fmt.Errorf("%w: campaign is %s", ErrIllegalTransition, cur.Status)
	}
	if err := validation.OutcomeForStatus(cur.Status, outcome); err != nil {
		return nil, err
	}

	callDate := details.CallDate
	if callDate.IsZero() {
		callDate = s.now()
	}

	return s.repo.ApplyAtomic(ctx, id, cur.Status, func(c *domain.Campaign) error {
		if err := validation.OutcomeForStatus(c.Status, outcome); err != nil {
			return err
		}

		c.LastCallOutcome = &outcome
		c.LastCallDate = &callDate

		switch outcome {
		case domain.OutcomeMeetingScheduled:
			c.Status = domain.CampaignCompleted
			c.NextCallDate = nil
		case domain.OutcomeFailed:
			c.Status = domain.CampaignFailed
			c.NextCallDate = nil
		case domain.OutcomeDeclined:
			if details.Reason != "" {
				if err := appendEntry(c, "Call declined: "+details.Reason, domain.MessageSystem, nil, callDate); err != nil {
					return err
				}
			}
			if details.NextCallDate != nil {
				c.NextCallDate = details.NextCallDate
			}
		default:
			// NO_ANSWER, VOICEMAIL, BUSY: status unchanged, eligible for
			// re-scheduling.
			if details.NextCallDate != nil {
				c.NextCallDate = details.NextCallDate
			}
		}
		return validation.Campaign(c)
	})
}

// AppendMessage appends one entry to the conversation history. The message
// is whitespace-trimmed before storage and must not exceed the per-message
// length cap; an append beyond the history cap fails with
// ErrHistoryLimitExceeded and leaves the history untouched.
func (s *Service) AppendMessage(ctx context.Context, id, message string, typ domain.MessageType, metadata map[string]string) (*domain.Campaign, error) {
	if !typ.Valid() {
		return nil, &validation.FieldError{
			Field: "type", Value: string(typ),
			Constraint: "must be one of AGENT, CONTACT, SYSTEM",
		}
	}
	message = strings.TrimSpace(message)
	if len(message) > domain.MaxMessageLength {
		return nil, &validation.FieldError{
			Field: "message", Value: fmt.Sprintf("%d chars", len(message)),
			Constraint: fmt.Sprintf("must not exceed %d characters", domain.MaxMessageLength),
			Suggestion: "split the message into multiple entries",
		}
	}

	cur, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.repo.ApplyAtomic(ctx, id, cur.Status, func(c *domain.Campaign) error {
		return appendEntry(c, message, typ, metadata, s.now())
	})
}

// Claim fences a campaign for dispatch: PENDING campaigns transition to
// IN_PROGRESS; campaigns already IN_PROGRESS pass through (the conditional
// write still serializes competing claimers). The schedule is pushed out to
// lease so the poll loop does not re-dispatch the campaign while a call is in
// flight; the recorded outcome sets the real next schedule afterwards.
// ErrConflict means another worker claimed it first. Terminal campaigns
// cannot be claimed.
func (s *Service) Claim(ctx context.Context, id string, lease time.Time) (*domain.Campaign, error) {
	cur, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.IsTerminal() {
		return nil, fmt.Errorf("%w: campaign is %s", ErrIllegalTransition, cur.Status)
	}

	return s.repo.ApplyAtomic(ctx, id, cur.Status, func(c *domain.Campaign) error {
		if c.IsTerminal() {
			return fmt.Errorf("%w: campaign is %s", ErrIllegalTransition, c.Status)
		}
		c.Status = domain.CampaignInProgress
		if !lease.IsZero() {
			l := lease
			c.NextCallDate = &l
		}
		return validation.Campaign(c)
	})
}

// Release gives up a claim after an execution failure by rescheduling the
// campaign to next. The campaign stays IN_PROGRESS and a later poll cycle
// picks it up again. Terminal campaigns are rejected.
func (s *Service) Release(ctx context.Context, id string, next time.Time) (*domain.Campaign, error) {
	if err := validation.Schedule("nextCallDate", next, s.now()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return s.repo.ApplyAtomic(ctx, id, domain.CampaignInProgress, func(c *domain.Campaign) error {
		n := next
		c.NextCallDate = &n
		return validation.Campaign(c)
	})
}

// CompleteStep records forward progress through the call script. Steps are
// monotonically non-decreasing; moving backwards is rejected.
func (s *Service) CompleteStep(ctx context.Context, id string, step int) (*domain.Campaign, error) {
	cur, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.repo.ApplyAtomic(ctx, id, cur.Status, func(c *domain.Campaign) error {
		if step < c.LastCompletedStep {
			return &validation.FieldError{
				Field: "lastCompletedStep", Value: fmt.Sprintf("%d", step),
				Constraint: fmt.Sprintf("must be >= current step %d", c.LastCompletedStep),
			}
		}
		c.LastCompletedStep = step
		return nil
	})
}

// appendEntry appends to the history, enforcing the hard cap. The entry is
// discarded, not trimmed, when the cap would be exceeded.
func appendEntry(c *domain.Campaign, message string, typ domain.MessageType, metadata map[string]string, at time.Time) error {
	if len(c.MessageHistory)+1 > domain.MaxMessageHistory {
		return ErrHistoryLimitExceeded
	}
	c.MessageHistory = append(c.MessageHistory, domain.MessageEntry{
		Timestamp: at,
		Message:   message,
		Type:      typ,
		Metadata:  metadata,
	})
	return nil
}
