package domain

import (
	"crypto/rand"
	"time"
)

// CampaignStatus enumerates the lifecycle states of a call campaign.
type CampaignStatus string

const (
	CampaignPending    CampaignStatus = "PENDING"
	CampaignInProgress CampaignStatus = "IN_PROGRESS"
	CampaignCompleted  CampaignStatus = "COMPLETED"
	CampaignFailed     CampaignStatus = "FAILED"
)

// Valid reports whether s is a known campaign status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignPending, CampaignInProgress, CampaignCompleted, CampaignFailed:
		return true
	}
	return false
}

// IsTerminal returns true if the status is a final state.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignCompleted || s == CampaignFailed
}

// CanTransitionTo reports whether the edge s -> next is a legal lifecycle
// transition. Terminal states have no outgoing edges, including self-loops.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	switch s {
	case CampaignPending:
		return next == CampaignInProgress || next == CampaignFailed
	case CampaignInProgress:
		return next == CampaignCompleted || next == CampaignFailed
	}
	return false
}

// CallOutcome classifies the result of a completed call attempt.
type CallOutcome string

const (
	OutcomeMeetingScheduled CallOutcome = "MEETING_SCHEDULED"
	OutcomeDeclined         CallOutcome = "DECLINED"
	OutcomeNoAnswer         CallOutcome = "NO_ANSWER"
	OutcomeVoicemail        CallOutcome = "VOICEMAIL"
	OutcomeBusy             CallOutcome = "BUSY"
	OutcomeFailed           CallOutcome = "FAILED"
)

// Valid reports whether o is a known call outcome.
func (o CallOutcome) Valid() bool {
	switch o {
	case OutcomeMeetingScheduled, OutcomeDeclined, OutcomeNoAnswer,
		OutcomeVoicemail, OutcomeBusy, OutcomeFailed:
		return true
	}
	return false
}

// MessageType identifies the author of a conversation history entry.
type MessageType string

const (
	MessageAgent   MessageType = "AGENT"
	MessageContact MessageType = "CONTACT"
	MessageSystem  MessageType = "SYSTEM"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == MessageAgent || t == MessageContact || t == MessageSystem
}

const (
	// MaxMessageHistory caps the conversation history per campaign.
	// An append that would exceed the cap fails; history is never truncated.
	MaxMessageHistory = 1000

	// MaxMessageLength caps a single history entry, in characters.
	MaxMessageLength = 2000
)

// MessageEntry is one entry in a campaign's conversation history.
type MessageEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Type      MessageType       `json:"type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Campaign represents one outreach effort tracking a single contact through
// the call lifecycle.
type Campaign struct {
	ID                string         `json:"id" db:"id"`
	ContactID         string         `json:"contact_id" db:"contact_id"`
	Status            CampaignStatus `json:"status" db:"status"`
	MessageHistory    []MessageEntry `json:"message_history" db:"message_history"`
	LastCompletedStep int            `json:"last_completed_step" db:"last_completed_step"`
	LastCallOutcome   *CallOutcome   `json:"last_call_outcome" db:"last_call_outcome"`
	LastCallDate      *time.Time     `json:"last_call_date" db:"last_call_date"`
	NextCallDate      *time.Time     `json:"next_call_date" db:"next_call_date"`
	ThreadID          string         `json:"thread_id" db:"thread_id"`

	// Version is the optimistic-concurrency token. It is bumped by the
	// repository on every successful mutation; concurrent writers on the
	// same version produce one winner and one conflict.
	Version int64 `json:"version" db:"version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status.IsTerminal()
}

const threadIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewThreadID generates a fresh thread identifier in the wire format
// thread_<24 alphanumeric>. Thread IDs are immutable once assigned and
// globally unique (enforced by the store's unique constraint).
func NewThreadID() string {
	b := make([]byte, 24)
	rand.Read(b)
	for i := range b {
		b[i] = threadIDAlphabet[int(b[i])%len(threadIDAlphabet)]
	}
	return "thread_" + string(b)
}
