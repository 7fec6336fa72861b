package domain

import "time"

// Contact is a call target. Identity fields (Name, Practice) are immutable
// after intake; contact details may be updated by operators. A contact is
// never deleted while a non-terminal campaign references it.
type Contact struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Practice string `json:"practice" db:"practice"`
	Phone    string `json:"phone" db:"phone"`       // E.164
	Email    string `json:"email" db:"email"`
	Timezone string `json:"timezone" db:"timezone"` // IANA, e.g. America/Chicago

	// BestTimeToCall is an ordered set of non-overlapping HH:MM-HH:MM
	// windows in the contact's local timezone.
	BestTimeToCall []string `json:"best_time_to_call" db:"best_time_to_call"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
