// Package validation implements the pre-persistence validation engine for
// contacts, campaigns, and call records.
//
// Every check is a pure function over a strongly-typed entity: no reflection,
// no schema-as-data, no side effects. Failures are permanent caller errors
// and are never retried; each one carries the failing field, the offending
// value, the violated constraint, and a best-effort corrective suggestion.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"

	"github.com/ignite/dialer/internal/domain"
)

// FieldError describes a single validation failure.
type FieldError struct {
	Field      string `json:"field"`
	Value      string `json:"value"`
	Constraint string `json:"constraint"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (e *FieldError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("validation failed on %s (value %q): %s — %s",
			e.Field, e.Value, e.Constraint, e.Suggestion)
	}
	return fmt.Sprintf("validation failed on %s (value %q): %s", e.Field, e.Value, e.Constraint)
}

func fieldErr(field string, value interface{}, constraint, suggestion string) *FieldError {
	return &FieldError{
		Field:      field,
		Value:      fmt.Sprintf("%v", value),
		Constraint: constraint,
		Suggestion: suggestion,
	}
}

var (
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	threadIDRe = regexp.MustCompile(`^thread_[a-zA-Z0-9]{24}$`)
	timezoneRe = regexp.MustCompile(`^[A-Za-z_]+(?:/[A-Za-z0-9_+\-]+)+$|^UTC$`)
	windowRe   = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])-([01][0-9]|2[0-3]):([0-5][0-9])$`)
)

// Phone checks that the value is a valid phone number in E.164 form.
func Phone(field, value string) error {
	if !strings.HasPrefix(value, "+") {
		return fieldErr(field, value, "must be in E.164 format", "prefix the number with '+' and a country code, e.g. +14155550123")
	}
	num, err := phonenumbers.Parse(value, "")
	if err != nil {
		return fieldErr(field, value, "must be a parseable E.164 phone number", "use digits only after the leading '+', e.g. +14155550123")
	}
	if !phonenumbers.IsValidNumber(num) {
		return fieldErr(field, value, "must be a valid phone number", "check the country code and national number length")
	}
	if formatted := phonenumbers.Format(num, phonenumbers.E164); formatted != value {
		return fieldErr(field, value, "must be in canonical E.164 form", fmt.Sprintf("use %s", formatted))
	}
	return nil
}

// Email checks basic address shape.
func Email(field, value string) error {
	if !emailRe.MatchString(value) {
		return fieldErr(field, value, "must be a valid email address", "use the form name@example.com")
	}
	return nil
}

// Timezone checks that the value is an IANA timezone name known to the host.
func Timezone(field, value string) error {
	if !timezoneRe.MatchString(value) {
		return fieldErr(field, value, "must be an IANA timezone name", "use Area/Location form, e.g. America/Chicago")
	}
	if _, err := time.LoadLocation(value); err != nil {
		return fieldErr(field, value, "must be a known IANA timezone", "check the spelling against the tz database")
	}
	return nil
}

// ThreadID checks the thread_<24 alphanumeric> wire format.
func ThreadID(field, value string) error {
	if !threadIDRe.MatchString(value) {
		return fieldErr(field, value, "must match thread_<24 alphanumeric>", "thread IDs are assigned at campaign creation and must not be altered")
	}
	return nil
}

// Locator checks that the value is an absolute http(s) URL.
func Locator(field, value string) error {
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fieldErr(field, value, "must be an absolute http(s) URL", "include the scheme and host, e.g. https://storage.example.com/rec/abc.wav")
	}
	return nil
}

// CallWindows checks that bestTimeToCall is an ordered set of non-overlapping
// HH:MM-HH:MM windows, each with end strictly after start.
func CallWindows(field string, windows []string) error {
	prevEnd := -1
	for i, w := range windows {
		m := windowRe.FindStringSubmatch(w)
		if m == nil {
			return fieldErr(fmt.Sprintf("%s[%d]", field, i), w, "must match HH:MM-HH:MM", "use 24-hour times, e.g. 09:00-11:30")
		}
		start := atoi2(m[1])*60 + atoi2(m[2])
		end := atoi2(m[3])*60 + atoi2(m[4])
		if end <= start {
			return fieldErr(fmt.Sprintf("%s[%d]", field, i), w, "window end must be strictly after start", "swap or widen the window bounds")
		}
		if start < prevEnd {
			return fieldErr(fmt.Sprintf("%s[%d]", field, i), w, "windows must be ordered and non-overlapping", "sort the windows and remove overlaps")
		}
		prevEnd = end
	}
	return nil
}

// atoi2 converts a two-digit string. Inputs are pre-matched by windowRe.
func atoi2(s string) int {
	return int(s[0]-'0')*10 + int(s[1]-'0')
}

// Contact validates a contact record before persistence.
func Contact(c *domain.Contact) error {
	if strings.TrimSpace(c.Name) == "" {
		return fieldErr("name", c.Name, "must not be empty", "")
	}
	if err := Phone("phone", c.Phone); err != nil {
		return err
	}
	if err := Email("email", c.Email); err != nil {
		return err
	}
	if err := Timezone("timezone", c.Timezone); err != nil {
		return err
	}
	return CallWindows("bestTimeToCall", c.BestTimeToCall)
}

// Campaign validates a campaign record's structure and cross-field semantics.
func Campaign(c *domain.Campaign) error {
	if c.ContactID == "" {
		return fieldErr("contactId", c.ContactID, "must not be empty", "")
	}
	if !c.Status.Valid() {
		return fieldErr("status", c.Status, "must be one of PENDING, IN_PROGRESS, COMPLETED, FAILED", "")
	}
	if err := ThreadID("threadId", c.ThreadID); err != nil {
		return err
	}
	if c.LastCompletedStep < 0 {
		return fieldErr("lastCompletedStep", c.LastCompletedStep, "must be non-negative", "")
	}
	if len(c.MessageHistory) > domain.MaxMessageHistory {
		return fieldErr("messageHistory", len(c.MessageHistory),
			fmt.Sprintf("must not exceed %d entries", domain.MaxMessageHistory), "")
	}
	for i, m := range c.MessageHistory {
		if !m.Type.Valid() {
			return fieldErr(fmt.Sprintf("messageHistory[%d].type", i), m.Type,
				"must be one of AGENT, CONTACT, SYSTEM", "")
		}
		if len(m.Message) > domain.MaxMessageLength {
			return fieldErr(fmt.Sprintf("messageHistory[%d].message", i), len(m.Message),
				fmt.Sprintf("must not exceed %d characters", domain.MaxMessageLength), "split the message into multiple entries")
		}
	}
	if c.LastCallOutcome != nil && !c.LastCallOutcome.Valid() {
		return fieldErr("lastCallOutcome", *c.LastCallOutcome, "must be a known call outcome", "")
	}
	if c.LastCallDate != nil && c.LastCallDate.Before(c.CreatedAt) {
		return fieldErr("lastCallDate", c.LastCallDate.Format(time.RFC3339),
			"must not be before createdAt", "")
	}

	// nextCallDate is non-null exactly while the campaign is schedulable.
	if c.Status.IsTerminal() && c.NextCallDate != nil {
		return fieldErr("nextCallDate", c.NextCallDate.Format(time.RFC3339),
			"must be null for COMPLETED/FAILED campaigns", "terminal transitions clear the schedule")
	}
	if !c.Status.IsTerminal() && c.NextCallDate == nil {
		return fieldErr("nextCallDate", "<nil>",
			"must be set for PENDING/IN_PROGRESS campaigns", "set the next scheduled call attempt")
	}
	return nil
}

// Schedule validates that a proposed call time is strictly in the future.
func Schedule(field string, at, now time.Time) error {
	if !at.After(now) {
		return fieldErr(field, at.Format(time.RFC3339),
			"must be strictly in the future", "pick a time after "+now.Format(time.RFC3339))
	}
	return nil
}

// OutcomeForStatus checks that the outcome is legal to record against the
// campaign's current status. PENDING only accepts NO_ANSWER; IN_PROGRESS
// accepts any outcome; terminal states accept only their defining outcome.
func OutcomeForStatus(status domain.CampaignStatus, outcome domain.CallOutcome) error {
	if !outcome.Valid() {
		return fieldErr("outcome", outcome, "must be a known call outcome", "")
	}
	switch status {
	case domain.CampaignPending:
		if outcome != domain.OutcomeNoAnswer {
			return fieldErr("outcome", outcome,
				"only NO_ANSWER may be recorded against a PENDING campaign",
				"claim the campaign (IN_PROGRESS) before recording other outcomes")
		}
	case domain.CampaignInProgress:
		// any outcome
	case domain.CampaignCompleted:
		if outcome != domain.OutcomeMeetingScheduled {
			return fieldErr("outcome", outcome, "campaign is COMPLETED", "")
		}
	case domain.CampaignFailed:
		if outcome != domain.OutcomeFailed {
			return fieldErr("outcome", outcome, "campaign is FAILED", "")
		}
	default:
		return fieldErr("status", status, "must be a known campaign status", "")
	}
	return nil
}

// CallRecord validates a call-record artifact before insertion.
func CallRecord(r *domain.CallRecord) error {
	if r.CampaignID == "" {
		return fieldErr("campaignId", r.CampaignID, "must not be empty", "")
	}
	if !r.Outcome.Valid() {
		return fieldErr("outcome", r.Outcome, "must be a known call outcome", "")
	}
	if r.TranscriptURL != "" {
		if err := Locator("transcriptUrl", r.TranscriptURL); err != nil {
			return err
		}
	}
	if r.RecordingURL != "" {
		if err := Locator("recordingUrl", r.RecordingURL); err != nil {
			return err
		}
	}
	if !r.EndedAt.After(r.StartedAt) {
		return fieldErr("endedAt", r.EndedAt.Format(time.RFC3339), "must be after startedAt", "")
	}
	if r.Duration < domain.MinCallDurationSeconds {
		return fieldErr("durationSeconds", r.Duration,
			fmt.Sprintf("must be at least %d seconds", domain.MinCallDurationSeconds),
			"calls shorter than the minimum are not recorded")
	}
	if r.SampleRateHz < domain.MinSampleRateHz || r.SampleRateHz > domain.MaxSampleRateHz {
		return fieldErr("sampleRateHz", r.SampleRateHz,
			fmt.Sprintf("must be between %d and %d", domain.MinSampleRateHz, domain.MaxSampleRateHz), "")
	}
	if r.BitDepth < domain.MinBitDepth || r.BitDepth > domain.MaxBitDepth {
		return fieldErr("bitDepth", r.BitDepth,
			fmt.Sprintf("must be between %d and %d", domain.MinBitDepth, domain.MaxBitDepth), "")
	}
	if r.Channels < domain.MinChannels || r.Channels > domain.MaxChannels {
		return fieldErr("channels", r.Channels, "must be mono or stereo", "")
	}
	return nil
}
