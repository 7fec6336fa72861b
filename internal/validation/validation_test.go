package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dialer/internal/domain"
)

func TestPhone(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"+14155550123", true},
		{"+442071838750", true},
		{"14155550123", false},    // missing +
		{"+1415555", false},       // too short
		{"+1 415 555 0123", false}, // not canonical E.164
		{"not-a-number", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			err := Phone("phone", tt.value)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestPhoneErrorDetail(t *testing.T) {
	err := Phone("phone", "4155550123")
	require.Error(t, err)

	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "phone", fe.Field)
	assert.Equal(t, "4155550123", fe.Value)
	assert.Contains(t, fe.Constraint, "E.164")
	assert.NotEmpty(t, fe.Suggestion)
}

func TestEmail(t *testing.T) {
	assert.NoError(t, Email("email", "dr.smith@example.com"))
	assert.Error(t, Email("email", "dr.smith@"))
	assert.Error(t, Email("email", "no-at-sign.com"))
}

func TestTimezone(t *testing.T) {
	assert.NoError(t, Timezone("timezone", "America/Chicago"))
	assert.NoError(t, Timezone("timezone", "UTC"))
	assert.Error(t, Timezone("timezone", "Central Time"))
	assert.Error(t, Timezone("timezone", "America/Nowhere"))
}

func TestThreadID(t *testing.T) {
	assert.NoError(t, ThreadID("threadId", domain.NewThreadID()))
	assert.Error(t, ThreadID("threadId", "thread_short"))
	assert.Error(t, ThreadID("threadId", "conv_abcdefghij0123456789abcd"))
	assert.Error(t, ThreadID("threadId", "thread_abcdefghij0123456789ab!d"))
}

func TestLocator(t *testing.T) {
	assert.NoError(t, Locator("recordingUrl", "https://storage.example.com/rec/abc.wav"))
	assert.Error(t, Locator("recordingUrl", "ftp://storage.example.com/rec"))
	assert.Error(t, Locator("recordingUrl", "/rec/abc.wav"))
}

func TestCallWindows(t *testing.T) {
	assert.NoError(t, CallWindows("bestTimeToCall", nil))
	assert.NoError(t, CallWindows("bestTimeToCall", []string{"09:00-11:30", "13:00-17:00"}))

	// end must be strictly after start
	assert.Error(t, CallWindows("bestTimeToCall", []string{"09:00-09:00"}))
	assert.Error(t, CallWindows("bestTimeToCall", []string{"11:00-09:00"}))

	// ordered, non-overlapping
	assert.Error(t, CallWindows("bestTimeToCall", []string{"09:00-12:00", "11:00-13:00"}))
	assert.Error(t, CallWindows("bestTimeToCall", []string{"13:00-17:00", "09:00-11:00"}))

	// format
	assert.Error(t, CallWindows("bestTimeToCall", []string{"9:00-11:00"}))
	assert.Error(t, CallWindows("bestTimeToCall", []string{"25:00-26:00"}))
}

func validCampaign() *domain.Campaign {
	next := time.Now().Add(time.Hour)
	return &domain.Campaign{
		ID:           "c-1",
		ContactID:    "contact-1",
		Status:       domain.CampaignPending,
		ThreadID:     domain.NewThreadID(),
		NextCallDate: &next,
		CreatedAt:    time.Now().Add(-time.Minute),
		UpdatedAt:    time.Now(),
	}
}

func TestCampaignValid(t *testing.T) {
	assert.NoError(t, Campaign(validCampaign()))
}

func TestCampaignNextCallDateInvariant(t *testing.T) {
	// terminal with a schedule set
	c := validCampaign()
	c.Status = domain.CampaignCompleted
	err := Campaign(c)
	require.Error(t, err)
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "nextCallDate", fe.Field)

	// non-terminal without a schedule
	c = validCampaign()
	c.NextCallDate = nil
	assert.Error(t, Campaign(c))

	// terminal without a schedule is fine
	c = validCampaign()
	c.Status = domain.CampaignFailed
	c.NextCallDate = nil
	assert.NoError(t, Campaign(c))
}

func TestCampaignLastCallDate(t *testing.T) {
	c := validCampaign()
	before := c.CreatedAt.Add(-time.Hour)
	c.LastCallDate = &before
	assert.Error(t, Campaign(c))

	after := c.CreatedAt.Add(time.Hour)
	c.LastCallDate = &after
	outcome := domain.OutcomeNoAnswer
	c.LastCallOutcome = &outcome
	assert.NoError(t, Campaign(c))
}

func TestCampaignHistoryBounds(t *testing.T) {
	c := validCampaign()
	c.MessageHistory = []domain.MessageEntry{{
		Timestamp: time.Now(),
		Message:   strings.Repeat("x", domain.MaxMessageLength+1),
		Type:      domain.MessageAgent,
	}}
	assert.Error(t, Campaign(c))

	c.MessageHistory[0].Message = strings.Repeat("x", domain.MaxMessageLength)
	assert.NoError(t, Campaign(c))
}

func TestSchedule(t *testing.T) {
	now := time.Now()
	assert.NoError(t, Schedule("firstCallDate", now.Add(time.Hour), now))
	assert.Error(t, Schedule("firstCallDate", now, now))
	assert.Error(t, Schedule("firstCallDate", now.Add(-time.Hour), now))
}

func TestOutcomeForStatus(t *testing.T) {
	tests := []struct {
		status  domain.CampaignStatus
		outcome domain.CallOutcome
		ok      bool
	}{
		{domain.CampaignPending, domain.OutcomeNoAnswer, true},
		{domain.CampaignPending, domain.OutcomeMeetingScheduled, false},
		{domain.CampaignPending, domain.OutcomeDeclined, false},
		{domain.CampaignInProgress, domain.OutcomeMeetingScheduled, true},
		{domain.CampaignInProgress, domain.OutcomeDeclined, true},
		{domain.CampaignInProgress, domain.OutcomeFailed, true},
		{domain.CampaignInProgress, domain.OutcomeBusy, true},
		{domain.CampaignCompleted, domain.OutcomeMeetingScheduled, true},
		{domain.CampaignCompleted, domain.OutcomeNoAnswer, false},
		{domain.CampaignFailed, domain.OutcomeFailed, true},
		{domain.CampaignFailed, domain.OutcomeDeclined, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status)+"/"+string(tt.outcome), func(t *testing.T) {
			err := OutcomeForStatus(tt.status, tt.outcome)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func validRecord() *domain.CallRecord {
	start := time.Now().Add(-time.Minute)
	return &domain.CallRecord{
		ID:            "r-1",
		CampaignID:    "c-1",
		TranscriptURL: "https://storage.example.com/tx/r-1.json",
		RecordingURL:  "https://storage.example.com/rec/r-1.wav",
		StartedAt:     start,
		EndedAt:       start.Add(45 * time.Second),
		Duration:      45,
		Outcome:       domain.OutcomeDeclined,
		SampleRateHz:  16000,
		BitDepth:      16,
		Channels:      1,
	}
}

func TestCallRecord(t *testing.T) {
	assert.NoError(t, CallRecord(validRecord()))

	r := validRecord()
	r.Duration = 4
	assert.Error(t, CallRecord(r))

	r = validRecord()
	r.SampleRateHz = 96000
	assert.Error(t, CallRecord(r))

	r = validRecord()
	r.BitDepth = 64
	assert.Error(t, CallRecord(r))

	r = validRecord()
	r.Channels = 6
	assert.Error(t, CallRecord(r))

	r = validRecord()
	r.EndedAt = r.StartedAt
	assert.Error(t, CallRecord(r))
}

func TestContact(t *testing.T) {
	c := &domain.Contact{
		ID:             "contact-1",
		Name:           "Dr. Sarah Smith",
		Practice:       "Lakeside Dental",
		Phone:          "+14155550123",
		Email:          "sarah@lakesidedental.com",
		Timezone:       "America/Chicago",
		BestTimeToCall: []string{"09:00-11:00", "14:00-16:00"},
	}
	assert.NoError(t, Contact(c))

	c.Phone = "415-555-0123"
	assert.Error(t, Contact(c))
}
