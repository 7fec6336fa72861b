package domain

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from    CampaignStatus
		to      CampaignStatus
		allowed bool
	}{
		{CampaignPending, CampaignInProgress, true},
		{CampaignPending, CampaignFailed, true},
		{CampaignPending, CampaignCompleted, false},
		{CampaignPending, CampaignPending, false},
		{CampaignInProgress, CampaignCompleted, true},
		{CampaignInProgress, CampaignFailed, true},
		{CampaignInProgress, CampaignPending, false},
		{CampaignInProgress, CampaignInProgress, false},
		{CampaignCompleted, CampaignPending, false},
		{CampaignCompleted, CampaignInProgress, false},
		{CampaignCompleted, CampaignCompleted, false},
		{CampaignCompleted, CampaignFailed, false},
		{CampaignFailed, CampaignPending, false},
		{CampaignFailed, CampaignInProgress, false},
		{CampaignFailed, CampaignFailed, false},
		{CampaignFailed, CampaignCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, CampaignPending.IsTerminal())
	assert.False(t, CampaignInProgress.IsTerminal())
	assert.True(t, CampaignCompleted.IsTerminal())
	assert.True(t, CampaignFailed.IsTerminal())
}

func TestNewThreadID(t *testing.T) {
	pattern := regexp.MustCompile(`^thread_[a-zA-Z0-9]{24}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewThreadID()
		assert.Regexp(t, pattern, id)
		assert.False(t, seen[id], "duplicate thread id %s", id)
		seen[id] = true
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, CampaignPending.Valid())
	assert.True(t, CampaignFailed.Valid())
	assert.False(t, CampaignStatus("SENT").Valid())
	assert.False(t, CampaignStatus("").Valid())
}

func TestOutcomeValid(t *testing.T) {
	assert.True(t, OutcomeMeetingScheduled.Valid())
	assert.True(t, OutcomeNoAnswer.Valid())
	assert.False(t, CallOutcome("HUNG_UP").Valid())
}
