package domain

import "time"

// Audio characteristic bounds for recorded calls.
const (
	MinCallDurationSeconds = 5
	MinSampleRateHz        = 8000
	MaxSampleRateHz        = 48000
	MinBitDepth            = 8
	MaxBitDepth            = 32
	MinChannels            = 1
	MaxChannels            = 2
)

// CallRecord is the immutable artifact of one call attempt. Records are
// created once per attempt and never mutated.
type CallRecord struct {
	ID            string      `json:"id" db:"id"`
	CampaignID    string      `json:"campaign_id" db:"campaign_id"`
	TranscriptURL string      `json:"transcript_url" db:"transcript_url"`
	RecordingURL  string      `json:"recording_url" db:"recording_url"`
	StartedAt     time.Time   `json:"started_at" db:"started_at"`
	EndedAt       time.Time   `json:"ended_at" db:"ended_at"`
	Duration      int         `json:"duration_seconds" db:"duration_seconds"`
	Outcome       CallOutcome `json:"outcome" db:"outcome"`
	SampleRateHz  int         `json:"sample_rate_hz" db:"sample_rate_hz"`
	BitDepth      int         `json:"bit_depth" db:"bit_depth"`
	Channels      int         `json:"channels" db:"channels"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}
