package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/dialer/internal/domain"
	"github.com/ignite/dialer/internal/pkg/httpretry"
	"github.com/ignite/dialer/internal/queue"
	"github.com/ignite/dialer/internal/service/campaign"
)

// GatewayExecutor places calls through the external voice gateway's HTTP API.
// The gateway owns telephony, speech, and recording; we send it the campaign
// context and get back the outcome of the attempt.
type GatewayExecutor struct {
	baseURL string
	apiKey  string
	client  httpretry.HTTPDoer
}

// gatewayResponse is the gateway's call-result payload.
type gatewayResponse struct {
	Outcome       string     `json:"outcome"`
	Reason        string     `json:"reason,omitempty"`
	StartedAt     time.Time  `json:"startedAt"`
	EndedAt       time.Time  `json:"endedAt"`
	NextCallDate  *time.Time `json:"nextCallDate,omitempty"`
	TranscriptURL string     `json:"transcriptUrl,omitempty"`
	RecordingURL  string     `json:"recordingUrl,omitempty"`
	Duration      int        `json:"durationSeconds,omitempty"`
	SampleRateHz  int        `json:"sampleRateHz,omitempty"`
	BitDepth      int        `json:"bitDepth,omitempty"`
	Channels      int        `json:"channels,omitempty"`
}

// NewGatewayExecutor creates an executor for the given gateway endpoint.
// client may be nil; a retrying HTTP client with sane defaults is used.
func NewGatewayExecutor(baseURL, apiKey string, client httpretry.HTTPDoer) *GatewayExecutor {
	if client == nil {
		client = httpretry.NewRetryClient(&http.Client{Timeout: 5 * time.Minute}, 3)
	}
	return &GatewayExecutor{baseURL: baseURL, apiKey: apiKey, client: client}
}

// Execute runs one call attempt. Gateway 5xx responses and transport errors
// are reported as transient so the orchestrator's retry policy applies;
// 4xx responses are permanent.
func (g *GatewayExecutor) Execute(ctx context.Context, job queue.DispatchPayload) (*CallResult, error) {
	body, err := json.Marshal(map[string]string{
		"campaignId": job.CampaignID,
		"contactId":  job.ContactID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal call request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/calls", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, campaign.Transient("call-execution", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, campaign.Transient("call-execution",
			fmt.Errorf("gateway returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gateway rejected call (%d): %s", resp.StatusCode, data)
	}

	var gw gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&gw); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	outcome := domain.CallOutcome(gw.Outcome)
	if !outcome.Valid() {
		return nil, fmt.Errorf("gateway returned unknown outcome %q", gw.Outcome)
	}

	result := &CallResult{
		Outcome:      outcome,
		Reason:       gw.Reason,
		StartedAt:    gw.StartedAt,
		EndedAt:      gw.EndedAt,
		NextCallDate: gw.NextCallDate,
	}
	if gw.TranscriptURL != "" && gw.RecordingURL != "" {
		result.Record = &domain.CallRecord{
			CampaignID:    job.CampaignID,
			TranscriptURL: gw.TranscriptURL,
			RecordingURL:  gw.RecordingURL,
			StartedAt:     gw.StartedAt,
			EndedAt:       gw.EndedAt,
			Duration:      gw.Duration,
			Outcome:       outcome,
			SampleRateHz:  gw.SampleRateHz,
			BitDepth:      gw.BitDepth,
			Channels:      gw.Channels,
		}
	}
	return result, nil
}
