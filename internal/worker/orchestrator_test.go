package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dialer/internal/domain"
	"github.com/ignite/dialer/internal/pkg/retry"
	"github.com/ignite/dialer/internal/queue"
	"github.com/ignite/dialer/internal/service/campaign"
)

// memRepo mirrors the Postgres repository's conditional-write semantics for
// orchestrator tests.
type memRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign

	// dueOutages makes the next N FindDueForCall calls fail like a lost
	// database connection; dueCalls counts every attempt.
	dueOutages int32
	dueCalls   int64
}

func newMemRepo() *memRepo {
	return &memRepo{campaigns: map[string]*domain.Campaign{}}
}

func cloneCampaign(c *domain.Campaign) *domain.Campaign {
	cp := *c
	cp.MessageHistory = append([]domain.MessageEntry(nil), c.MessageHistory...)
	if c.LastCallOutcome != nil {
		o := *c.LastCallOutcome
		cp.LastCallOutcome = &o
	}
	if c.LastCallDate != nil {
		t := *c.LastCallDate
		cp.LastCallDate = &t
	}
	if c.NextCallDate != nil {
		t := *c.NextCallDate
		cp.NextCallDate = &t
	}
	return &cp
}

func (r *memRepo) FindByID(ctx context.Context, id string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	return cloneCampaign(c), nil
}

func (r *memRepo) ApplyAtomic(ctx context.Context, id string, expected domain.CampaignStatus, fn campaign.Mutation) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	if cur.Status != expected {
		return nil, campaign.ErrConflict
	}
	next := cloneCampaign(cur)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version++
	next.UpdatedAt = time.Now()
	r.campaigns[id] = next
	return cloneCampaign(next), nil
}

func (r *memRepo) FindDueForCall(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	atomic.AddInt64(&r.dueCalls, 1)
	if atomic.AddInt32(&r.dueOutages, -1) >= 0 {
		return nil, errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Campaign
	for _, c := range r.campaigns {
		if c.Status.IsTerminal() || c.NextCallDate == nil {
			continue
		}
		if !c.NextCallDate.After(now) {
			out = append(out, *cloneCampaign(c))
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memRepo) CountActiveForContact(ctx context.Context, contactID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.campaigns {
		if c.ContactID == contactID && !c.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) Create(ctx context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

type memContacts struct{}

func (memContacts) FindContact(ctx context.Context, id string) (*domain.Contact, error) {
	return &domain.Contact{ID: id, Name: "Dr. Adams", Phone: "+14155550123",
		Email: "adams@example.com", Timezone: "America/New_York"}, nil
}

// scriptedExecutor returns canned results keyed by campaign ID.
type scriptedExecutor struct {
	mu      sync.Mutex
	results map[string]*CallResult
	errs    map[string]error
	calls   int64
}

func (e *scriptedExecutor) Execute(ctx context.Context, job queue.DispatchPayload) (*CallResult, error) {
	atomic.AddInt64(&e.calls, 1)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err, ok := e.errs[job.CampaignID]; ok {
		return nil, err
	}
	if res, ok := e.results[job.CampaignID]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("no scripted result for %s", job.CampaignID)
}

func setupOrchestrator(t *testing.T, exec CallExecutor) (*Orchestrator, *memRepo, *campaign.Service) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := newMemRepo()
	svc := campaign.NewService(repo, memContacts{})
	q := queue.New(client)

	o := NewOrchestrator(svc, q, exec, nil, OrchestratorConfig{
		NumWorkers:   2,
		BatchSize:    10,
		PollInterval: 20 * time.Millisecond,
		ClaimLease:   time.Minute,
		RedialDelay:  time.Minute,
	})
	o.SetRetryPolicy(retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	return o, repo, svc
}

func seedDue(t *testing.T, svc *campaign.Service, repo *memRepo, id string) {
	t.Helper()
	c, err := svc.Create(context.Background(), "contact-"+id, time.Now().Add(time.Hour))
	require.NoError(t, err)

	// Re-key under a stable id, backdate creation, and pull the schedule
	// into the past so the campaign is immediately due.
	repo.mu.Lock()
	stored := repo.campaigns[c.ID]
	delete(repo.campaigns, c.ID)
	past := time.Now().Add(-time.Minute)
	stored.ID = id
	stored.CreatedAt = time.Now().Add(-time.Hour)
	stored.NextCallDate = &past
	repo.campaigns[id] = stored
	repo.mu.Unlock()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestOrchestratorDispatchAndComplete(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	exec := &scriptedExecutor{results: map[string]*CallResult{
		"camp-ok": {
			Outcome:   domain.OutcomeMeetingScheduled,
			StartedAt: started,
			EndedAt:   started.Add(90 * time.Second),
		},
	}}
	o, repo, svc := setupOrchestrator(t, exec)
	seedDue(t, svc, repo, "camp-ok")

	require.NoError(t, o.Start())
	defer o.Stop()

	waitFor(t, 5*time.Second, func() bool {
		c, err := repo.FindByID(context.Background(), "camp-ok")
		return err == nil && c.Status == domain.CampaignCompleted
	})

	c, err := repo.FindByID(context.Background(), "camp-ok")
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignCompleted, c.Status)
	assert.Nil(t, c.NextCallDate, "terminal campaign must have no schedule")
	require.NotNil(t, c.LastCallOutcome)
	assert.Equal(t, domain.OutcomeMeetingScheduled, *c.LastCallOutcome)
}

func TestOrchestratorDeclinedStaysInProgress(t *testing.T) {
	next := time.Now().Add(2 * time.Hour)
	exec := &scriptedExecutor{results: map[string]*CallResult{
		"camp-declined": {
			Outcome:      domain.OutcomeDeclined,
			Reason:       "Not interested",
			StartedAt:    time.Now().Add(-time.Minute),
			NextCallDate: &next,
		},
	}}
	o, repo, svc := setupOrchestrator(t, exec)
	seedDue(t, svc, repo, "camp-declined")

	require.NoError(t, o.Start())
	defer o.Stop()

	waitFor(t, 5*time.Second, func() bool {
		c, err := repo.FindByID(context.Background(), "camp-declined")
		return err == nil && len(c.MessageHistory) > 0
	})

	c, err := repo.FindByID(context.Background(), "camp-declined")
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignInProgress, c.Status)
	require.NotEmpty(t, c.MessageHistory)
	last := c.MessageHistory[len(c.MessageHistory)-1]
	assert.Equal(t, domain.MessageSystem, last.Type)
	assert.Equal(t, "Call declined: Not interested", last.Message)
	require.NotNil(t, c.NextCallDate)
	assert.True(t, c.NextCallDate.Equal(next))
}

func TestOrchestratorReleasesClaimOnExecutionFailure(t *testing.T) {
	exec := &scriptedExecutor{errs: map[string]error{
		"camp-err": errors.New("telephony unavailable"),
	}}
	o, repo, svc := setupOrchestrator(t, exec)
	seedDue(t, svc, repo, "camp-err")

	require.NoError(t, o.Start())
	defer o.Stop()

	waitFor(t, 5*time.Second, func() bool {
		return atomic.LoadInt64(&o.failed) >= 1
	})

	waitFor(t, 5*time.Second, func() bool {
		c, err := repo.FindByID(context.Background(), "camp-err")
		if err != nil {
			return false
		}
		// Released claims stay IN_PROGRESS with a future redial schedule.
		return c.Status == domain.CampaignInProgress &&
			c.NextCallDate != nil && c.NextCallDate.After(time.Now())
	})
}

func TestOrchestratorClaimPreventsDoubleDispatch(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	exec := &scriptedExecutor{results: map[string]*CallResult{
		"camp-once": {
			Outcome:   domain.OutcomeMeetingScheduled,
			StartedAt: started,
		},
	}}
	o, repo, svc := setupOrchestrator(t, exec)
	seedDue(t, svc, repo, "camp-once")

	require.NoError(t, o.Start())

	waitFor(t, 5*time.Second, func() bool {
		c, err := repo.FindByID(context.Background(), "camp-once")
		return err == nil && c.Status.IsTerminal()
	})

	// Let several more poll cycles run; the campaign must not be re-dispatched.
	time.Sleep(100 * time.Millisecond)
	o.Stop()

	assert.Equal(t, int64(1), atomic.LoadInt64(&exec.calls), "terminal campaign was dispatched again")
}

func TestOrchestratorRetriesStoreOutage(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	exec := &scriptedExecutor{results: map[string]*CallResult{
		"camp-retry": {
			Outcome:   domain.OutcomeMeetingScheduled,
			StartedAt: started,
			EndedAt:   started.Add(90 * time.Second),
		},
	}}
	o, repo, svc := setupOrchestrator(t, exec)
	o.SetRetryPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	seedDue(t, svc, repo, "camp-retry")

	// Two connection failures, then a working scan: one dispatch cycle must
	// absorb the outage through the retry policy.
	atomic.StoreInt32(&repo.dueOutages, 2)

	o.ctx, o.cancel = context.WithCancel(context.Background())
	defer o.cancel()
	o.dispatchDue()

	assert.Equal(t, int64(3), atomic.LoadInt64(&repo.dueCalls), "store outage was not retried within the cycle")
	assert.Equal(t, int64(1), atomic.LoadInt64(&o.dispatched))
}

func TestOrchestratorBreakerConfigApplied(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := newMemRepo()
	svc := campaign.NewService(repo, memContacts{})
	o := NewOrchestrator(svc, queue.New(client), &scriptedExecutor{}, nil, OrchestratorConfig{
		NumWorkers:       1,
		BreakerThreshold: 1,
		BreakerOpenFor:   time.Hour,
	})
	o.SetRetryPolicy(retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	atomic.StoreInt32(&repo.dueOutages, 10)
	o.ctx, o.cancel = context.WithCancel(context.Background())
	defer o.cancel()
	o.dispatchDue()

	assert.Equal(t, "open", o.BreakerStates()["store"], "one failure must trip a threshold-1 breaker")
	assert.Equal(t, "closed", o.BreakerStates()["queue"])
}

func TestOrchestratorStopSignal(t *testing.T) {
	exec := &scriptedExecutor{}
	o, _, _ := setupOrchestrator(t, exec)

	require.NoError(t, o.Start())
	require.NoError(t, o.q.PublishStop(context.Background()))

	waitFor(t, 5*time.Second, func() bool {
		o.mu.RLock()
		defer o.mu.RUnlock()
		return !o.running
	})
}

func TestOrchestratorDoubleStart(t *testing.T) {
	exec := &scriptedExecutor{}
	o, _, _ := setupOrchestrator(t, exec)

	require.NoError(t, o.Start())
	defer o.Stop()
	assert.Error(t, o.Start(), "second Start must fail while running")
}

func TestClaimRecoveryRescuesStaleClaims(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE dialer_campaigns\s+SET next_call_date = NOW\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	cr := NewClaimRecoveryWorkerWithConfig(db, time.Minute, 10*time.Minute)
	cr.recoverStaleClaims(context.Background())

	assert.NoError(t, mock.ExpectationsWereMet())
}
