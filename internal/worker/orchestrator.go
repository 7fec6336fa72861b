// Package worker runs the call dispatch loop: a single poll loop finds due
// campaigns, claims them through the store's conditional write, and hands
// them to a fixed pool of call workers over the Redis queue. Outcomes flow
// back into the campaign lifecycle; infrastructure failures go through the
// retry policy and per-dependency circuit breakers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/dialer/internal/domain"
	"github.com/ignite/dialer/internal/pkg/breaker"
	"github.com/ignite/dialer/internal/pkg/distlock"
	"github.com/ignite/dialer/internal/pkg/retry"
	"github.com/ignite/dialer/internal/queue"
	"github.com/ignite/dialer/internal/service/campaign"
	"github.com/ignite/dialer/internal/validation"
)

const (
	// DefaultPollInterval is how often the poll loop scans for due campaigns.
	DefaultPollInterval = 30 * time.Second

	// DefaultClaimLease is how far a claim pushes the schedule out. If the
	// worker dies mid-call, the campaign re-enters dispatch once the lease
	// horizon passes.
	DefaultClaimLease = 10 * time.Minute

	// DefaultRedialDelay is the fallback schedule when a call attempt fails
	// before producing an outcome.
	DefaultRedialDelay = 15 * time.Minute

	heartbeatInterval = 10 * time.Second
	popWait           = 2 * time.Second
)

// CallResult is what a completed call attempt produced.
type CallResult struct {
	Outcome      domain.CallOutcome
	Reason       string
	StartedAt    time.Time
	EndedAt      time.Time
	NextCallDate *time.Time
	Record       *domain.CallRecord
}

// CallExecutor places the actual call. Implementations talk to the external
// voice stack; errors they return are classified by campaign.IsTransient.
type CallExecutor interface {
	Execute(ctx context.Context, job queue.DispatchPayload) (*CallResult, error)
}

// OrchestratorConfig holds dispatch loop tuning.
type OrchestratorConfig struct {
	NumWorkers   int
	BatchSize    int
	PollInterval time.Duration
	ClaimLease   time.Duration
	RedialDelay  time.Duration

	// BreakerThreshold is consecutive failures before a dependency breaker
	// opens; BreakerOpenFor is how long it stays open. The call-execution
	// breaker stays open twice as long as the store/queue breakers.
	BreakerThreshold int
	BreakerOpenFor   time.Duration
}

// Stats is a point-in-time snapshot of orchestrator counters.
type Stats struct {
	WorkerID   string `json:"workerId"`
	Running    bool   `json:"running"`
	InFlight   int64  `json:"inFlight"`
	Dispatched int64  `json:"dispatched"`
	Processed  int64  `json:"processed"`
	Failed     int64  `json:"failed"`
	Conflicts  int64  `json:"conflicts"`
	QueueDepth int64  `json:"queueDepth"`
}

// Orchestrator owns the poll loop and the call worker pool.
type Orchestrator struct {
	svc      *campaign.Service
	records  campaign.CallRecordRepository // optional
	q        *queue.Queue
	executor CallExecutor
	lock     distlock.DistLock

	storeBreaker *breaker.Breaker
	queueBreaker *breaker.Breaker
	callBreaker  *breaker.Breaker
	retryPolicy  retry.Policy

	workerID     string
	numWorkers   int
	batchSize    int
	pollInterval time.Duration
	claimLease   time.Duration
	redialDelay  time.Duration

	// Stats
	inFlight   int64
	dispatched int64
	processed  int64
	failed     int64
	conflicts  int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewOrchestrator creates the dispatch orchestrator. records may be nil if
// call record persistence is disabled.
func NewOrchestrator(svc *campaign.Service, q *queue.Queue, executor CallExecutor, lock distlock.DistLock, cfg OrchestratorConfig) *Orchestrator {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = DefaultClaimLease
	}
	if cfg.RedialDelay <= 0 {
		cfg.RedialDelay = DefaultRedialDelay
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 30 * time.Second
	}

	return &Orchestrator{
		svc:          svc,
		q:            q,
		executor:     executor,
		lock:         lock,
		storeBreaker: breaker.New("store", cfg.BreakerThreshold, cfg.BreakerOpenFor),
		queueBreaker: breaker.New("queue", cfg.BreakerThreshold, cfg.BreakerOpenFor),
		callBreaker:  breaker.New("call-execution", cfg.BreakerThreshold, 2*cfg.BreakerOpenFor),
		retryPolicy:  retry.DefaultPolicy(),
		workerID:     fmt.Sprintf("orchestrator-%s-%s", hostname(), uuid.New().String()[:8]),
		numWorkers:   cfg.NumWorkers,
		batchSize:    cfg.BatchSize,
		pollInterval: cfg.PollInterval,
		claimLease:   cfg.ClaimLease,
		redialDelay:  cfg.RedialDelay,
	}
}

// SetCallRecords enables call record persistence.
func (o *Orchestrator) SetCallRecords(records campaign.CallRecordRepository) {
	o.records = records
}

// SetRetryPolicy overrides the default retry policy.
func (o *Orchestrator) SetRetryPolicy(p retry.Policy) { o.retryPolicy = p }

// Start launches the poll loop, the worker pool, the heartbeat loop, and the
// control channel listener.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	o.running = true
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.mu.Unlock()

	log.Printf("[Orchestrator] Starting %d workers (poll=%v batch=%d worker_id=%s)",
		o.numWorkers, o.pollInterval, o.batchSize, o.workerID)

	o.wg.Add(1)
	go o.heartbeatLoop()

	o.wg.Add(1)
	go o.pollLoop()

	for i := 0; i < o.numWorkers; i++ {
		o.wg.Add(1)
		go o.callWorker(i)
	}

	o.wg.Add(1)
	go o.controlLoop()

	return nil
}

// Stop drains the loops and waits for in-flight calls to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()

	log.Printf("[Orchestrator] Stopping...")
	o.cancel()
	o.wg.Wait()
	log.Printf("[Orchestrator] Stopped. Dispatched: %d, Processed: %d, Failed: %d, Conflicts: %d",
		atomic.LoadInt64(&o.dispatched), atomic.LoadInt64(&o.processed),
		atomic.LoadInt64(&o.failed), atomic.LoadInt64(&o.conflicts))
}

// Stats returns a snapshot of the counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.RLock()
	running := o.running
	o.mu.RUnlock()

	var depth int64
	if running {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		depth, _ = o.q.Depth(ctx)
		cancel()
	}
	return Stats{
		WorkerID:   o.workerID,
		Running:    running,
		InFlight:   atomic.LoadInt64(&o.inFlight),
		Dispatched: atomic.LoadInt64(&o.dispatched),
		Processed:  atomic.LoadInt64(&o.processed),
		Failed:     atomic.LoadInt64(&o.failed),
		Conflicts:  atomic.LoadInt64(&o.conflicts),
		QueueDepth: depth,
	}
}

// BreakerStates reports each dependency breaker's current state.
func (o *Orchestrator) BreakerStates() map[string]string {
	return map[string]string{
		o.storeBreaker.Name(): o.storeBreaker.State().String(),
		o.queueBreaker.Name(): o.queueBreaker.State().String(),
		o.callBreaker.Name():  o.callBreaker.State().String(),
	}
}

// pollLoop is the sole producer. Each tick it takes the cluster-wide dispatch
// lock, scans for due campaigns, claims them, and enqueues dispatch jobs.
func (o *Orchestrator) pollLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.dispatchDue()
		}
	}
}

func (o *Orchestrator) dispatchDue() {
	ctx, cancel := context.WithTimeout(o.ctx, o.pollInterval)
	defer cancel()

	if o.lock != nil {
		acquired, err := o.lock.Acquire(ctx)
		if err != nil {
			log.Printf("[Orchestrator] Dispatch lock error: %v", err)
			return
		}
		if !acquired {
			// Another instance is polling.
			return
		}
		defer o.lock.Release(ctx)
	}

	limit := o.capacity(ctx)
	if limit <= 0 {
		return
	}

	var due []domain.Campaign
	err := o.storeBreaker.Do(ctx, func(ctx context.Context) error {
		return o.retryPolicy.Do(ctx, func(ctx context.Context) error {
			var err error
			due, err = o.svc.Due(ctx, limit)
			if err != nil {
				// The due scan has no domain failure modes; any error
				// here is store unavailability.
				return campaign.Transient("store", err)
			}
			return nil
		}, campaign.IsTransient)
	})
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			log.Printf("[Orchestrator] Store breaker open, skipping poll cycle")
		} else {
			log.Printf("[Orchestrator] Failed to scan due campaigns: %v", err)
		}
		return
	}

	for i := range due {
		c := &due[i]
		claimed, err := o.svc.Claim(ctx, c.ID, time.Now().Add(o.claimLease))
		if err != nil {
			// Lost the race to another instance; not an error.
			if errors.Is(err, campaign.ErrConflict) || errors.Is(err, campaign.ErrIllegalTransition) {
				atomic.AddInt64(&o.conflicts, 1)
				continue
			}
			log.Printf("[Orchestrator] Claim failed for campaign %s: %v", c.ID, err)
			atomic.AddInt64(&o.failed, 1)
			continue
		}

		job := queue.DispatchPayload{
			CampaignID:   claimed.ID,
			ContactID:    claimed.ContactID,
			ScheduledFor: *c.NextCallDate,
		}
		err = o.queueBreaker.Do(ctx, func(ctx context.Context) error {
			return o.retryPolicy.Do(ctx, func(ctx context.Context) error {
				if err := o.q.Push(ctx, job); err != nil {
					return campaign.Transient("queue", err)
				}
				return nil
			}, campaign.IsTransient)
		})
		if err != nil {
			log.Printf("[Orchestrator] Enqueue failed for campaign %s: %v", claimed.ID, err)
			o.releaseClaim(ctx, claimed.ID)
			atomic.AddInt64(&o.failed, 1)
			continue
		}
		atomic.AddInt64(&o.dispatched, 1)
	}
}

// capacity bounds a poll cycle so the queue never holds more than two full
// worker rounds.
func (o *Orchestrator) capacity(ctx context.Context) int {
	limit := o.batchSize
	maxQueued := int64(o.numWorkers * 2)
	depth, err := o.q.Depth(ctx)
	if err != nil {
		return limit
	}
	backlog := depth + atomic.LoadInt64(&o.inFlight)
	if backlog >= maxQueued {
		return 0
	}
	if room := int(maxQueued - backlog); room < limit {
		limit = room
	}
	return limit
}

// callWorker consumes dispatch jobs until shutdown.
func (o *Orchestrator) callWorker(id int) {
	defer o.wg.Done()

	for {
		select {
		case <-o.ctx.Done():
			return
		default:
		}

		job, err := o.q.Pop(o.ctx, popWait)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if o.ctx.Err() != nil {
				return
			}
			log.Printf("[Orchestrator] Worker %d pop error: %v", id, err)
			continue
		}

		o.processJob(job)
	}
}

func (o *Orchestrator) processJob(job *queue.DispatchPayload) {
	atomic.AddInt64(&o.inFlight, 1)
	defer atomic.AddInt64(&o.inFlight, -1)

	ctx, cancel := context.WithTimeout(o.ctx, o.claimLease)
	defer cancel()

	var result *CallResult
	err := o.callBreaker.Do(ctx, func(ctx context.Context) error {
		return o.retryPolicy.Do(ctx, func(ctx context.Context) error {
			var err error
			result, err = o.executor.Execute(ctx, *job)
			return err
		}, campaign.IsTransient)
	})
	if err != nil {
		log.Printf("[Orchestrator] Call failed for campaign %s: %v", job.CampaignID, err)
		o.releaseClaim(ctx, job.CampaignID)
		atomic.AddInt64(&o.failed, 1)
		return
	}

	details := campaign.OutcomeDetails{
		Reason:       result.Reason,
		CallDate:     result.StartedAt,
		NextCallDate: result.NextCallDate,
	}
	_, err = o.svc.RecordOutcome(ctx, job.CampaignID, result.Outcome, details)
	if err != nil {
		if errors.Is(err, campaign.ErrConflict) {
			atomic.AddInt64(&o.conflicts, 1)
			return
		}
		log.Printf("[Orchestrator] Recording outcome %s for campaign %s failed: %v",
			result.Outcome, job.CampaignID, err)
		atomic.AddInt64(&o.failed, 1)
		return
	}

	if o.records != nil && result.Record != nil {
		rec := result.Record
		rec.CampaignID = job.CampaignID
		if err := validation.CallRecord(rec); err != nil {
			log.Printf("[Orchestrator] Dropping invalid call record for campaign %s: %v", job.CampaignID, err)
		} else if err := o.records.CreateCallRecord(ctx, rec); err != nil {
			log.Printf("[Orchestrator] Persisting call record for campaign %s failed: %v", job.CampaignID, err)
		}
	}

	atomic.AddInt64(&o.processed, 1)
}

// releaseClaim reschedules a claimed campaign after a failed attempt so a
// later poll cycle retries it.
func (o *Orchestrator) releaseClaim(ctx context.Context, id string) {
	if ctx.Err() != nil {
		// Shutdown path still needs a working context.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if _, err := o.svc.Release(ctx, id, time.Now().Add(o.redialDelay)); err != nil {
		log.Printf("[Orchestrator] Releasing claim on campaign %s failed: %v", id, err)
	}
}

// heartbeatLoop keeps this instance's liveness key fresh.
func (o *Orchestrator) heartbeatLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			if err := o.q.Heartbeat(o.ctx, o.workerID); err != nil {
				log.Printf("[Orchestrator] Heartbeat failed: %v", err)
			}
		}
	}
}

// controlLoop listens for stop-worker commands on the control channel.
func (o *Orchestrator) controlLoop() {
	defer o.wg.Done()

	msgs, closeSub, err := o.q.SubscribeControl(o.ctx)
	if err != nil {
		log.Printf("[Orchestrator] Control subscription failed: %v", err)
		return
	}
	defer closeSub()

	for {
		select {
		case <-o.ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if msg == queue.StopSignal {
				log.Printf("[Orchestrator] Stop signal received")
				// Stop blocks on wg.Wait; run it outside this goroutine.
				go o.Stop()
				return
			}
		}
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "dialer-worker"
	}
	return h
}
