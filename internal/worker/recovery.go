package worker

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// =============================================================================
// CLAIM RECOVERY WORKER — Reclaims Campaigns Stuck In Flight
// =============================================================================
// A claim pushes a campaign's schedule out by the lease horizon, so a crashed
// worker normally heals itself: the lease expires and the poll loop picks the
// campaign up again. This worker covers the leftover case — IN_PROGRESS
// campaigns whose schedule went stale long ago (lease bump lost, clock skew,
// operator surgery) — by resetting their schedule so dispatch sees them again.

const (
	// DefaultRecoveryInterval is how often we scan for stale claims.
	DefaultRecoveryInterval = 2 * time.Minute

	// DefaultStaleClaimAge is how far past its schedule an IN_PROGRESS
	// campaign may drift before we consider its claim abandoned.
	DefaultStaleClaimAge = 30 * time.Minute
)

// ClaimRecoveryWorker periodically rescues campaigns whose claim never
// resolved into an outcome.
type ClaimRecoveryWorker struct {
	db       *sql.DB
	interval time.Duration
	staleAge time.Duration
}

// NewClaimRecoveryWorker creates a recovery worker with default timing.
func NewClaimRecoveryWorker(db *sql.DB) *ClaimRecoveryWorker {
	return &ClaimRecoveryWorker{
		db:       db,
		interval: DefaultRecoveryInterval,
		staleAge: DefaultStaleClaimAge,
	}
}

// NewClaimRecoveryWorkerWithConfig creates a recovery worker with custom timing.
func NewClaimRecoveryWorkerWithConfig(db *sql.DB, interval, staleAge time.Duration) *ClaimRecoveryWorker {
	if interval <= 0 {
		interval = DefaultRecoveryInterval
	}
	if staleAge <= 0 {
		staleAge = DefaultStaleClaimAge
	}
	return &ClaimRecoveryWorker{db: db, interval: interval, staleAge: staleAge}
}

// Start begins the recovery loop. It blocks until ctx is cancelled.
func (cr *ClaimRecoveryWorker) Start(ctx context.Context) {
	log.Printf("[ClaimRecovery] Starting (interval=%s, stale_age=%s)", cr.interval, cr.staleAge)

	ticker := time.NewTicker(cr.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ClaimRecovery] Stopping")
			return
		case <-ticker.C:
			cr.recoverStaleClaims(ctx)
		}
	}
}

// recoverStaleClaims resets the schedule of abandoned claims. The version
// bump keeps any worker still holding the old claim from writing over the
// rescued row.
func (cr *ClaimRecoveryWorker) recoverStaleClaims(ctx context.Context) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := cr.db.ExecContext(queryCtx, `
		UPDATE dialer_campaigns
		SET next_call_date = NOW(),
		    version = version + 1,
		    updated_at = NOW()
		WHERE status = 'IN_PROGRESS'
		  AND next_call_date IS NOT NULL
		  AND next_call_date < NOW() - ($1 * interval '1 second')
	`, int64(cr.staleAge.Seconds()))
	if err != nil {
		log.Printf("[ClaimRecovery] Failed to recover stale claims: %v", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("[ClaimRecovery] Rescued %d campaigns with stale claims", n)
	}
}
