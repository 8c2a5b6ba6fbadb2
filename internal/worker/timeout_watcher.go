package worker

import (
	"context"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/solduel/backend/internal/apperr"
	"github.com/solduel/backend/internal/config"
	"github.com/solduel/backend/internal/store"
)

// timeoutBatchLimit caps how many expired matches one tick will enqueue,
// so a backlog after downtime drains over a few ticks instead of one
// long burst.
const timeoutBatchLimit = 25

// nonceMaxAge is how long a consumed HMAC nonce is retained. Anything
// older is far outside the clock-skew window and can never replay.
const nonceMaxAge = time.Hour

// StartTimeoutWatcher runs the join-timeout sweep until ctx is cancelled.
// Each tick enqueues force_refund jobs for matches whose join window
// expired with no opponent, then prunes stale nonces.
func StartTimeoutWatcher(ctx context.Context, db *sqlx.DB, cfg *config.Config) {
	interval := time.Duration(cfg.TimeoutWatcherPollMs) * time.Millisecond
	log.Printf("[TIMEOUT] Watcher started (poll=%s)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[TIMEOUT] Watcher stopped")
			return
		case <-ticker.C:
			sweepExpiredJoins(ctx, db)

			if pruned, err := store.PruneNonces(ctx, db, nonceMaxAge); err != nil {
				log.Printf("[TIMEOUT] Nonce prune failed: %v", err)
			} else if pruned > 0 {
				log.Printf("[TIMEOUT] Pruned %d stale nonces", pruned)
			}
		}
	}
}

func sweepExpiredJoins(ctx context.Context, db *sqlx.DB) {
	for i := 0; i < timeoutBatchLimit; i++ {
		enqueued, err := store.EnqueueNextExpiredJoinTimeout(ctx, db)
		if err != nil {
			// Conflict means another path got to this match first; the
			// next candidate may still be enqueueable.
			if apperr.IsKind(err, apperr.KindConflict) {
				log.Printf("[TIMEOUT] Skipped contested match: %v", err)
				continue
			}
			log.Printf("[TIMEOUT] Enqueue failed: %v", err)
			return
		}
		if enqueued == nil {
			return
		}
		log.Printf("[TIMEOUT] Match %d join window expired, force_refund queued (job=%s)",
			enqueued.MatchID, enqueued.ChainJobStatus)
	}
}
