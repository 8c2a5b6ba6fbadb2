package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/solduel/backend/internal/apperr"
	"github.com/solduel/backend/internal/models"
)

// LeaseTimeout is how long a claimed job stays invisible to other workers.
// A crashed worker's job becomes re-claimable once locked_at is this stale.
const LeaseTimeout = 30 * time.Second

type ResultParams struct {
	MatchID        int64
	Outcome        models.ResultOutcome
	WinnerPubkey   string // empty unless Outcome == winner
	ReasonCode     string
	ReasonDetail   string
	IdempotencyKey string
}

type ResultRecord struct {
	MatchStatus models.MatchStatus
	JobType     models.ChainJobType
	JobStatus   models.ChainJobStatus
}

// RecordResult runs the exactly-once enqueue boundary: one transaction that
// conditionally moves the match to result_pending_finalize and upserts the
// chain job. Replays with an identical payload return the recorded state;
// any divergence is a Conflict.
func RecordResult(ctx context.Context, db *sqlx.DB, p ResultParams) (*ResultRecord, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("failed to begin result transaction: %v", err)
	}
	defer tx.Rollback()

	var row struct {
		MatchStatus          models.MatchStatus `db:"match_status"`
		Player1Pubkey        string             `db:"player1_pubkey"`
		Player2Pubkey        sql.NullString     `db:"player2_pubkey"`
		WinnerPubkey         sql.NullString     `db:"winner_pubkey"`
		ReasonCode           sql.NullString     `db:"finalization_reason_code"`
		ResultIdempotencyKey sql.NullString     `db:"result_idempotency_key"`
	}
	err = tx.GetContext(ctx, &row, `
		SELECT match_status, player1_pubkey, player2_pubkey, winner_pubkey,
		       finalization_reason_code, result_idempotency_key
		FROM matches
		WHERE match_id = $1
		FOR UPDATE`, p.MatchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("match %d not found", p.MatchID)
	}
	if err != nil {
		return nil, apperr.Internal("failed to lock match for result: %v", err)
	}

	if row.MatchStatus == models.MatchWaitingCreateTx || row.MatchStatus == models.MatchCreatedOnChain {
		return nil, apperr.Conflict("match %d has no joined players yet", p.MatchID)
	}

	if p.Outcome == models.OutcomeWinner {
		if p.WinnerPubkey != row.Player1Pubkey &&
			(!row.Player2Pubkey.Valid || p.WinnerPubkey != row.Player2Pubkey.String) {
			return nil, apperr.BadRequest("winner_pubkey must be one of the match players")
		}
	}

	if row.ResultIdempotencyKey.Valid {
		// A result is already recorded; only a byte-identical replay passes.
		if row.ResultIdempotencyKey.String != p.IdempotencyKey {
			return nil, apperr.Conflict("a different result is already recorded for match %d", p.MatchID)
		}
		if winnerOf(row.WinnerPubkey) != p.WinnerPubkey ||
			(row.ReasonCode.Valid && row.ReasonCode.String != p.ReasonCode) {
			return nil, apperr.Conflict("result replay diverges from the recorded outcome")
		}
	} else if row.MatchStatus != models.MatchJoinedOnChain && row.MatchStatus != models.MatchInProgress {
		return nil, apperr.Conflict("match %d is not accepting results in status %s", p.MatchID, row.MatchStatus)
	}

	var winner sql.NullString
	if p.WinnerPubkey != "" {
		winner = sql.NullString{String: p.WinnerPubkey, Valid: true}
	}
	var detail sql.NullString
	if p.ReasonDetail != "" {
		detail = sql.NullString{String: p.ReasonDetail, Valid: true}
	}

	var matchStatus models.MatchStatus
	err = tx.GetContext(ctx, &matchStatus, `
		UPDATE matches
		SET
			match_status = CASE
				WHEN match_status IN ('joined_on_chain', 'in_progress') THEN 'result_pending_finalize'
				ELSE match_status
			END,
			winner_pubkey = COALESCE(winner_pubkey, $2),
			finalization_reason_code = COALESCE(finalization_reason_code, $3),
			reason_detail = COALESCE(reason_detail, $4),
			result_idempotency_key = COALESCE(result_idempotency_key, $5),
			updated_at = NOW()
		WHERE match_id = $1
		  AND (match_status IN ('joined_on_chain', 'in_progress') OR result_idempotency_key = $5)
		RETURNING match_status`,
		p.MatchID, winner, p.ReasonCode, detail, p.IdempotencyKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Conflict("match %d state changed while recording result", p.MatchID)
	}
	if err != nil {
		return nil, apperr.Internal("failed to record result on match: %v", err)
	}

	jobType := models.JobForceRefund
	if p.Outcome == models.OutcomeWinner {
		jobType = models.JobSettle
	}

	var job struct {
		JobType models.ChainJobType   `db:"job_type"`
		Status  models.ChainJobStatus `db:"status"`
	}
	err = tx.GetContext(ctx, &job, `
		INSERT INTO chain_jobs (match_id, job_type, status, winner_pubkey, next_attempt_at)
		VALUES ($1, $2, 'pending', $3, NOW())
		ON CONFLICT (match_id) DO UPDATE
			SET updated_at = NOW()
			WHERE chain_jobs.job_type = EXCLUDED.job_type
			  AND chain_jobs.winner_pubkey IS NOT DISTINCT FROM EXCLUDED.winner_pubkey
		RETURNING job_type, status`,
		p.MatchID, jobType, winner)
	if errors.Is(err, sql.ErrNoRows) {
		// The upsert guard refused: an incompatible job already exists.
		return nil, apperr.Conflict("an incompatible finalization job exists for match %d", p.MatchID)
	}
	if err != nil {
		return nil, apperr.Internal("failed to enqueue finalization job: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("failed to commit result transaction: %v", err)
	}

	return &ResultRecord{
		MatchStatus: matchStatus,
		JobType:     job.JobType,
		JobStatus:   job.Status,
	}, nil
}

func winnerOf(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

type RetryRecord struct {
	MatchStatus    models.MatchStatus
	ChainJobStatus models.ChainJobStatus
}

// RetryFinalization revives a non-confirmed job and moves the match back
// into finalizing. Terminal matches and confirmed jobs refuse the retry.
func RetryFinalization(ctx context.Context, db *sqlx.DB, matchID int64) (*RetryRecord, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("failed to begin retry transaction: %v", err)
	}
	defer tx.Rollback()

	var matchStatus models.MatchStatus
	err = tx.GetContext(ctx, &matchStatus,
		`SELECT match_status FROM matches WHERE match_id = $1 FOR UPDATE`, matchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("match %d not found", matchID)
	}
	if err != nil {
		return nil, apperr.Internal("failed to lock match for retry: %v", err)
	}
	if matchStatus.Terminal() {
		return nil, apperr.Conflict("match %d is already %s", matchID, matchStatus)
	}

	var jobStatus models.ChainJobStatus
	err = tx.GetContext(ctx, &jobStatus, `
		UPDATE chain_jobs
		SET status = 'pending',
		    lock_token = NULL,
		    locked_at = NULL,
		    last_error = NULL,
		    next_attempt_at = NOW(),
		    updated_at = NOW()
		WHERE match_id = $1
		  AND status <> 'confirmed'
		RETURNING status`, matchID)
	if errors.Is(err, sql.ErrNoRows) {
		var existing models.ChainJobStatus
		probeErr := tx.GetContext(ctx, &existing,
			`SELECT status FROM chain_jobs WHERE match_id = $1`, matchID)
		if errors.Is(probeErr, sql.ErrNoRows) {
			return nil, apperr.NotFound("no finalization job for match %d", matchID)
		}
		if probeErr != nil {
			return nil, apperr.Internal("failed to inspect finalization job: %v", probeErr)
		}
		return nil, apperr.Conflict("finalization job for match %d is already confirmed", matchID)
	}
	if err != nil {
		return nil, apperr.Internal("failed to reset finalization job: %v", err)
	}

	err = tx.GetContext(ctx, &matchStatus, `
		UPDATE matches
		SET
			match_status = CASE
				WHEN match_status IN ('result_pending_finalize', 'finalizing') THEN 'finalizing'
				ELSE match_status
			END,
			last_error = NULL,
			updated_at = NOW()
		WHERE match_id = $1
		RETURNING match_status`, matchID)
	if err != nil {
		return nil, apperr.Internal("failed to reset match for retry: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("failed to commit retry transaction: %v", err)
	}

	return &RetryRecord{MatchStatus: matchStatus, ChainJobStatus: jobStatus}, nil
}

// JobClaim is one leased job joined with the match fields the finalizer
// needs to build instructions.
type JobClaim struct {
	JobID         int64                 `db:"id"`
	MatchID       int64                 `db:"match_id"`
	JobType       models.ChainJobType   `db:"job_type"`
	Status        models.ChainJobStatus `db:"status"`
	WinnerPubkey  sql.NullString        `db:"winner_pubkey"`
	AttemptCount  int                   `db:"attempt_count"`
	LastTxSig     sql.NullString        `db:"last_tx_sig"`
	GamePDA       string                `db:"game_pda"`
	VaultPDA      string                `db:"vault_pda"`
	Player1Pubkey string                `db:"player1_pubkey"`
	Player2Pubkey sql.NullString        `db:"player2_pubkey"`
	LockToken     string                `db:"-"`
}

// ClaimNextJob leases the most overdue runnable job, if any. Row-level
// SKIP LOCKED keeps concurrent workers off the same row inside the
// transaction; the persisted (lock_token, locked_at) lease keeps them off
// it after commit. Returns nil when no job is due.
func ClaimNextJob(ctx context.Context, db *sqlx.DB) (*JobClaim, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("failed to begin claim transaction: %v", err)
	}
	defer tx.Rollback()

	var claim JobClaim
	err = tx.GetContext(ctx, &claim, fmt.Sprintf(`
		SELECT cj.id, cj.match_id, cj.job_type, cj.status, cj.winner_pubkey,
		       cj.attempt_count, cj.last_tx_sig,
		       m.game_pda, m.vault_pda, m.player1_pubkey, m.player2_pubkey
		FROM chain_jobs cj
		JOIN matches m ON m.match_id = cj.match_id
		WHERE cj.status IN ('pending', 'retrying', 'submitted')
		  AND cj.next_attempt_at <= NOW()
		  AND (cj.locked_at IS NULL OR cj.locked_at < NOW() - INTERVAL '%d seconds')
		ORDER BY cj.next_attempt_at ASC, cj.id ASC
		FOR UPDATE OF cj SKIP LOCKED
		LIMIT 1`, int(LeaseTimeout.Seconds())))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("failed to select next job: %v", err)
	}

	claim.LockToken = uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		UPDATE chain_jobs
		SET lock_token = $2, locked_at = NOW(), updated_at = NOW()
		WHERE id = $1`, claim.JobID, claim.LockToken)
	if err != nil {
		return nil, apperr.Internal("failed to lease job %d: %v", claim.JobID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("failed to commit job lease: %v", err)
	}

	return &claim, nil
}

// MarkJobSubmitted records a sent transaction under the lease and moves the
// match into finalizing. A lost lease surfaces as Conflict.
func MarkJobSubmitted(ctx context.Context, db *sqlx.DB, matchID int64, lockToken, txSig string) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Internal("failed to begin submit transaction: %v", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE chain_jobs
		SET status = 'submitted',
		    attempt_count = attempt_count + 1,
		    last_tx_sig = $3,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE match_id = $1
		  AND lock_token = $2`, matchID, lockToken, txSig)
	if err != nil {
		return apperr.Internal("failed to mark job submitted: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return apperr.Conflict("lease lost for match %d before submit could be recorded", matchID)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE matches
		SET match_status = 'finalizing', updated_at = NOW()
		WHERE match_id = $1
		  AND match_status = 'result_pending_finalize'`, matchID)
	if err != nil {
		return apperr.Internal("failed to advance match to finalizing: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Internal("failed to commit submit transaction: %v", err)
	}
	return nil
}

// MarkJobConfirmed finishes a job: confirmed status, lock cleared, terminal
// match status, coalesced final signature and finalized_at. Must affect
// exactly the row still holding the lease.
func MarkJobConfirmed(ctx context.Context, db *sqlx.DB, matchID int64, lockToken string, jobType models.ChainJobType, txSig string) error {
	terminal := models.MatchSettled
	if jobType == models.JobForceRefund {
		terminal = models.MatchRefunded
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Internal("failed to begin confirm transaction: %v", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE chain_jobs
		SET status = 'confirmed',
		    lock_token = NULL,
		    locked_at = NULL,
		    last_tx_sig = COALESCE(last_tx_sig, NULLIF($3, '')),
		    last_error = NULL,
		    updated_at = NOW()
		WHERE match_id = $1
		  AND lock_token = $2
		  AND status <> 'confirmed'`, matchID, lockToken, txSig)
	if err != nil {
		return apperr.Internal("failed to mark job confirmed: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return apperr.Conflict("lease lost for match %d before confirm could be recorded", matchID)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE matches
		SET
			match_status = CASE
				WHEN match_status IN ('settled', 'refunded') THEN match_status
				ELSE $2
			END,
			final_tx_sig = COALESCE(final_tx_sig, NULLIF($3, '')),
			finalized_at = COALESCE(finalized_at, NOW()),
			last_error = NULL,
			updated_at = NOW()
		WHERE match_id = $1`, matchID, terminal, txSig)
	if err != nil {
		return apperr.Internal("failed to finalize match %d: %v", matchID, err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Internal("failed to commit confirm transaction: %v", err)
	}
	return nil
}

// ScheduleJobRetry records a transient failure and schedules the next
// attempt, releasing the lease.
func ScheduleJobRetry(ctx context.Context, db *sqlx.DB, matchID int64, lockToken, lastError string, attemptCount int, delay time.Duration) error {
	res, err := db.ExecContext(ctx, `
		UPDATE chain_jobs
		SET status = 'retrying',
		    attempt_count = $3,
		    last_error = $4,
		    next_attempt_at = NOW() + ($5 * INTERVAL '1 second'),
		    lock_token = NULL,
		    locked_at = NULL,
		    updated_at = NOW()
		WHERE match_id = $1
		  AND lock_token = $2`, matchID, lockToken, attemptCount, lastError, int(delay.Seconds()))
	if err != nil {
		return apperr.Internal("failed to schedule retry: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return apperr.Conflict("lease lost for match %d before retry could be scheduled", matchID)
	}
	return nil
}

// MarkJobFailed parks the job as failed (revivable only via admin retry)
// and surfaces the error on the match row.
func MarkJobFailed(ctx context.Context, db *sqlx.DB, matchID int64, lockToken, lastError string, attemptCount int) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Internal("failed to begin fail transaction: %v", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE chain_jobs
		SET status = 'failed',
		    attempt_count = $3,
		    last_error = $4,
		    lock_token = NULL,
		    locked_at = NULL,
		    updated_at = NOW()
		WHERE match_id = $1
		  AND lock_token = $2`, matchID, lockToken, attemptCount, lastError)
	if err != nil {
		return apperr.Internal("failed to mark job failed: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return apperr.Conflict("lease lost for match %d before failure could be recorded", matchID)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE matches
		SET last_error = $2, updated_at = NOW()
		WHERE match_id = $1`, matchID, lastError)
	if err != nil {
		return apperr.Internal("failed to record match error: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Internal("failed to commit fail transaction: %v", err)
	}
	return nil
}

// ReleaseJobLock clears a lease without touching job state. Best effort:
// used when the worker hit a processing error after claiming.
func ReleaseJobLock(ctx context.Context, db *sqlx.DB, matchID int64, lockToken string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE chain_jobs
		SET lock_token = NULL, locked_at = NULL, updated_at = NOW()
		WHERE match_id = $1
		  AND lock_token = $2`, matchID, lockToken)
	if err != nil {
		return apperr.Internal("failed to release job lock: %v", err)
	}
	return nil
}

// EnqueuedRefund reports one join-timeout refund queued by the watcher.
type EnqueuedRefund struct {
	MatchID        int64
	ChainJobStatus models.ChainJobStatus
}

// EnqueueNextExpiredJoinTimeout finds one match whose join window expired
// with no second player and no chain job, moves it to
// result_pending_finalize and queues a force_refund. Returns nil when
// nothing is due.
func EnqueueNextExpiredJoinTimeout(ctx context.Context, db *sqlx.DB) (*EnqueuedRefund, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("failed to begin timeout transaction: %v", err)
	}
	defer tx.Rollback()

	var matchID int64
	err = tx.GetContext(ctx, &matchID, `
		SELECT m.match_id
		FROM matches m
		WHERE m.match_status = 'created_on_chain'
		  AND m.player2_pubkey IS NULL
		  AND m.join_expires_at <= NOW()
		  AND NOT EXISTS (SELECT 1 FROM chain_jobs cj WHERE cj.match_id = m.match_id)
		ORDER BY m.join_expires_at ASC
		FOR UPDATE OF m SKIP LOCKED
		LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("failed to select expired match: %v", err)
	}

	idempotencyKey := fmt.Sprintf("auto-join-timeout-%d", matchID)
	_, err = tx.ExecContext(ctx, `
		UPDATE matches
		SET match_status = 'result_pending_finalize',
		    finalization_reason_code = COALESCE(finalization_reason_code, 'join_timeout'),
		    reason_detail = COALESCE(reason_detail, 'timeout_watcher'),
		    result_idempotency_key = COALESCE(result_idempotency_key, $2),
		    updated_at = NOW()
		WHERE match_id = $1
		  AND match_status = 'created_on_chain'`, matchID, idempotencyKey)
	if err != nil {
		return nil, apperr.Internal("failed to expire match %d: %v", matchID, err)
	}

	var jobStatus models.ChainJobStatus
	err = tx.GetContext(ctx, &jobStatus, `
		INSERT INTO chain_jobs (match_id, job_type, status, winner_pubkey, next_attempt_at)
		VALUES ($1, 'force_refund', 'pending', NULL, NOW())
		ON CONFLICT (match_id) DO UPDATE
			SET updated_at = NOW()
			WHERE chain_jobs.job_type = 'force_refund'
			  AND chain_jobs.winner_pubkey IS NULL
		RETURNING status`, matchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Conflict("match %d already has an incompatible finalization job", matchID)
	}
	if err != nil {
		return nil, apperr.Internal("failed to enqueue refund job: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("failed to commit timeout transaction: %v", err)
	}

	return &EnqueuedRefund{MatchID: matchID, ChainJobStatus: jobStatus}, nil
}
