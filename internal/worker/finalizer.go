package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jmoiron/sqlx"
	"github.com/solduel/backend/internal/config"
	"github.com/solduel/backend/internal/models"
	"github.com/solduel/backend/internal/solana"
	"github.com/solduel/backend/internal/store"
)

// maxAttempts is the attempt count at which the next failure parks the
// job as failed. Admin retry is the only way back from there.
const maxAttempts = 10

// Finalizer drains the chain_jobs queue: claims due jobs, reconciles them
// against on-chain state, submits settle/refund transactions and records
// the terminal outcome. Faults never escape the loop; they become retry or
// fail decisions on the job row.
type Finalizer struct {
	db        *sqlx.DB
	cfg       *config.Config
	chain     *solana.Client
	authority solanago.PrivateKey
	interval  time.Duration
}

// NewFinalizer builds the worker. It refuses to construct when the
// keypair on disk does not match AUTHORITY_PUBKEY, so a misconfigured
// deployment fails at startup instead of at settlement time.
func NewFinalizer(db *sqlx.DB, cfg *config.Config, chain *solana.Client) (*Finalizer, error) {
	authority, err := solana.LoadAuthorityKeypair(cfg.AuthorityKeypairPath, cfg.AuthorityPubkey)
	if err != nil {
		return nil, err
	}
	return &Finalizer{
		db:        db,
		cfg:       cfg,
		chain:     chain,
		authority: authority,
		interval:  time.Duration(cfg.FinalizerPollMs) * time.Millisecond,
	}, nil
}

// Start runs the claim loop until ctx is cancelled. Cancellation is only
// observed between iterations: an in-flight submission is never abandoned
// mid-way, because that could leave an unknown on-chain state.
func (f *Finalizer) Start(ctx context.Context) {
	log.Printf("[FINALIZER] Started (poll=%s, authority=%s)", f.interval, f.authority.PublicKey())

	for {
		select {
		case <-ctx.Done():
			log.Printf("[FINALIZER] Stopped")
			return
		default:
		}

		claim, err := store.ClaimNextJob(ctx, f.db)
		if err != nil {
			log.Printf("[FINALIZER] Claim failed: %v", err)
		} else if claim != nil {
			f.process(ctx, claim)
			continue
		}

		select {
		case <-ctx.Done():
			log.Printf("[FINALIZER] Stopped")
			return
		case <-time.After(f.interval):
		}
	}
}

// process drives one claimed job to a decision: confirmed, retrying or
// failed. attempts tracks the absolute attempt count as the database sees
// it, including the increment MarkJobSubmitted applies.
func (f *Finalizer) process(ctx context.Context, claim *store.JobClaim) {
	attempts := claim.AttemptCount

	game, err := f.chain.FetchGameAccount(ctx, claim.GamePDA)
	if err != nil {
		// No on-chain attempt was consumed reading state.
		f.retryOrFail(ctx, claim, attempts, fmt.Sprintf("failed to read game account: %v", err))
		return
	}

	if !game.Authority.Equals(f.authority.PublicKey()) {
		f.fail(ctx, claim, attempts, fmt.Sprintf(
			"on-chain authority %s does not match local authority", game.Authority))
		return
	}

	// The chain is authoritative: a terminal on-chain state either proves a
	// prior submission landed (confirm) or contradicts the job (fail).
	switch {
	case claim.JobType == models.JobSettle && game.State == solana.GameStateSettled:
		f.confirm(ctx, claim, claim.LastTxSig.String)
		return
	case claim.JobType == models.JobForceRefund && game.State == solana.GameStateRefunded:
		f.confirm(ctx, claim, claim.LastTxSig.String)
		return
	case game.State == solana.GameStateSettled || game.State == solana.GameStateRefunded:
		f.fail(ctx, claim, attempts, fmt.Sprintf(
			"job %s contradicts on-chain state %s", claim.JobType, game.State))
		return
	}

	instruction, err := f.buildInstruction(claim, game)
	if err != nil {
		f.fail(ctx, claim, attempts, err.Error())
		return
	}

	sig, err := f.chain.SubmitInstruction(ctx, instruction, f.authority)
	if err != nil {
		// Blockhash fetch and send failures consume an on-chain attempt.
		attempts++
		f.retryOrFail(ctx, claim, attempts, fmt.Sprintf("failed to submit transaction: %v", err))
		return
	}
	attempts++

	if err := store.MarkJobSubmitted(ctx, f.db, claim.MatchID, claim.LockToken, sig); err != nil {
		log.Printf("[FINALIZER] Match %d: lost lease after submit of %s: %v", claim.MatchID, sig, err)
		store.ReleaseJobLock(ctx, f.db, claim.MatchID, claim.LockToken)
		return
	}
	log.Printf("[FINALIZER] Match %d: submitted %s tx %s (attempt %d)",
		claim.MatchID, claim.JobType, sig, attempts)

	if err := f.chain.ConfirmSignature(ctx, sig); err != nil {
		// The tx may still land; the next claim re-reads on-chain state.
		f.retryOrFail(ctx, claim, attempts, fmt.Sprintf("confirmation failed: %v", err))
		return
	}

	f.confirm(ctx, claim, sig)
}

func (f *Finalizer) buildInstruction(claim *store.JobClaim, game *solana.GameAccount) (solanago.Instruction, error) {
	programID := f.chain.ProgramID()

	gamePDA, err := solanago.PublicKeyFromBase58(claim.GamePDA)
	if err != nil {
		return nil, fmt.Errorf("invalid stored game_pda: %v", err)
	}
	vaultPDA, err := solanago.PublicKeyFromBase58(claim.VaultPDA)
	if err != nil {
		return nil, fmt.Errorf("invalid stored vault_pda: %v", err)
	}

	switch claim.JobType {
	case models.JobSettle:
		if game.State != solana.GameStateJoined {
			return nil, fmt.Errorf("settle_game requires Joined state, got %s", game.State)
		}
		winner, err := solanago.PublicKeyFromBase58(claim.WinnerPubkey.String)
		if err != nil {
			return nil, fmt.Errorf("invalid winner_pubkey on job: %v", err)
		}
		if !winner.Equals(game.Player1) && !winner.Equals(game.Player2) {
			return nil, fmt.Errorf("winner %s is not an on-chain player", winner)
		}
		return solana.BuildSettleGameInstruction(programID, gamePDA, vaultPDA, winner, game.Authority), nil

	case models.JobForceRefund:
		return solana.BuildForceRefundInstruction(programID, gamePDA, vaultPDA, game)

	default:
		return nil, fmt.Errorf("unknown job type %s", claim.JobType)
	}
}

func (f *Finalizer) confirm(ctx context.Context, claim *store.JobClaim, txSig string) {
	err := store.MarkJobConfirmed(ctx, f.db, claim.MatchID, claim.LockToken, claim.JobType, txSig)
	if err != nil {
		log.Printf("[FINALIZER] Match %d: failed to record confirmation: %v", claim.MatchID, err)
		store.ReleaseJobLock(ctx, f.db, claim.MatchID, claim.LockToken)
		return
	}
	log.Printf("[FINALIZER] Match %d: %s confirmed (tx=%s)", claim.MatchID, claim.JobType, txSig)
}

// retryOrFail schedules the next attempt, or parks the job once the
// attempt budget is exhausted.
func (f *Finalizer) retryOrFail(ctx context.Context, claim *store.JobClaim, attempts int, cause string) {
	if attempts >= maxAttempts {
		f.fail(ctx, claim, attempts, cause)
		return
	}

	delay := retryBackoff(attempts)
	err := store.ScheduleJobRetry(ctx, f.db, claim.MatchID, claim.LockToken, cause, attempts, delay)
	if err != nil {
		log.Printf("[FINALIZER] Match %d: failed to schedule retry: %v", claim.MatchID, err)
		store.ReleaseJobLock(ctx, f.db, claim.MatchID, claim.LockToken)
		return
	}
	log.Printf("[FINALIZER] Match %d: retry in %s (attempt %d): %s", claim.MatchID, delay, attempts, cause)
}

func (f *Finalizer) fail(ctx context.Context, claim *store.JobClaim, attempts int, cause string) {
	err := store.MarkJobFailed(ctx, f.db, claim.MatchID, claim.LockToken, cause, attempts)
	if err != nil {
		log.Printf("[FINALIZER] Match %d: failed to record failure: %v", claim.MatchID, err)
		store.ReleaseJobLock(ctx, f.db, claim.MatchID, claim.LockToken)
		return
	}
	log.Printf("[FINALIZER] Match %d: job failed: %s", claim.MatchID, cause)
}

// retryBackoff is min(2^attempts, 60) seconds with the exponent clamped
// to [1, 6].
func retryBackoff(attempts int) time.Duration {
	exp := attempts
	if exp < 1 {
		exp = 1
	}
	if exp > 6 {
		exp = 6
	}
	seconds := 1 << exp
	if seconds > 60 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}
