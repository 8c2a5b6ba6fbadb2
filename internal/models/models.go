package models

import (
	"database/sql"
	"time"
)

// MatchStatus values mirror the matches.match_status column literals.
type MatchStatus string

const (
	MatchWaitingCreateTx       MatchStatus = "waiting_create_tx"
	MatchCreatedOnChain        MatchStatus = "created_on_chain"
	MatchJoinedOnChain         MatchStatus = "joined_on_chain"
	MatchInProgress            MatchStatus = "in_progress"
	MatchResultPendingFinalize MatchStatus = "result_pending_finalize"
	MatchFinalizing            MatchStatus = "finalizing"
	MatchSettled               MatchStatus = "settled"
	MatchRefunded              MatchStatus = "refunded"
)

// Terminal reports whether the status is absorbing.
func (s MatchStatus) Terminal() bool {
	return s == MatchSettled || s == MatchRefunded
}

// ChainJobType values mirror chain_jobs.job_type.
type ChainJobType string

const (
	JobSettle      ChainJobType = "settle"
	JobForceRefund ChainJobType = "force_refund"
)

// ChainJobStatus values mirror chain_jobs.status.
type ChainJobStatus string

const (
	JobPending   ChainJobStatus = "pending"
	JobSubmitted ChainJobStatus = "submitted"
	JobRetrying  ChainJobStatus = "retrying"
	JobConfirmed ChainJobStatus = "confirmed"
	JobFailed    ChainJobStatus = "failed"
)

// ResultOutcome is the reported end of a match.
type ResultOutcome string

const (
	OutcomeWinner ResultOutcome = "winner"
	OutcomeBroken ResultOutcome = "broken"
)

// Match is the canonical matches row.
type Match struct {
	MatchID                int64          `db:"match_id"`
	JoinCode               string         `db:"join_code"`
	ProgramID              string         `db:"program_id"`
	AuthorityPubkey        string         `db:"authority_pubkey"`
	GamePDA                string         `db:"game_pda"`
	VaultPDA               string         `db:"vault_pda"`
	Player1Pubkey          string         `db:"player1_pubkey"`
	Player2Pubkey          sql.NullString `db:"player2_pubkey"`
	EntryLamports          int64          `db:"entry_lamports"`
	MatchStatus            MatchStatus    `db:"match_status"`
	WinnerPubkey           sql.NullString `db:"winner_pubkey"`
	FinalizationReasonCode sql.NullString `db:"finalization_reason_code"`
	ReasonDetail           sql.NullString `db:"reason_detail"`
	ResultIdempotencyKey   sql.NullString `db:"result_idempotency_key"`
	CreateTxSig            sql.NullString `db:"create_tx_sig"`
	JoinTxSig              sql.NullString `db:"join_tx_sig"`
	FinalTxSig             sql.NullString `db:"final_tx_sig"`
	CreatedOnchainAt       sql.NullTime   `db:"created_onchain_at"`
	JoinedOnchainAt        sql.NullTime   `db:"joined_onchain_at"`
	JoinExpiresAt          sql.NullTime   `db:"join_expires_at"`
	SettleExpiresAt        sql.NullTime   `db:"settle_expires_at"`
	LastError              sql.NullString `db:"last_error"`
	CreatedAt              time.Time      `db:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at"`
	FinalizedAt            sql.NullTime   `db:"finalized_at"`
}

// ChainJob is the chain_jobs row; at most one exists per match.
type ChainJob struct {
	ID            int64          `db:"id"`
	MatchID       int64          `db:"match_id"`
	JobType       ChainJobType   `db:"job_type"`
	Status        ChainJobStatus `db:"status"`
	WinnerPubkey  sql.NullString `db:"winner_pubkey"`
	AttemptCount  int            `db:"attempt_count"`
	LastTxSig     sql.NullString `db:"last_tx_sig"`
	LastError     sql.NullString `db:"last_error"`
	NextAttemptAt time.Time      `db:"next_attempt_at"`
	LockToken     sql.NullString `db:"lock_token"`
	LockedAt      sql.NullTime   `db:"locked_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// Request/response shapes for the /v1 surface. Lamport amounts travel as
// base-10 strings so u64 values survive JSON number handling in clients.

type CreateMatchRequest struct {
	Player1Pubkey string `json:"player1_pubkey"`
	EntryLamports string `json:"entry_lamports"`
}

type CreateMatchResponse struct {
	MatchID              string      `json:"match_id"`
	JoinCode             string      `json:"join_code"`
	ProgramID            string      `json:"program_id"`
	AuthorityPubkey      string      `json:"authority_pubkey"`
	GamePDA              string      `json:"game_pda"`
	VaultPDA             string      `json:"vault_pda"`
	EntryLamports        string      `json:"entry_lamports"`
	JoinTimeoutSeconds   int64       `json:"join_timeout_seconds"`
	SettleTimeoutSeconds int64       `json:"settle_timeout_seconds"`
	MatchStatus          MatchStatus `json:"match_status"`
}

type MatchLookupByCodeResponse struct {
	MatchID       string      `json:"match_id"`
	JoinCode      string      `json:"join_code"`
	GamePDA       string      `json:"game_pda"`
	VaultPDA      string      `json:"vault_pda"`
	Player1Pubkey string      `json:"player1_pubkey"`
	EntryLamports string      `json:"entry_lamports"`
	MatchStatus   MatchStatus `json:"match_status"`
	JoinExpiresAt *time.Time  `json:"join_expires_at"`
}

type CreateConfirmRequest struct {
	CreateTxSig string `json:"create_tx_sig"`
}

type CreateConfirmResponse struct {
	MatchID       string      `json:"match_id"`
	Verified      bool        `json:"verified"`
	MatchStatus   MatchStatus `json:"match_status"`
	CreateTxSig   string      `json:"create_tx_sig"`
	JoinExpiresAt *time.Time  `json:"join_expires_at"`
}

type JoinConfirmRequest struct {
	JoinTxSig string `json:"join_tx_sig"`
}

type JoinConfirmResponse struct {
	MatchID         string      `json:"match_id"`
	Verified        bool        `json:"verified"`
	MatchStatus     MatchStatus `json:"match_status"`
	Player2Pubkey   string      `json:"player2_pubkey"`
	JoinTxSig       string      `json:"join_tx_sig"`
	SettleExpiresAt *time.Time  `json:"settle_expires_at"`
}

type ResultRequest struct {
	Outcome        ResultOutcome `json:"outcome"`
	WinnerPubkey   *string       `json:"winner_pubkey"`
	ReasonCode     string        `json:"reason_code"`
	ReasonDetail   *string       `json:"reason_detail"`
	IdempotencyKey string        `json:"idempotency_key"`
}

type ResultResponse struct {
	MatchID            string         `json:"match_id"`
	MatchStatus        MatchStatus    `json:"match_status"`
	FinalizationAction ChainJobType   `json:"finalization_action"`
	ChainJobStatus     ChainJobStatus `json:"chain_job_status"`
}

type MatchStatusResponse struct {
	MatchID                string          `json:"match_id"`
	JoinCode               string          `json:"join_code"`
	ProgramID              string          `json:"program_id"`
	AuthorityPubkey        string          `json:"authority_pubkey"`
	GamePDA                string          `json:"game_pda"`
	VaultPDA               string          `json:"vault_pda"`
	Player1Pubkey          string          `json:"player1_pubkey"`
	Player2Pubkey          *string         `json:"player2_pubkey"`
	EntryLamports          string          `json:"entry_lamports"`
	PotLamports            string          `json:"pot_lamports"`
	MatchStatus            MatchStatus     `json:"match_status"`
	ChainJobType           *ChainJobType   `json:"chain_job_type"`
	ChainJobStatus         *ChainJobStatus `json:"chain_job_status"`
	WinnerPubkey           *string         `json:"winner_pubkey"`
	FinalizationReasonCode *string         `json:"finalization_reason_code"`
	CreateTxSig            *string         `json:"create_tx_sig"`
	JoinTxSig              *string         `json:"join_tx_sig"`
	FinalTxSig             *string         `json:"final_tx_sig"`
	JoinExpiresAt          *time.Time      `json:"join_expires_at"`
	SettleExpiresAt        *time.Time      `json:"settle_expires_at"`
	LastError              *string         `json:"last_error"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

type RetryFinalizationRequest struct {
	Reason string `json:"reason"`
}

type RetryFinalizationResponse struct {
	MatchID        string         `json:"match_id"`
	MatchStatus    MatchStatus    `json:"match_status"`
	ChainJobStatus ChainJobStatus `json:"chain_job_status"`
}
