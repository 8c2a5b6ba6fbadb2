package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/solduel/backend/internal/apperr"
	"github.com/solduel/backend/internal/models"
)

// JoinCodeFromMatchID derives the deterministic join code: "M" followed by
// the uppercase base-36 encoding of the match id. Injective over positive
// 64-bit ids.
func JoinCodeFromMatchID(matchID int64) (string, error) {
	if matchID <= 0 {
		return "", apperr.Internal("match_id must be positive, got %d", matchID)
	}
	return "M" + strings.ToUpper(strconv.FormatInt(matchID, 36)), nil
}

// ReserveNextMatchID pulls the next value from the matches serial sequence
// so the PDA can be derived before the row exists.
func ReserveNextMatchID(ctx context.Context, db *sqlx.DB) (int64, error) {
	var matchID int64
	err := db.GetContext(ctx, &matchID,
		`SELECT nextval(pg_get_serial_sequence('matches', 'match_id'))`)
	if err != nil {
		return 0, apperr.Internal("failed to reserve match_id: %v", err)
	}
	return matchID, nil
}

type CreateMatchParams struct {
	MatchID         int64
	JoinCode        string
	ProgramID       string
	AuthorityPubkey string
	GamePDA         string
	VaultPDA        string
	Player1Pubkey   string
	EntryLamports   int64
}

// InsertCreateMatch inserts the initial waiting_create_tx row.
func InsertCreateMatch(ctx context.Context, db *sqlx.DB, p CreateMatchParams) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO matches (
			match_id, join_code, program_id, authority_pubkey,
			game_pda, vault_pda, player1_pubkey, entry_lamports, match_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'waiting_create_tx')`,
		p.MatchID, p.JoinCode, p.ProgramID, p.AuthorityPubkey,
		p.GamePDA, p.VaultPDA, p.Player1Pubkey, p.EntryLamports)
	if err != nil {
		return apperr.Internal("failed to insert match record: %v", err)
	}
	return nil
}

// GetMatch loads the full matches row.
func GetMatch(ctx context.Context, db *sqlx.DB, matchID int64) (*models.Match, error) {
	var m models.Match
	err := db.GetContext(ctx, &m, `SELECT * FROM matches WHERE match_id = $1`, matchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("match %d not found", matchID)
	}
	if err != nil {
		return nil, apperr.Internal("failed to load match %d: %v", matchID, err)
	}
	return &m, nil
}

// GetMatchByJoinCode loads the matches row for a (normalized) join code.
func GetMatchByJoinCode(ctx context.Context, db *sqlx.DB, joinCode string) (*models.Match, error) {
	var m models.Match
	err := db.GetContext(ctx, &m, `SELECT * FROM matches WHERE join_code = $1`, joinCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no match for join code %s", joinCode)
	}
	if err != nil {
		return nil, apperr.Internal("failed to load match by join code: %v", err)
	}
	return &m, nil
}

type ConfirmUpdate struct {
	MatchID         int64              `db:"match_id"`
	MatchStatus     models.MatchStatus `db:"match_status"`
	Player2Pubkey   sql.NullString     `db:"player2_pubkey"`
	CreateTxSig     sql.NullString     `db:"create_tx_sig"`
	JoinTxSig       sql.NullString     `db:"join_tx_sig"`
	JoinExpiresAt   sql.NullTime       `db:"join_expires_at"`
	SettleExpiresAt sql.NullTime       `db:"settle_expires_at"`
}

// MarkMatchCreatedOnChain advances waiting_create_tx -> created_on_chain.
// The CASE keeps already-progressed rows untouched and the COALESCEs make
// re-confirmation idempotent without overwriting historical values.
func MarkMatchCreatedOnChain(ctx context.Context, db *sqlx.DB, matchID int64, createTxSig string, createdOnchainAt, joinExpiresAt sql.NullTime) (*ConfirmUpdate, error) {
	var out ConfirmUpdate
	err := db.GetContext(ctx, &out, `
		UPDATE matches
		SET
			match_status = CASE
				WHEN match_status = 'waiting_create_tx' THEN 'created_on_chain'
				ELSE match_status
			END,
			create_tx_sig = COALESCE(create_tx_sig, $2),
			created_onchain_at = COALESCE(created_onchain_at, $3),
			join_expires_at = COALESCE(join_expires_at, $4),
			updated_at = NOW()
		WHERE match_id = $1
		RETURNING match_id, match_status, player2_pubkey, create_tx_sig, join_tx_sig,
		          join_expires_at, settle_expires_at`,
		matchID, createTxSig, createdOnchainAt, joinExpiresAt)
	if err != nil {
		return nil, apperr.Internal("failed to update create-confirm state: %v", err)
	}
	return &out, nil
}

// MarkMatchJoinedOnChain advances created_on_chain -> joined_on_chain. The
// player2 guard rejects a confirm that disagrees with an earlier one.
func MarkMatchJoinedOnChain(ctx context.Context, db *sqlx.DB, matchID int64, player2Pubkey, joinTxSig string, joinedOnchainAt, settleExpiresAt sql.NullTime) (*ConfirmUpdate, error) {
	var out ConfirmUpdate
	err := db.GetContext(ctx, &out, `
		UPDATE matches
		SET
			match_status = CASE
				WHEN match_status = 'created_on_chain' THEN 'joined_on_chain'
				ELSE match_status
			END,
			player2_pubkey = COALESCE(player2_pubkey, $2),
			join_tx_sig = COALESCE(join_tx_sig, $3),
			joined_onchain_at = COALESCE(joined_onchain_at, $4),
			settle_expires_at = COALESCE(settle_expires_at, $5),
			updated_at = NOW()
		WHERE match_id = $1
		  AND (player2_pubkey IS NULL OR player2_pubkey = $2)
		RETURNING match_id, match_status, player2_pubkey, create_tx_sig, join_tx_sig,
		          join_expires_at, settle_expires_at`,
		matchID, player2Pubkey, joinTxSig, joinedOnchainAt, settleExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Conflict("join-confirm rejected: player2 mismatch")
	}
	if err != nil {
		return nil, apperr.Internal("failed to update join-confirm state: %v", err)
	}
	return &out, nil
}

// MatchStatusProjection is the joined matches + chain_jobs view served by
// the status endpoint.
type MatchStatusProjection struct {
	MatchID                int64              `db:"match_id"`
	JoinCode               string             `db:"join_code"`
	ProgramID              string             `db:"program_id"`
	AuthorityPubkey        string             `db:"authority_pubkey"`
	GamePDA                string             `db:"game_pda"`
	VaultPDA               string             `db:"vault_pda"`
	Player1Pubkey          string             `db:"player1_pubkey"`
	Player2Pubkey          sql.NullString     `db:"player2_pubkey"`
	EntryLamports          int64              `db:"entry_lamports"`
	MatchStatus            models.MatchStatus `db:"match_status"`
	ChainJobType           sql.NullString     `db:"chain_job_type"`
	ChainJobStatus         sql.NullString     `db:"chain_job_status"`
	WinnerPubkey           sql.NullString     `db:"winner_pubkey"`
	FinalizationReasonCode sql.NullString     `db:"finalization_reason_code"`
	CreateTxSig            sql.NullString     `db:"create_tx_sig"`
	JoinTxSig              sql.NullString     `db:"join_tx_sig"`
	FinalTxSig             sql.NullString     `db:"final_tx_sig"`
	JoinExpiresAt          sql.NullTime       `db:"join_expires_at"`
	SettleExpiresAt        sql.NullTime       `db:"settle_expires_at"`
	LastError              sql.NullString     `db:"last_error"`
	UpdatedAt              sql.NullTime       `db:"updated_at"`
}

// GetMatchStatusProjection loads the status view for one match.
func GetMatchStatusProjection(ctx context.Context, db *sqlx.DB, matchID int64) (*MatchStatusProjection, error) {
	var out MatchStatusProjection
	err := db.GetContext(ctx, &out, `
		SELECT
			m.match_id,
			m.join_code,
			m.program_id,
			m.authority_pubkey,
			m.game_pda,
			m.vault_pda,
			m.player1_pubkey,
			m.player2_pubkey,
			m.entry_lamports,
			m.match_status,
			cj.job_type AS chain_job_type,
			cj.status AS chain_job_status,
			m.winner_pubkey,
			m.finalization_reason_code,
			m.create_tx_sig,
			m.join_tx_sig,
			COALESCE(m.final_tx_sig, cj.last_tx_sig) AS final_tx_sig,
			m.join_expires_at,
			m.settle_expires_at,
			COALESCE(cj.last_error, m.last_error) AS last_error,
			GREATEST(m.updated_at, COALESCE(cj.updated_at, m.updated_at)) AS updated_at
		FROM matches m
		LEFT JOIN chain_jobs cj ON cj.match_id = m.match_id
		WHERE m.match_id = $1`, matchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("match %d not found", matchID)
	}
	if err != nil {
		return nil, apperr.Internal("failed to load match status: %v", err)
	}
	return &out, nil
}
