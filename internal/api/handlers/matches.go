package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/solduel/backend/internal/apperr"
	"github.com/solduel/backend/internal/config"
	"github.com/solduel/backend/internal/models"
	"github.com/solduel/backend/internal/solana"
	"github.com/solduel/backend/internal/store"
)

// CreateMatch reserves a match id, derives the on-chain addresses and
// records the match in waiting_create_tx. The client funds the escrow with
// its own create transaction afterwards.
func CreateMatch(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CreateMatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, apperr.BadRequest("invalid JSON body: %v", err))
			return
		}

		player1 := strings.TrimSpace(req.Player1Pubkey)
		if player1 == "" {
			apperr.Respond(c, apperr.BadRequest("player1_pubkey is required"))
			return
		}

		entryLamports, err := parseEntryLamports(req.EntryLamports)
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		matchID, err := store.ReserveNextMatchID(c.Request.Context(), db)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		joinCode, err := store.JoinCodeFromMatchID(matchID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		pdas, err := solana.DeriveMatchPDAs(cfg.ProgramID, cfg.AuthorityPubkey, player1, matchID)
		if err != nil {
			apperr.Respond(c, apperr.BadRequest("invalid create-match inputs: %v", err))
			return
		}

		err = store.InsertCreateMatch(c.Request.Context(), db, store.CreateMatchParams{
			MatchID:         matchID,
			JoinCode:        joinCode,
			ProgramID:       cfg.ProgramID,
			AuthorityPubkey: cfg.AuthorityPubkey,
			GamePDA:         pdas.GamePDA,
			VaultPDA:        pdas.VaultPDA,
			Player1Pubkey:   player1,
			EntryLamports:   entryLamports,
		})
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		log.Printf("[MATCH] Created match %d (join_code=%s, entry=%d)", matchID, joinCode, entryLamports)

		c.JSON(http.StatusOK, models.CreateMatchResponse{
			MatchID:              strconv.FormatInt(matchID, 10),
			JoinCode:             joinCode,
			ProgramID:            cfg.ProgramID,
			AuthorityPubkey:      cfg.AuthorityPubkey,
			GamePDA:              pdas.GamePDA,
			VaultPDA:             pdas.VaultPDA,
			EntryLamports:        strconv.FormatInt(entryLamports, 10),
			JoinTimeoutSeconds:   cfg.JoinTimeoutSeconds,
			SettleTimeoutSeconds: cfg.SettleTimeoutSeconds,
			MatchStatus:          models.MatchWaitingCreateTx,
		})
	}
}

// GetMatchByCode resolves a join code into a joinable match snapshot.
func GetMatchByCode(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		joinCode := strings.ToUpper(strings.TrimSpace(c.Param("join_code")))
		if joinCode == "" {
			apperr.Respond(c, apperr.BadRequest("join_code is required"))
			return
		}

		m, err := store.GetMatchByJoinCode(c.Request.Context(), db, joinCode)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		if m.MatchStatus.Terminal() {
			apperr.Respond(c, apperr.Conflict("match %d is already %s", m.MatchID, m.MatchStatus))
			return
		}

		c.JSON(http.StatusOK, models.MatchLookupByCodeResponse{
			MatchID:       strconv.FormatInt(m.MatchID, 10),
			JoinCode:      m.JoinCode,
			GamePDA:       m.GamePDA,
			VaultPDA:      m.VaultPDA,
			Player1Pubkey: m.Player1Pubkey,
			EntryLamports: strconv.FormatInt(m.EntryLamports, 10),
			MatchStatus:   m.MatchStatus,
			JoinExpiresAt: nullTimePtr(m.JoinExpiresAt),
		})
	}
}

// ConfirmCreateTx verifies the funded Game account on chain and advances
// the match to created_on_chain. Re-confirmation of an already-progressed
// match returns the stored snapshot.
func ConfirmCreateTx(db *sqlx.DB, cfg *config.Config, chain *solana.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		matchID, err := parseMatchID(c.Param("match_id"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		var req models.CreateConfirmRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, apperr.BadRequest("invalid JSON body: %v", err))
			return
		}
		if strings.TrimSpace(req.CreateTxSig) == "" {
			apperr.Respond(c, apperr.BadRequest("create_tx_sig is required"))
			return
		}

		m, err := store.GetMatch(c.Request.Context(), db, matchID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		if m.MatchStatus != models.MatchWaitingCreateTx {
			c.JSON(http.StatusOK, models.CreateConfirmResponse{
				MatchID:       strconv.FormatInt(m.MatchID, 10),
				Verified:      true,
				MatchStatus:   m.MatchStatus,
				CreateTxSig:   m.CreateTxSig.String,
				JoinExpiresAt: nullTimePtr(m.JoinExpiresAt),
			})
			return
		}

		game, err := chain.FetchGameAccount(c.Request.Context(), m.GamePDA)
		if err != nil {
			apperr.Respond(c, apperr.Internal("failed to read game account: %v", err))
			return
		}
		if game.State != solana.GameStateCreated {
			apperr.Respond(c, apperr.Conflict("on-chain game is %s, expected Created", game.State))
			return
		}
		if err := verifyGameMatchesRow(game, m); err != nil {
			apperr.Respond(c, err)
			return
		}

		createdAt := time.Unix(game.CreatedAt, 0).UTC()
		joinExpires := createdAt.Add(time.Duration(cfg.JoinTimeoutSeconds) * time.Second)

		updated, err := store.MarkMatchCreatedOnChain(c.Request.Context(), db, matchID,
			strings.TrimSpace(req.CreateTxSig),
			sql.NullTime{Time: createdAt, Valid: true},
			sql.NullTime{Time: joinExpires, Valid: true})
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		log.Printf("[MATCH] Match %d confirmed on chain (status=%s)", matchID, updated.MatchStatus)

		c.JSON(http.StatusOK, models.CreateConfirmResponse{
			MatchID:       strconv.FormatInt(matchID, 10),
			Verified:      true,
			MatchStatus:   updated.MatchStatus,
			CreateTxSig:   updated.CreateTxSig.String,
			JoinExpiresAt: nullTimePtr(updated.JoinExpiresAt),
		})
	}
}

// ConfirmJoinTx verifies the joined Game account on chain, captures
// player2 and advances the match to joined_on_chain.
func ConfirmJoinTx(db *sqlx.DB, cfg *config.Config, chain *solana.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		matchID, err := parseMatchID(c.Param("match_id"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		var req models.JoinConfirmRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, apperr.BadRequest("invalid JSON body: %v", err))
			return
		}
		if strings.TrimSpace(req.JoinTxSig) == "" {
			apperr.Respond(c, apperr.BadRequest("join_tx_sig is required"))
			return
		}

		m, err := store.GetMatch(c.Request.Context(), db, matchID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		switch m.MatchStatus {
		case models.MatchWaitingCreateTx:
			apperr.Respond(c, apperr.Conflict("match %d has not been create-confirmed yet", matchID))
			return
		case models.MatchCreatedOnChain:
			// Proceed with on-chain verification below.
		default:
			if !m.Player2Pubkey.Valid {
				apperr.Respond(c, apperr.Conflict("match %d is past joining but has no recorded player2", matchID))
				return
			}
			c.JSON(http.StatusOK, models.JoinConfirmResponse{
				MatchID:         strconv.FormatInt(m.MatchID, 10),
				Verified:        true,
				MatchStatus:     m.MatchStatus,
				Player2Pubkey:   m.Player2Pubkey.String,
				JoinTxSig:       m.JoinTxSig.String,
				SettleExpiresAt: nullTimePtr(m.SettleExpiresAt),
			})
			return
		}

		game, err := chain.FetchGameAccount(c.Request.Context(), m.GamePDA)
		if err != nil {
			apperr.Respond(c, apperr.Internal("failed to read game account: %v", err))
			return
		}
		if game.State != solana.GameStateJoined {
			apperr.Respond(c, apperr.Conflict("on-chain game is %s, expected Joined", game.State))
			return
		}
		if err := verifyGameMatchesRow(game, m); err != nil {
			apperr.Respond(c, err)
			return
		}
		if game.Player2.IsZero() {
			apperr.Respond(c, apperr.Conflict("on-chain player2 is unset"))
			return
		}
		if game.Player2.Equals(game.Player1) {
			apperr.Respond(c, apperr.Conflict("on-chain player2 equals player1"))
			return
		}

		joinedAt := time.Unix(game.JoinedAt, 0).UTC()
		settleExpires := joinedAt.Add(time.Duration(cfg.SettleTimeoutSeconds) * time.Second)

		updated, err := store.MarkMatchJoinedOnChain(c.Request.Context(), db, matchID,
			game.Player2.String(),
			strings.TrimSpace(req.JoinTxSig),
			sql.NullTime{Time: joinedAt, Valid: true},
			sql.NullTime{Time: settleExpires, Valid: true})
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		log.Printf("[MATCH] Match %d joined on chain by %s", matchID, game.Player2)

		c.JSON(http.StatusOK, models.JoinConfirmResponse{
			MatchID:         strconv.FormatInt(matchID, 10),
			Verified:        true,
			MatchStatus:     updated.MatchStatus,
			Player2Pubkey:   updated.Player2Pubkey.String,
			JoinTxSig:       updated.JoinTxSig.String,
			SettleExpiresAt: nullTimePtr(updated.SettleExpiresAt),
		})
	}
}

// GetMatchStatus serves the full projection for client polling.
func GetMatchStatus(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		matchID, err := parseMatchID(c.Param("match_id"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		p, err := store.GetMatchStatusProjection(c.Request.Context(), db, matchID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		// The vault holds one entry before player2 funds it, two after.
		pot := p.EntryLamports
		if p.Player2Pubkey.Valid {
			pot = 2 * p.EntryLamports
		}

		resp := models.MatchStatusResponse{
			MatchID:                strconv.FormatInt(p.MatchID, 10),
			JoinCode:               p.JoinCode,
			ProgramID:              p.ProgramID,
			AuthorityPubkey:        p.AuthorityPubkey,
			GamePDA:                p.GamePDA,
			VaultPDA:               p.VaultPDA,
			Player1Pubkey:          p.Player1Pubkey,
			Player2Pubkey:          nullStringPtr(p.Player2Pubkey),
			EntryLamports:          strconv.FormatInt(p.EntryLamports, 10),
			PotLamports:            strconv.FormatInt(pot, 10),
			MatchStatus:            p.MatchStatus,
			WinnerPubkey:           nullStringPtr(p.WinnerPubkey),
			FinalizationReasonCode: nullStringPtr(p.FinalizationReasonCode),
			CreateTxSig:            nullStringPtr(p.CreateTxSig),
			JoinTxSig:              nullStringPtr(p.JoinTxSig),
			FinalTxSig:             nullStringPtr(p.FinalTxSig),
			JoinExpiresAt:          nullTimePtr(p.JoinExpiresAt),
			SettleExpiresAt:        nullTimePtr(p.SettleExpiresAt),
			LastError:              nullStringPtr(p.LastError),
		}
		if p.UpdatedAt.Valid {
			resp.UpdatedAt = p.UpdatedAt.Time
		}
		if p.ChainJobType.Valid {
			jobType := models.ChainJobType(p.ChainJobType.String)
			resp.ChainJobType = &jobType
		}
		if p.ChainJobStatus.Valid {
			jobStatus := models.ChainJobStatus(p.ChainJobStatus.String)
			resp.ChainJobStatus = &jobStatus
		}

		c.JSON(http.StatusOK, resp)
	}
}

// verifyGameMatchesRow cross-checks the decoded on-chain account against
// the stored row. Any disagreement means the client confirmed the wrong
// account.
func verifyGameMatchesRow(game *solana.GameAccount, m *models.Match) error {
	if game.Player1.String() != m.Player1Pubkey {
		return apperr.Conflict("on-chain player1 does not match the stored match")
	}
	if game.Authority.String() != m.AuthorityPubkey {
		return apperr.Conflict("on-chain authority does not match the stored match")
	}
	if game.MatchID != uint64(m.MatchID) {
		return apperr.Conflict("on-chain match_id does not match the stored match")
	}
	if game.EntryAmount != uint64(m.EntryLamports) {
		return apperr.Conflict("on-chain entry_amount does not match the stored match")
	}
	return nil
}
