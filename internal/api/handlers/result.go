package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/solduel/backend/internal/apperr"
	"github.com/solduel/backend/internal/auth"
	"github.com/solduel/backend/internal/models"
	"github.com/solduel/backend/internal/store"
)

// SubmitResult records a match outcome and enqueues the finalization job.
// HMAC-gated: the body is decoded from the bytes the middleware verified.
func SubmitResult(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		matchID, err := parseMatchID(c.Param("match_id"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		var req models.ResultRequest
		if err := json.Unmarshal(auth.VerifiedBody(c), &req); err != nil {
			apperr.Respond(c, apperr.BadRequest("invalid JSON body: %v", err))
			return
		}

		params, err := validateResultRequest(matchID, &req)
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		record, err := store.RecordResult(c.Request.Context(), db, *params)
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		log.Printf("[RESULT] Match %d result recorded (outcome=%s, job=%s/%s)",
			matchID, req.Outcome, record.JobType, record.JobStatus)

		c.JSON(http.StatusOK, models.ResultResponse{
			MatchID:            strconv.FormatInt(matchID, 10),
			MatchStatus:        record.MatchStatus,
			FinalizationAction: record.JobType,
			ChainJobStatus:     record.JobStatus,
		})
	}
}

// validateResultRequest enforces the cross-field rules that do not need
// the stored row: outcome/winner pairing and required fields.
func validateResultRequest(matchID int64, req *models.ResultRequest) (*store.ResultParams, error) {
	winner := ""
	if req.WinnerPubkey != nil {
		winner = strings.TrimSpace(*req.WinnerPubkey)
	}

	switch req.Outcome {
	case models.OutcomeWinner:
		if winner == "" {
			return nil, apperr.BadRequest("winner_pubkey is required when outcome=winner")
		}
	case models.OutcomeBroken:
		if winner != "" {
			return nil, apperr.BadRequest("winner_pubkey must be absent when outcome=broken")
		}
	default:
		return nil, apperr.BadRequest("outcome must be winner or broken")
	}

	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, apperr.BadRequest("idempotency_key is required")
	}
	if strings.TrimSpace(req.ReasonCode) == "" {
		return nil, apperr.BadRequest("reason_code is required")
	}

	detail := ""
	if req.ReasonDetail != nil {
		detail = strings.TrimSpace(*req.ReasonDetail)
	}

	return &store.ResultParams{
		MatchID:        matchID,
		Outcome:        req.Outcome,
		WinnerPubkey:   winner,
		ReasonCode:     strings.TrimSpace(req.ReasonCode),
		ReasonDetail:   detail,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	}, nil
}
