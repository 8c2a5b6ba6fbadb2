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

// RetryFinalization revives a stuck or failed finalization job. HMAC-gated.
func RetryFinalization(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		matchID, err := parseMatchID(c.Param("match_id"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		var req models.RetryFinalizationRequest
		if err := json.Unmarshal(auth.VerifiedBody(c), &req); err != nil {
			apperr.Respond(c, apperr.BadRequest("invalid JSON body: %v", err))
			return
		}
		if strings.TrimSpace(req.Reason) == "" {
			apperr.Respond(c, apperr.BadRequest("reason is required"))
			return
		}

		record, err := store.RetryFinalization(c.Request.Context(), db, matchID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		log.Printf("[ADMIN] Finalization retry for match %d (reason=%q, job=%s)",
			matchID, strings.TrimSpace(req.Reason), record.ChainJobStatus)

		c.JSON(http.StatusOK, models.RetryFinalizationResponse{
			MatchID:        strconv.FormatInt(matchID, 10),
			MatchStatus:    record.MatchStatus,
			ChainJobStatus: record.ChainJobStatus,
		})
	}
}
