package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/solduel/backend/internal/api/handlers"
	"github.com/solduel/backend/internal/auth"
	"github.com/solduel/backend/internal/config"
	"github.com/solduel/backend/internal/solana"
	"github.com/solduel/backend/internal/store"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, db *sqlx.DB, cfg *config.Config, chain *solana.Client) {
	verifier := auth.NewVerifier(cfg.InternalHMACSecret, store.NewNonceStore(db))
	requireHMAC := auth.RequireInternalHMAC(verifier)

	v1 := router.Group("/v1")
	{
		v1.GET("/health", handlers.HealthCheck)

		matches := v1.Group("/matches")
		{
			matches.POST("", handlers.CreateMatch(db, cfg))
			matches.GET("/code/:join_code", handlers.GetMatchByCode(db))
			matches.POST("/:match_id/create-confirm", handlers.ConfirmCreateTx(db, cfg, chain))
			matches.POST("/:match_id/join-confirm", handlers.ConfirmJoinTx(db, cfg, chain))
			matches.POST("/:match_id/result", requireHMAC, handlers.SubmitResult(db))
			matches.GET("/:match_id/status", handlers.GetMatchStatus(db))
		}

		admin := v1.Group("/admin")
		{
			admin.POST("/matches/:match_id/retry-finalization", requireHMAC, handlers.RetryFinalization(db))
		}
	}
}
