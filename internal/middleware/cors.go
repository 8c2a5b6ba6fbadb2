package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware returns a permissive CORS middleware. Game clients are
// native; the browser surface is status polling and ops tooling only.
func CORSMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Length", "Content-Type", "Accept",
			"X-Timestamp", "X-Nonce", "X-Signature",
		},
		MaxAge: 12 * time.Hour, // Cache preflight responses
	})
}
