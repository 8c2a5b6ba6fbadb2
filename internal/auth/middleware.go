package auth

import (
	"bytes"
	"io"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/solduel/backend/internal/apperr"
)

const rawBodyKey = "auth.rawBody"

// RequireInternalHMAC gates a route on the internal HMAC headers. It reads
// the raw body, verifies the MAC over those exact bytes, and stashes them
// for the handler so JSON decoding happens strictly after verification.
func RequireInternalHMAC(verifier *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			log.Printf("[HMAC] Failed to read request body: %v", err)
			apperr.Respond(c, apperr.Unauthorized())
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		err = verifier.Verify(
			c.Request.Context(),
			c.GetHeader(HeaderTimestamp),
			c.GetHeader(HeaderNonce),
			c.GetHeader(HeaderSignature),
			body,
		)
		if err != nil {
			log.Printf("[HMAC] Rejected %s %s: %v", c.Request.Method, c.FullPath(), err)
			apperr.Respond(c, err)
			c.Abort()
			return
		}

		c.Set(rawBodyKey, body)
		c.Next()
	}
}

// VerifiedBody returns the raw bytes the HMAC middleware verified.
func VerifiedBody(c *gin.Context) []byte {
	if v, ok := c.Get(rawBodyKey); ok {
		if body, ok := v.([]byte); ok {
			return body
		}
	}
	return nil
}
