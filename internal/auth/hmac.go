package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/solduel/backend/internal/apperr"
)

const (
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
	HeaderSignature = "X-Signature"

	// MaxClockSkew bounds |now - X-Timestamp|.
	MaxClockSkew = 300 * time.Second

	maxNonceLen = 128
)

// NonceReserver reserves a nonce atomically; false means it was used before.
type NonceReserver interface {
	InsertNonceIfUnused(ctx context.Context, nonce string) (bool, error)
}

// Verifier checks the HMAC headers on internal/admin requests. The MAC is
// HMAC-SHA-256 over "timestamp.nonce.body", computed against the exact raw
// body bytes before any JSON parsing.
type Verifier struct {
	secret []byte
	nonces NonceReserver
	now    func() time.Time
}

func NewVerifier(secret string, nonces NonceReserver) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		nonces: nonces,
		now:    time.Now,
	}
}

// Verify validates the three headers and raw body and consumes the nonce.
// Any failure maps to Unauthorized; only nonce-store faults surface as
// Internal.
func (v *Verifier) Verify(ctx context.Context, timestampRaw, nonceRaw, signatureRaw string, body []byte) error {
	if len(v.secret) == 0 {
		return apperr.Unauthorized()
	}

	nonce := strings.TrimSpace(nonceRaw)
	if nonce == "" || len(nonce) > maxNonceLen {
		return apperr.Unauthorized()
	}

	timestamp, err := strconv.ParseInt(strings.TrimSpace(timestampRaw), 10, 64)
	if err != nil {
		return apperr.Unauthorized()
	}
	skew := v.now().Unix() - timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(MaxClockSkew.Seconds()) {
		return apperr.Unauthorized()
	}

	providedMAC, err := decodeSignature(signatureRaw)
	if err != nil {
		return apperr.Unauthorized()
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.TrimSpace(timestampRaw)))
	mac.Write([]byte("."))
	mac.Write([]byte(nonce))
	mac.Write([]byte("."))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), providedMAC) {
		return apperr.Unauthorized()
	}

	// Consume the nonce only after the MAC checks out so attackers cannot
	// burn nonces they never signed for.
	fresh, err := v.nonces.InsertNonceIfUnused(ctx, nonce)
	if err != nil {
		return err
	}
	if !fresh {
		return apperr.Unauthorized()
	}

	return nil
}

// decodeSignature parses the X-Signature value: hex, optionally prefixed
// with a case-insensitive "sha256=".
func decodeSignature(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) >= 7 && strings.EqualFold(trimmed[:7], "sha256=") {
		trimmed = trimmed[7:]
	}
	if trimmed == "" {
		return nil, apperr.Unauthorized()
	}
	return hex.DecodeString(trimmed)
}
