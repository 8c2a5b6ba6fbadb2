package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/solduel/backend/internal/apperr"
)

// fakeNonces records reserved nonces in memory.
type fakeNonces struct {
	used map[string]bool
}

func newFakeNonces() *fakeNonces {
	return &fakeNonces{used: map[string]bool{}}
}

func (f *fakeNonces) InsertNonceIfUnused(_ context.Context, nonce string) (bool, error) {
	if f.used[nonce] {
		return false, nil
	}
	f.used[nonce] = true
	return true, nil
}

func newTestVerifier(secret string, at time.Time) (*Verifier, *fakeNonces) {
	nonces := newFakeNonces()
	v := NewVerifier(secret, nonces)
	v.now = func() time.Time { return at }
	return v, nonces
}

func sign(secret, timestamp, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + nonce + "."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyAcceptsValidRequest(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v, _ := newTestVerifier("topsecret", now)

	body := []byte(`{"outcome":"winner"}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := sign("topsecret", ts, "nonce-1", body)

	if err := v.Verify(context.Background(), ts, "nonce-1", sig, body); err != nil {
		t.Fatalf("Verify failed on valid request: %v", err)
	}
}

func TestVerifyAcceptsSha256Prefix(t *testing.T) {
	now := time.Unix(1700000000, 0)

	body := []byte(`{}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := sign("topsecret", ts, "nonce-1", body)

	for _, prefixed := range []string{"sha256=" + sig, "SHA256=" + sig} {
		v, _ := newTestVerifier("topsecret", now)
		if err := v.Verify(context.Background(), ts, "nonce-1", prefixed, body); err != nil {
			t.Errorf("Verify rejected prefixed signature %q: %v", prefixed[:10], err)
		}
	}
}

func TestVerifyRejectsReplayedNonce(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v, _ := newTestVerifier("topsecret", now)

	body := []byte(`{}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := sign("topsecret", ts, "nonce-1", body)

	if err := v.Verify(context.Background(), ts, "nonce-1", sig, body); err != nil {
		t.Fatalf("first use failed: %v", err)
	}
	err := v.Verify(context.Background(), ts, "nonce-1", sig, body)
	if !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Errorf("replay should be unauthorized, got %v", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v, _ := newTestVerifier("topsecret", now)

	body := []byte(`{}`)
	for _, offset := range []int64{-301, 301} {
		ts := strconv.FormatInt(now.Unix()+offset, 10)
		sig := sign("topsecret", ts, "nonce-1", body)
		err := v.Verify(context.Background(), ts, "nonce-1", sig, body)
		if !apperr.IsKind(err, apperr.KindUnauthorized) {
			t.Errorf("offset %d should be unauthorized, got %v", offset, err)
		}
	}

	// Exactly at the boundary is still acceptable.
	ts := strconv.FormatInt(now.Unix()-300, 10)
	sig := sign("topsecret", ts, "nonce-2", body)
	if err := v.Verify(context.Background(), ts, "nonce-2", sig, body); err != nil {
		t.Errorf("300s skew should pass, got %v", err)
	}
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v, nonces := newTestVerifier("topsecret", now)

	body := []byte(`{}`)
	ts := strconv.FormatInt(now.Unix(), 10)

	cases := []string{
		sign("wrongsecret", ts, "nonce-1", body),
		sign("topsecret", ts, "nonce-1", []byte(`{"tampered":true}`)),
		"not-hex",
		"",
	}
	for _, sig := range cases {
		err := v.Verify(context.Background(), ts, "nonce-1", sig, body)
		if !apperr.IsKind(err, apperr.KindUnauthorized) {
			t.Errorf("signature %q should be unauthorized, got %v", sig, err)
		}
	}

	// A failed MAC must not consume the nonce.
	if nonces.used["nonce-1"] {
		t.Errorf("nonce was burned by an unauthenticated request")
	}
}

func TestVerifyRejectsMissingSecret(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v, _ := newTestVerifier("", now)

	body := []byte(`{}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := sign("", ts, "nonce-1", body)

	err := v.Verify(context.Background(), ts, "nonce-1", sig, body)
	if !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Errorf("empty secret should reject everything, got %v", err)
	}
}

func TestVerifyRejectsBadNonce(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v, _ := newTestVerifier("topsecret", now)

	body := []byte(`{}`)
	ts := strconv.FormatInt(now.Unix(), 10)

	long := strings.Repeat("n", 129)
	for _, nonce := range []string{"", "   ", long} {
		sig := sign("topsecret", ts, nonce, body)
		err := v.Verify(context.Background(), ts, nonce, sig, body)
		if !apperr.IsKind(err, apperr.KindUnauthorized) {
			t.Errorf("nonce %q should be unauthorized, got %v", nonce, err)
		}
	}
}

func TestVerifyRejectsBadTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v, _ := newTestVerifier("topsecret", now)

	body := []byte(`{}`)
	for _, ts := range []string{"", "not-a-number", "17e9"} {
		sig := sign("topsecret", ts, "nonce-1", body)
		err := v.Verify(context.Background(), ts, "nonce-1", sig, body)
		if !apperr.IsKind(err, apperr.KindUnauthorized) {
			t.Errorf("timestamp %q should be unauthorized, got %v", ts, err)
		}
	}
}
