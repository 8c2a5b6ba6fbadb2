package handlers

import (
	"testing"

	"github.com/solduel/backend/internal/apperr"
	"github.com/solduel/backend/internal/models"
)

func TestParseMatchID(t *testing.T) {
	valid := map[string]int64{
		"1":      1,
		" 42 ":   42,
		"999999": 999999,
	}
	for raw, want := range valid {
		got, err := parseMatchID(raw)
		if err != nil {
			t.Errorf("parseMatchID(%q) failed: %v", raw, err)
			continue
		}
		if got != want {
			t.Errorf("parseMatchID(%q) = %d, want %d", raw, got, want)
		}
	}

	for _, raw := range []string{"", "abc", "0", "-5", "1.5", "9223372036854775808"} {
		_, err := parseMatchID(raw)
		if !apperr.IsKind(err, apperr.KindBadRequest) {
			t.Errorf("parseMatchID(%q) should be a bad request, got %v", raw, err)
		}
	}
}

func TestParseEntryLamports(t *testing.T) {
	valid := map[string]int64{
		"1":                   1,
		"500000000":           500000000,
		"9223372036854775807": 1<<63 - 1,
	}
	for raw, want := range valid {
		got, err := parseEntryLamports(raw)
		if err != nil {
			t.Errorf("parseEntryLamports(%q) failed: %v", raw, err)
			continue
		}
		if got != want {
			t.Errorf("parseEntryLamports(%q) = %d, want %d", raw, got, want)
		}
	}

	invalid := []string{
		"",
		"0",
		"-1",
		"abc",
		"1e9",
		"9223372036854775808",  // exceeds int64
		"18446744073709551616", // exceeds uint64
	}
	for _, raw := range invalid {
		_, err := parseEntryLamports(raw)
		if !apperr.IsKind(err, apperr.KindBadRequest) {
			t.Errorf("parseEntryLamports(%q) should be a bad request, got %v", raw, err)
		}
	}
}

func strPtr(s string) *string { return &s }

func TestValidateResultRequest(t *testing.T) {
	params, err := validateResultRequest(7, &models.ResultRequest{
		Outcome:        models.OutcomeWinner,
		WinnerPubkey:   strPtr(" Fk5oJ1111111111111111111111111111111111111 "),
		ReasonCode:     "normal_win",
		IdempotencyKey: "game-7-final",
	})
	if err != nil {
		t.Fatalf("valid winner request failed: %v", err)
	}
	if params.WinnerPubkey != "Fk5oJ1111111111111111111111111111111111111" {
		t.Errorf("winner pubkey not trimmed: %q", params.WinnerPubkey)
	}
	if params.MatchID != 7 {
		t.Errorf("match id = %d, want 7", params.MatchID)
	}

	params, err = validateResultRequest(7, &models.ResultRequest{
		Outcome:        models.OutcomeBroken,
		ReasonCode:     "opponent_disconnect",
		ReasonDetail:   strPtr("ws closed"),
		IdempotencyKey: "game-7-final",
	})
	if err != nil {
		t.Fatalf("valid broken request failed: %v", err)
	}
	if params.WinnerPubkey != "" {
		t.Errorf("broken outcome should carry no winner")
	}
}

func TestValidateResultRequestRejections(t *testing.T) {
	cases := []struct {
		name string
		req  models.ResultRequest
	}{
		{"winner outcome without winner", models.ResultRequest{
			Outcome: models.OutcomeWinner, ReasonCode: "r", IdempotencyKey: "k",
		}},
		{"broken outcome with winner", models.ResultRequest{
			Outcome: models.OutcomeBroken, WinnerPubkey: strPtr("abc"),
			ReasonCode: "r", IdempotencyKey: "k",
		}},
		{"unknown outcome", models.ResultRequest{
			Outcome: "draw", ReasonCode: "r", IdempotencyKey: "k",
		}},
		{"missing idempotency key", models.ResultRequest{
			Outcome: models.OutcomeWinner, WinnerPubkey: strPtr("abc"), ReasonCode: "r",
		}},
		{"missing reason code", models.ResultRequest{
			Outcome: models.OutcomeWinner, WinnerPubkey: strPtr("abc"), IdempotencyKey: "k",
		}},
	}
	for _, tc := range cases {
		if _, err := validateResultRequest(1, &tc.req); !apperr.IsKind(err, apperr.KindBadRequest) {
			t.Errorf("%s: expected bad request, got %v", tc.name, err)
		}
	}
}
