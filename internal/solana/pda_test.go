package solana

import "testing"

func TestDeriveMatchPDAsIsDeterministic(t *testing.T) {
	program := testKey(20).String()
	authority := testKey(3).String()
	player1 := testKey(1).String()

	a, err := DeriveMatchPDAs(program, authority, player1, 7)
	if err != nil {
		t.Fatalf("DeriveMatchPDAs failed: %v", err)
	}
	b, err := DeriveMatchPDAs(program, authority, player1, 7)
	if err != nil {
		t.Fatalf("DeriveMatchPDAs failed: %v", err)
	}

	if a.GamePDA != b.GamePDA || a.VaultPDA != b.VaultPDA {
		t.Errorf("same inputs derived different PDAs: %+v vs %+v", a, b)
	}
	if a.GamePDA == a.VaultPDA {
		t.Errorf("game and vault PDAs should differ")
	}
}

func TestDeriveMatchPDAsVariesByMatchID(t *testing.T) {
	program := testKey(20).String()
	authority := testKey(3).String()
	player1 := testKey(1).String()

	a, err := DeriveMatchPDAs(program, authority, player1, 1)
	if err != nil {
		t.Fatalf("DeriveMatchPDAs failed: %v", err)
	}
	b, err := DeriveMatchPDAs(program, authority, player1, 2)
	if err != nil {
		t.Fatalf("DeriveMatchPDAs failed: %v", err)
	}

	if a.GamePDA == b.GamePDA {
		t.Errorf("different match ids derived the same game PDA")
	}
}

func TestDeriveMatchPDAsRejectsBadInput(t *testing.T) {
	program := testKey(20).String()
	authority := testKey(3).String()
	player1 := testKey(1).String()

	if _, err := DeriveMatchPDAs("not-base58!", authority, player1, 1); err == nil {
		t.Errorf("expected error for bad program id")
	}
	if _, err := DeriveMatchPDAs(program, authority, "short", 1); err == nil {
		t.Errorf("expected error for bad player pubkey")
	}
	if _, err := DeriveMatchPDAs(program, authority, player1, -1); err == nil {
		t.Errorf("expected error for negative match id")
	}
}
