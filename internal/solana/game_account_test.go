package solana

import (
	"bytes"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
)

// testKey builds a deterministic pubkey whose 32 bytes are all b.
func testKey(b byte) solanago.PublicKey {
	var raw [32]byte
	for i := range raw {
		raw[i] = b
	}
	return solanago.PublicKeyFromBytes(raw[:])
}

func sampleGameAccount() *GameAccount {
	return &GameAccount{
		Player1:     testKey(1),
		Player2:     testKey(2),
		EntryAmount: 500_000_000,
		Authority:   testKey(3),
		MatchID:     42,
		State:       GameStateJoined,
		CreatedAt:   1700000000,
		JoinedAt:    1700000100,
		Bump:        254,
		VaultBump:   253,
	}
}

func TestGameAccountEncodeDecodeRoundTrip(t *testing.T) {
	orig := sampleGameAccount()
	raw := EncodeGameAccount(orig)

	if len(raw) != 8+gameAccountBodyLen {
		t.Fatalf("encoded length = %d, want %d", len(raw), 8+gameAccountBodyLen)
	}

	decoded, err := DecodeGameAccount(raw)
	if err != nil {
		t.Fatalf("DecodeGameAccount failed: %v", err)
	}
	if *decoded != *orig {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, orig)
	}

	// Re-encoding the decoded account must be bit-identical.
	if !bytes.Equal(EncodeGameAccount(decoded), raw) {
		t.Errorf("re-encoded bytes differ from original")
	}
}

func TestDecodeGameAccountRejectsShortData(t *testing.T) {
	raw := EncodeGameAccount(sampleGameAccount())
	if _, err := DecodeGameAccount(raw[:len(raw)-1]); err == nil {
		t.Errorf("expected error for truncated data")
	}
	if _, err := DecodeGameAccount(nil); err == nil {
		t.Errorf("expected error for empty data")
	}
}

func TestDecodeGameAccountRejectsBadDiscriminator(t *testing.T) {
	raw := EncodeGameAccount(sampleGameAccount())
	raw[0] ^= 0xFF
	if _, err := DecodeGameAccount(raw); err == nil {
		t.Errorf("expected error for corrupted discriminator")
	}
}

func TestDecodeGameAccountRejectsUnknownState(t *testing.T) {
	raw := EncodeGameAccount(sampleGameAccount())
	// state byte sits after discriminator + player1 + player2 + entry +
	// authority + match_id
	stateOffset := 8 + 32 + 32 + 8 + 32 + 8
	raw[stateOffset] = 4
	if _, err := DecodeGameAccount(raw); err == nil {
		t.Errorf("expected error for state byte 4")
	}
}

func TestGameStateString(t *testing.T) {
	cases := []struct {
		state GameState
		want  string
	}{
		{GameStateCreated, "Created"},
		{GameStateJoined, "Joined"},
		{GameStateSettled, "Settled"},
		{GameStateRefunded, "Refunded"},
		{GameState(9), "GameState(9)"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("GameState(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
