package solana

import (
	"bytes"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
)

func TestBuildSettleGameInstruction(t *testing.T) {
	programID := testKey(9)
	gamePDA := testKey(10)
	vaultPDA := testKey(11)
	winner := testKey(1)
	authority := testKey(3)

	ix := BuildSettleGameInstruction(programID, gamePDA, vaultPDA, winner, authority)

	if !ix.ProgramID().Equals(programID) {
		t.Errorf("program id = %s, want %s", ix.ProgramID(), programID)
	}

	data, err := ix.Data()
	if err != nil {
		t.Fatalf("Data() failed: %v", err)
	}
	if len(data) != 8+32 {
		t.Fatalf("data length = %d, want 40", len(data))
	}
	if !bytes.Equal(data[:8], settleGameDiscriminator[:]) {
		t.Errorf("data does not start with settle_game discriminator")
	}
	if !bytes.Equal(data[8:], winner.Bytes()) {
		t.Errorf("data does not carry winner pubkey")
	}

	accounts := ix.Accounts()
	if len(accounts) != 5 {
		t.Fatalf("account count = %d, want 5", len(accounts))
	}
	wantOrder := []solanago.PublicKey{gamePDA, vaultPDA, winner, authority, solanago.SystemProgramID}
	for i, want := range wantOrder {
		if !accounts[i].PublicKey.Equals(want) {
			t.Errorf("account[%d] = %s, want %s", i, accounts[i].PublicKey, want)
		}
	}
	for i := 0; i < 3; i++ {
		if !accounts[i].IsWritable {
			t.Errorf("account[%d] should be writable", i)
		}
	}
	if !accounts[3].IsSigner || accounts[3].IsWritable {
		t.Errorf("authority should be a read-only signer")
	}
}

func TestBuildForceRefundInstructionJoined(t *testing.T) {
	game := sampleGameAccount() // Joined, player2 set

	ix, err := BuildForceRefundInstruction(testKey(9), testKey(10), testKey(11), game)
	if err != nil {
		t.Fatalf("BuildForceRefundInstruction failed: %v", err)
	}

	data, err := ix.Data()
	if err != nil {
		t.Fatalf("Data() failed: %v", err)
	}
	if !bytes.Equal(data, forceRefundDiscriminator[:]) {
		t.Errorf("data should be the bare force_refund discriminator")
	}

	accounts := ix.Accounts()
	if len(accounts) != 6 {
		t.Fatalf("account count = %d, want 6", len(accounts))
	}
	if !accounts[3].PublicKey.Equals(game.Player2) {
		t.Errorf("account[3] = %s, want player2 %s", accounts[3].PublicKey, game.Player2)
	}
	if !accounts[3].IsWritable {
		t.Errorf("joined player2 should be writable to receive the refund")
	}
}

func TestBuildForceRefundInstructionCreatedPlaceholder(t *testing.T) {
	game := sampleGameAccount()
	game.State = GameStateCreated
	game.Player2 = solanago.PublicKey{}
	game.JoinedAt = 0

	ix, err := BuildForceRefundInstruction(testKey(9), testKey(10), testKey(11), game)
	if err != nil {
		t.Fatalf("BuildForceRefundInstruction failed: %v", err)
	}

	accounts := ix.Accounts()
	if !accounts[3].PublicKey.Equals(game.Player1) {
		t.Errorf("player2 slot should carry player1 as placeholder, got %s", accounts[3].PublicKey)
	}
	if accounts[3].IsWritable {
		t.Errorf("placeholder player2 must not be writable")
	}
	if !accounts[2].IsWritable {
		t.Errorf("player1 must stay writable to receive the refund")
	}
}

func TestBuildForceRefundInstructionRejectsTerminalStates(t *testing.T) {
	for _, state := range []GameState{GameStateSettled, GameStateRefunded} {
		game := sampleGameAccount()
		game.State = state
		if _, err := BuildForceRefundInstruction(testKey(9), testKey(10), testKey(11), game); err == nil {
			t.Errorf("expected error for state %s", state)
		}
	}
}
