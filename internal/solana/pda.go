package solana

import (
	"encoding/binary"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

var (
	gameSeed  = []byte("game")
	vaultSeed = []byte("vault")
)

// MatchPDAs holds the derived on-chain addresses for one match.
type MatchPDAs struct {
	GamePDA  string
	VaultPDA string
}

// DeriveMatchPDAs computes the game and vault program-derived addresses.
// Seeds: ["game", player1, authority, match_id_u64_le] then ["vault", game_pda].
func DeriveMatchPDAs(programID, authorityPubkey, player1Pubkey string, matchID int64) (*MatchPDAs, error) {
	if matchID < 0 {
		return nil, fmt.Errorf("match_id must be non-negative, got %d", matchID)
	}

	program, err := solanago.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid PROGRAM_ID: %w", err)
	}
	authority, err := solanago.PublicKeyFromBase58(authorityPubkey)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTHORITY_PUBKEY: %w", err)
	}
	player1, err := solanago.PublicKeyFromBase58(player1Pubkey)
	if err != nil {
		return nil, fmt.Errorf("invalid player1_pubkey: %w", err)
	}

	matchIDBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(matchIDBytes, uint64(matchID))

	gamePDA, _, err := solanago.FindProgramAddress(
		[][]byte{gameSeed, player1.Bytes(), authority.Bytes(), matchIDBytes},
		program,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to derive game PDA: %w", err)
	}

	vaultPDA, _, err := solanago.FindProgramAddress(
		[][]byte{vaultSeed, gamePDA.Bytes()},
		program,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to derive vault PDA: %w", err)
	}

	return &MatchPDAs{
		GamePDA:  gamePDA.String(),
		VaultPDA: vaultPDA.String(),
	}, nil
}
