package solana

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

// GameState is the on-chain state byte of the Game account.
type GameState uint8

const (
	GameStateCreated GameState = iota
	GameStateJoined
	GameStateSettled
	GameStateRefunded
)

func (s GameState) String() string {
	switch s {
	case GameStateCreated:
		return "Created"
	case GameStateJoined:
		return "Joined"
	case GameStateSettled:
		return "Settled"
	case GameStateRefunded:
		return "Refunded"
	default:
		return fmt.Sprintf("GameState(%d)", uint8(s))
	}
}

// gameAccountBodyLen is the fixed little-endian body that follows the
// 8-byte Anchor discriminator: player1:32 player2:32 entry:u64
// authority:32 match_id:u64 state:u8 created_at:i64 joined_at:i64
// bump:u8 vault_bump:u8.
const gameAccountBodyLen = 32 + 32 + 8 + 32 + 8 + 1 + 8 + 8 + 1 + 1

// GameAccount is the decoded on-chain Game account.
type GameAccount struct {
	Player1     solanago.PublicKey
	Player2     solanago.PublicKey
	EntryAmount uint64
	Authority   solanago.PublicKey
	MatchID     uint64
	State       GameState
	CreatedAt   int64
	JoinedAt    int64
	Bump        uint8
	VaultBump   uint8
}

// anchorDiscriminator returns SHA256(preimage)[0..8], the Anchor tag for
// account layouts ("account:Type") and instructions ("global:method").
func anchorDiscriminator(preimage string) [8]byte {
	hash := sha256.Sum256([]byte(preimage))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

var gameAccountDiscriminator = anchorDiscriminator("account:Game")

// DecodeGameAccount parses raw account data into a GameAccount.
func DecodeGameAccount(data []byte) (*GameAccount, error) {
	if len(data) < 8+gameAccountBodyLen {
		return nil, fmt.Errorf("game account data too short: %d bytes", len(data))
	}
	if [8]byte(data[:8]) != gameAccountDiscriminator {
		return nil, fmt.Errorf("invalid Game discriminator")
	}

	body := data[8:]
	acc := &GameAccount{}
	i := 0

	acc.Player1 = solanago.PublicKeyFromBytes(body[i : i+32])
	i += 32
	acc.Player2 = solanago.PublicKeyFromBytes(body[i : i+32])
	i += 32
	acc.EntryAmount = binary.LittleEndian.Uint64(body[i : i+8])
	i += 8
	acc.Authority = solanago.PublicKeyFromBytes(body[i : i+32])
	i += 32
	acc.MatchID = binary.LittleEndian.Uint64(body[i : i+8])
	i += 8

	state := body[i]
	i++
	if state > uint8(GameStateRefunded) {
		return nil, fmt.Errorf("invalid GameState variant: %d", state)
	}
	acc.State = GameState(state)

	acc.CreatedAt = int64(binary.LittleEndian.Uint64(body[i : i+8]))
	i += 8
	acc.JoinedAt = int64(binary.LittleEndian.Uint64(body[i : i+8]))
	i += 8
	acc.Bump = body[i]
	i++
	acc.VaultBump = body[i]

	return acc, nil
}

// EncodeGameAccount serializes a GameAccount back into the on-chain layout.
// Decode then Encode is bit-identical for valid inputs.
func EncodeGameAccount(acc *GameAccount) []byte {
	out := make([]byte, 0, 8+gameAccountBodyLen)
	out = append(out, gameAccountDiscriminator[:]...)
	out = append(out, acc.Player1.Bytes()...)
	out = append(out, acc.Player2.Bytes()...)
	out = binary.LittleEndian.AppendUint64(out, acc.EntryAmount)
	out = append(out, acc.Authority.Bytes()...)
	out = binary.LittleEndian.AppendUint64(out, acc.MatchID)
	out = append(out, uint8(acc.State))
	out = binary.LittleEndian.AppendUint64(out, uint64(acc.CreatedAt))
	out = binary.LittleEndian.AppendUint64(out, uint64(acc.JoinedAt))
	out = append(out, acc.Bump, acc.VaultBump)
	return out
}
