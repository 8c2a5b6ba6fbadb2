package solana

import (
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

var (
	settleGameDiscriminator  = anchorDiscriminator("global:settle_game")
	forceRefundDiscriminator = anchorDiscriminator("global:force_refund")
)

// BuildSettleGameInstruction builds the settle_game instruction.
// Data: discriminator + 32-byte winner pubkey.
// Accounts: game (w), vault (w), winner (w), authority (signer), system program.
func BuildSettleGameInstruction(programID, gamePDA, vaultPDA, winner, authority solanago.PublicKey) solanago.Instruction {
	data := make([]byte, 0, 8+32)
	data = append(data, settleGameDiscriminator[:]...)
	data = append(data, winner.Bytes()...)

	accounts := solanago.AccountMetaSlice{
		solanago.NewAccountMeta(gamePDA, true, false),
		solanago.NewAccountMeta(vaultPDA, true, false),
		solanago.NewAccountMeta(winner, true, false),
		solanago.NewAccountMeta(authority, false, true),
		solanago.NewAccountMeta(solanago.SystemProgramID, false, false),
	}

	return solanago.NewInstruction(programID, accounts, data)
}

// BuildForceRefundInstruction builds the force_refund instruction.
// Data: discriminator only.
// Accounts: game (w), vault (w), player1 (w), player2 (w), authority (signer),
// system program. Before anyone joins, the on-chain player2 is the default
// pubkey, which cannot be loaded; the player2 slot then carries player1 as a
// placeholder the program tolerates in Created state.
func BuildForceRefundInstruction(programID, gamePDA, vaultPDA solanago.PublicKey, game *GameAccount) (solanago.Instruction, error) {
	if game.State != GameStateCreated && game.State != GameStateJoined {
		return nil, fmt.Errorf("force_refund requires Created or Joined state, got %s", game.State)
	}

	player2 := game.Player2
	player2Writable := true
	if game.State == GameStateCreated && player2.IsZero() {
		// Loaded read-only so the placeholder is never mutated.
		player2 = game.Player1
		player2Writable = false
	}

	accounts := solanago.AccountMetaSlice{
		solanago.NewAccountMeta(gamePDA, true, false),
		solanago.NewAccountMeta(vaultPDA, true, false),
		solanago.NewAccountMeta(game.Player1, true, false),
		solanago.NewAccountMeta(player2, player2Writable, false),
		solanago.NewAccountMeta(game.Authority, false, true),
		solanago.NewAccountMeta(solanago.SystemProgramID, false, false),
	}

	return solanago.NewInstruction(programID, accounts, forceRefundDiscriminator[:]), nil
}
