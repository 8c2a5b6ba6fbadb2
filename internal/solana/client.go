package solana

import (
	"context"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	confirmPollAttempts = 40
	confirmPollInterval = 500 * time.Millisecond
)

// Client wraps the Solana RPC endpoint used by the API and the finalizer.
type Client struct {
	rpc       *rpc.Client
	programID solanago.PublicKey
}

func NewClient(rpcURL, programID string) (*Client, error) {
	program, err := solanago.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid PROGRAM_ID: %w", err)
	}
	return &Client{
		rpc:       rpc.New(rpcURL),
		programID: program,
	}, nil
}

func (c *Client) ProgramID() solanago.PublicKey {
	return c.programID
}

// FetchGameAccount reads and decodes the Game account at gamePDA,
// asserting it is owned by the configured program.
func (c *Client) FetchGameAccount(ctx context.Context, gamePDA string) (*GameAccount, error) {
	gamePubkey, err := solanago.PublicKeyFromBase58(gamePDA)
	if err != nil {
		return nil, fmt.Errorf("invalid game_pda: %w", err)
	}

	out, err := c.rpc.GetAccountInfo(ctx, gamePubkey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch game account %s: %w", gamePubkey, err)
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("game account %s not found", gamePubkey)
	}
	if !out.Value.Owner.Equals(c.programID) {
		return nil, fmt.Errorf("unexpected game account owner: expected %s, got %s", c.programID, out.Value.Owner)
	}

	return DecodeGameAccount(out.Value.Data.GetBinary())
}

// SubmitInstruction fetches a recent blockhash, signs with the authority
// key and sends the transaction. Returns the base58 signature.
func (c *Client) SubmitInstruction(ctx context.Context, instruction solanago.Instruction, authority solanago.PrivateKey) (string, error) {
	blockhash, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return "", fmt.Errorf("failed to fetch recent blockhash: %w", err)
	}

	tx, err := solanago.NewTransaction(
		[]solanago.Instruction{instruction},
		blockhash.Value.Blockhash,
		solanago.TransactionPayer(authority.PublicKey()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(authority.PublicKey()) {
			return &authority
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	return sig.String(), nil
}

// ConfirmSignature polls signature status until it is confirmed, errored,
// or the 40x500ms budget is exhausted.
func (c *Client) ConfirmSignature(ctx context.Context, signature string) error {
	sig, err := solanago.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}

	for attempt := 0; attempt < confirmPollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(confirmPollInterval):
			}
		}

		out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			continue
		}
		if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
			continue
		}

		status := out.Value[0]
		if status.Err != nil {
			return fmt.Errorf("transaction %s failed on chain: %v", signature, status.Err)
		}
		if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
			return nil
		}
	}

	return fmt.Errorf("transaction %s not confirmed within %s", signature,
		time.Duration(confirmPollAttempts)*confirmPollInterval)
}

// LoadAuthorityKeypair loads the authority keypair file and checks it
// against the configured pubkey.
func LoadAuthorityKeypair(path, expectedPubkey string) (solanago.PrivateKey, error) {
	key, err := solanago.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load authority keypair %s: %w", path, err)
	}
	expected, err := solanago.PublicKeyFromBase58(expectedPubkey)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTHORITY_PUBKEY: %w", err)
	}
	if !key.PublicKey().Equals(expected) {
		return nil, fmt.Errorf("authority keypair pubkey %s does not match AUTHORITY_PUBKEY %s",
			key.PublicKey(), expected)
	}
	return key, nil
}
