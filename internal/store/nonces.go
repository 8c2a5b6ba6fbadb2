package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/solduel/backend/internal/apperr"
)

// NonceStore records consumed HMAC nonces. The unique index on the nonce
// column is what makes replay rejection atomic.
type NonceStore struct {
	db *sqlx.DB
}

func NewNonceStore(db *sqlx.DB) *NonceStore {
	return &NonceStore{db: db}
}

// InsertNonceIfUnused reserves a nonce. Returns false when the nonce was
// already consumed.
func (s *NonceStore) InsertNonceIfUnused(ctx context.Context, nonce string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO used_nonces (nonce)
		VALUES ($1)
		ON CONFLICT (nonce) DO NOTHING`, nonce)
	if err != nil {
		return false, apperr.Internal("failed to persist nonce: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Internal("failed to inspect nonce insert: %v", err)
	}
	return n == 1, nil
}

// PruneNonces deletes nonces older than maxAge. Anything past the HMAC
// clock-skew window can never validate again, so old rows are dead weight.
func PruneNonces(ctx context.Context, db *sqlx.DB, maxAge time.Duration) (int64, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM used_nonces
		WHERE created_at < NOW() - ($1 * INTERVAL '1 second')`, int(maxAge.Seconds()))
	if err != nil {
		return 0, apperr.Internal("failed to prune nonces: %v", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
