package handlers

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/solduel/backend/internal/apperr"
)

// parseMatchID parses a positive base-10 match id from a path segment.
func parseMatchID(raw string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, apperr.BadRequest("match_id must be an integer")
	}
	if value <= 0 {
		return 0, apperr.BadRequest("match_id must be positive")
	}
	return value, nil
}

// parseEntryLamports parses the entry amount string: base-10 unsigned,
// positive, and representable as a signed 64-bit for storage.
func parseEntryLamports(raw string) (int64, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, apperr.BadRequest("entry_lamports must be a positive integer string")
	}
	if value == 0 {
		return 0, apperr.BadRequest("entry_lamports must be > 0")
	}
	if value > uint64(1<<63-1) {
		return 0, apperr.BadRequest("entry_lamports is too large for backend storage")
	}
	return int64(value), nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	return &nt.Time
}
