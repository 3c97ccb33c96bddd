package duckdb

import (
	"fmt"
	"time"
)

// DeleteOlderThan removes entries with a timestamp before the cutoff and
// returns how many were deleted. Entries without a timestamp are kept.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	ctx, cancel := s.queryContext()
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM entries WHERE ts IS NOT NULL AND ts < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("duckdb: retention delete: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("duckdb: retention rows affected: %w", err)
	}
	return deleted, nil
}
