package duckdb

import (
	"fmt"

	"github.com/tinytelemetry/triage/internal/model"
)

// TotalEntryCount returns the number of stored entries.
func (s *Store) TotalEntryCount() (int64, error) {
	ctx, cancel := s.queryContext()
	defer cancel()

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("duckdb: count entries: %w", err)
	}
	return count, nil
}

// SeverityCounts returns entry counts grouped by normalized level.
func (s *Store) SeverityCounts() (map[string]int64, error) {
	ctx, cancel := s.queryContext()
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT level, COUNT(*) FROM entries GROUP BY level")
	if err != nil {
		return nil, fmt.Errorf("duckdb: severity counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("duckdb: scan severity row: %w", err)
		}
		counts[level] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("duckdb: severity rows: %w", err)
	}
	return counts, nil
}

// TopServices returns the limit busiest services by entry count, ties
// broken by service name so results are stable.
func (s *Store) TopServices(limit int) ([]model.DimensionCount, error) {
	if limit <= 0 {
		limit = model.DefaultTopServices
	}
	ctx, cancel := s.queryContext()
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT service, COUNT(*) AS n FROM entries
		 GROUP BY service ORDER BY n DESC, service ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("duckdb: top services: %w", err)
	}
	defer rows.Close()

	return scanDimensionCounts(rows)
}

// NamespaceCounts returns entry counts grouped by namespace, busiest first.
func (s *Store) NamespaceCounts() ([]model.DimensionCount, error) {
	ctx, cancel := s.queryContext()
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT namespace, COUNT(*) AS n FROM entries
		 GROUP BY namespace ORDER BY n DESC, namespace ASC`)
	if err != nil {
		return nil, fmt.Errorf("duckdb: namespace counts: %w", err)
	}
	defer rows.Close()

	return scanDimensionCounts(rows)
}

// CriticalServiceCounts returns, per service, the number of error-level
// entries, busiest first.
func (s *Store) CriticalServiceCounts() ([]model.DimensionCount, error) {
	ctx, cancel := s.queryContext()
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT service, COUNT(*) AS n FROM entries
		 WHERE level = ? GROUP BY service ORDER BY n DESC, service ASC`, model.LevelError)
	if err != nil {
		return nil, fmt.Errorf("duckdb: critical service counts: %w", err)
	}
	defer rows.Close()

	return scanDimensionCounts(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanDimensionCounts(rows rowScanner) ([]model.DimensionCount, error) {
	var out []model.DimensionCount
	for rows.Next() {
		var dc model.DimensionCount
		if err := rows.Scan(&dc.Value, &dc.Count); err != nil {
			return nil, fmt.Errorf("duckdb: scan dimension row: %w", err)
		}
		out = append(out, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("duckdb: dimension rows: %w", err)
	}
	return out, nil
}
