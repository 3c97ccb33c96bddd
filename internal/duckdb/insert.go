package duckdb

import (
	"database/sql"
	"fmt"

	"github.com/tinytelemetry/triage/internal/model"
)

// InsertEntryBatch writes one batch of normalized entries in a single
// transaction. Unknown-time entries store a NULL timestamp.
func (s *Store) InsertEntryBatch(entries []*model.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("duckdb: begin insert tx: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO entries
		(ts, service, namespace, pod, level, message, source_file)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("duckdb: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if e == nil {
			continue
		}
		var ts sql.NullTime
		if e.HasTimestamp() {
			ts = sql.NullTime{Time: e.Timestamp.UTC(), Valid: true}
		}
		if _, err := stmt.Exec(ts, e.Service, e.Namespace, e.Pod, e.Level, e.Message, e.SourceFile); err != nil {
			tx.Rollback()
			return fmt.Errorf("duckdb: insert entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("duckdb: commit insert tx: %w", err)
	}
	return nil
}
