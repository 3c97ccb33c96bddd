// Package migrate brings the entry store schema up to date on startup by
// applying the embedded SQL files that have not run yet.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

type step struct {
	version int
	name    string
	ddl     string
}

// Apply runs every pending migration in version order, one transaction
// per step, recording each in schema_migrations.
func Apply(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`); err != nil {
		return fmt.Errorf("migrate: bootstrap: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}

	steps, err := loadSteps()
	if err != nil {
		return err
	}

	for _, st := range steps {
		if applied[st.version] {
			continue
		}
		if err := applyStep(db, st); err != nil {
			return err
		}
	}
	return nil
}

func applyStep(db *sql.DB, st step) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin %s: %w", st.name, err)
	}
	if _, err := tx.Exec(st.ddl); err != nil {
		tx.Rollback()
		return fmt.Errorf("migrate: apply %s: %w", st.name, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		st.version, st.name); err != nil {
		tx.Rollback()
		return fmt.Errorf("migrate: record %s: %w", st.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit %s: %w", st.name, err)
	}
	return nil
}

func appliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate: read applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("migrate: scan version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// loadSteps reads the embedded NNNN_name.sql files and orders them by the
// numeric prefix. Files without one are rejected rather than skipped.
func loadSteps() ([]step, error) {
	entries, err := fs.ReadDir(schemaFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate: read embedded dir: %w", err)
	}

	steps := make([]step, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migrate: %s has no version prefix", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migrate: bad version prefix in %s: %w", name, err)
		}
		ddl, err := schemaFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("migrate: read %s: %w", name, err)
		}
		steps = append(steps, step{version: version, name: name, ddl: string(ddl)})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}
