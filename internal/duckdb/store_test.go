package duckdb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/triage/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedEntries(t *testing.T, s *Store) {
	t.Helper()
	ts := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	entries := []*model.LogEntry{
		{Timestamp: ts, Service: "api", Namespace: "prod", Pod: "api-0", Level: model.LevelError, Message: "timeout"},
		{Timestamp: ts, Service: "api", Namespace: "prod", Pod: "api-1", Level: model.LevelError, Message: "timeout"},
		{Timestamp: ts, Service: "api", Namespace: "prod", Pod: "api-0", Level: model.LevelWarn, Message: "slow"},
		{Timestamp: ts, Service: "web", Namespace: "staging", Pod: "web-0", Level: model.LevelInfo, Message: "ok"},
		{Service: "batch", Namespace: "prod", Level: model.LevelError, Message: "no timestamp"},
	}
	if err := s.InsertEntryBatch(entries); err != nil {
		t.Fatalf("InsertEntryBatch: %v", err)
	}
}

func TestReopenSkipsAppliedMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entries.duckdb")

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	seedEntries(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening must not re-run the schema migration or lose rows.
	s2, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore reopen: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })

	count, err := s2.TotalEntryCount()
	if err != nil {
		t.Fatalf("TotalEntryCount: %v", err)
	}
	if count != 5 {
		t.Fatalf("count after reopen = %d, want 5", count)
	}
}

func TestInsertAndCount(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	count, err := s.TotalEntryCount()
	if err != nil {
		t.Fatalf("TotalEntryCount: %v", err)
	}
	if count != 5 {
		t.Fatalf("count = %d, want 5", count)
	}
}

func TestInsertEntryBatch_Empty(t *testing.T) {
	s := openTestStore(t)
	if err := s.InsertEntryBatch(nil); err != nil {
		t.Fatalf("empty batch should be a no-op, got %v", err)
	}
}

func TestSeverityCounts(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	counts, err := s.SeverityCounts()
	if err != nil {
		t.Fatalf("SeverityCounts: %v", err)
	}
	if counts[model.LevelError] != 3 {
		t.Errorf("error count = %d, want 3", counts[model.LevelError])
	}
	if counts[model.LevelWarn] != 1 || counts[model.LevelInfo] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestTopServices(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	top, err := s.TopServices(2)
	if err != nil {
		t.Fatalf("TopServices: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("top = %d, want 2", len(top))
	}
	if top[0].Value != "api" || top[0].Count != 3 {
		t.Errorf("top[0] = %+v, want api with 3", top[0])
	}
	// batch and web tie at 1; batch wins on name.
	if top[1].Value != "batch" {
		t.Errorf("top[1] = %+v, want batch", top[1])
	}
}

func TestNamespaceCounts(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	counts, err := s.NamespaceCounts()
	if err != nil {
		t.Fatalf("NamespaceCounts: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("namespaces = %d, want 2", len(counts))
	}
	if counts[0].Value != "prod" || counts[0].Count != 4 {
		t.Errorf("counts[0] = %+v, want prod with 4", counts[0])
	}
}

func TestCriticalServiceCounts(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	counts, err := s.CriticalServiceCounts()
	if err != nil {
		t.Fatalf("CriticalServiceCounts: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("services with errors = %d, want 2", len(counts))
	}
	if counts[0].Value != "api" || counts[0].Count != 2 {
		t.Errorf("counts[0] = %+v, want api with 2", counts[0])
	}
}

func TestDeleteOlderThan(t *testing.T) {
	s := openTestStore(t)
	seedEntries(t, s)

	deleted, err := s.DeleteOlderThan(time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if deleted != 4 {
		t.Errorf("deleted = %d, want 4 (timestamp-less entry kept)", deleted)
	}

	count, err := s.TotalEntryCount()
	if err != nil {
		t.Fatalf("TotalEntryCount: %v", err)
	}
	if count != 1 {
		t.Errorf("remaining = %d, want 1", count)
	}
}
