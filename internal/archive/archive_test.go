package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tinytelemetry/triage/internal/model"
)

func TestAppendReplayCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.archive")

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	seq1, err := a.Append(model.RawRecord{"line": "first", "labels": map[string]interface{}{"app": "api"}})
	if err != nil {
		t.Fatalf("Append first: %v", err)
	}
	seq2, err := a.Append(model.RawRecord{"line": "second"})
	if err != nil {
		t.Fatalf("Append second: %v", err)
	}
	if seq2 <= seq1 {
		t.Fatalf("sequence did not advance: seq1=%d seq2=%d", seq1, seq2)
	}
	if err := a.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if err := a.Commit(seq1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if a.Committed() != seq1 {
		t.Fatalf("Committed = %d, want %d", a.Committed(), seq1)
	}

	var replayed []string
	err = a.Replay(func(_ uint64, r model.RawRecord) error {
		replayed = append(replayed, r["line"].(string))
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(replayed) != 1 || replayed[0] != "second" {
		t.Fatalf("Replay lines=%v, want [second]", replayed)
	}
}

func TestAppendBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.archive")

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	records := []model.RawRecord{
		{"line": "one"},
		nil, // skipped, never assigned a sequence
		{"line": "two"},
	}
	last, err := a.AppendBatch(records)
	if err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if last != 2 {
		t.Fatalf("last seq = %d, want 2", last)
	}

	var count int
	err = a.Replay(func(uint64, model.RawRecord) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if count != 2 {
		t.Fatalf("replayed %d records, want 2", count)
	}
}

func TestOpenCompactsCommitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.archive")

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := a.AppendBatch([]model.RawRecord{{"line": "a"}, {"line": "b"}, {"line": "c"}}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if err := a.Commit(2); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	a2, err := Open(path)
	if err != nil {
		t.Fatalf("Open second: %v", err)
	}
	defer func() { _ = a2.Close() }()

	var replayed []string
	err = a2.Replay(func(_ uint64, r model.RawRecord) error {
		replayed = append(replayed, r["line"].(string))
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(replayed) != 1 || replayed[0] != "c" {
		t.Fatalf("Replay after compact=%v, want [c]", replayed)
	}

	// New appends continue past the compacted range.
	seq, err := a2.Append(model.RawRecord{"line": "d"})
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if seq != 4 {
		t.Fatalf("seq after reopen = %d, want 4", seq)
	}
}

func TestOpenIgnoresPartialTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.archive")

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := a.AppendBatch([]model.RawRecord{{"line": "ok"}}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simulate torn write.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteString(`{"seq":999,"record":`); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close torn writer: %v", err)
	}

	a2, err := Open(path)
	if err != nil {
		t.Fatalf("Open second: %v", err)
	}
	defer func() { _ = a2.Close() }()

	var replayed []string
	err = a2.Replay(func(_ uint64, r model.RawRecord) error {
		replayed = append(replayed, r["line"].(string))
		return nil
	})
	if err != nil {
		t.Fatalf("Replay second: %v", err)
	}
	if len(replayed) != 1 || replayed[0] != "ok" {
		t.Fatalf("Replay after torn write=%v, want [ok]", replayed)
	}
}
