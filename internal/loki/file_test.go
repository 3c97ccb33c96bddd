package loki

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewFileSource_RequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := NewFileSource(FileConfig{}); err == nil {
		t.Error("want error for empty path")
	}
}

func TestFileSource_Fetch(t *testing.T) {
	t.Parallel()
	path := writeFixture(t, `{"timestamp":"2024-01-15T10:30:00Z","line":"oom killed","labels":{"app":"api","namespace":"prod"}}
{"timestamp":"2024-01-15T10:31:00Z","line":"{\"message\":\"timeout\",\"level\":\"error\"}","labels":{"app":"web"}}

not json at all
{"line":"trailing entry"}
`)

	s, err := NewFileSource(FileConfig{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	records, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3 (bad line skipped, blank ignored)", len(records))
	}
	if records[0]["line"] != "oom killed" {
		t.Errorf("records[0].line = %v", records[0]["line"])
	}
	labels, ok := records[0]["labels"].(map[string]interface{})
	if !ok || labels["app"] != "api" {
		t.Errorf("records[0].labels = %v", records[0]["labels"])
	}
	if records[2]["line"] != "trailing entry" {
		t.Errorf("records[2].line = %v", records[2]["line"])
	}
}

func TestFileSource_MissingFile(t *testing.T) {
	t.Parallel()
	s, err := NewFileSource(FileConfig{Path: filepath.Join(t.TempDir(), "absent.json")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Fetch(context.Background()); err == nil {
		t.Error("want error for missing file")
	}
}

func TestFileSource_Name(t *testing.T) {
	t.Parallel()
	s, err := NewFileSource(FileConfig{Path: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Name() != "file" {
		t.Errorf("Name() = %q", s.Name())
	}
}
