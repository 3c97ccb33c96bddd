package loki

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/tinytelemetry/triage/internal/model"
)

const (
	// DefaultMaxLineSize bounds a single NDJSON line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB
)

// FileConfig holds tunable parameters for the file source.
type FileConfig struct {
	Path        string
	MaxLineSize int
}

// FileSource reads raw records from an NDJSON export, one JSON document
// per line. Undecodable lines are skipped with a warning, never fatal:
// a partial export still produces a report.
type FileSource struct {
	path        string
	maxLineSize int
}

// NewFileSource validates the configuration and builds a file source.
func NewFileSource(conf FileConfig) (*FileSource, error) {
	if conf.Path == "" {
		return nil, fmt.Errorf("loki: file path is required")
	}
	maxLineSize := conf.MaxLineSize
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}
	return &FileSource{path: conf.Path, maxLineSize: maxLineSize}, nil
}

// Name identifies the source in logs and reports.
func (s *FileSource) Name() string { return "file" }

// Fetch reads the whole file into raw records. The context is checked
// between lines so a cancelled run stops promptly on large exports.
func (s *FileSource) Fetch(ctx context.Context) ([]model.RawRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("loki: open %s: %w", s.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	buf := make([]byte, s.maxLineSize)
	scanner.Buffer(buf, s.maxLineSize)

	var records []model.RawRecord
	var skipped int
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%4096 == 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("loki: read %s: %w", s.path, ctx.Err())
			default:
			}
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record model.RawRecord
		if err := json.Unmarshal(line, &record); err != nil {
			skipped++
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("loki: read %s: %w", s.path, err)
	}
	if skipped > 0 {
		log.Printf("loki: skipped %d undecodable line(s) in %s", skipped, s.path)
	}
	return records, nil
}
