package archive

import (
	"context"
	"fmt"

	"github.com/tinytelemetry/triage/internal/model"
)

// Source replays an archive's uncommitted tail as an entry batch, letting
// an interrupted run resume analysis without re-fetching.
type Source struct {
	path    string
	lastSeq uint64
}

func NewSource(path string) (*Source, error) {
	if path == "" {
		return nil, fmt.Errorf("archive: replay path is empty")
	}
	return &Source{path: path}, nil
}

func (s *Source) Name() string {
	return "archive:" + s.path
}

func (s *Source) Fetch(ctx context.Context) ([]model.RawRecord, error) {
	a, err := Open(s.path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	var records []model.RawRecord
	err = a.Replay(func(seq uint64, record model.RawRecord) error {
		if seq%1024 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		records = append(records, record)
		s.lastSeq = seq
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: replay: %w", err)
	}
	return records, nil
}

// LastSeq reports the highest sequence replayed by Fetch, for committing
// once analysis of the replayed batch succeeds.
func (s *Source) LastSeq() uint64 {
	return s.lastSeq
}
