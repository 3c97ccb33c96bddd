package model

import "context"

// EntrySource produces the finite, ordered batch of raw records to analyze.
// Implementations fetch from the Loki HTTP API or read a local NDJSON export.
type EntrySource interface {
	Fetch(ctx context.Context) ([]RawRecord, error)
	Name() string
}

// EntryWriter provides append-oriented write operations for normalized entries.
type EntryWriter interface {
	InsertEntryBatch(entries []*LogEntry) error
}

// StoreQuerier is the read-side contract the HTTP API requires from the
// optional entry store.
type StoreQuerier interface {
	TotalEntryCount() (int64, error)
	SeverityCounts() (map[string]int64, error)
	TopServices(limit int) ([]DimensionCount, error)
	NamespaceCounts() ([]DimensionCount, error)
	CriticalServiceCounts() ([]DimensionCount, error)
}

// Summarizer turns a finished report into a prose summary.
// Failure is advisory: a run never fails because summarization did.
type Summarizer interface {
	Summarize(ctx context.Context, report *RankedReport) (string, error)
	Name() string
}
