package model

import "time"

// Normalized log levels. Anything outside this vocabulary maps to LevelUnknown.
const (
	LevelError   = "error"
	LevelWarn    = "warn"
	LevelInfo    = "info"
	LevelDebug   = "debug"
	LevelUnknown = "unknown"
)

// Levels lists the normalized vocabulary in severity order.
var Levels = []string{LevelError, LevelWarn, LevelInfo, LevelDebug, LevelUnknown}

// RawRecord is one decoded source record before normalization.
// Shape follows the Loki NDJSON export: top-level timestamp/line/labels,
// with the line often carrying a nested JSON document of its own.
type RawRecord map[string]interface{}

// LogEntry is the canonical in-memory form of one observed log line.
// It is immutable once constructed and discarded after folding.
type LogEntry struct {
	Timestamp  time.Time // zero value = unknown time
	Service    string
	Namespace  string
	Pod        string
	Level      string // one of the Level* constants
	Message    string
	SourceFile string
	StackTrace string
}

// HasTimestamp reports whether the entry carries a usable timestamp.
func (e *LogEntry) HasTimestamp() bool {
	return !e.Timestamp.IsZero()
}

// PatternCount is one masked pattern and its occurrence count.
type PatternCount struct {
	Pattern string `json:"pattern"`
	Count   int64  `json:"count"`
}

// GlobalPattern is one masked pattern aggregated across all services.
// Example is the first raw message observed for the pattern, kept verbatim
// so the renderer can build log-store queries from it.
type GlobalPattern struct {
	Pattern  string   `json:"pattern"`
	Count    int64    `json:"count"`
	Example  string   `json:"example"`
	Services []string `json:"services"`
}

// ServiceReport is the finalized per-service aggregate.
type ServiceReport struct {
	Service        string           `json:"service"`
	TotalCount     int64            `json:"total_count"`
	CriticalCount  int64            `json:"critical_count"`
	LevelCounts    map[string]int64 `json:"level_counts"`
	CategoryCounts []CategoryCount  `json:"category_counts"`
	DistinctPods   int              `json:"distinct_pods"`
	Namespaces     []string         `json:"namespaces"`
	FirstSeen      time.Time        `json:"first_seen"`
	LastSeen       time.Time        `json:"last_seen"`
	TopPatterns    []PatternCount   `json:"top_patterns"`
}

// HourBucket is one hour-granularity time bucket.
type HourBucket struct {
	BucketStart time.Time `json:"bucket_start"`
	Count       int64     `json:"count"`
}

// DimensionCount is a grouped count by a single dimension value
// (for example service or namespace) as returned by the entry store.
type DimensionCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// NamespaceCount is the per-namespace rollup.
type NamespaceCount struct {
	Namespace string `json:"namespace"`
	Count     int64  `json:"count"`
}

// CategoryCount is the per-category rollup.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// CriticalEntry is one sampled outage-grade entry, kept verbatim for display.
type CriticalEntry struct {
	Service    string    `json:"service"`
	Namespace  string    `json:"namespace"`
	Pod        string    `json:"pod"`
	Message    string    `json:"message"`
	SourceFile string    `json:"source_file,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// RankedReport is the final ordered aggregate set consumed by the report
// renderer, the HTTP API, and the optional LLM summarizer.
type RankedReport struct {
	TotalCount     int64            `json:"total_count"`
	RejectedCount  int64            `json:"rejected_count"`
	CriticalCount  int64            `json:"critical_count"`
	LevelCounts    map[string]int64 `json:"level_counts"`
	Services       []ServiceReport  `json:"services"`
	GlobalPatterns []GlobalPattern  `json:"global_patterns"`
	PeakHours      []HourBucket     `json:"peak_hours"`
	Namespaces     []NamespaceCount `json:"namespaces"`
	Categories     []CategoryCount  `json:"categories"`
	CriticalSample []CriticalEntry  `json:"critical_sample"`
}

// ServicesAffected returns the number of distinct services in the report.
func (r *RankedReport) ServicesAffected() int {
	return len(r.Services)
}
