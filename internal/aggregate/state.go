// Package aggregate maintains the running counters of the clustering
// engine: per-service, per-pattern, per-hour and per-namespace aggregates
// built by folding normalized entries, one at a time, into explicit state
// objects that merge at a single barrier.
package aggregate

import (
	"time"

	"github.com/tinytelemetry/triage/internal/classify"
	"github.com/tinytelemetry/triage/internal/model"
	"github.com/tinytelemetry/triage/internal/pattern"
)

// ServiceStats is the running aggregate for one service. Counts only ever
// increase; ranking is computed from the final state, never during folding.
type ServiceStats struct {
	Service        string
	TotalCount     int64
	CriticalCount  int64
	LevelCounts    map[string]int64
	CategoryCounts map[string]int64
	Pods           map[string]struct{}
	Namespaces     map[string]struct{}
	FirstSeen      time.Time // zero until a timestamped entry arrives
	LastSeen       time.Time
	Patterns       map[string]int64
}

// PatternStats is the cross-service aggregate for one PatternKey. Example
// is the first raw message observed for the key, in input order.
type PatternStats struct {
	Count    int64
	Example  string
	Services map[string]struct{}
}

// State is one aggregation arena. States are partial by design: workers
// fold entries into private states which merge into the final one.
type State struct {
	Total          int64
	Rejected       int64
	Critical       int64
	LevelCounts    map[string]int64
	Services       map[string]*ServiceStats
	Patterns       map[string]*PatternStats
	TimeBuckets    map[time.Time]int64
	Namespaces     map[string]int64
	Categories     map[string]int64
	CriticalSample []model.CriticalEntry

	sampleLimit int
}

// NewState creates an empty state. sampleLimit bounds the retained critical
// sample; zero applies the default.
func NewState(sampleLimit int) *State {
	if sampleLimit <= 0 {
		sampleLimit = model.DefaultCriticalSample
	}
	return &State{
		LevelCounts: make(map[string]int64),
		Services:    make(map[string]*ServiceStats),
		Patterns:    make(map[string]*PatternStats),
		TimeBuckets: make(map[time.Time]int64),
		Namespaces:  make(map[string]int64),
		Categories:  make(map[string]int64),
		sampleLimit: sampleLimit,
	}
}

// Folder folds entries into a State. It bundles the extractor and
// classifier so every fold applies the same policy.
type Folder struct {
	extractor  *pattern.Extractor
	classifier *classify.Classifier
}

// NewFolder creates a folder from constructed policy components.
func NewFolder(extractor *pattern.Extractor, classifier *classify.Classifier) *Folder {
	return &Folder{extractor: extractor, classifier: classifier}
}

// Fold adds one entry to the state. O(1) amortized: hash-map lookups only.
// Entries reaching this point are well-formed by construction, so there is
// no failure mode; folding the same entry twice double-counts.
func (f *Folder) Fold(st *State, entry *model.LogEntry) {
	st.Total++
	st.LevelCounts[entry.Level]++

	svc := st.Services[entry.Service]
	if svc == nil {
		svc = &ServiceStats{
			Service:        entry.Service,
			LevelCounts:    make(map[string]int64),
			CategoryCounts: make(map[string]int64),
			Pods:           make(map[string]struct{}),
			Namespaces:     make(map[string]struct{}),
			Patterns:       make(map[string]int64),
		}
		st.Services[entry.Service] = svc
	}

	svc.TotalCount++
	svc.LevelCounts[entry.Level]++
	if entry.Pod != "" {
		svc.Pods[entry.Pod] = struct{}{}
	}
	svc.Namespaces[entry.Namespace] = struct{}{}
	if entry.HasTimestamp() {
		if svc.FirstSeen.IsZero() || entry.Timestamp.Before(svc.FirstSeen) {
			svc.FirstSeen = entry.Timestamp
		}
		if entry.Timestamp.After(svc.LastSeen) {
			svc.LastSeen = entry.Timestamp
		}
		bucket := entry.Timestamp.UTC().Truncate(time.Hour)
		st.TimeBuckets[bucket]++
	}

	key := f.extractor.Extract(entry.Message)
	svc.Patterns[key]++

	pat := st.Patterns[key]
	if pat == nil {
		pat = &PatternStats{
			Example:  entry.Message,
			Services: make(map[string]struct{}),
		}
		st.Patterns[key] = pat
	}
	pat.Count++
	pat.Services[entry.Service] = struct{}{}

	st.Namespaces[entry.Namespace]++

	cat := f.classifier.Category(entry)
	st.Categories[cat]++
	svc.CategoryCounts[cat]++

	if f.classifier.IsCritical(entry) {
		st.Critical++
		svc.CriticalCount++
		if len(st.CriticalSample) < st.sampleLimit {
			st.CriticalSample = append(st.CriticalSample, model.CriticalEntry{
				Service:    entry.Service,
				Namespace:  entry.Namespace,
				Pod:        entry.Pod,
				Message:    entry.Message,
				SourceFile: entry.SourceFile,
				Timestamp:  entry.Timestamp,
			})
		}
	}
}

// Merge folds src into dst. Addition is commutative and associative, so any
// merge order yields the same counts; first-seen data (pattern examples,
// the critical sample) follows dst-before-src order, which callers arrange
// to match input order.
func Merge(dst, src *State) {
	dst.Total += src.Total
	dst.Rejected += src.Rejected
	dst.Critical += src.Critical

	for level, n := range src.LevelCounts {
		dst.LevelCounts[level] += n
	}
	for name, s := range src.Services {
		d := dst.Services[name]
		if d == nil {
			dst.Services[name] = s
			continue
		}
		d.TotalCount += s.TotalCount
		d.CriticalCount += s.CriticalCount
		for level, n := range s.LevelCounts {
			d.LevelCounts[level] += n
		}
		for cat, n := range s.CategoryCounts {
			d.CategoryCounts[cat] += n
		}
		for pod := range s.Pods {
			d.Pods[pod] = struct{}{}
		}
		for ns := range s.Namespaces {
			d.Namespaces[ns] = struct{}{}
		}
		if !s.FirstSeen.IsZero() && (d.FirstSeen.IsZero() || s.FirstSeen.Before(d.FirstSeen)) {
			d.FirstSeen = s.FirstSeen
		}
		if s.LastSeen.After(d.LastSeen) {
			d.LastSeen = s.LastSeen
		}
		for key, n := range s.Patterns {
			d.Patterns[key] += n
		}
	}
	for key, s := range src.Patterns {
		d := dst.Patterns[key]
		if d == nil {
			dst.Patterns[key] = s
			continue
		}
		d.Count += s.Count
		for svc := range s.Services {
			d.Services[svc] = struct{}{}
		}
	}
	for bucket, n := range src.TimeBuckets {
		dst.TimeBuckets[bucket] += n
	}
	for ns, n := range src.Namespaces {
		dst.Namespaces[ns] += n
	}
	for cat, n := range src.Categories {
		dst.Categories[cat] += n
	}

	room := dst.sampleLimit - len(dst.CriticalSample)
	if room > 0 {
		if len(src.CriticalSample) < room {
			room = len(src.CriticalSample)
		}
		dst.CriticalSample = append(dst.CriticalSample, src.CriticalSample[:room]...)
	}
}
