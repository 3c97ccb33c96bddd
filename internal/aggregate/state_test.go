package aggregate

import (
	"fmt"
	"testing"
	"time"

	"github.com/tinytelemetry/triage/internal/classify"
	"github.com/tinytelemetry/triage/internal/model"
	"github.com/tinytelemetry/triage/internal/pattern"
	"github.com/tinytelemetry/triage/internal/rules"
)

func testFolder(t *testing.T) *Folder {
	t.Helper()
	ex, err := pattern.NewExtractor(pattern.Config{})
	if err != nil {
		t.Fatal(err)
	}
	cl, err := classify.NewClassifier(rules.Default())
	if err != nil {
		t.Fatal(err)
	}
	return NewFolder(ex, cl)
}

func entryAt(service, level, message string, ts time.Time) *model.LogEntry {
	return &model.LogEntry{
		Timestamp: ts,
		Service:   service,
		Namespace: "prod",
		Pod:       service + "-pod-1",
		Level:     level,
		Message:   message,
	}
}

func TestFold_Counts(t *testing.T) {
	t.Parallel()
	f := testFolder(t)
	st := NewState(0)

	ts := time.Date(2024, 1, 15, 10, 15, 0, 0, time.UTC)
	f.Fold(st, entryAt("api", model.LevelError, "timeout calling payments", ts))
	f.Fold(st, entryAt("api", model.LevelWarn, "slow response", ts.Add(20*time.Minute)))
	f.Fold(st, entryAt("web", model.LevelError, "render failed", ts.Add(2*time.Hour)))

	if st.Total != 3 {
		t.Errorf("Total = %d, want 3", st.Total)
	}
	if st.LevelCounts[model.LevelError] != 2 || st.LevelCounts[model.LevelWarn] != 1 {
		t.Errorf("level counts = %v", st.LevelCounts)
	}
	if len(st.Services) != 2 {
		t.Errorf("services = %d, want 2", len(st.Services))
	}

	api := st.Services["api"]
	if api.TotalCount != 2 {
		t.Errorf("api total = %d, want 2", api.TotalCount)
	}
	if api.CriticalCount != 1 {
		t.Errorf("api critical = %d, want 1 (timeout at error level)", api.CriticalCount)
	}
	if len(api.Pods) != 1 {
		t.Errorf("api pods = %d, want 1", len(api.Pods))
	}
	if !api.FirstSeen.Equal(ts) {
		t.Errorf("api first seen = %v, want %v", api.FirstSeen, ts)
	}
	if st.Namespaces["prod"] != 3 {
		t.Errorf("namespace count = %v", st.Namespaces)
	}
}

func TestFold_SameHourSharesBucket(t *testing.T) {
	t.Parallel()
	f := testFolder(t)
	st := NewState(0)

	base := time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC)
	f.Fold(st, entryAt("api", model.LevelError, "boom", base))
	f.Fold(st, entryAt("api", model.LevelError, "boom", base.Add(40*time.Minute)))

	bucket := base.Truncate(time.Hour)
	if st.TimeBuckets[bucket] != 2 {
		t.Errorf("bucket count = %d, want 2", st.TimeBuckets[bucket])
	}
	if len(st.TimeBuckets) != 1 {
		t.Errorf("buckets = %d, want 1", len(st.TimeBuckets))
	}
}

func TestFold_UnknownTimeSkipsBuckets(t *testing.T) {
	t.Parallel()
	f := testFolder(t)
	st := NewState(0)

	f.Fold(st, entryAt("api", model.LevelError, "boom", time.Time{}))

	if len(st.TimeBuckets) != 0 {
		t.Errorf("unknown-time entry must not bucket, got %v", st.TimeBuckets)
	}
	if st.Total != 1 {
		t.Errorf("entry must still count toward total, got %d", st.Total)
	}
	if st.Services["api"].FirstSeen != (time.Time{}) {
		t.Error("first seen should stay zero without timestamps")
	}
}

func TestFold_PatternClustering(t *testing.T) {
	t.Parallel()
	f := testFolder(t)
	st := NewState(0)

	first := "error on registry when calling func at /app/pkg/listings/service.go:426: unsupported article status, value was: draft-123"
	second := "error on registry when calling func at /app/pkg/listings/service.go:426: unsupported article status, value was: pending-456"
	f.Fold(st, entryAt("listings", model.LevelError, first, time.Time{}))
	f.Fold(st, entryAt("search", model.LevelError, second, time.Time{}))

	if len(st.Patterns) != 1 {
		t.Fatalf("patterns = %d, want 1 (variants must cluster)", len(st.Patterns))
	}
	for _, pat := range st.Patterns {
		if pat.Count != 2 {
			t.Errorf("pattern count = %d, want 2", pat.Count)
		}
		if pat.Example != first {
			t.Errorf("example = %q, want the first raw message", pat.Example)
		}
		if len(pat.Services) != 2 {
			t.Errorf("pattern services = %d, want 2", len(pat.Services))
		}
	}
}

func TestFold_CriticalSampleBounded(t *testing.T) {
	t.Parallel()
	f := testFolder(t)
	st := NewState(3)

	for i := 0; i < 10; i++ {
		f.Fold(st, entryAt("api", model.LevelError, fmt.Sprintf("timeout number %d", i), time.Time{}))
	}

	if st.Critical != 10 {
		t.Errorf("critical count = %d, want 10 (exhaustive)", st.Critical)
	}
	if len(st.CriticalSample) != 3 {
		t.Fatalf("sample = %d, want 3 (bounded)", len(st.CriticalSample))
	}
	if st.CriticalSample[0].Message != "timeout number 0" {
		t.Errorf("sample[0] = %q, want first in fold order", st.CriticalSample[0].Message)
	}
}

func TestMerge_EquivalentToSequential(t *testing.T) {
	t.Parallel()
	f := testFolder(t)

	ts := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	entries := []*model.LogEntry{
		entryAt("api", model.LevelError, "timeout calling payments", ts),
		entryAt("api", model.LevelError, "timeout calling payments", ts.Add(time.Minute)),
		entryAt("web", model.LevelWarn, "slow render 120ms", ts.Add(time.Hour)),
		entryAt("api", model.LevelInfo, "request ok", ts),
		entryAt("db", model.LevelError, "deadlock on orders", ts.Add(2*time.Hour)),
	}

	sequential := NewState(0)
	for _, e := range entries {
		f.Fold(sequential, e)
	}

	left, right := NewState(0), NewState(0)
	for i, e := range entries {
		if i < 2 {
			f.Fold(left, e)
		} else {
			f.Fold(right, e)
		}
	}
	merged := NewState(0)
	Merge(merged, left)
	Merge(merged, right)

	if merged.Total != sequential.Total {
		t.Errorf("total: merged %d != sequential %d", merged.Total, sequential.Total)
	}
	if merged.Critical != sequential.Critical {
		t.Errorf("critical: merged %d != sequential %d", merged.Critical, sequential.Critical)
	}
	if len(merged.Services) != len(sequential.Services) {
		t.Fatalf("services: merged %d != sequential %d", len(merged.Services), len(sequential.Services))
	}
	for name, want := range sequential.Services {
		got := merged.Services[name]
		if got == nil || got.TotalCount != want.TotalCount || got.CriticalCount != want.CriticalCount {
			t.Errorf("service %s: merged %+v != sequential %+v", name, got, want)
		}
	}
	for key, want := range sequential.Patterns {
		got := merged.Patterns[key]
		if got == nil || got.Count != want.Count || got.Example != want.Example {
			t.Errorf("pattern %q: merged %+v != sequential %+v", key, got, want)
		}
	}
	for bucket, want := range sequential.TimeBuckets {
		if merged.TimeBuckets[bucket] != want {
			t.Errorf("bucket %v: merged %d != sequential %d", bucket, merged.TimeBuckets[bucket], want)
		}
	}
}

func TestMerge_CountConservation(t *testing.T) {
	t.Parallel()
	f := testFolder(t)
	st := NewState(0)

	for i := 0; i < 100; i++ {
		svc := fmt.Sprintf("svc-%d", i%7)
		f.Fold(st, entryAt(svc, model.LevelError, fmt.Sprintf("failure %d", i), time.Time{}))
	}

	var sum int64
	for _, svc := range st.Services {
		sum += svc.TotalCount
		if svc.CriticalCount > svc.TotalCount {
			t.Errorf("service %s: critical %d > total %d", svc.Service, svc.CriticalCount, svc.TotalCount)
		}
	}
	if sum != st.Total {
		t.Errorf("sum of service totals %d != state total %d", sum, st.Total)
	}
}
