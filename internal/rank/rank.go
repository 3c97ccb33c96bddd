// Package rank turns a merged aggregation state into the ordered report
// structure. Every ordering here is total: counts descend, and ties break
// on the lexicographically smallest name (or earliest bucket), so the same
// input always yields the same report.
package rank

import (
	"sort"

	"github.com/tinytelemetry/triage/internal/aggregate"
	"github.com/tinytelemetry/triage/internal/model"
)

// DefaultPeakHours bounds the peak-hour list in the ranked report.
const DefaultPeakHours = 5

// Options bounds the ranked lists. Zero values apply the defaults.
type Options struct {
	TopServices       int
	TopPatterns       int // per service
	TopGlobalPatterns int
	PeakHours         int
}

func (o Options) withDefaults() Options {
	if o.TopServices <= 0 {
		o.TopServices = model.DefaultTopServices
	}
	if o.TopPatterns <= 0 {
		o.TopPatterns = model.DefaultTopPatterns
	}
	if o.TopGlobalPatterns <= 0 {
		o.TopGlobalPatterns = model.DefaultTopGlobalPatterns
	}
	if o.PeakHours <= 0 {
		o.PeakHours = DefaultPeakHours
	}
	return o
}

// Rank finalizes a state into a RankedReport. The state is read-only from
// here on; ranking never mutates the aggregates.
func Rank(st *aggregate.State, opts Options) *model.RankedReport {
	opts = opts.withDefaults()

	report := &model.RankedReport{
		TotalCount:     st.Total,
		RejectedCount:  st.Rejected,
		CriticalCount:  st.Critical,
		LevelCounts:    copyCounts(st.LevelCounts),
		Services:       rankServices(st, opts),
		GlobalPatterns: rankGlobalPatterns(st, opts.TopGlobalPatterns),
		PeakHours:      rankPeakHours(st, opts.PeakHours),
		Namespaces:     rankNamespaces(st),
		Categories:     rankCategories(st),
		CriticalSample: append([]model.CriticalEntry(nil), st.CriticalSample...),
	}
	return report
}

// rankServices orders services by total count, then critical count, then
// name, and keeps the head of the list.
func rankServices(st *aggregate.State, opts Options) []model.ServiceReport {
	services := make([]*aggregate.ServiceStats, 0, len(st.Services))
	for _, svc := range st.Services {
		services = append(services, svc)
	}
	sort.Slice(services, func(i, j int) bool {
		a, b := services[i], services[j]
		if a.TotalCount != b.TotalCount {
			return a.TotalCount > b.TotalCount
		}
		if a.CriticalCount != b.CriticalCount {
			return a.CriticalCount > b.CriticalCount
		}
		return a.Service < b.Service
	})
	if len(services) > opts.TopServices {
		services = services[:opts.TopServices]
	}

	out := make([]model.ServiceReport, 0, len(services))
	for _, svc := range services {
		out = append(out, model.ServiceReport{
			Service:        svc.Service,
			TotalCount:     svc.TotalCount,
			CriticalCount:  svc.CriticalCount,
			LevelCounts:    copyCounts(svc.LevelCounts),
			CategoryCounts: sortCategoryCounts(svc.CategoryCounts),
			DistinctPods:   len(svc.Pods),
			Namespaces:     sortedKeys(svc.Namespaces),
			FirstSeen:      svc.FirstSeen,
			LastSeen:       svc.LastSeen,
			TopPatterns:    topPatterns(svc.Patterns, opts.TopPatterns),
		})
	}
	return out
}

func topPatterns(patterns map[string]int64, limit int) []model.PatternCount {
	out := make([]model.PatternCount, 0, len(patterns))
	for key, n := range patterns {
		out = append(out, model.PatternCount{Pattern: key, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Pattern < out[j].Pattern
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func rankGlobalPatterns(st *aggregate.State, limit int) []model.GlobalPattern {
	out := make([]model.GlobalPattern, 0, len(st.Patterns))
	for key, pat := range st.Patterns {
		out = append(out, model.GlobalPattern{
			Pattern:  key,
			Count:    pat.Count,
			Example:  pat.Example,
			Services: sortedKeys(pat.Services),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Pattern < out[j].Pattern
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// rankPeakHours picks the busiest hour buckets; equal-count buckets order
// by the earlier hour.
func rankPeakHours(st *aggregate.State, limit int) []model.HourBucket {
	out := make([]model.HourBucket, 0, len(st.TimeBuckets))
	for bucket, n := range st.TimeBuckets {
		out = append(out, model.HourBucket{BucketStart: bucket, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].BucketStart.Before(out[j].BucketStart)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func rankNamespaces(st *aggregate.State) []model.NamespaceCount {
	out := make([]model.NamespaceCount, 0, len(st.Namespaces))
	for ns, n := range st.Namespaces {
		out = append(out, model.NamespaceCount{Namespace: ns, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Namespace < out[j].Namespace
	})
	return out
}

func rankCategories(st *aggregate.State) []model.CategoryCount {
	return sortCategoryCounts(st.Categories)
}

func sortCategoryCounts(counts map[string]int64) []model.CategoryCount {
	out := make([]model.CategoryCount, 0, len(counts))
	for cat, n := range counts {
		out = append(out, model.CategoryCount{Category: cat, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func copyCounts(counts map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Buckets returns all time buckets in chronological order, for the
// renderer's hourly distribution table.
func Buckets(st *aggregate.State) []model.HourBucket {
	out := make([]model.HourBucket, 0, len(st.TimeBuckets))
	for bucket, n := range st.TimeBuckets {
		out = append(out, model.HourBucket{BucketStart: bucket, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BucketStart.Before(out[j].BucketStart)
	})
	return out
}
