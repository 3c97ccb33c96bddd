// Package report renders a ranked report as a markdown document aimed at
// two readers at once: the leadership TLDR up top, the per-service and
// per-pattern detail below it.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/triage/internal/model"
)

// Severity badges for the TLDR section.
const (
	SeverityCritical = "🔴 CRITICAL"
	SeverityWarning  = "🟡 WARNING"
	SeverityStable   = "🟢 STABLE"
)

// Critical-count thresholds separating the severity badges.
const (
	criticalThreshold = 100
	warningThreshold  = 20
)

const (
	maxRenderedCriticals = 10
	maxRenderedPatterns  = 10
	highErrorRateShare   = 0.10
)

// Meta carries run metadata rendered into the document header and the
// technical-details footer.
type Meta struct {
	Title        string
	Organization string
	Environment  string
	GeneratedAt  time.Time
	DaysBack     int
	Source       string
	Query        string
	FetchLimit   int
}

// Renderer renders markdown reports. Zero value is not usable; construct
// with NewRenderer.
type Renderer struct {
	meta Meta
}

// NewRenderer creates a renderer. Missing title falls back to a generic one.
func NewRenderer(meta Meta) *Renderer {
	if meta.Title == "" {
		meta.Title = "Error Analysis Report"
	}
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now().UTC()
	}
	return &Renderer{meta: meta}
}

// Severity returns the badge for a critical-entry count.
func Severity(criticalCount int64) string {
	switch {
	case criticalCount > criticalThreshold:
		return SeverityCritical
	case criticalCount > warningThreshold:
		return SeverityWarning
	default:
		return SeverityStable
	}
}

// Render produces the full markdown document. hourly is the chronological
// bucket list for the time-distribution section; it may be empty when no
// entry carried a timestamp.
func (r *Renderer) Render(rep *model.RankedReport, hourly []model.HourBucket) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", r.meta.Title)
	if r.meta.Organization != "" {
		fmt.Fprintf(&b, "**Organization:** %s  \n", r.meta.Organization)
	}
	fmt.Fprintf(&b, "**Generated:** %s  \n", r.meta.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	if r.meta.Environment != "" {
		fmt.Fprintf(&b, "**Environment:** %s  \n", r.meta.Environment)
	}
	b.WriteString("\n")

	r.renderTLDR(&b, rep)
	r.renderSummary(&b, rep)
	r.renderCriticals(&b, rep)
	r.renderServices(&b, rep)
	r.renderCategories(&b, rep)
	r.renderNamespaces(&b, rep)
	r.renderTimeDistribution(&b, rep, hourly)
	r.renderTopPatterns(&b, rep)
	r.renderRecommendations(&b, rep)
	r.renderTechnicalDetails(&b)

	b.WriteString("\n---\n\nGenerated by triage\n")
	return b.String()
}

func (r *Renderer) renderTLDR(b *strings.Builder, rep *model.RankedReport) {
	b.WriteString("## 📋 TLDR\n\n")

	severity := Severity(rep.CriticalCount)
	var action string
	switch severity {
	case SeverityCritical:
		action = "Immediate action required - high number of critical errors detected"
	case SeverityWarning:
		action = "Monitor closely - elevated error levels detected"
	default:
		action = "System appears stable - continue monitoring"
	}

	fmt.Fprintf(b, "**%s** - %d total entries across %d services\n\n",
		severity, rep.TotalCount, rep.ServicesAffected())
	b.WriteString("**Key Findings:**\n")
	fmt.Fprintf(b, "- **Critical Errors:** %d (timeouts, connection failures, 5xx)\n", rep.CriticalCount)
	if len(rep.Categories) > 0 {
		top := rep.Categories[0]
		fmt.Fprintf(b, "- **Top Error Category:** %s (%d occurrences)\n", top.Category, top.Count)
	}
	if len(rep.Services) > 0 {
		names := make([]string, 0, 3)
		for _, svc := range headServices(rep.Services, 3) {
			names = append(names, fmt.Sprintf("%s (%d entries)", svc.Service, svc.TotalCount))
		}
		fmt.Fprintf(b, "- **Most Affected Services:** %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(b, "\n**Recommendation:** %s\n\n", action)
}

func (r *Renderer) renderSummary(b *strings.Builder, rep *model.RankedReport) {
	b.WriteString("## 🚨 Executive Summary\n\n")
	fmt.Fprintf(b, "- **Total Entries:** %d\n", rep.TotalCount)
	if rep.RejectedCount > 0 {
		fmt.Fprintf(b, "- **Rejected Records:** %d\n", rep.RejectedCount)
	}
	if r.meta.DaysBack > 0 {
		fmt.Fprintf(b, "- **Analysis Period:** %d day(s)\n", r.meta.DaysBack)
	}
	if r.meta.Source != "" {
		fmt.Fprintf(b, "- **Data Source:** %s\n", r.meta.Source)
	}
	fmt.Fprintf(b, "- **Services Affected:** %d\n", rep.ServicesAffected())
	fmt.Fprintf(b, "- **Namespaces Affected:** %d\n\n", len(rep.Namespaces))
}

func (r *Renderer) renderCriticals(b *strings.Builder, rep *model.RankedReport) {
	b.WriteString("## 🔥 Critical Issues Requiring Immediate Attention\n\n")
	if len(rep.CriticalSample) == 0 {
		b.WriteString("✅ No critical errors detected in the analysis period.\n\n")
		return
	}

	b.WriteString("### Most Critical Errors (Timeouts, Connection Failures, 5xx)\n\n")
	for i, entry := range rep.CriticalSample {
		if i >= maxRenderedCriticals {
			break
		}
		fmt.Fprintf(b, "%d. **%s** - %s\n", i+1, entry.Service, truncate(entry.Message, 80))
		if entry.Pod != "" {
			fmt.Fprintf(b, "   - Pod: `%s`\n", entry.Pod)
		}
		fmt.Fprintf(b, "   - Namespace: `%s`\n", entry.Namespace)
		if !entry.Timestamp.IsZero() {
			fmt.Fprintf(b, "   - Time: %s\n", entry.Timestamp.UTC().Format(time.RFC3339))
		}
		if entry.SourceFile != "" {
			fmt.Fprintf(b, "   - Source: `%s`\n", entry.SourceFile)
		}
		b.WriteString("\n")
	}
}

func (r *Renderer) renderServices(b *strings.Builder, rep *model.RankedReport) {
	b.WriteString("## 📊 Service Health Dashboard\n\n")
	for _, svc := range rep.Services {
		fmt.Fprintf(b, "### %s\n", svc.Service)
		fmt.Fprintf(b, "- **Total Entries:** %d (%.1f%% of all entries)\n",
			svc.TotalCount, percent(svc.TotalCount, rep.TotalCount))
		fmt.Fprintf(b, "- **Critical Errors:** %d (%.1f%% of service entries)\n",
			svc.CriticalCount, percent(svc.CriticalCount, svc.TotalCount))
		fmt.Fprintf(b, "- **Affected Pods:** %d\n", svc.DistinctPods)
		if len(svc.Namespaces) > 0 {
			fmt.Fprintf(b, "- **Namespaces:** %s\n", strings.Join(svc.Namespaces, ", "))
		}
		if len(svc.CategoryCounts) > 0 {
			parts := make([]string, 0, 3)
			for i, cat := range svc.CategoryCounts {
				if i >= 3 {
					break
				}
				parts = append(parts, fmt.Sprintf("%s(%d)", cat.Category, cat.Count))
			}
			fmt.Fprintf(b, "- **Error Types:** %s\n", strings.Join(parts, ", "))
		}
		if len(svc.TopPatterns) > 0 {
			top := svc.TopPatterns[0]
			fmt.Fprintf(b, "- **Top Pattern:** %s (%d times)\n", truncate(top.Pattern, 60), top.Count)
		}
		b.WriteString("\n")
	}
}

func (r *Renderer) renderCategories(b *strings.Builder, rep *model.RankedReport) {
	if len(rep.Categories) == 0 {
		return
	}
	b.WriteString("## 🏷️ Error Categories Analysis\n\n")
	for _, cat := range rep.Categories {
		fmt.Fprintf(b, "- **%s:** %d (%.1f%%)\n", cat.Category, cat.Count, percent(cat.Count, rep.TotalCount))
	}
	b.WriteString("\n")
}

func (r *Renderer) renderNamespaces(b *strings.Builder, rep *model.RankedReport) {
	if len(rep.Namespaces) == 0 {
		return
	}
	b.WriteString("## 🌍 Namespace Breakdown\n\n")
	for _, ns := range rep.Namespaces {
		fmt.Fprintf(b, "- **%s:** %d entries (%.1f%%)\n", ns.Namespace, ns.Count, percent(ns.Count, rep.TotalCount))
	}
	b.WriteString("\n")
}

func (r *Renderer) renderTimeDistribution(b *strings.Builder, rep *model.RankedReport, hourly []model.HourBucket) {
	if len(hourly) == 0 {
		return
	}
	b.WriteString("## ⏰ Time Distribution\n\n")
	for _, bucket := range hourly {
		fmt.Fprintf(b, "- **%s:** %d entries (%.1f%%)\n",
			bucket.BucketStart.UTC().Format("2006-01-02 15:00"), bucket.Count, percent(bucket.Count, rep.TotalCount))
	}
	b.WriteString("\n")
}

func (r *Renderer) renderTopPatterns(b *strings.Builder, rep *model.RankedReport) {
	if len(rep.GlobalPatterns) == 0 {
		return
	}
	b.WriteString("## 🎯 Top Error Patterns Across All Services\n\n")
	for i, pat := range rep.GlobalPatterns {
		if i >= maxRenderedPatterns {
			break
		}
		fmt.Fprintf(b, "%d. **%s** (%d occurrences, %d services)\n",
			i+1, truncate(pat.Pattern, 100), pat.Count, len(pat.Services))
		if pat.Example != "" {
			fmt.Fprintf(b, "   - Example: `%s`\n", truncate(pat.Example, 120))
		}
	}
	b.WriteString("\n")
}

func (r *Renderer) renderRecommendations(b *strings.Builder, rep *model.RankedReport) {
	b.WriteString("## 🛠️ Actionable Recommendations\n\n")

	var highRate, critical []string
	for _, svc := range rep.Services {
		if rep.TotalCount > 0 && float64(svc.TotalCount) > float64(rep.TotalCount)*highErrorRateShare {
			highRate = append(highRate, svc.Service)
		}
		if svc.CriticalCount > 0 {
			critical = append(critical, svc.Service)
		}
	}

	if len(highRate) > 0 {
		b.WriteString("### 🚨 Immediate Actions Required\n")
		fmt.Fprintf(b, "- **High Error Rate Services:** %s\n", strings.Join(highRate, ", "))
		b.WriteString("- Investigate these services immediately for potential outages or performance issues\n")
		b.WriteString("- Check service health endpoints and resource utilization\n")
		b.WriteString("- Review recent deployments for these services\n\n")
	}
	if len(critical) > 0 {
		b.WriteString("### ⚡ Critical Error Services\n")
		fmt.Fprintf(b, "- **Services with Critical Errors:** %s\n", strings.Join(critical, ", "))
		b.WriteString("- These services have timeouts, connection failures, or 5xx errors\n")
		b.WriteString("- Check network connectivity, database connections, and external service dependencies\n")
		b.WriteString("- Review timeout configurations and retry policies\n\n")
	}

	b.WriteString("### 📈 Long-term Improvements\n")
	b.WriteString("- Implement structured logging with correlation IDs for better error tracking\n")
	b.WriteString("- Set up automated alerting for critical error patterns\n")
	b.WriteString("- Create runbooks for common error scenarios\n")
	b.WriteString("- Implement circuit breakers for external service calls\n\n")
}

func (r *Renderer) renderTechnicalDetails(b *strings.Builder) {
	if r.meta.Query == "" && r.meta.FetchLimit == 0 {
		return
	}
	b.WriteString("## 🔧 Technical Details\n\n")
	if r.meta.Query != "" {
		fmt.Fprintf(b, "- **Query:** `%s`\n", r.meta.Query)
	}
	if r.meta.FetchLimit > 0 {
		fmt.Fprintf(b, "- **Limit:** %d entries\n", r.meta.FetchLimit)
	}
	b.WriteString("\n")
}

// headServices returns up to n services. The report's service list is
// already ranked by total count, so this is a plain head-take.
func headServices(services []model.ServiceReport, n int) []model.ServiceReport {
	if len(services) > n {
		return services[:n]
	}
	return services
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// truncate shortens s to at most n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
