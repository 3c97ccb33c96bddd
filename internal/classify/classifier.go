// Package classify decides whether an entry is outage-grade and which
// error category it belongs to.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tinytelemetry/triage/internal/model"
	"github.com/tinytelemetry/triage/internal/rules"
)

// CategoryOther is assigned when no configured category matches.
const CategoryOther = "other"

// Classifier evaluates the critical and category policy for one entry.
// Read-only after construction; safe for concurrent use.
type Classifier struct {
	criticalKeywords []string // pre-lowercased
	criticalPatterns []*regexp.Regexp
	categories       []category
}

type category struct {
	name     string
	keywords []string // pre-lowercased
}

// NewClassifier builds a classifier from a validated rule set.
func NewClassifier(rs rules.RuleSet) (*Classifier, error) {
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	c := &Classifier{
		criticalKeywords: lowerAll(rs.CriticalKeywords),
	}
	for _, pat := range rs.CriticalPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("classify: critical_patterns %q: %w", pat, err)
		}
		c.criticalPatterns = append(c.criticalPatterns, re)
	}
	for _, cat := range rs.Categories {
		c.categories = append(c.categories, category{
			name:     cat.Name,
			keywords: lowerAll(cat.Keywords),
		})
	}
	return c, nil
}

// IsCritical reports whether the entry is outage-grade.
//
// Level and content must agree: a plain error-level line without a
// recognized high-severity token stays non-critical (level alone
// over-counts), and a matching token at warn/info stays non-critical
// (content alone under-counts).
func (c *Classifier) IsCritical(entry *model.LogEntry) bool {
	if entry.Level != model.LevelError {
		return false
	}

	combined := combinedText(entry)
	for _, kw := range c.criticalKeywords {
		if strings.Contains(combined, kw) {
			return true
		}
	}
	// Patterns run against the original casing: the default rule matches
	// exception class name tokens (FooBarException).
	for _, re := range c.criticalPatterns {
		if re.MatchString(entry.Message) || re.MatchString(entry.StackTrace) {
			return true
		}
	}
	return false
}

// Category returns the first configured category whose keywords match,
// or CategoryOther. Order is the rule-file order, first match wins.
func (c *Classifier) Category(entry *model.LogEntry) string {
	combined := combinedText(entry)
	for _, cat := range c.categories {
		for _, kw := range cat.keywords {
			if strings.Contains(combined, kw) {
				return cat.name
			}
		}
	}
	return CategoryOther
}

func combinedText(entry *model.LogEntry) string {
	if entry.StackTrace == "" {
		return strings.ToLower(entry.Message)
	}
	return strings.ToLower(entry.Message + " " + entry.StackTrace)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
