// Package rules loads the tunable triage policy: critical-content
// predicates and error-category keyword lists.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is one named error bucket matched by keywords.
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// RuleSet is the full policy document. Keyword matching is case-insensitive
// substring matching against message plus stack trace; patterns are
// regular expressions matched against the original casing.
type RuleSet struct {
	CriticalKeywords []string   `yaml:"critical_keywords"`
	CriticalPatterns []string   `yaml:"critical_patterns"`
	Categories       []Category `yaml:"categories"`
}

// Default returns the built-in policy. The critical list follows the
// operational triage set: 5xx tokens, timeouts and connection failures.
func Default() RuleSet {
	return RuleSet{
		CriticalKeywords: []string{
			"timeout",
			"connection refused",
			"connection failed",
			"eofexception",
			"503",
			"502",
			"500",
		},
		CriticalPatterns: []string{
			`\b\w+Exception\b`,
		},
		Categories: []Category{
			{Name: "database", Keywords: []string{"sql", "database", "deadlock", "constraint", "transaction"}},
			{Name: "network", Keywords: []string{"connection refused", "connection failed", "connection reset", "dns", "unreachable", "timeout"}},
			{Name: "http_5xx", Keywords: []string{"500", "502", "503", "504", "internal server error", "bad gateway"}},
			{Name: "authentication", Keywords: []string{"unauthorized", "forbidden", "authentication", "token expired", "permission denied"}},
			{Name: "validation", Keywords: []string{"validation", "invalid", "required field", "unsupported", "malformed"}},
			{Name: "resource", Keywords: []string{"out of memory", "oom", "disk", "quota", "too many open files"}},
		},
	}
}

// Load reads a policy file and validates it. A missing or empty critical
// list invalidates every downstream aggregate, so it fails fast.
func Load(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("rules: read %s: %w", path, err)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("rules: parse %s: %w", path, err)
	}
	if err := rs.Validate(); err != nil {
		return RuleSet{}, fmt.Errorf("rules: %s: %w", path, err)
	}
	return rs, nil
}

// Validate checks the policy for configuration defects.
func (rs RuleSet) Validate() error {
	if len(rs.CriticalKeywords) == 0 {
		return fmt.Errorf("critical_keywords must not be empty")
	}
	for _, kw := range rs.CriticalKeywords {
		if strings.TrimSpace(kw) == "" {
			return fmt.Errorf("critical_keywords contains a blank entry")
		}
	}
	for _, pat := range rs.CriticalPatterns {
		if strings.TrimSpace(pat) == "" {
			return fmt.Errorf("critical_patterns contains a blank entry")
		}
		if _, err := regexp.Compile(pat); err != nil {
			return fmt.Errorf("critical_patterns %q: %w", pat, err)
		}
	}
	seen := map[string]bool{}
	for _, c := range rs.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("category with empty name")
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate category %q", c.Name)
		}
		seen[c.Name] = true
		if len(c.Keywords) == 0 {
			return fmt.Errorf("category %q has no keywords", c.Name)
		}
	}
	return nil
}
