// Package pattern collapses free-text error messages into canonical
// clustering keys by masking high-cardinality substrings and truncating to a
// bounded prefix.
package pattern

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tinytelemetry/triage/internal/model"
)

// whitespaceRegex matches runs of whitespace for collapsing.
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Config holds extractor tunables.
type Config struct {
	// MaxLength bounds the PatternKey prefix. Truncation deliberately trades
	// precision for recall so stack traces with diverging tails still
	// cluster; it must be positive.
	MaxLength int
}

// Extractor converts messages into PatternKeys. Safe for concurrent use:
// it is read-only after construction.
type Extractor struct {
	maxLength int
	rules     []maskRule
}

// NewExtractor builds an extractor with the ordered default mask rules.
// An invalid truncation length is a configuration defect and fails fast.
func NewExtractor(conf Config) (*Extractor, error) {
	if conf.MaxLength == 0 {
		conf.MaxLength = model.DefaultPatternMaxLength
	}
	if conf.MaxLength < 0 {
		return nil, fmt.Errorf("pattern: max length must be positive, got %d", conf.MaxLength)
	}
	return &Extractor{
		maxLength: conf.MaxLength,
		rules:     defaultRules(),
	}, nil
}

// Extract returns the PatternKey for a message: mask passes in order, then
// a bounded-prefix truncation. Messages shorter than the budget are used
// verbatim after masking.
func (e *Extractor) Extract(message string) string {
	masked := e.Mask(message)
	return e.truncate(masked)
}

// Mask applies the mask rules without truncation. Exposed separately so the
// masking pipeline is testable in isolation and provably idempotent.
func (e *Extractor) Mask(message string) string {
	// Case is preserved (class names carry signal); only whitespace runs
	// collapse so formatting differences do not create distinct keys.
	s := whitespaceRegex.ReplaceAllString(strings.TrimSpace(message), " ")
	for _, rule := range e.rules {
		s = rule.apply(s)
	}
	return s
}

// MaxLength returns the configured truncation budget.
func (e *Extractor) MaxLength() int {
	return e.maxLength
}

func (e *Extractor) truncate(s string) string {
	if len(s) <= e.maxLength {
		return s
	}
	// Cut on a rune boundary at or below the byte budget.
	cut := e.maxLength
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
