package pattern

import "regexp"

// PlaceholderN, PlaceholderID, PlaceholderPath and PlaceholderStr are the
// fixed tokens substituted for high-cardinality substrings.
const (
	PlaceholderN    = "<N>"
	PlaceholderID   = "<ID>"
	PlaceholderPath = "<PATH>"
	PlaceholderStr  = "<STR>"
)

// maskRule is one matcher+replacer pass. Rules compose in order: each rule
// operates on the previous rule's output, and the composed pipeline is
// stable under re-application (masking already-masked text is a no-op).
type maskRule struct {
	name        string
	re          *regexp.Regexp
	replacement string
}

func (r maskRule) apply(s string) string {
	return r.re.ReplaceAllString(s, r.replacement)
}

// defaultRules returns the ordered mask rule list.
//
// Identifier-shaped tokens are masked before bare digit runs: a digit run
// inside a UUID or hex hash would otherwise be rewritten first and the
// surviving fragments would no longer look identifier-shaped. With that one
// reordering the composition is still deterministic and idempotent.
func defaultRules() []maskRule {
	return []maskRule{
		{
			name:        "uuid",
			re:          regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`),
			replacement: PlaceholderID,
		},
		{
			name:        "hex",
			re:          regexp.MustCompile(`\b[0-9a-fA-F]{16,}\b`),
			replacement: PlaceholderID,
		},
		{
			// Contiguous digit runs, optionally with ./:/- separators
			// inside, covering IPs, timestamps and durations in one token.
			name:        "number",
			re:          regexp.MustCompile(`\b\d+(?:[.:\-]\d+)*\b`),
			replacement: PlaceholderN,
		},
		{
			// Absolute path-shaped tokens with at least two segments.
			name:        "path",
			re:          regexp.MustCompile(`(?:/[\w.<>\-]+){2,}/?`),
			replacement: PlaceholderPath,
		},
		{
			name:        "single-quoted",
			re:          regexp.MustCompile(`'[^']*'`),
			replacement: PlaceholderStr,
		},
		{
			name:        "double-quoted",
			re:          regexp.MustCompile(`"[^"]*"`),
			replacement: PlaceholderStr,
		},
	}
}
