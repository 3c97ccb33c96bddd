package timestamp

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Parser extracts timestamps from structured values and free log text.
// A zero time with found=false means "unknown time": callers keep the entry
// and simply exclude it from time-bucket aggregation.
type Parser struct {
	layouts []string
}

// Result is the outcome of a ParseFromText call.
type Result struct {
	Timestamp time.Time
	Found     bool
	Remaining string // input with the timestamp prefix stripped
}

// leadingTimestampRegex matches a timestamp-shaped prefix at the start of a line:
// ISO dates, space-separated datetimes, syslog dates, or bare times.
var leadingTimestampRegex = regexp.MustCompile(
	`^(` +
		`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?` +
		`|[A-Z][a-z]{2} +\d{1,2} \d{2}:\d{2}:\d{2}` +
		`|\d{2}:\d{2}:\d{2}(?:[.,]\d+)?` +
		`)\s*`,
)

// NewParser creates a parser covering the formats seen in Loki exports and
// application logs: RFC3339 variants, space-separated datetimes, syslog.
func NewParser() *Parser {
	return &Parser{
		layouts: []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05.000Z0700",
			"2006-01-02 15:04:05.999999999",
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05",
			"Jan 2 15:04:05",
			"Jan _2 15:04:05",
			"15:04:05.999",
			"15:04:05",
		},
	}
}

// ParseTimestamp parses a structured timestamp value (string or unix number).
// Numeric values are disambiguated by magnitude: seconds, millis, micros, nanos.
func (p *Parser) ParseTimestamp(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		if ts, ok := p.parseString(s); ok {
			return ts, true
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return parseUnixTimestamp(n), true
		}
		return time.Time{}, false
	case float64:
		return parseUnixTimestamp(int64(v)), true
	case int:
		return parseUnixTimestamp(int64(v)), true
	case int64:
		return parseUnixTimestamp(v), true
	case uint64:
		return parseUnixTimestamp(int64(v)), true
	case time.Time:
		return v, !v.IsZero()
	default:
		return time.Time{}, false
	}
}

// ParseFromText finds a leading timestamp in free log text.
func (p *Parser) ParseFromText(text string) Result {
	loc := leadingTimestampRegex.FindStringSubmatchIndex(text)
	if loc == nil {
		return Result{Remaining: text}
	}

	token := text[loc[2]:loc[3]]
	remaining := text[loc[1]:]

	ts, ok := p.parseString(token)
	if !ok {
		return Result{Remaining: text}
	}
	return Result{Timestamp: ts, Found: true, Remaining: remaining}
}

// ExtractLogMessage strips a leading timestamp and severity token, returning
// the message body of a plain-text line.
func (p *Parser) ExtractLogMessage(text string) string {
	remaining := p.ParseFromText(text).Remaining
	remaining = strings.TrimLeft(remaining, " \t")

	// Strip one leading severity token like "ERROR:" or "[warn]".
	severityPrefix := regexp.MustCompile(`^\[?(?i:TRACE|DEBUG|INFO|WARN|WARNING|ERROR|FATAL|CRITICAL)\]?:?\s*`)
	stripped := severityPrefix.ReplaceAllString(remaining, "")
	if strings.TrimSpace(stripped) == "" {
		return remaining
	}
	return stripped
}

func (p *Parser) parseString(s string) (time.Time, bool) {
	// Normalize international comma decimals before layout matching.
	candidate := strings.Replace(s, ",", ".", 1)
	for _, layout := range p.layouts {
		if ts, err := time.Parse(layout, candidate); err == nil {
			return normalizePartial(ts, layout), true
		}
	}
	return time.Time{}, false
}

// normalizePartial fills in the current date for layouts that carry none,
// so time-only and syslog timestamps still bucket into a real hour.
func normalizePartial(ts time.Time, layout string) time.Time {
	if strings.HasPrefix(layout, "15:") {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(),
			ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC)
	}
	if strings.HasPrefix(layout, "Jan") {
		return ts.AddDate(time.Now().UTC().Year(), 0, 0)
	}
	return ts
}

// parseUnixTimestamp interprets a raw integer as a unix timestamp, choosing
// the unit by magnitude.
func parseUnixTimestamp(n int64) time.Time {
	switch {
	case n <= 0:
		return time.Time{}
	case n <= 1_000_000_000: // seconds (through 2001)
		return time.Unix(n, 0).UTC()
	case n <= 1_000_000_000_000: // seconds (modern) or early millis
		return time.Unix(n, 0).UTC()
	case n <= 1_000_000_000_000_000: // milliseconds
		return time.UnixMilli(n).UTC()
	case n <= 1_000_000_000_000_000_000: // microseconds
		return time.UnixMicro(n).UTC()
	default: // nanoseconds
		return time.Unix(0, n).UTC()
	}
}
