// Package normalize turns raw, loosely-typed source records into the one
// strongly-typed LogEntry the rest of the pipeline consumes. Field access on
// heterogeneous maps stops at this boundary.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/triage/internal/logparse"
	"github.com/tinytelemetry/triage/internal/model"
	"github.com/tinytelemetry/triage/internal/timestamp"
)

// Normalizer converts raw records to LogEntries. Stateless and safe for
// concurrent use; Normalize is a pure function of its input.
type Normalizer struct {
	ts *timestamp.Parser
}

// NewNormalizer creates a normalizer with the default timestamp parser.
func NewNormalizer() *Normalizer {
	return &Normalizer{ts: timestamp.NewParser()}
}

// Normalize produces a LogEntry from one raw record, or ok=false when the
// record must be rejected (missing or empty message). Rejection is an
// expected occurrence in noisy sources, not an error: callers count it and
// move on. Unknown levels and unparseable timestamps never reject.
func (n *Normalizer) Normalize(raw model.RawRecord) (*model.LogEntry, bool) {
	if raw == nil {
		return nil, false
	}

	labels := mapField(raw, "labels")

	entry := &model.LogEntry{
		Service:   firstNonEmpty(stringField(labels, "app", "service_name", "service"), stringField(raw, "service", "app"), "unknown"),
		Namespace: firstNonEmpty(stringField(labels, "namespace"), stringField(raw, "namespace"), "unknown"),
		Pod:       firstNonEmpty(stringField(labels, "pod"), stringField(raw, "pod")),
	}

	line := stringField(raw, "line")
	nested := parseNestedLine(line)

	message := firstNonEmpty(
		stringField(nested, "message", "msg"),
		stringField(raw, "message", "msg"),
	)
	level := firstNonEmpty(
		stringField(nested, "level", "detected_level"),
		stringField(raw, "level", "detected_level"),
	)

	if message == "" && line != "" && nested == nil {
		// Plain-text line: the body is the message, minus any leading
		// timestamp and severity tokens.
		message = n.ts.ExtractLogMessage(line)
		if level == "" {
			level = logparse.ExtractLevelFromText(line)
		}
	}

	message = sanitizeMessage(message)
	if strings.TrimSpace(message) == "" {
		return nil, false
	}
	entry.Message = message

	if level == "" {
		entry.Level = model.LevelUnknown
	} else {
		entry.Level = logparse.NormalizeLevel(level)
	}

	entry.Timestamp = n.extractTimestamp(raw, nested, line)
	entry.SourceFile = stringField(mapField(nested, "source"), "file")
	entry.StackTrace = stringField(nested, "stackTrace", "stack_trace")

	return entry, true
}

// extractTimestamp prefers the store's own record timestamp, then the
// application timestamp inside the line, then a timestamp-shaped prefix in
// plain text. Parse failure yields the unknown-time sentinel (zero value).
func (n *Normalizer) extractTimestamp(raw model.RawRecord, nested map[string]interface{}, line string) time.Time {
	for _, source := range []map[string]interface{}{raw, nested} {
		if source == nil {
			continue
		}
		for _, key := range []string{"timestamp", "time", "ts"} {
			value, ok := source[key]
			if !ok {
				continue
			}
			if ts, parsed := n.ts.ParseTimestamp(value); parsed {
				return ts
			}
		}
	}
	if line != "" && nested == nil {
		if result := n.ts.ParseFromText(line); result.Found {
			return result.Timestamp
		}
	}
	return time.Time{}
}

// parseNestedLine decodes a structured line payload, returning nil for
// plain text.
func parseNestedLine(line string) map[string]interface{} {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	var nested map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &nested); err != nil {
		return nil
	}
	return nested
}

func sanitizeMessage(message string) string {
	clean := strings.ReplaceAll(message, "\t", " ")
	clean = strings.ReplaceAll(clean, "\n", " ")
	clean = strings.ReplaceAll(clean, "\r", " ")
	return strings.TrimSpace(clean)
}

// stringField returns the first non-empty string value found among keys.
// Non-string scalars are stringified; nested structures yield "".
func stringField(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if s := stringifyScalar(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func mapField(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil {
		return nil
	}
	m, _ := raw[key].(map[string]interface{})
	return m
}

func stringifyScalar(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	case bool:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
