package logparse

import (
	"regexp"
	"strings"

	"github.com/tinytelemetry/triage/internal/model"
)

// LevelRegex matches common severity levels in log text.
var LevelRegex = regexp.MustCompile(`(?i)\b(TRACE|DEBUG|INFO|WARN|WARNING|ERROR|ERR|FATAL|CRITICAL|PANIC)\b`)

// NormalizeLevel case-folds a raw level value into the fixed vocabulary.
// Values outside the known set map to "unknown" rather than being rejected,
// so noisy sources still count toward totals.
func NormalizeLevel(level string) string {
	normalized := strings.ToUpper(strings.TrimSpace(level))

	switch normalized {
	case "ERROR", "ERR", "ERRO":
		return model.LevelError
	case "FATAL", "FATL", "FTL", "CRITICAL", "CRIT", "CRT", "PANIC", "PNC":
		// Fatal-class levels fold into error; criticality is decided by
		// the classifier, not the raw level.
		return model.LevelError
	case "WARN", "WARNING", "WRNG", "WRN":
		return model.LevelWarn
	case "INFO", "INFORMATION", "INF":
		return model.LevelInfo
	case "DEBUG", "DEBU", "DBG", "DEB", "TRACE", "TRAC", "TRC":
		return model.LevelDebug
	default:
		if len(normalized) >= 4 {
			switch normalized[:4] {
			case "ERRO", "FATA", "CRIT":
				return model.LevelError
			case "WARN":
				return model.LevelWarn
			case "INFO":
				return model.LevelInfo
			case "DEBU", "TRAC":
				return model.LevelDebug
			}
		}
		return model.LevelUnknown
	}
}

// ExtractLevelFromText extracts a level token from free log text.
// Returns "unknown" when no recognizable token appears.
func ExtractLevelFromText(message string) string {
	matches := LevelRegex.FindStringSubmatch(message)
	if len(matches) > 1 {
		return NormalizeLevel(matches[1])
	}
	return model.LevelUnknown
}
