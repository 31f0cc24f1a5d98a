package normalize

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

// tryPlainTextWrap implements ladder strategy 6, reserved for reply
// generation: a short non-JSON response becomes a one-candidate set whose
// strategy is forced to direct_response. The wrap itself is logged as a
// warning metric.
func tryPlainTextWrap(raw string, threshold int) (map[string]any, bool) {
	trimmed := strings.TrimSpace(raw)
	length := utf8.RuneCountInString(trimmed)
	if trimmed == "" || strings.Contains(trimmed, "{") || length >= threshold {
		return nil, false
	}

	slog.Warn("normalize: wrapping plain-text reply", "length", length)

	return map[string]any{
		"replies": []any{
			map[string]any{"text": trimmed, "strategy": "direct_response"},
		},
	}, true
}
