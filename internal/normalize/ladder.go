// Package normalize turns whatever string an LLM emitted into a validated
// domain object, or a classified error. It runs a fixed parser ladder
// (direct parse, fenced extraction, regex extraction, a stack-based brace
// scanner, and — for replies only — a plain-text wrap), then applies
// domain-specific repair and validation on top of whatever parsed.
package normalize

import (
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"chatcoach/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	jsonFenceRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	bareFenceRe = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
	braceRe     = regexp.MustCompile(`(?s)\{.*\}`)
	badEscapeRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)
)

// repairEscapes drops the backslash from any escape sequence JSON doesn't
// recognize. Handles the \[ \] \( \) over-escaping some models emit.
func repairEscapes(s string) string {
	return badEscapeRe.ReplaceAllString(s, "$1")
}

// ladderResult is what ran and what it produced, kept for failure
// artefacts when every strategy is exhausted.
type ladderResult struct {
	strategy string
	object   map[string]any
	err      error
}

// parseJSONObject runs strategies 1 through 5 of the parse ladder and
// returns the first object that decodes successfully.
func parseJSONObject(raw string) (map[string]any, string, error) {
	repaired := repairEscapes(raw)

	attempts := []ladderResult{}

	// 1. Direct parse.
	if obj, err := tryUnmarshalObject(repaired); err == nil {
		return obj, "direct", nil
	} else {
		attempts = append(attempts, ladderResult{"direct", nil, err})
	}

	// 2. ```json fence.
	if m := jsonFenceRe.FindStringSubmatch(repaired); m != nil {
		if obj, err := tryUnmarshalObject(m[1]); err == nil {
			return obj, "json_fence", nil
		} else {
			attempts = append(attempts, ladderResult{"json_fence", nil, err})
		}
	}

	// 3. Bare ``` fence.
	if m := bareFenceRe.FindStringSubmatch(repaired); m != nil {
		if obj, err := tryUnmarshalObject(m[1]); err == nil {
			return obj, "bare_fence", nil
		} else {
			attempts = append(attempts, ladderResult{"bare_fence", nil, err})
		}
	}

	// 4. Greedy regex for the first balanced-looking {...} region.
	if m := braceRe.FindString(repaired); m != "" {
		if obj, err := tryUnmarshalObject(m); err == nil {
			return obj, "greedy_regex", nil
		} else {
			attempts = append(attempts, ladderResult{"greedy_regex", nil, err})
		}
	}

	// 5. Stack-based extraction: scan every top-level {...} region and try
	// each in turn.
	for _, candidate := range extractBalancedObjects(repaired) {
		if obj, err := tryUnmarshalObject(candidate); err == nil {
			return obj, "stack_scan", nil
		}
	}
	attempts = append(attempts, ladderResult{"stack_scan", nil, lastErr(attempts)})

	return nil, "", domain.Wrap(domain.KindJSONParseExhausted, "normalize.parseJSONObject",
		"all parse strategies exhausted", lastErr(attempts))
}

func lastErr(attempts []ladderResult) error {
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].err != nil {
			return attempts[i].err
		}
	}
	return nil
}

func tryUnmarshalObject(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// extractBalancedObjects scans s character by character, tracking brace
// depth and string/escape context, and returns every top-level {...}
// substring it encounters (strategy 5 of the ladder).
func extractBalancedObjects(s string) []string {
	var out []string
	var depth int
	var start int
	var inString bool
	var escaped bool

	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					out = append(out, s[start:i+1])
				}
			}
		}
	}

	return out
}
