package normalize

import (
	"chatcoach/internal/domain"
)

// ParseReplySet decodes one reply-generation LLM response. A structurally
// valid JSON set must contain at least three candidates; the first three
// are kept and any extra discarded. A response that isn't JSON at all
// falls back to the plain-text wrap (ladder strategy 6) when raw is short
// enough, which always yields exactly one candidate and is valid on its
// own terms — it is never padded up to three.
func ParseReplySet(raw string, plainTextThreshold int) ([]domain.ReplyCandidate, error) {
	obj, _, err := parseJSONObject(raw)
	if err != nil {
		wrapped, ok := tryPlainTextWrap(raw, plainTextThreshold)
		if !ok {
			LogParseFailure("reply", raw, err)
			return nil, err
		}
		return buildReplyCandidates(wrapped), nil
	}

	candidates := buildReplyCandidates(obj)
	switch {
	case len(candidates) == 0:
		return nil, domain.Wrap(domain.KindJSONParseExhausted, "normalize.ParseReplySet",
			"no reply candidates present in parsed object", nil)
	case len(candidates) < 3:
		return nil, domain.Wrap(domain.KindValidationRange, "normalize.ParseReplySet",
			"fewer than three reply candidates produced", nil)
	case len(candidates) > 3:
		candidates = candidates[:3]
	}

	return candidates, nil
}

func buildReplyCandidates(obj map[string]any) []domain.ReplyCandidate {
	raw := asSlice(obj["replies"])
	out := make([]domain.ReplyCandidate, 0, len(raw))
	for _, r := range raw {
		rm := asMap(r)
		if rm == nil {
			continue
		}
		text := asString(rm["text"], "")
		if text == "" {
			continue
		}
		strategy := asString(rm["strategy"], domain.DirectResponseStrategy)
		if strategy == "" {
			strategy = domain.DirectResponseStrategy
		}
		out = append(out, domain.ReplyCandidate{
			Text:         text,
			StrategyCode: strategy,
			Reasoning:    asString(rm["reasoning"], ""),
		})
	}
	return out
}
