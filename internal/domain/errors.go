package domain

import "fmt"

// Kind classifies an error for external status mapping, independent of the
// human-readable message wrapped around it.
type Kind string

const (
	KindImageFetch               Kind = "image_fetch"
	KindLLMProviderAuth          Kind = "llm_provider_auth"
	KindLLMProviderThrottled     Kind = "llm_provider_throttled"
	KindJSONParseExhausted       Kind = "json_parse_exhausted"
	KindValidationRange          Kind = "validation_range"
	KindModerationReject         Kind = "moderation_reject"
	KindModerationUnavailable    Kind = "moderation_unavailable"
	KindRetryExhausted           Kind = "retry_exhausted"
	KindRaceBothArmsInvalid      Kind = "race_both_arms_invalid"
	KindQuotaExceeded            Kind = "quota_exceeded"
	KindTimeout                  Kind = "timeout"
)

// Error is the classified error type carried across every component
// boundary. It wraps the underlying cause without masking it.
type Error struct {
	Kind    Kind
	Op      string // component/operation that raised it, e.g. "analyzer.analyze"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap builds a classified Error, attaching the component/operation name
// without discarding the original cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, and the ok
// return reports whether one was found.
func KindOf(err error) (Kind, bool) {
	var de *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			de = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if de == nil {
		return "", false
	}
	return de.Kind, true
}

// HTTPStatus maps an error kind to the status code specified for it. Kinds
// with no single fixed external mapping (auto-repaired or retried
// internally) return 500 as the conservative default for a fatal surface.
func HTTPStatus(k Kind) int {
	switch k {
	case KindImageFetch:
		return 422
	case KindLLMProviderAuth, KindLLMProviderThrottled, KindJSONParseExhausted,
		KindRetryExhausted, KindRaceBothArmsInvalid:
		return 500
	case KindQuotaExceeded:
		return 429
	case KindTimeout:
		return 504
	default:
		return 500
	}
}
