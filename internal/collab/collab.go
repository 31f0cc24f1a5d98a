// Package collab declares the external-collaborator interfaces the
// orchestrator depends on but does not itself implement the substance of:
// image transport, prompt storage, moderation scoring, profile
// persistence, quota checks, telemetry, strategy pools and request
// authentication. Each interface has exactly one default adapter in a
// sibling package; callers may substitute any implementation that
// satisfies the interface.
package collab

import "context"

// ImageFetcher retrieves the bytes behind a content URL. The fetcher owns
// size/format validation; callers only ever see bytes that have already
// passed it.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, width, height int, err error)
}

// PromptTemplate is a loaded prompt body plus the version tag lifted from
// its first line (e.g. "[PROMPT:merge_step_v1.0]").
type PromptTemplate struct {
	Text    string
	Version string
}

// PromptStore resolves a logical prompt name to its current template.
type PromptStore interface {
	Get(ctx context.Context, name string) (PromptTemplate, error)
}

// ModerationVerdict is the moderation service's decision for one reply
// candidate set.
type ModerationVerdict string

const (
	ModerationPass    ModerationVerdict = "pass"
	ModerationWarn    ModerationVerdict = "warn"
	ModerationRewrite ModerationVerdict = "rewrite"
	ModerationReject  ModerationVerdict = "reject"
)

// ModerationService scores a reply set's intimacy risk against the current
// stage and returns a single verdict for the set.
type ModerationService interface {
	Check(ctx context.Context, texts []string, intimacyStage int) (ModerationVerdict, error)
}

// Profile is the persisted per-user record the orchestrator may consult
// when personalizing a reply (out of scope for substance, in scope for
// wiring).
type Profile struct {
	UserID   string
	Nickname string
}

// ProfileStore persists and retrieves user profiles.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (Profile, error)
	Put(ctx context.Context, p Profile) error
}

// QuotaChecker admits or rejects a request at entry. Admission is a single
// synchronous call; there is no partial-admission or refund contract.
type QuotaChecker interface {
	Admit(ctx context.Context, userID string) error
}

// TraceEvent is one observability record: an LLM call, a cache hit/miss, a
// race outcome, or a moderation decision.
type TraceEvent struct {
	RequestID string
	Kind      string // "llm_call", "cache_hit", "cache_miss", "race_winner", "race_loser", "moderation", "dispatch_ok", "dispatch_error"
	Fields    map[string]any
}

// TelemetrySink receives trace events for external recording.
type TelemetrySink interface {
	Record(ev TraceEvent)
}

// StrategySelector draws strategy codes for a recommended scenario.
type StrategySelector interface {
	Select(scenario string, count int, seed *int64) ([]string, error)
}

// Authenticator verifies the opaque "sign" field on a request. Out of
// scope per the external collaborator list; the default adapter is a
// no-op that always succeeds.
type Authenticator interface {
	Verify(ctx context.Context, userID, sign string) error
}
