// Package domain holds the value types shared by every component of the
// orchestrator: requests, dialogs, per-image results, reply candidates and
// the cache event envelope. Nothing here talks to a network or a clock.
package domain

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Speaker identifies which side of a conversation an utterance belongs to.
type Speaker string

const (
	SpeakerSelf  Speaker = "self"
	SpeakerOther Speaker = "other"
)

// Column is the screen side a bubble was extracted from.
type Column string

const (
	ColumnLeft  Column = "left"
	ColumnRight Column = "right"
)

// EmotionState is the coarse emotional read of a conversation.
type EmotionState string

const (
	EmotionPositive EmotionState = "positive"
	EmotionNeutral  EmotionState = "neutral"
	EmotionNegative EmotionState = "negative"
)

// Scenario is the recommended conversational posture for a scene.
type Scenario string

const (
	ScenarioSafe      Scenario = "SAFE"
	ScenarioBalanced  Scenario = "BALANCED"
	ScenarioRisky     Scenario = "RISKY"
	ScenarioRecovery  Scenario = "RECOVERY"
	ScenarioNegative  Scenario = "NEGATIVE"
	DefaultScenario            = ScenarioSafe
	DefaultRelationship string = "维持"
)

// ContentKind distinguishes the two item types a request's content array
// may hold.
type ContentKind string

const (
	ContentImage ContentKind = "image"
	ContentText  ContentKind = "text"
)

// Cache category names. New categories may be introduced by callers without
// a schema change; these are just the ones the core itself reads or writes.
const (
	CategoryContextAnalysis  = "context_analysis"
	CategorySceneAnalysis    = "scene_analysis"
	CategoryPersonaAnalysis  = "persona_analysis"
	CategoryReply            = "reply"
	CategoryImageResult      = "image_result"
	CategoryImageDimensions  = "image_dimensions"
)

// ModelTag and StrategyTag are the two observability-only metadata fields
// attached to a cache payload. They are never part of a cache key and must
// never influence a read.
const (
	ModelMergeStep    = "merge-step"
	ModelNonMergeStep = "non-merge-step"

	StrategyParallel = "parallel"
	StrategySerial   = "serial"
	StrategyAuto     = "auto"
)

// Request is one call to the orchestrator.
type Request struct {
	UserID          string   `json:"user_id"`
	SessionID       string   `json:"session_id"`
	Scene           int      `json:"scene"`
	Content         []string `json:"content"`
	Language        string   `json:"language"`
	ForceRegenerate bool     `json:"force_regenerate,omitempty"`
	WantSceneAnalysis bool   `json:"scene_analysis,omitempty"`
	WantReply       bool     `json:"reply,omitempty"`
	Sign            string   `json:"sign,omitempty"`
}

// Dialog is one utterance, supplied by the caller or extracted from a
// screenshot.
type Dialog struct {
	Speaker   Speaker `json:"speaker"`
	Text      string  `json:"text"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// BBox is a bounding box in normalized [0,1]^2 coordinates.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Point is a normalized (x,y) pair.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bubble is one message bubble extracted from a screenshot.
type Bubble struct {
	ID         string  `json:"id"`
	BBox       BBox    `json:"bbox"`
	Center     Point   `json:"center"`
	Text       string  `json:"text"`
	Speaker    Speaker `json:"speaker"`
	Column     Column  `json:"column"`
	Confidence float64 `json:"confidence"`
}

// Participant identifies one side of a conversation.
type Participant struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

// Layout records which column belongs to which speaker role.
type Layout struct {
	Type      string `json:"type"`
	LeftRole  string `json:"left_role"`
	RightRole string `json:"right_role"`
}

// ImageDimensions is the standalone cache payload used to repair
// absolute-pixel bubble coordinates found under an older schema.
type ImageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ImageResult is the per-image output of the merge step.
type ImageResult struct {
	URL          string      `json:"url"`
	Width        int         `json:"width"`
	Height       int         `json:"height"`
	Dialogs      []Dialog    `json:"dialogs"`
	Bubbles      []Bubble    `json:"bubbles"`
	Participants struct {
		Self  Participant `json:"self"`
		Other Participant `json:"other"`
	} `json:"participants"`
	Layout      Layout `json:"layout"`
	ScenarioRaw string `json:"scenario_json"`
}

// ContextResult summarizes the conversation so far.
type ContextResult struct {
	ConversationSummary string       `json:"conversation_summary"`
	EmotionState        EmotionState `json:"emotion_state"`
	IntimacyLevel       int          `json:"current_intimacy_level"`
	RiskFlags           []string     `json:"risk_flags"`
}

// SceneAnalysisResult is the scene-level verdict. RecommendedStrategies is
// filled by the strategy selector collaborator, never by the LLM.
type SceneAnalysisResult struct {
	RelationshipState     string   `json:"relationship_state"`
	CurrentScenario       string   `json:"current_scenario"`
	RecommendedScenario   Scenario `json:"recommended_scenario"`
	IntimacyLevel         int      `json:"intimacy_level"`
	RiskFlags             []string `json:"risk_flags"`
	RecommendedStrategies []string `json:"recommended_strategies"`
}

// ReplyCandidate is one suggested reply. A reply set contains exactly
// three, except a set produced by the plain-text wrap fallback, which
// contains one.
type ReplyCandidate struct {
	Text         string `json:"text"`
	StrategyCode string `json:"strategy"`
	Reasoning    string `json:"reasoning,omitempty"`
}

const DirectResponseStrategy = "direct_response"

// CacheEvent is the append-only envelope persisted by the session cache.
// Model and Strategy are observability metadata only; they are never part
// of the key and must never gate a read.
type CacheEvent struct {
	SessionID string              `json:"session_id"`
	Scene     int                 `json:"scene"`
	Category  string              `json:"category"`
	Resource  string              `json:"resource"`
	Payload   jsoniter.RawMessage `json:"payload"`
	TS        int64               `json:"ts"`
	Model     string              `json:"_model,omitempty"`
	Strategy  string              `json:"_strategy,omitempty"`
}

// ContentItem is one classified, position-preserving entry from a request's
// content array, carried through the dispatcher's fan-out.
type ContentItem struct {
	Index int
	Kind  ContentKind
	Raw   string // URL for images, literal text for text items
}

// ItemResult is the per-content-item outcome the dispatcher reassembles in
// request order before handing the set to the reply pipeline.
type ItemResult struct {
	Index    int
	Kind     ContentKind
	Content  string // echo of the raw content for text items, URL for images
	Dialogs  []Dialog
	Scenario string
	Image    *ImageResult
	Context  *ContextResult
	Scene    *SceneAnalysisResult
}

// IntimacyStage bins an intimacy level (0..100) into a 1..5 bucket.
func IntimacyStage(level int) int {
	switch {
	case level < 0:
		level = 0
	case level > 100:
		level = 100
	}
	stage := level/20 + 1
	if stage > 5 {
		stage = 5
	}
	return stage
}

// ClampIntimacy forces a level into [0,100].
func ClampIntimacy(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}
