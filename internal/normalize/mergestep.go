package normalize

import (
	"fmt"
	"sort"

	"chatcoach/internal/domain"
)

// MergeStepOutput is the validated result of parsing one merge-step LLM
// response, the object C2 feeds into its cache write.
type MergeStepOutput struct {
	Image *domain.ImageResult
	Ctx   *domain.ContextResult
	Scene *domain.SceneAnalysisResult
}

// ParseMergeStep runs the parse ladder (strategies 1-5; plain-text wrap
// does not apply to this response type) on raw, then applies the §4.2
// field-synthesis and validation rules.
func ParseMergeStep(raw string, url string, width, height int) (*MergeStepOutput, error) {
	obj, _, err := parseJSONObject(raw)
	if err != nil {
		LogParseFailure("mergestep", raw, err)
		return nil, err
	}

	img := buildImageResult(obj, url, width, height)
	ctx := buildContextResult(obj)
	scene := buildSceneAnalysisResult(obj)

	if repaired, ok := RepairBubbles(img.Bubbles, width, height); ok {
		img.Bubbles = repaired
	} else {
		return nil, domain.Wrap(domain.KindValidationRange, "normalize.ParseMergeStep",
			"bubble coordinates out of range and dimensions unavailable for repair", nil)
	}
	assignColumns(img.Bubbles)
	inferLayout(img)

	return &MergeStepOutput{Image: img, Ctx: ctx, Scene: scene}, nil
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func asFloat(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

func asInt(v any, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

func asStringSlice(v any) []string {
	items := asSlice(v)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func buildImageResult(obj map[string]any, url string, width, height int) *domain.ImageResult {
	img := &domain.ImageResult{URL: url, Width: width, Height: height}

	rawBubbles := asSlice(obj["bubbles"])
	bubbles := make([]domain.Bubble, 0, len(rawBubbles))
	for i, rb := range rawBubbles {
		bm := asMap(rb)
		bubbles = append(bubbles, buildBubble(bm, i))
	}
	// Bubbles without an id are numbered "1", "2", ... by vertical order
	// (top edge of the bbox; ties keep array order).
	order := make([]int, len(bubbles))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return bubbles[order[a]].BBox.Y1 < bubbles[order[b]].BBox.Y1 })
	for rank, i := range order {
		if bubbles[i].ID == "" {
			bubbles[i].ID = fmt.Sprintf("%d", rank+1)
		}
	}
	img.Bubbles = bubbles

	for _, rd := range asSlice(obj["dialogs"]) {
		dm := asMap(rd)
		speaker := domain.Speaker(asString(dm["speaker"], string(domain.SpeakerOther)))
		if speaker != domain.SpeakerSelf && speaker != domain.SpeakerOther {
			speaker = domain.SpeakerOther
		}
		img.Dialogs = append(img.Dialogs, domain.Dialog{
			Speaker:   speaker,
			Text:      asString(dm["text"], ""),
			Timestamp: int64(asFloat(dm["timestamp"], 0)),
		})
	}

	if pm := asMap(obj["participants"]); pm != nil {
		if sm := asMap(pm["self"]); sm != nil {
			img.Participants.Self = domain.Participant{ID: asString(sm["id"], ""), Nickname: asString(sm["nickname"], "")}
		}
		if om := asMap(pm["other"]); om != nil {
			img.Participants.Other = domain.Participant{ID: asString(om["id"], ""), Nickname: asString(om["nickname"], "")}
		}
	}

	if lm := asMap(obj["layout"]); lm != nil {
		img.Layout = domain.Layout{
			Type:      asString(lm["type"], ""),
			LeftRole:  asString(lm["left_role"], ""),
			RightRole: asString(lm["right_role"], ""),
		}
	}

	img.ScenarioRaw = asString(obj["scenario_json"], "")

	return img
}

// buildBubble applies the bubble-level field synthesis rules: a missing id
// is left empty for buildImageResult to number by vertical order, missing
// column derives from cx, missing center is the bbox midpoint, missing
// confidence defaults to 0.95.
func buildBubble(bm map[string]any, index int) domain.Bubble {
	b := domain.Bubble{}

	b.BBox = domain.BBox{
		X1: asFloat(indexOrField(bm["bbox"], 0, "x1"), 0),
		Y1: asFloat(indexOrField(bm["bbox"], 1, "y1"), 0),
		X2: asFloat(indexOrField(bm["bbox"], 2, "x2"), 0),
		Y2: asFloat(indexOrField(bm["bbox"], 3, "y2"), 0),
	}

	if id, ok := bm["id"].(string); ok && id != "" {
		b.ID = id
	}

	// Center and column are resolved from the repaired (normalized) bbox
	// after RepairBubbles runs, since a raw center or column guess made
	// against absolute-pixel coordinates would be meaningless. An explicit
	// center in the source JSON is kept as-is; RepairBubbles only overwrites
	// one that is zero or out of [0,1]^2.
	if c, ok := bm["center"]; ok {
		b.Center = domain.Point{
			X: asFloat(indexOrField(c, 0, "x"), 0),
			Y: asFloat(indexOrField(c, 1, "y"), 0),
		}
	}

	b.Text = asString(bm["text"], "")

	speaker := domain.Speaker(asString(bm["speaker"], string(domain.SpeakerOther)))
	if speaker != domain.SpeakerSelf && speaker != domain.SpeakerOther {
		speaker = domain.SpeakerOther
	}
	b.Speaker = speaker

	if col, ok := bm["column"].(string); ok && (col == "left" || col == "right") {
		b.Column = domain.Column(col)
	}

	if conf, ok := bm["confidence"]; ok {
		b.Confidence = asFloat(conf, 0.95)
	} else {
		b.Confidence = 0.95
	}

	return b
}

// indexOrField reads either arr[idx] from a JSON array or obj[field] from
// a JSON object, supporting both ["bbox":[x1,y1,x2,y2]] and
// {"bbox":{"x1":...}} encodings an LLM might emit.
func indexOrField(v any, idx int, field string) any {
	if arr, ok := v.([]any); ok {
		if idx < len(arr) {
			return arr[idx]
		}
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return m[field]
	}
	return nil
}

func buildContextResult(obj map[string]any) *domain.ContextResult {
	cm := asMap(obj["context"])
	if cm == nil {
		cm = obj
	}

	emotion := domain.EmotionState(asString(cm["emotion_state"], string(domain.EmotionNeutral)))
	switch emotion {
	case domain.EmotionPositive, domain.EmotionNeutral, domain.EmotionNegative:
	default:
		emotion = domain.EmotionNeutral
	}

	return &domain.ContextResult{
		ConversationSummary: asString(cm["conversation_summary"], ""),
		EmotionState:        emotion,
		IntimacyLevel:       domain.ClampIntimacy(asInt(cm["current_intimacy_level"], 0)),
		RiskFlags:           asStringSlice(cm["risk_flags"]),
	}
}

func buildSceneAnalysisResult(obj map[string]any) *domain.SceneAnalysisResult {
	sm := asMap(obj["scene"])
	if sm == nil {
		sm = obj
	}

	relationship := asString(sm["relationship_state"], domain.DefaultRelationship)
	if relationship == "" {
		relationship = domain.DefaultRelationship
	}

	scenario := domain.Scenario(asString(sm["recommended_scenario"], string(domain.DefaultScenario)))
	switch scenario {
	case domain.ScenarioSafe, domain.ScenarioBalanced, domain.ScenarioRisky, domain.ScenarioRecovery, domain.ScenarioNegative:
	default:
		scenario = domain.DefaultScenario
	}

	return &domain.SceneAnalysisResult{
		RelationshipState:   relationship,
		CurrentScenario:     asString(sm["current_scenario"], ""),
		RecommendedScenario: scenario,
		IntimacyLevel:       domain.ClampIntimacy(asInt(sm["intimacy_level"], 0)),
		RiskFlags:           asStringSlice(sm["risk_flags"]),
	}
}

// assignColumns fills in any bubble missing an explicit column, deriving
// left/right from its (now-normalized) center x coordinate.
func assignColumns(bubbles []domain.Bubble) {
	for i, b := range bubbles {
		if b.Column == domain.ColumnLeft || b.Column == domain.ColumnRight {
			continue
		}
		if b.Center.X < 0.5 {
			bubbles[i].Column = domain.ColumnLeft
		} else {
			bubbles[i].Column = domain.ColumnRight
		}
	}
}

// inferLayout fills missing layout roles by majority speaker per column,
// per §4.2's field-synthesis rule for layout.left_role / right_role.
func inferLayout(img *domain.ImageResult) {
	if img.Layout.LeftRole != "" && img.Layout.RightRole != "" {
		return
	}

	counts := map[domain.Column]map[domain.Speaker]int{
		domain.ColumnLeft:  {},
		domain.ColumnRight: {},
	}
	for _, b := range img.Bubbles {
		counts[b.Column][b.Speaker]++
	}

	if img.Layout.LeftRole == "" {
		img.Layout.LeftRole = string(majoritySpeaker(counts[domain.ColumnLeft]))
	}
	if img.Layout.RightRole == "" {
		img.Layout.RightRole = string(majoritySpeaker(counts[domain.ColumnRight]))
	}
}

func majoritySpeaker(counts map[domain.Speaker]int) domain.Speaker {
	if len(counts) == 0 {
		return domain.SpeakerOther
	}
	speakers := make([]domain.Speaker, 0, len(counts))
	for s := range counts {
		speakers = append(speakers, s)
	}
	sort.Slice(speakers, func(i, j int) bool { return counts[speakers[i]] > counts[speakers[j]] })
	return speakers[0]
}
