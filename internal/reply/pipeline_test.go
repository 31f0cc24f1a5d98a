package reply

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcoach/internal/cache"
	"chatcoach/internal/collab"
	"chatcoach/internal/domain"
	"chatcoach/internal/llmclient"
)

type fakePromptStore struct{}

func (fakePromptStore) Get(ctx context.Context, name string) (collab.PromptTemplate, error) {
	return collab.PromptTemplate{Text: "reply instructions", Version: "v1"}, nil
}

type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) Complete(ctx context.Context, req llmclient.Request) (string, *llmclient.Usage, error) {
	out := s.responses[s.calls]
	s.calls++
	return out, &llmclient.Usage{}, nil
}

func (s *scriptedLLM) IsTransientError(error) bool { return false }

type scriptedModeration struct {
	verdicts []collab.ModerationVerdict
	calls    int
}

func (m *scriptedModeration) Check(ctx context.Context, texts []string, stage int) (collab.ModerationVerdict, error) {
	v := m.verdicts[m.calls]
	m.calls++
	return v, nil
}

const threeRepliesJSON = `{"replies": [
	{"text": "a", "strategy": "light_humor"},
	{"text": "b", "strategy": "empathetic_ack"},
	{"text": "c", "strategy": "direct_response"}
]}`

func baseScene() *domain.SceneAnalysisResult {
	return &domain.SceneAnalysisResult{
		IntimacyLevel:         40,
		RecommendedStrategies: []string{"light_humor", "empathetic_ack", "direct_response"},
	}
}

func TestPipeline_ModerationRejectsTwiceThenAccepts(t *testing.T) {
	llm := &scriptedLLM{responses: []string{threeRepliesJSON, threeRepliesJSON, threeRepliesJSON}}
	mod := &scriptedModeration{verdicts: []collab.ModerationVerdict{collab.ModerationWarn, collab.ModerationWarn, collab.ModerationPass}}

	p := &Pipeline{
		Cache:                cache.New(0),
		Prompts:              fakePromptStore{},
		Moderation:           mod,
		LLM:                  llm,
		MaxRetries:           3,
		IntimacyCheckEnabled: true,
	}

	req := domain.Request{SessionID: "s1", Scene: 1}
	out, err := p.Generate(context.Background(), req, "r1", "hi", baseScene())
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 3, llm.calls, "exactly 3 reply-LLM invocations")
	assert.Equal(t, 3, mod.calls)
}

func TestPipeline_PlainTextFallback_NoRetryModerationOnWrappedSet(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"好的，我明白了。"}}
	mod := &scriptedModeration{verdicts: []collab.ModerationVerdict{collab.ModerationPass}}

	p := &Pipeline{
		Cache:                cache.New(0),
		Prompts:              fakePromptStore{},
		Moderation:           mod,
		LLM:                  llm,
		MaxRetries:           3,
		IntimacyCheckEnabled: true,
		PlainTextThreshold:   100,
	}

	req := domain.Request{SessionID: "s1", Scene: 1}
	out, err := p.Generate(context.Background(), req, "r1", "hi", baseScene())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "好的，我明白了。", out[0].Text)
	assert.Equal(t, domain.DirectResponseStrategy, out[0].StrategyCode)
	assert.Equal(t, 1, llm.calls, "wrap counts as structurally valid, no retry")
	assert.Equal(t, 1, mod.calls, "moderation still runs on the wrapped set")
}

func TestPipeline_ModerationDisabled_CommitsFirstStructurallyValidSet(t *testing.T) {
	llm := &scriptedLLM{responses: []string{threeRepliesJSON}}

	p := &Pipeline{
		Cache:                cache.New(0),
		Prompts:              fakePromptStore{},
		LLM:                  llm,
		MaxRetries:           3,
		IntimacyCheckEnabled: false,
	}

	req := domain.Request{SessionID: "s1", Scene: 1}
	out, err := p.Generate(context.Background(), req, "r1", "hi", baseScene())
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 1, llm.calls)
}

func TestPipeline_CacheHit_SkipsLLM(t *testing.T) {
	c := cache.New(0)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "s1", 1, domain.CategoryReply, "r1", []domain.ReplyCandidate{{Text: "cached-a"}, {Text: "cached-b"}, {Text: "cached-c"}}, "", ""))

	llm := &scriptedLLM{responses: []string{threeRepliesJSON}}
	p := &Pipeline{Cache: c, Prompts: fakePromptStore{}, LLM: llm, MaxRetries: 3}

	req := domain.Request{SessionID: "s1", Scene: 1}
	out, err := p.Generate(ctx, req, "r1", "hi", baseScene())
	require.NoError(t, err)
	assert.Equal(t, "cached-a", out[0].Text)
	assert.Equal(t, 0, llm.calls)
}

func TestPipeline_AllRetriesExhausted_FailsClassified(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"not json at all", "still not json", "not json either"}}

	p := &Pipeline{
		Cache:                cache.New(0),
		Prompts:              fakePromptStore{},
		LLM:                  llm,
		MaxRetries:           3,
		IntimacyCheckEnabled: false,
		PlainTextThreshold:   5,
	}

	req := domain.Request{SessionID: "s1", Scene: 1}
	_, err := p.Generate(context.Background(), req, "r1", "hi", baseScene())
	require.Error(t, err)
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindRetryExhausted, kind)
	assert.Equal(t, 3, llm.calls)
}

func TestPipeline_ModerationUnavailable_FailOpenAccepts(t *testing.T) {
	llm := &scriptedLLM{responses: []string{threeRepliesJSON}}
	mod := &failingModeration{}

	p := &Pipeline{
		Cache:                cache.New(0),
		Prompts:              fakePromptStore{},
		Moderation:           mod,
		LLM:                  llm,
		MaxRetries:           3,
		IntimacyCheckEnabled: true,
		ModerationFailOpen:   true,
	}

	req := domain.Request{SessionID: "s1", Scene: 1}
	out, err := p.Generate(context.Background(), req, "r1", "hi", baseScene())
	require.NoError(t, err)
	require.Len(t, out, 3)
}

func TestPipeline_IntimacyCheckEnabledWithNilModeration_DoesNotPanic(t *testing.T) {
	// Mirrors the default configuration: IntimacyCheckEnabled defaults to
	// true but no moderation endpoint is configured, so Moderation is nil.
	llm := &scriptedLLM{responses: []string{threeRepliesJSON}}

	p := &Pipeline{
		Cache:                cache.New(0),
		Prompts:              fakePromptStore{},
		LLM:                  llm,
		MaxRetries:           3,
		IntimacyCheckEnabled: true,
	}

	req := domain.Request{SessionID: "s1", Scene: 1}
	out, err := p.Generate(context.Background(), req, "r1", "hi", baseScene())
	require.NoError(t, err)
	require.Len(t, out, 3)
}

func TestPipeline_OutOfPoolStrategy_CoercedToDirectResponse(t *testing.T) {
	rogue := `{"replies": [
		{"text": "a", "strategy": "light_humor"},
		{"text": "b", "strategy": "made_up_strategy"},
		{"text": "c", "strategy": "direct_response"}
	]}`
	llm := &scriptedLLM{responses: []string{rogue}}

	p := &Pipeline{
		Cache:                cache.New(0),
		Prompts:              fakePromptStore{},
		LLM:                  llm,
		MaxRetries:           3,
		IntimacyCheckEnabled: false,
	}

	req := domain.Request{SessionID: "s1", Scene: 1}
	out, err := p.Generate(context.Background(), req, "r1", "hi", baseScene())
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "light_humor", out[0].StrategyCode)
	assert.Equal(t, domain.DirectResponseStrategy, out[1].StrategyCode)
	assert.Equal(t, domain.DirectResponseStrategy, out[2].StrategyCode)
}

func TestPipeline_Telemetry_RecordsCacheLLMAndModerationEvents(t *testing.T) {
	llm := &scriptedLLM{responses: []string{threeRepliesJSON}}
	mod := &scriptedModeration{verdicts: []collab.ModerationVerdict{collab.ModerationPass}}
	rec := &recordingSink{}

	p := &Pipeline{
		Cache:                cache.New(0),
		Prompts:              fakePromptStore{},
		Moderation:           mod,
		LLM:                  llm,
		MaxRetries:           3,
		IntimacyCheckEnabled: true,
		Telemetry:            rec,
	}

	req := domain.Request{SessionID: "s1", Scene: 1}
	_, err := p.Generate(context.Background(), req, "r1", "hi", baseScene())
	require.NoError(t, err)

	assert.Contains(t, rec.kinds(), "cache_miss")
	assert.Contains(t, rec.kinds(), "llm_call")
	assert.Contains(t, rec.kinds(), "moderation")
}

type recordingSink struct {
	events []collab.TraceEvent
}

func (r *recordingSink) Record(ev collab.TraceEvent) {
	r.events = append(r.events, ev)
}

func (r *recordingSink) kinds() []string {
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

type failingModeration struct{}

func (failingModeration) Check(ctx context.Context, texts []string, stage int) (collab.ModerationVerdict, error) {
	return "", assertErr("moderation down")
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertErr(msg string) error { return simpleError(msg) }
