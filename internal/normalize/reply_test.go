package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcoach/internal/domain"
)

func TestParseReplySet_ThreeCandidates(t *testing.T) {
	raw := `{"replies": [
		{"text": "a", "strategy": "light_humor", "reasoning": "keep it light"},
		{"text": "b", "strategy": "empathetic_ack"},
		{"text": "c", "strategy": "direct_response"}
	]}`

	out, err := ParseReplySet(raw, 200)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].Text)
	assert.Equal(t, "light_humor", out[0].StrategyCode)
	assert.Equal(t, "keep it light", out[0].Reasoning)
	assert.Equal(t, "b", out[1].Text)
	assert.Equal(t, "c", out[2].Text)
}

func TestParseReplySet_MoreThanThreeTakesFirstThree(t *testing.T) {
	raw := `{"replies": [
		{"text": "a", "strategy": "s1"},
		{"text": "b", "strategy": "s2"},
		{"text": "c", "strategy": "s3"},
		{"text": "d", "strategy": "s4"}
	]}`

	out, err := ParseReplySet(raw, 200)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].Text)
	assert.Equal(t, "b", out[1].Text)
	assert.Equal(t, "c", out[2].Text)
}

func TestParseReplySet_FewerThanThreeIsInvalid(t *testing.T) {
	raw := `{"replies": [
		{"text": "only one", "strategy": "s1"}
	]}`

	_, err := ParseReplySet(raw, 200)
	require.Error(t, err)
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindValidationRange, kind)
}

func TestParseReplySet_PlainTextFallback_YieldsExactlyOne(t *testing.T) {
	out, err := ParseReplySet("just reply with this short text", 200)
	require.NoError(t, err)
	require.Len(t, out, 1, "wrap is valid on its own terms, never padded to three")
	assert.Equal(t, "just reply with this short text", out[0].Text)
	assert.Equal(t, domain.DirectResponseStrategy, out[0].StrategyCode)
}

func TestParseReplySet_PlainTextOverThresholdFails(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "this text is long enough to exceed the threshold "
	}
	_, err := ParseReplySet(long, 50)
	require.Error(t, err)
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindJSONParseExhausted, kind)
}

func TestParseReplySet_MissingStrategyDefaultsToDirectResponse(t *testing.T) {
	raw := `{"replies": [{"text": "a"}, {"text": "b"}, {"text": "c"}]}`
	out, err := ParseReplySet(raw, 200)
	require.NoError(t, err)
	for _, c := range out {
		assert.Equal(t, domain.DirectResponseStrategy, c.StrategyCode)
	}
}
