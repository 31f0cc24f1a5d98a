package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcoach/internal/domain"
)

func TestCache_AppendThenGetLast_ReturnsMostRecent(t *testing.T) {
	c := New(0)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "s1", 1, "context_analysis", "https://img/a.png", map[string]string{"v": "1"}, "", ""))
	require.NoError(t, c.Put(ctx, "s1", 1, "context_analysis", "https://img/a.png", map[string]string{"v": "2"}, "", ""))

	raw, ok := c.GetLast("s1", 1, "context_analysis", "https://img/a.png")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":"2"}`, string(raw))
}

func TestCache_GetLast_MissReturnsFalse(t *testing.T) {
	c := New(0)
	_, ok := c.GetLast("s1", 1, "context_analysis", "nope")
	assert.False(t, ok)
}

func TestCache_WritesNeverOverwrite(t *testing.T) {
	c := New(0)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "s1", 1, "reply", "r1", "first", "", ""))
	require.NoError(t, c.Put(ctx, "s1", 1, "reply", "r1", "second", "", ""))

	b := c.getBucket("s1", 1)
	b.mu.RLock()
	events := b.entries[entryKey{Category: "reply", Resource: "r1"}]
	b.mu.RUnlock()
	assert.Len(t, events, 2, "append-only log must keep both events")
}

func TestCache_KeyIsFlowAgnostic(t *testing.T) {
	// A context_analysis written with one _model tag is read identically
	// regardless of which flow wrote it — the key omits flow variant.
	c := New(0)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "s1", 1, domain.CategoryContextAnalysis, "r1", map[string]string{"v": "x"}, domain.ModelMergeStep, domain.StrategyParallel))

	p := Probe{SessionID: "s1", Scene: 1, Resource: "r1"}
	_, ok := c.GetContextResult(p)
	assert.True(t, ok)
}

func TestCache_ForceRegenerateBypassesReadsNotWrites(t *testing.T) {
	c := New(0)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "s1", 1, domain.CategoryReply, "r1", []domain.ReplyCandidate{{Text: "a"}, {Text: "b"}, {Text: "c"}}, "", ""))

	p := Probe{SessionID: "s1", Scene: 1, Resource: "r1", ForceRegenerate: true}
	_, ok := c.GetReply(p)
	assert.False(t, ok, "force_regenerate must bypass reads")

	require.NoError(t, c.Put(ctx, "s1", 1, domain.CategoryReply, "r1", []domain.ReplyCandidate{{Text: "d"}, {Text: "e"}, {Text: "f"}}, "", ""))

	p.ForceRegenerate = false
	got, ok := c.GetReply(p)
	require.True(t, ok)
	assert.Equal(t, "d", got[0].Text, "write under force_regenerate must still have occurred")
}

func TestCache_ImageResultCoordinateRepairFromDimensions(t *testing.T) {
	c := New(0)
	ctx := context.Background()

	stale := domain.ImageResult{
		Bubbles: []domain.Bubble{
			{ID: "1", BBox: domain.BBox{X1: 65, Y1: 226, X2: 636, Y2: 307}},
		},
	}
	require.NoError(t, c.Put(ctx, "s1", 1, domain.CategoryImageResult, "r1", stale, "", ""))
	require.NoError(t, c.Put(ctx, "s1", 1, domain.CategoryImageDimensions, "r1", domain.ImageDimensions{Width: 750, Height: 1334}, "", ""))

	got, ok := c.GetImageResult(Probe{SessionID: "s1", Scene: 1, Resource: "r1"})
	require.True(t, ok)
	b := got.Bubbles[0]
	assert.InDelta(t, 65.0/750.0, b.BBox.X1, 1e-9)
	assert.InDelta(t, 226.0/1334.0, b.BBox.Y1, 1e-9)
	assert.InDelta(t, 636.0/750.0, b.BBox.X2, 1e-9)
	assert.InDelta(t, 307.0/1334.0, b.BBox.Y2, 1e-9)
}

func TestCache_ImageResultMissingDimensionsIsMiss(t *testing.T) {
	c := New(0)
	ctx := context.Background()

	stale := domain.ImageResult{
		Bubbles: []domain.Bubble{
			{ID: "1", BBox: domain.BBox{X1: 65, Y1: 226, X2: 636, Y2: 307}},
		},
	}
	require.NoError(t, c.Put(ctx, "s1", 1, domain.CategoryImageResult, "r1", stale, "", ""))

	_, ok := c.GetImageResult(Probe{SessionID: "s1", Scene: 1, Resource: "r1"})
	assert.False(t, ok, "no image_dimensions to repair against means the entry is a miss")
}

func TestCache_Sweep_RemovesIdleBuckets(t *testing.T) {
	c := New(10 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "s1", 1, "reply", "r1", "x", "", ""))

	time.Sleep(20 * time.Millisecond)
	removed := c.Sweep()
	assert.Equal(t, 1, removed)

	_, ok := c.GetLast("s1", 1, "reply", "r1")
	assert.False(t, ok)
}

func TestCache_Sweep_KeepsRecentBuckets(t *testing.T) {
	c := New(time.Hour)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "s1", 1, "reply", "r1", "x", "", ""))

	removed := c.Sweep()
	assert.Equal(t, 0, removed)
}
