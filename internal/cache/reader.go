package cache

import (
	"chatcoach/internal/domain"
	"chatcoach/internal/normalize"
)

// Probe bundles the parameters every typed read shares: the partition
// (session_id, scene), the resource, and whether the request opted out
// of reads entirely via force_regenerate.
type Probe struct {
	SessionID       string
	Scene           int
	Resource        string
	ForceRegenerate bool
}

// GetContextResult returns the cached ContextResult for the probe, or
// false on a miss or force_regenerate.
func (c *Cache) GetContextResult(p Probe) (*domain.ContextResult, bool) {
	if p.ForceRegenerate {
		return nil, false
	}
	raw, ok := c.GetLast(p.SessionID, p.Scene, domain.CategoryContextAnalysis, p.Resource)
	if !ok {
		return nil, false
	}
	var out domain.ContextResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return &out, true
}

// GetSceneAnalysisResult returns the cached SceneAnalysisResult for the
// probe, or false on a miss or force_regenerate.
func (c *Cache) GetSceneAnalysisResult(p Probe) (*domain.SceneAnalysisResult, bool) {
	if p.ForceRegenerate {
		return nil, false
	}
	raw, ok := c.GetLast(p.SessionID, p.Scene, domain.CategorySceneAnalysis, p.Resource)
	if !ok {
		return nil, false
	}
	var out domain.SceneAnalysisResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return &out, true
}

// GetReply returns the cached reply set for the probe, or false on a
// miss or force_regenerate. A set may contain fewer than three
// candidates when it was committed via the plain-text wrap fallback.
func (c *Cache) GetReply(p Probe) ([]domain.ReplyCandidate, bool) {
	if p.ForceRegenerate {
		return nil, false
	}
	raw, ok := c.GetLast(p.SessionID, p.Scene, domain.CategoryReply, p.Resource)
	if !ok {
		return nil, false
	}
	var out []domain.ReplyCandidate
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

// GetImageResult returns the cached ImageResult for the probe. If the
// cached bbox coordinates fail the normalized-[0,1] invariant, it
// attempts coordinate repair (§4.4's "coordinate-repair on read") using
// the result's own width/height when those are set, and otherwise the
// image_dimensions category for the same resource; if neither supplies
// dimensions, the entry is treated as a miss.
func (c *Cache) GetImageResult(p Probe) (*domain.ImageResult, bool) {
	if p.ForceRegenerate {
		return nil, false
	}
	raw, ok := c.GetLast(p.SessionID, p.Scene, domain.CategoryImageResult, p.Resource)
	if !ok {
		return nil, false
	}
	var out domain.ImageResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}

	width, height := out.Width, out.Height
	if width <= 0 || height <= 0 {
		if dims, ok := c.getImageDimensions(p); ok {
			width, height = dims.Width, dims.Height
		}
	}

	repaired, ok := normalize.RepairBubbles(out.Bubbles, width, height)
	if !ok {
		return nil, false
	}
	out.Bubbles = repaired
	return &out, true
}

func (c *Cache) getImageDimensions(p Probe) (domain.ImageDimensions, bool) {
	raw, ok := c.GetLast(p.SessionID, p.Scene, domain.CategoryImageDimensions, p.Resource)
	if !ok {
		return domain.ImageDimensions{}, false
	}
	var dims domain.ImageDimensions
	if err := json.Unmarshal(raw, &dims); err != nil {
		return domain.ImageDimensions{}, false
	}
	return dims, true
}
