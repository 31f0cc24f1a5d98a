package normalize

import (
	"log/slog"

	"chatcoach/internal/domain"
)

// inRange01 reports whether a bbox already satisfies the normalized
// [0,1]^2 invariant with x1<=x2, y1<=y2.
func inRange01(b domain.BBox) bool {
	return b.X1 >= 0 && b.X1 <= 1 && b.X2 >= 0 && b.X2 <= 1 &&
		b.Y1 >= 0 && b.Y1 <= 1 && b.Y2 >= 0 && b.Y2 <= 1 &&
		b.X1 <= b.X2 && b.Y1 <= b.Y2
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RepairBBox normalizes a single bbox against known pixel dimensions when
// it falls outside [0,1]^2 — the mechanical repair applied both right
// after LLM parsing (§4.2) and on a stale cache read (§4.4).
func RepairBBox(b domain.BBox, width, height int) (domain.BBox, bool) {
	if inRange01(b) {
		return b, true
	}
	if width <= 0 || height <= 0 {
		return domain.BBox{}, false
	}

	repaired := domain.BBox{
		X1: clamp01(b.X1 / float64(width)),
		Y1: clamp01(b.Y1 / float64(height)),
		X2: clamp01(b.X2 / float64(width)),
		Y2: clamp01(b.Y2 / float64(height)),
	}
	if repaired.X1 > repaired.X2 {
		repaired.X1, repaired.X2 = repaired.X2, repaired.X1
	}
	if repaired.Y1 > repaired.Y2 {
		repaired.Y1, repaired.Y2 = repaired.Y2, repaired.Y1
	}
	return repaired, true
}

// RepairBubbles applies RepairBBox to every bubble and recomputes center
// for any bubble missing one or carrying a center outside [0,1]^2. Returns
// false if any bubble's bbox could not be repaired (missing dimensions).
func RepairBubbles(bubbles []domain.Bubble, width, height int) ([]domain.Bubble, bool) {
	out := make([]domain.Bubble, len(bubbles))
	for i, b := range bubbles {
		repaired, ok := RepairBBox(b.BBox, width, height)
		if !ok {
			return nil, false
		}
		b.BBox = repaired
		if b.Center == (domain.Point{}) || !centerInRange(b.Center) {
			b.Center = midpoint(repaired)
		}
		out[i] = b
	}
	return out, true
}

func centerInRange(p domain.Point) bool {
	return p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1
}

func midpoint(b domain.BBox) domain.Point {
	return domain.Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// LogParseFailure records the raw text and last parser error to a
// classified log category. This is a diagnostic artefact only; it is
// never part of any API contract.
func LogParseFailure(component, raw string, err error) {
	const maxPreview = 2000
	preview := raw
	if len(preview) > maxPreview {
		preview = preview[:maxPreview] + "...(truncated)"
	}
	slog.Error("normalize: parse failure artefact", "component", component, "error", err, "raw", preview)
}
