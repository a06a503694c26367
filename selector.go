package aqmap

import "math"

// DefaultMaxVisibleCells is the default target for the number of
// polygons drawn in one viewport.
const DefaultMaxVisibleCells = 12000

// LodSelector chooses a level of detail so that the number of cells
// visible in the viewport stays under a budget.
type LodSelector struct {
	// MaxVisibleCells is the target maximum number of visible cells.
	MaxVisibleCells int

	// Levels is the number of levels available.
	Levels int
}

// NewLodSelector returns a selector for a table with the given number of
// levels. A maxVisible of zero or less uses DefaultMaxVisibleCells.
func NewLodSelector(levels, maxVisible int) *LodSelector {
	if maxVisible <= 0 {
		maxVisible = DefaultMaxVisibleCells
	}
	return &LodSelector{MaxVisibleCells: maxVisible, Levels: levels}
}

// SelectIndex returns the index of the level to use for a viewport of
// widthPx by heightPx pixels where each pixel covers pixelScale meters.
// The result is in [0, Levels-1] and does not decrease as pixelScale
// increases.
func (s *LodSelector) SelectIndex(pixelScale, widthPx, heightPx float64) int {
	if s.Levels < 1 || s.MaxVisibleCells <= 0 || !(pixelScale > 0) || !(widthPx > 0) || !(heightPx > 0) {
		return 0
	}
	areaKm2 := widthPx * heightPx * pixelScale * pixelScale / 1.0e6
	side := math.Sqrt(areaKm2 / float64(s.MaxVisibleCells))
	if math.IsInf(side, 1) || side >= float64(s.Levels-1) {
		return s.Levels - 1
	}
	return int(math.Floor(side))
}
