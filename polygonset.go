package aqmap

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"gonum.org/v1/gonum/floats"
)

// PolygonSet holds the polygons for the active level of detail of a
// LodTable. It is not safe for concurrent use.
type PolygonSet struct {
	proj LatLonProjector

	polys        []*Polygon
	index        int
	detailFactor int
	min, max     float64

	// visible and hit hold the results of the last call to Layout.
	visible []*Polygon
	hit     *rtree.Rtree
}

// screenItem is a Polygon stored in the screen-space hit index.
type screenItem struct {
	geom.Polygon
	p *Polygon
}

// NewPolygonSet returns an empty PolygonSet that converts grid
// positions to latitude and longitude using p.
func NewPolygonSet(p LatLonProjector) *PolygonSet {
	return &PolygonSet{
		proj:  p,
		index: -1,
		min:   MissingValue,
		max:   MissingValue,
		hit:   rtree.NewTree(25, 50),
	}
}

// Refresh replaces the polygons with those of level index of table.
// Missing cells are skipped. If every cell is missing the set is empty.
func (s *PolygonSet) Refresh(table *LodTable, index int) error {
	lod, err := table.Level(index)
	if err != nil {
		return err
	}
	vals := validValues(lod.Cells)
	polys := make([]*Polygon, 0, len(vals))
	min, max := float64(MissingValue), float64(MissingValue)
	if len(vals) > 0 {
		min, max = floats.Min(vals), floats.Max(vals)
	}
	side := float64(lod.CellSize())
	for _, c := range lod.Cells {
		if !c.Valid() {
			continue
		}
		var norm float64
		if max != min {
			norm = (c.Value - min) / (max - min)
		}
		p, err := NewPolygon(s.proj, float64(c.Easting)-side/2, float64(c.Northing)-side/2, side, c.Value, norm)
		if err != nil {
			return fmt.Errorf("aqmap: projecting cell %d,%d: %w", c.Easting, c.Northing, err)
		}
		polys = append(polys, p)
	}
	s.polys = polys
	s.index = index
	s.detailFactor = lod.DetailFactor
	s.min, s.max = min, max
	s.visible = nil
	s.hit = rtree.NewTree(25, 50)
	return nil
}

// Polygons returns the polygons of the active level.
func (s *PolygonSet) Polygons() []*Polygon { return s.polys }

// DetailFactor returns the detail factor of the active level, or 0
// before the first call to Refresh.
func (s *PolygonSet) DetailFactor() int { return s.detailFactor }

// Index returns the active level index, or -1 before the first call
// to Refresh.
func (s *PolygonSet) Index() int { return s.index }

// Range returns the minimum and maximum valid values of the active
// level. Both are MissingValue if the level has no valid cells.
func (s *PolygonSet) Range() (min, max float64) { return s.min, s.max }

// Layout updates the screen corners of the polygons that are within a
// viewport of the given size and returns them. A polygon is visible if
// its projected top-left corner is within the viewport padded by the
// on-screen side length. A non-positive pixelScale disables culling.
func (s *PolygonSet) Layout(project ScreenProjector, widthPx, heightPx, pixelScale float64) []*Polygon {
	pad := math.Inf(1)
	if pixelScale > 0 {
		pad = s.sideLength() / pixelScale
	}
	s.visible = nil
	s.hit = rtree.NewTree(25, 50)
	for _, p := range s.polys {
		tl := p.world[0]
		x, y := project(tl.Lat, tl.Lon)
		if x < -pad || x > widthPx+pad || y < -pad || y > heightPx+pad {
			continue
		}
		p.UpdateScreenCorners(project)
		s.visible = append(s.visible, p)
		s.hit.Insert(screenItem{Polygon: p.screen, p: p})
	}
	return s.visible
}

func (s *PolygonSet) sideLength() float64 {
	return float64(BaseCellSize * s.detailFactor)
}

// Pick returns the visible polygon containing the screen point (x, y)
// as of the last call to Layout.
func (s *PolygonSet) Pick(x, y float64) (*Polygon, bool) {
	pt := geom.Point{X: x, Y: y}
	for _, item := range s.hit.SearchIntersect(pt.Bounds()) {
		p := item.(screenItem).p
		if p.ContainsScreenPoint(x, y) {
			return p, true
		}
	}
	return nil, false
}
