package aqmap

import (
	"image/color"

	"github.com/ctessum/geom"
)

// Polygon is the square covered by one cell of a level of detail.
// Its world corners are fixed when it is created; its screen corners
// are recalculated by UpdateScreenCorners.
type Polygon struct {
	topLeftEasting, topLeftNorthing float64
	side                            float64
	value, normalized               float64

	// world holds the corners in the order top-left, top-right,
	// bottom-right, bottom-left.
	world [4]LatLon

	// screen holds the corners in the same order as world.
	screen geom.Polygon
}

// NewPolygon creates a polygon with its top-left corner at the given
// grid position and the given side length in meters.
func NewPolygon(p LatLonProjector, topLeftEasting, topLeftNorthing, side, value, normalized float64) (*Polygon, error) {
	poly := &Polygon{
		topLeftEasting:  topLeftEasting,
		topLeftNorthing: topLeftNorthing,
		side:            side,
		value:           value,
		normalized:      normalized,
		screen:          geom.Polygon{make([]geom.Point, 4)},
	}
	corners := [4][2]float64{
		{topLeftEasting, topLeftNorthing},
		{topLeftEasting + side, topLeftNorthing},
		{topLeftEasting + side, topLeftNorthing + side},
		{topLeftEasting, topLeftNorthing + side},
	}
	for i, c := range corners {
		ll, err := p.ToLatLon(c[0], c[1])
		if err != nil {
			return nil, err
		}
		poly.world[i] = ll
	}
	return poly, nil
}

// UpdateScreenCorners recalculates the screen position of the corners.
// It should be called once per layout pass after the view changes.
func (p *Polygon) UpdateScreenCorners(project ScreenProjector) {
	ring := p.screen[0]
	for i, ll := range p.world {
		ring[i].X, ring[i].Y = project(ll.Lat, ll.Lon)
	}
}

// ColorFor returns the color of the polygon in the given scheme with
// the given opacity, which is clamped to [0, 1].
func (p *Polygon) ColorFor(scheme ColorScheme, opacity float64) color.NRGBA {
	c := SchemeColor(scheme, p.normalized)
	if opacity < 0 {
		opacity = 0
	} else if opacity > 1 {
		opacity = 1
	}
	c.A = uint8(opacity*255 + 0.5)
	return c
}

// ContainsScreenPoint returns whether the screen point (x, y) is within
// the screen corners of the polygon. Points on an edge are inside.
func (p *Polygon) ContainsScreenPoint(x, y float64) bool {
	return geom.Point{X: x, Y: y}.Within(p.screen) != geom.Outside
}

// Value returns the measurement the polygon was created from.
func (p *Polygon) Value() float64 { return p.value }

// NormalizedValue returns the value scaled to [0, 1] relative to the
// range of the level the polygon belongs to.
func (p *Polygon) NormalizedValue() float64 { return p.normalized }

// TopLeft returns the grid position of the top-left corner in meters.
func (p *Polygon) TopLeft() (easting, northing float64) {
	return p.topLeftEasting, p.topLeftNorthing
}

// SideLength returns the side length of the polygon in meters.
func (p *Polygon) SideLength() float64 { return p.side }

// Center returns the grid position of the polygon centroid in meters.
func (p *Polygon) Center() (easting, northing float64) {
	return p.topLeftEasting + p.side/2, p.topLeftNorthing + p.side/2
}

// WorldCorners returns the corners in latitude and longitude.
func (p *Polygon) WorldCorners() [4]LatLon { return p.world }

// ScreenCorners returns the corners as of the last call to
// UpdateScreenCorners.
func (p *Polygon) ScreenCorners() [4]geom.Point {
	var o [4]geom.Point
	copy(o[:], p.screen[0])
	return o
}

// ScreenBounds returns the screen extent of the polygon.
func (p *Polygon) ScreenBounds() *geom.Bounds { return p.screen.Bounds() }

// worldPolygon returns the polygon as a closed longitude-latitude ring.
func (p *Polygon) worldPolygon() geom.Polygon {
	ring := make([]geom.Point, 5)
	for i, ll := range p.world {
		ring[i] = geom.Point{X: ll.Lon, Y: ll.Lat}
	}
	ring[4] = ring[0]
	return geom.Polygon{ring}
}
