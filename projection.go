package aqmap

import (
	"fmt"
	"math"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/tidwall/geodesic"
)

// LatLon is a WGS84 location in degrees.
type LatLon struct {
	Lat, Lon float64
}

// A LatLonProjector converts national grid coordinates in meters to
// latitude and longitude.
type LatLonProjector interface {
	ToLatLon(easting, northing float64) (LatLon, error)
}

// A ScreenProjector converts latitude and longitude to screen pixels.
type ScreenProjector func(lat, lon float64) (x, y float64)

// NationalGrid is the proj4 definition of the British National Grid
// (OSGB36, Airy 1830 ellipsoid).
const NationalGrid = "+proj=tmerc +lat_0=49 +lon_0=-2 +k=0.9996012717 +x_0=400000 +y_0=-100000 " +
	"+ellps=airy +towgs84=446.448,-125.157,542.060,0.1502,0.2470,0.8421,-20.4894 +units=m +no_defs"

const wgs84 = "+proj=longlat +datum=WGS84 +no_defs"

// GridProjector converts grid coordinates to WGS84 latitude and longitude.
type GridProjector struct {
	def string
	t   proj.Transformer
}

// NewGridProjector creates a projector for the grid described by the
// given proj4 definition.
func NewGridProjector(def string) (*GridProjector, error) {
	src, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("aqmap: parsing grid projection: %w", err)
	}
	dst, err := proj.Parse(wgs84)
	if err != nil {
		return nil, fmt.Errorf("aqmap: parsing WGS84 projection: %w", err)
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("aqmap: creating grid transform: %w", err)
	}
	return &GridProjector{def: def, t: t}, nil
}

// NewNationalGridProjector creates a projector for the British National Grid.
func NewNationalGridProjector() (*GridProjector, error) {
	return NewGridProjector(NationalGrid)
}

// ToLatLon converts an easting and northing in meters to latitude and longitude.
func (p *GridProjector) ToLatLon(easting, northing float64) (LatLon, error) {
	lon, lat, err := p.t(easting, northing)
	if err != nil {
		return LatLon{}, fmt.Errorf("aqmap: projecting (%g, %g): %w", easting, northing, err)
	}
	return LatLon{Lat: lat, Lon: lon}, nil
}

// String returns the proj4 definition of the grid.
func (p *GridProjector) String() string { return p.def }

// GeodesicDistance returns the distance in meters between a and b along
// the WGS84 ellipsoid.
func GeodesicDistance(a, b LatLon) float64 {
	var s12 float64
	geodesic.WGS84.Inverse(a.Lat, a.Lon, b.Lat, b.Lon, &s12, nil, nil)
	return s12
}

// PixelScale returns the ground distance in meters covered by one pixel,
// given two locations that are the given number of pixels apart on screen.
func PixelScale(a, b LatLon, pixels float64) float64 {
	if !(pixels > 0) {
		return math.NaN()
	}
	return GeodesicDistance(a, b) / pixels
}

// TileSize is the width of a map tile in pixels.
const TileSize = 256

// mercatorHalfWidth is half the width of the web mercator plane in meters.
const mercatorHalfWidth = 20037508.342789244

// WebMercator returns a projector to the pixel space of a web mercator
// map at the given zoom level, where the whole world is
// TileSize * 2^zoom pixels wide and y increases southwards.
func WebMercator(zoom float64) ScreenProjector {
	size := TileSize * math.Pow(2, zoom)
	return func(lat, lon float64) (x, y float64) {
		m := project.WGS84.ToMercator(orb.Point{lon, lat})
		x = (m[0] + mercatorHalfWidth) / (2 * mercatorHalfWidth) * size
		y = (mercatorHalfWidth - m[1]) / (2 * mercatorHalfWidth) * size
		return x, y
	}
}
