package aqmap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"math"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/ctessum/geom"
	"github.com/ctessum/requestcache"
	"github.com/golang/groupcache/lru"
	"github.com/golang/groupcache/singleflight"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/simplify"
	"github.com/sirupsen/logrus"
)

// LayerName is the name of the vector tile layer holding the polygons.
const LayerName = "aq"

// MapTileServer serves vector map tiles, legends, and point values
// for the datasets of an AQMap.
//
// Requests are of the form
//  /tiles?x={x}&y={y}&z={z}&p={pollutant}&yr={year}
//  /legend?p={pollutant}&yr={year}[&scheme={scheme}]
//  /value?lat={lat}&lon={lon}&z={z}&p={pollutant}&yr={year}
type MapTileServer struct {
	m *AQMap

	Log logrus.FieldLogger

	// builds limits the number of layers built at the same time.
	builds *requestcache.Cache
	flight singleflight.Group

	mu     sync.Mutex
	layers *lru.Cache
}

// NewMapTileServer creates a new map tile server,
// where cacheSize specifies the number of map layers
// to hold in an in-memory cache.
func NewMapTileServer(m *AQMap, cacheSize int) *MapTileServer {
	s := &MapTileServer{
		m:      m,
		Log:    m.Log,
		layers: lru.New(cacheSize),
	}
	s.builds = requestcache.NewCache(s.buildLayer, runtime.GOMAXPROCS(-1))
	return s
}

func (s *MapTileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var err error
	switch {
	case strings.HasSuffix(r.URL.Path, "/tiles"):
		err = s.serveTile(w, r)
	case strings.HasSuffix(r.URL.Path, "/legend"):
		err = s.serveLegend(w, r)
	case strings.HasSuffix(r.URL.Path, "/value"):
		err = s.serveValue(w, r)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.Log.WithField("url", r.URL.String()).Warn(err)
		http.Error(w, err.Error(), httpStatus(err))
	}
}

// errBadRequest marks an invalid query.
var errBadRequest = errors.New("aqmap: bad request")

func httpStatus(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownPollutant), errors.Is(err, ErrDataNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// LayerSpecification identifies a tile layer: one level of detail of
// one dataset.
type LayerSpecification struct {
	Pollutant string
	Year      int
	Level     int
}

// Key returns a unique identifier for the receiver.
func (ls *LayerSpecification) Key() string {
	return fmt.Sprintf("%s_%d_%d", ls.Pollutant, ls.Year, ls.Level)
}

// tileLayer is a cached layer. set may only be used while mu is held.
type tileLayer struct {
	layer *mvt.Layer
	units string

	mu  sync.Mutex
	set *PolygonSet
}

func queryString(u *url.URL, q url.Values, k string) (string, error) {
	v := q.Get(k)
	if v == "" {
		return "", fmt.Errorf("%w: %s missing %s", errBadRequest, u.Path, k)
	}
	return html.UnescapeString(v), nil
}

func queryInt(u *url.URL, q url.Values, k string) (int, error) {
	s, err := queryString(u, q, k)
	if err != nil {
		return -1, err
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return -1, fmt.Errorf("%w: invalid value for %s: %s", errBadRequest, k, s)
	}
	return int(i), nil
}

func queryFloat(u *url.URL, q url.Values, k string) (float64, error) {
	s, err := queryString(u, q, k)
	if err != nil {
		return math.NaN(), err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return math.NaN(), fmt.Errorf("%w: invalid value for %s: %s", errBadRequest, k, s)
	}
	return f, nil
}

// parseDataset parses the pollutant and year of a request.
func parseDataset(u *url.URL, q url.Values) (DatasetKey, error) {
	var k DatasetKey
	var err error
	if k.Pollutant, err = queryString(u, q, "p"); err != nil {
		return k, err
	}
	if k.Year, err = queryInt(u, q, "yr"); err != nil {
		return k, err
	}
	return k, nil
}

// parseTileRequest parses a request of the type
// xxx?x={x}&y={y}&z={z}&p={pollutant}&yr={year}
func parseTileRequest(u *url.URL) (DatasetKey, maptile.Tile, error) {
	q := u.Query()
	k, err := parseDataset(u, q)
	if err != nil {
		return k, maptile.Tile{}, err
	}
	var xyz [3]int
	for i, name := range []string{"x", "y", "z"} {
		if xyz[i], err = queryInt(u, q, name); err != nil {
			return k, maptile.Tile{}, err
		}
	}
	x, y, z := xyz[0], xyz[1], xyz[2]
	if z < 0 || z > 30 || x < 0 || y < 0 || x >= 1<<uint(z) || y >= 1<<uint(z) {
		return k, maptile.Tile{}, fmt.Errorf("%w: tile %d/%d/%d out of range", errBadRequest, z, x, y)
	}
	return k, maptile.New(uint32(x), uint32(y), maptile.Zoom(z)), nil
}

// TilePixelScale returns the ground distance in meters covered by one
// pixel at the center of tile t, measured east-west across 16 pixels.
func TilePixelScale(t maptile.Tile) float64 {
	const pixels = 16
	b := t.Bound()
	c := b.Center()
	dLon := (b.Max.Lon() - b.Min.Lon()) / TileSize * pixels
	return PixelScale(LatLon{Lat: c.Lat(), Lon: c.Lon() - dLon/2}, LatLon{Lat: c.Lat(), Lon: c.Lon() + dLon/2}, pixels)
}

// zoomPixelScale returns the pixel scale at the given latitude and zoom.
func zoomPixelScale(lat float64, z maptile.Zoom) float64 {
	t := maptile.At(orb.Point{0, lat}, z)
	return TilePixelScale(t)
}

// level returns the level of detail used at the given pixel scale.
func (s *MapTileServer) level(pixelScale float64) int {
	return s.m.Selector().SelectIndex(pixelScale, float64(s.m.ViewportWidth), float64(s.m.ViewportHeight))
}

func (s *MapTileServer) serveTile(w http.ResponseWriter, r *http.Request) error {
	k, tile, err := parseTileRequest(r.URL)
	if err != nil {
		return err
	}
	ls := &LayerSpecification{Pollutant: k.Pollutant, Year: k.Year, Level: s.level(TilePixelScale(tile))}
	tl, err := s.layer(r.Context(), ls)
	if err != nil {
		return err
	}
	layers := mvt.Layers{cloneLayer(tl.layer, tile.Bound())}
	layers.ProjectToTile(tile)
	layers.Clip(mvt.MapboxGLDefaultExtentBound)
	layers.Simplify(simplify.DouglasPeucker(1.0))
	layers.RemoveEmpty(1.0, 2.0)

	accept := r.Header.Get("Accept-Encoding")
	var data []byte
	var encoding string
	switch {
	case strings.Contains(accept, "br"):
		encoding = "br"
		data, err = marshalBrotli(layers)
	case strings.Contains(accept, "gzip"):
		encoding = "gzip"
		data, err = mvt.MarshalGzipped(layers)
	default:
		data, err = mvt.Marshal(layers)
	}
	if err != nil {
		return err
	}
	if encoding != "" {
		w.Header().Set("Content-Encoding", encoding)
	}
	w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
	_, err = w.Write(data)
	return err
}

func marshalBrotli(layers mvt.Layers) ([]byte, error) {
	data, err := mvt.Marshal(layers)
	if err != nil {
		return nil, err
	}
	b := new(bytes.Buffer)
	bw := brotli.NewWriterLevel(b, brotli.BestSpeed)
	if _, err := bw.Write(data); err != nil {
		return nil, err
	}
	if err := bw.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// layer returns the cached layer for ls, building it if necessary.
func (s *MapTileServer) layer(ctx context.Context, ls *LayerSpecification) (*tileLayer, error) {
	key := ls.Key()
	s.mu.Lock()
	v, ok := s.layers.Get(key)
	s.mu.Unlock()
	if ok {
		return v.(*tileLayer), nil
	}
	v, err := s.flight.Do(key, func() (interface{}, error) {
		resultI, err := s.builds.NewRequest(ctx, ls, key).Result()
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.layers.Add(key, resultI)
		s.mu.Unlock()
		return resultI, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tileLayer), nil
}

func (s *MapTileServer) buildLayer(ctx context.Context, r interface{}) (interface{}, error) {
	ls := r.(*LayerSpecification)
	t, err := s.m.Table(ctx, ls.Pollutant, ls.Year)
	if err != nil {
		return nil, err
	}
	level := ls.Level
	if level >= t.NumLevels() {
		level = t.NumLevels() - 1
	}
	set := NewPolygonSet(s.m.Projector())
	if err := set.Refresh(t, level); err != nil {
		return nil, err
	}
	scheme := s.m.ColorScheme()
	fc := geojson.NewFeatureCollection()
	for i, p := range set.Polygons() {
		f := geojson.NewFeature(geomToOrb(p.worldPolygon()))
		f.ID = uint64(i)
		f.Properties["v"] = p.Value()
		f.Properties["n"] = p.NormalizedValue()
		f.Properties["c"] = hexColor(p.ColorFor(scheme, s.m.Opacity))
		fc = fc.Append(f)
	}
	s.Log.WithFields(logrus.Fields{
		"pollutant": ls.Pollutant,
		"year":      ls.Year,
		"level":     level,
	}).Debugf("built tile layer with %d polygons", len(fc.Features))
	return &tileLayer{
		layer: mvt.NewLayer(LayerName, fc),
		units: t.Dataset().Units(),
		set:   set,
	}, nil
}

func (s *MapTileServer) serveLegend(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	k, err := parseDataset(r.URL, q)
	if err != nil {
		return err
	}
	scheme := s.m.ColorScheme()
	if name := q.Get("scheme"); name != "" {
		if scheme, err = SchemeByName(name); err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
	}
	t, err := s.m.Table(r.Context(), k.Pollutant, k.Year)
	if err != nil {
		return err
	}
	lod, err := t.Level(0)
	if err != nil {
		return err
	}
	st := lod.Stats()
	b, err := Legend(scheme, st.Min, st.Max, t.Dataset().Units())
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "image/png")
	_, err = w.Write(b)
	return err
}

// PointValue is the response to a value request.
type PointValue struct {
	Value    float64 `json:"value"`
	Units    string  `json:"units"`
	SI       string  `json:"si,omitempty"`
	Easting  float64 `json:"easting"`
	Northing float64 `json:"northing"`
}

func (s *MapTileServer) serveValue(w http.ResponseWriter, r *http.Request) error {
	u := r.URL
	q := u.Query()
	k, err := parseDataset(u, q)
	if err != nil {
		return err
	}
	lat, err := queryFloat(u, q, "lat")
	if err != nil {
		return err
	}
	lon, err := queryFloat(u, q, "lon")
	if err != nil {
		return err
	}
	z, err := queryInt(u, q, "z")
	if err != nil {
		return err
	}
	if z < 0 || z > 30 {
		return fmt.Errorf("%w: zoom %d out of range", errBadRequest, z)
	}
	pv, ok, err := s.Value(r.Context(), k, LatLon{Lat: lat, Lon: lon}, maptile.Zoom(z))
	if err != nil {
		return err
	}
	if !ok {
		http.Error(w, "no value at location", http.StatusNotFound)
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(pv)
}

// Value returns the value of the polygon drawn under ll at zoom z.
func (s *MapTileServer) Value(ctx context.Context, k DatasetKey, ll LatLon, z maptile.Zoom) (*PointValue, bool, error) {
	scale := zoomPixelScale(ll.Lat, z)
	ls := &LayerSpecification{Pollutant: k.Pollutant, Year: k.Year, Level: s.level(scale)}
	tl, err := s.layer(ctx, ls)
	if err != nil {
		return nil, false, err
	}
	// Center the viewport on the requested point.
	const size = TileSize
	merc := WebMercator(float64(z))
	cx, cy := merc(ll.Lat, ll.Lon)
	project := func(lat, lon float64) (x, y float64) {
		x, y = merc(lat, lon)
		return x - cx + size/2, y - cy + size/2
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.set.Layout(project, size, size, scale)
	p, ok := tl.set.Pick(size/2, size/2)
	if !ok {
		return nil, false, nil
	}
	e, n := p.Center()
	pv := &PointValue{
		Value:    p.Value(),
		Units:    tl.units,
		Easting:  e,
		Northing: n,
	}
	t, err := s.m.Table(ctx, k.Pollutant, k.Year)
	if err != nil {
		return nil, false, err
	}
	if q, err := t.Dataset().Quantity(p.Value()); err == nil {
		pv.SI = fmt.Sprintf("%.4g", q)
	}
	return pv, true, nil
}

func geomToOrb(p geom.Polygon) orb.Polygon {
	o := make(orb.Polygon, len(p))
	for i, path := range p {
		o[i] = make(orb.Ring, len(path))
		for j, point := range path {
			o[i][j] = orb.Point{point.X, point.Y}
		}
	}
	return o
}

func cloneLayer(l *mvt.Layer, b orb.Bound) *mvt.Layer {
	o := &mvt.Layer{
		Name:    l.Name,
		Version: l.Version,
		Extent:  l.Extent,
	}
	for _, f := range l.Features {
		if !f.Geometry.Bound().Intersects(b) {
			continue
		}
		of := &geojson.Feature{
			ID:         f.ID,
			Type:       f.Type,
			BBox:       f.BBox,
			Geometry:   orb.Clone(f.Geometry),
			Properties: f.Properties,
		}
		o.Features = append(o.Features, of)
	}
	return o
}
