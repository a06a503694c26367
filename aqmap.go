// Package aqmap draws gridded air quality measurements on a map. It loads
// one dataset per pollutant and year from comma-separated files of 1 km
// grid cells, down-samples each dataset into levels of detail, and turns
// the level suited to the current view into colored polygons.
package aqmap

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/groupcache/singleflight"
	"github.com/sirupsen/logrus"
)

// SourceConfig describes where the files for one pollutant are found.
type SourceConfig struct {
	// Pattern is the file name within the pollutant's directory, as a
	// format string taking the year.
	Pattern string
}

// Config holds the settings of an AQMap.
type Config struct {
	// DataDir is the directory holding one subdirectory per pollutant.
	DataDir string

	// Sources holds the file pattern of each pollutant.
	Sources map[string]SourceConfig

	// Levels is the number of levels of detail built for each dataset.
	Levels int

	// MaxVisibleCells is the target maximum number of polygons in view.
	MaxVisibleCells int

	// Sampler is "stride" or "mean".
	Sampler string

	// Scheme is the name of the color scheme.
	Scheme string

	// Opacity is the polygon fill opacity in [0, 1].
	Opacity float64

	// CacheSize is the number of tile layers held in memory.
	CacheSize int

	// ViewportWidth and ViewportHeight are the client viewport size in
	// pixels used to choose the level of detail for map tiles.
	ViewportWidth, ViewportHeight int
}

// DefaultConfig returns the settings for the UK Pollution Climate
// Mapping background maps.
func DefaultConfig() Config {
	return Config{
		DataDir: "data",
		Sources: map[string]SourceConfig{
			"no2":  {Pattern: "mapno2%d.csv"},
			"nox":  {Pattern: "mapnox%d.csv"},
			"pm10": {Pattern: "mappm10%d.csv"},
			"pm25": {Pattern: "mappm25%d.csv"},
			"so2":  {Pattern: "mapso2%d.csv"},
			"o3":   {Pattern: "mapo3%d.csv"},
		},
		Levels:          20,
		MaxVisibleCells: DefaultMaxVisibleCells,
		Sampler:         "stride",
		Scheme:          "default",
		Opacity:         0.7,
		CacheSize:       100,
		ViewportWidth:   1280,
		ViewportHeight:  800,
	}
}

// Source returns a DirSource for the receiver's data directory.
func (c Config) Source() *DirSource {
	s := &DirSource{Dir: c.DataDir, Patterns: make(map[string]string, len(c.Sources))}
	for p, sc := range c.Sources {
		s.Patterns[p] = sc.Pattern
	}
	return s
}

// SamplerFunc returns the sampler named by the receiver.
func (c Config) SamplerFunc() (Sampler, error) {
	switch c.Sampler {
	case "", "stride":
		return StrideSample, nil
	case "mean":
		return MeanSample, nil
	default:
		return nil, fmt.Errorf("aqmap: unknown sampler %q", c.Sampler)
	}
}

// AQMap holds the datasets and level of detail tables for a set of
// pollutants. It is safe for concurrent use.
type AQMap struct {
	Config

	// Log receives information about dataset loads and table builds.
	Log logrus.FieldLogger

	data   *DataCache
	proj   LatLonProjector
	sample Sampler
	scheme ColorScheme

	mu     sync.RWMutex
	tables map[DatasetKey]*LodTable
	builds singleflight.Group
}

// New creates an AQMap that reads data from src. If src is nil, the
// files described by cfg are used.
func New(cfg Config, src Source) (*AQMap, error) {
	if cfg.Levels < 1 {
		return nil, fmt.Errorf("aqmap: invalid number of levels %d", cfg.Levels)
	}
	sample, err := cfg.SamplerFunc()
	if err != nil {
		return nil, err
	}
	scheme, err := SchemeByName(cfg.Scheme)
	if err != nil {
		return nil, err
	}
	p, err := NewNationalGridProjector()
	if err != nil {
		return nil, err
	}
	if src == nil {
		src = cfg.Source()
	}
	return &AQMap{
		Config: cfg,
		Log:    logrus.StandardLogger(),
		data:   NewDataCache(src),
		proj:   p,
		sample: sample,
		scheme: scheme,
		tables: make(map[DatasetKey]*LodTable),
	}, nil
}

// SetLogger sets the logger of the receiver and its data cache.
func (m *AQMap) SetLogger(l logrus.FieldLogger) {
	m.Log = l
	m.data.Log = l
}

// Data returns the dataset cache.
func (m *AQMap) Data() *DataCache { return m.data }

// Projector returns the projector from grid positions to latitude
// and longitude.
func (m *AQMap) Projector() LatLonProjector { return m.proj }

// ColorScheme returns the configured color scheme.
func (m *AQMap) ColorScheme() ColorScheme { return m.scheme }

// Selector returns a new LodSelector for the configured levels.
func (m *AQMap) Selector() *LodSelector {
	return NewLodSelector(m.Levels, m.MaxVisibleCells)
}

// Table returns the level of detail table for the given pollutant and
// year, building it if necessary. ctx is passed to the dataset cache,
// so a done ctx stops a dataset load from starting.
func (m *AQMap) Table(ctx context.Context, pollutant string, year int) (*LodTable, error) {
	key := DatasetKey{Pollutant: pollutant, Year: year}
	m.mu.RLock()
	t, ok := m.tables[key]
	m.mu.RUnlock()
	if ok {
		return t, nil
	}
	tI, err := m.builds.Do(key.Key(), func() (interface{}, error) {
		m.mu.RLock()
		t, ok := m.tables[key]
		m.mu.RUnlock()
		if ok {
			return t, nil
		}
		ds, err := m.data.Get(ctx, pollutant, year)
		if err != nil {
			return nil, err
		}
		t, err = NewLodTable(ds, m.Levels, m.sample)
		if err != nil {
			return nil, err
		}
		m.Log.WithFields(logrus.Fields{
			"pollutant": pollutant,
			"year":      year,
		}).Debugf("built %d levels of detail", t.NumLevels())
		m.mu.Lock()
		m.tables[key] = t
		m.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return tI.(*LodTable), nil
}

// View returns a MapView over the table for the given pollutant and year.
func (m *AQMap) View(ctx context.Context, pollutant string, year int) (*MapView, error) {
	t, err := m.Table(ctx, pollutant, year)
	if err != nil {
		return nil, err
	}
	v := NewMapView(NewPolygonSet(m.proj), m.Selector())
	v.Log = m.Log
	v.SetTable(t)
	return v, nil
}
