package aqmap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ctessum/unit"
)

// MissingValue marks a cell measurement that is missing or invalid.
const MissingValue = -1

// BaseCellSize is the side length of a base grid cell in meters.
const BaseCellSize = 1000

// Cell is a single measurement at the centroid of a 1 km grid square.
type Cell struct {
	GridCode int
	Easting  int // meters
	Northing int // meters
	Value    float64
}

// Valid returns whether the cell holds a usable measurement.
func (c Cell) Valid() bool { return c.Value != MissingValue }

// Key returns the grid position of c.
func (c Cell) Key() GridKey { return GridKey{Easting: c.Easting, Northing: c.Northing} }

// GridKey identifies a cell by its grid position.
type GridKey struct {
	Easting, Northing int
}

// DatasetKey identifies a dataset by pollutant and year.
type DatasetKey struct {
	Pollutant string
	Year      int
}

// Key returns a unique identifier for the receiver.
func (k DatasetKey) Key() string {
	return fmt.Sprintf("%s_%d", k.Pollutant, k.Year)
}

// GridDataSet holds the cells for one pollutant and year. It must not be
// modified after it has been created.
type GridDataSet struct {
	pollutant     string
	year          int
	metric, units string

	cells map[GridKey]Cell

	// min and max hold the bounds of the cell keys.
	min, max GridKey
}

// NewGridDataSet creates a dataset from the given cells. If more than one
// cell has the same position, the last one wins.
func NewGridDataSet(pollutant string, year int, metric, units string, cells []Cell) *GridDataSet {
	ds := &GridDataSet{
		pollutant: pollutant,
		year:      year,
		metric:    metric,
		units:     units,
		cells:     make(map[GridKey]Cell, len(cells)),
	}
	for i, c := range cells {
		ds.cells[c.Key()] = c
		if i == 0 {
			ds.min, ds.max = c.Key(), c.Key()
			continue
		}
		if c.Easting < ds.min.Easting {
			ds.min.Easting = c.Easting
		}
		if c.Northing < ds.min.Northing {
			ds.min.Northing = c.Northing
		}
		if c.Easting > ds.max.Easting {
			ds.max.Easting = c.Easting
		}
		if c.Northing > ds.max.Northing {
			ds.max.Northing = c.Northing
		}
	}
	return ds
}

// Pollutant returns the name of the pollutant.
func (ds *GridDataSet) Pollutant() string { return ds.pollutant }

// Year returns the year of the measurements.
func (ds *GridDataSet) Year() int { return ds.year }

// Metric returns the description of the measured metric.
func (ds *GridDataSet) Metric() string { return ds.metric }

// Units returns the units of the cell values.
func (ds *GridDataSet) Units() string { return ds.units }

// Key returns the cache key of the dataset.
func (ds *GridDataSet) Key() DatasetKey {
	return DatasetKey{Pollutant: ds.pollutant, Year: ds.year}
}

// Len returns the number of cells.
func (ds *GridDataSet) Len() int { return len(ds.cells) }

// Cell returns the cell at the given position, if there is one.
func (ds *GridDataSet) Cell(easting, northing int) (Cell, bool) {
	c, ok := ds.cells[GridKey{Easting: easting, Northing: northing}]
	return c, ok
}

// Cells returns all cells ordered by northing and then easting.
func (ds *GridDataSet) Cells() []Cell {
	o := make([]Cell, 0, len(ds.cells))
	for _, c := range ds.cells {
		o = append(o, c)
	}
	sortCells(o)
	return o
}

// Bounds returns the minimum and maximum cell positions. ok is false
// if the dataset is empty.
func (ds *GridDataSet) Bounds() (min, max GridKey, ok bool) {
	if len(ds.cells) == 0 {
		return GridKey{}, GridKey{}, false
	}
	return ds.min, ds.max, true
}

func sortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Northing != cells[j].Northing {
			return cells[i].Northing < cells[j].Northing
		}
		return cells[i].Easting < cells[j].Easting
	})
}

// concentrationUnits holds the multipliers from the unit strings
// found in dataset headers to kg m-3.
var concentrationUnits = map[string]float64{
	"ugm-3": 1.0e-9,
	"ug/m3": 1.0e-9,
	"ugm3":  1.0e-9,
	"µgm-3": 1.0e-9,
	"µg/m3": 1.0e-9,
	"µgm3":  1.0e-9,
	"mgm-3": 1.0e-6,
	"mg/m3": 1.0e-6,
	"kgm-3": 1,
	"kg/m3": 1,
	"ngm-3": 1.0e-12,
	"ng/m3": 1.0e-12,
}

// Quantity returns v as a dimensioned mass concentration in kg m-3.
func (ds *GridDataSet) Quantity(v float64) (*unit.Unit, error) {
	u := strings.ToLower(strings.Replace(ds.units, " ", "", -1))
	f, ok := concentrationUnits[u]
	if !ok {
		return nil, fmt.Errorf("aqmap: unsupported units %q for %s", ds.units, ds.pollutant)
	}
	return unit.New(v*f, unit.Dimensions{
		unit.MassDim:   1,
		unit.LengthDim: -3,
	}), nil
}
