package aqmap

import (
	"fmt"
	"sync"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// LevelOfDetail is a resampling of a dataset onto a grid that is
// DetailFactor times coarser than the base 1 km grid.
type LevelOfDetail struct {
	DetailFactor int
	Cells        []Cell
}

// CellSize returns the side length of the level's cells in meters.
func (l *LevelOfDetail) CellSize() int { return BaseCellSize * l.DetailFactor }

// LevelStats summarizes the cells in a level.
type LevelStats struct {
	Cells, Valid   int
	Min, Max, Mean float64
}

// Stats returns a summary of the valid values in l. Min, Max and Mean
// are MissingValue when there are no valid cells.
func (l *LevelOfDetail) Stats() LevelStats {
	vals := validValues(l.Cells)
	s := LevelStats{Cells: len(l.Cells), Valid: len(vals)}
	if len(vals) == 0 {
		s.Min, s.Max, s.Mean = MissingValue, MissingValue, MissingValue
		return s
	}
	s.Min = floats.Min(vals)
	s.Max = floats.Max(vals)
	s.Mean = stat.Mean(vals, nil)
	return s
}

func validValues(cells []Cell) []float64 {
	vals := make([]float64, 0, len(cells))
	for _, c := range cells {
		if c.Valid() {
			vals = append(vals, c.Value)
		}
	}
	return vals
}

// A Sampler resamples ds onto a grid with cells detailFactor km wide.
type Sampler func(ds *GridDataSet, detailFactor int) []Cell

// StrideSample walks the dataset bounds in steps of detailFactor km in
// both directions and keeps the base cell found at each step, if any.
// Values are not averaged.
func StrideSample(ds *GridDataSet, detailFactor int) []Cell {
	min, max, ok := ds.Bounds()
	if !ok {
		return nil
	}
	stride := BaseCellSize * detailFactor
	var o []Cell
	for n := min.Northing; n <= max.Northing; n += stride {
		for e := min.Easting; e <= max.Easting; e += stride {
			if c, ok := ds.Cell(e, n); ok {
				o = append(o, c)
			}
		}
	}
	return o
}

// MeanSample assigns every base cell to the coarse cell whose stride
// point is at its lower left, and sets each coarse cell to the mean of
// the valid values assigned to it. Coarse cells are placed on the same
// positions StrideSample uses. Coarse cells with no valid values are
// left out.
func MeanSample(ds *GridDataSet, detailFactor int) []Cell {
	min, max, ok := ds.Bounds()
	if !ok {
		return nil
	}
	stride := BaseCellSize * detailFactor
	nx := (max.Easting-min.Easting)/stride + 1
	ny := (max.Northing-min.Northing)/stride + 1
	sum := sparse.ZerosSparse(ny, nx)
	count := sparse.ZerosSparse(ny, nx)
	for _, c := range ds.cells {
		if !c.Valid() {
			continue
		}
		i := (c.Northing - min.Northing) / stride
		j := (c.Easting - min.Easting) / stride
		sum.AddVal(c.Value, i, j)
		count.AddVal(1, i, j)
	}
	o := make([]Cell, 0, len(count.Elements))
	for index1d, n := range count.Elements {
		// Elements are stored row-major with nx columns.
		i, j := index1d/nx, index1d%nx
		e := min.Easting + j*stride
		nn := min.Northing + i*stride
		c := Cell{
			GridCode: MissingValue,
			Easting:  e,
			Northing: nn,
			Value:    sum.Get(i, j) / n,
		}
		if base, ok := ds.Cell(e, nn); ok {
			c.GridCode = base.GridCode
		}
		o = append(o, c)
	}
	sortCells(o)
	return o
}

// LodTable holds a fixed number of levels of detail for one dataset.
// Level i has a detail factor of i+1.
type LodTable struct {
	ds     *GridDataSet
	levels []*LevelOfDetail
}

// NewLodTable builds the given number of levels for ds using sample, or
// StrideSample if sample is nil. Levels are built in parallel, and the
// function returns once all of them are complete.
func NewLodTable(ds *GridDataSet, levels int, sample Sampler) (*LodTable, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	if levels < 1 {
		return nil, fmt.Errorf("aqmap: number of levels must be at least 1 but is %d", levels)
	}
	if sample == nil {
		sample = StrideSample
	}
	t := &LodTable{
		ds:     ds,
		levels: make([]*LevelOfDetail, levels),
	}
	var wg sync.WaitGroup
	wg.Add(levels)
	for i := 0; i < levels; i++ {
		go func(i int) {
			defer wg.Done()
			t.levels[i] = &LevelOfDetail{
				DetailFactor: i + 1,
				Cells:        sample(ds, i+1),
			}
		}(i)
	}
	wg.Wait()
	return t, nil
}

// Level returns the level of detail at index i.
func (t *LodTable) Level(i int) (*LevelOfDetail, error) {
	if i < 0 || i >= len(t.levels) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(t.levels))
	}
	return t.levels[i], nil
}

// NumLevels returns the number of levels in the table.
func (t *LodTable) NumLevels() int { return len(t.levels) }

// Dataset returns the dataset the table was built from.
func (t *LodTable) Dataset() *GridDataSet { return t.ds }
