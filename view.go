package aqmap

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// MapView keeps a PolygonSet at the level of detail suited to the
// current viewport.
type MapView struct {
	set      *PolygonSet
	selector *LodSelector
	table    *LodTable

	Log logrus.FieldLogger
}

// NewMapView returns a MapView that refreshes set using selector.
func NewMapView(set *PolygonSet, selector *LodSelector) *MapView {
	return &MapView{
		set:      set,
		selector: selector,
		Log:      logrus.StandardLogger(),
	}
}

// SetTable sets the table polygons are drawn from. The next call to
// Update always refreshes the polygon set.
func (v *MapView) SetTable(table *LodTable) {
	v.table = table
	v.set.index = -1
}

// Update selects the level of detail for the given viewport and
// refreshes the polygon set if the level differs from the active one.
func (v *MapView) Update(pixelScale, widthPx, heightPx float64) (changed bool, err error) {
	if v.table == nil {
		return false, errors.New("aqmap: map view has no table")
	}
	i := v.selector.SelectIndex(pixelScale, widthPx, heightPx)
	if n := v.table.NumLevels(); i >= n {
		i = n - 1
	}
	if i == v.set.Index() {
		return false, nil
	}
	if err := v.set.Refresh(v.table, i); err != nil {
		return false, err
	}
	v.Log.WithFields(logrus.Fields{
		"pollutant": v.table.Dataset().Pollutant(),
		"year":      v.table.Dataset().Year(),
		"level":     i,
		"polygons":  len(v.set.Polygons()),
	}).Debug("aqmap: level of detail changed")
	return true, nil
}

// ActiveIndex returns the level index of the polygon set, or -1 if it
// has not been refreshed.
func (v *MapView) ActiveIndex() int { return v.set.Index() }

// Polygons returns the polygon set.
func (v *MapView) Polygons() *PolygonSet { return v.set }
