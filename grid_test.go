package aqmap

import (
	"reflect"
	"testing"
)

func TestNewGridDataSet(t *testing.T) {
	ds := NewGridDataSet("no2", 2019, "Annual mean", "ugm-3", []Cell{
		{GridCode: 1, Easting: 1500, Northing: 500, Value: 2},
		{GridCode: 2, Easting: 500, Northing: 1500, Value: 3},
		{GridCode: 3, Easting: 500, Northing: 500, Value: 1},
		{GridCode: 4, Easting: 1500, Northing: 500, Value: 5},
	})
	if ds.Len() != 3 {
		t.Fatalf("len: %d != 3", ds.Len())
	}
	if c, ok := ds.Cell(1500, 500); !ok || c.Value != 5 {
		t.Errorf("duplicate position: %+v, %v", c, ok)
	}
	if _, ok := ds.Cell(1500, 1500); ok {
		t.Error("cell should not exist")
	}
	min, max, ok := ds.Bounds()
	if !ok {
		t.Fatal("bounds not ok")
	}
	if want := (GridKey{Easting: 500, Northing: 500}); min != want {
		t.Errorf("min %+v != %+v", min, want)
	}
	if want := (GridKey{Easting: 1500, Northing: 1500}); max != want {
		t.Errorf("max %+v != %+v", max, want)
	}
	want := []Cell{
		{GridCode: 3, Easting: 500, Northing: 500, Value: 1},
		{GridCode: 4, Easting: 1500, Northing: 500, Value: 5},
		{GridCode: 2, Easting: 500, Northing: 1500, Value: 3},
	}
	if !reflect.DeepEqual(ds.Cells(), want) {
		t.Errorf("cells %v != %v", ds.Cells(), want)
	}
	if ds.Key() != (DatasetKey{Pollutant: "no2", Year: 2019}) {
		t.Errorf("key %+v", ds.Key())
	}
	if ds.Key().Key() != "no2_2019" {
		t.Errorf("key string %s", ds.Key().Key())
	}
}

func TestGridDataSet_empty(t *testing.T) {
	ds := NewGridDataSet("no2", 2019, "", "", nil)
	if ds.Len() != 0 {
		t.Errorf("len %d", ds.Len())
	}
	if _, _, ok := ds.Bounds(); ok {
		t.Error("empty dataset should have no bounds")
	}
}

func TestCell_Valid(t *testing.T) {
	if (Cell{Value: MissingValue}).Valid() {
		t.Error("missing value should be invalid")
	}
	if !(Cell{Value: 0}).Valid() {
		t.Error("zero should be valid")
	}
}

func TestGridDataSet_Quantity(t *testing.T) {
	for _, units := range []string{"ugm-3", "µg/m3", "ug m-3", "UGM-3"} {
		ds := NewGridDataSet("no2", 2019, "", units, nil)
		q, err := ds.Quantity(40)
		if err != nil {
			t.Errorf("%s: %v", units, err)
			continue
		}
		if !similar(q.Value(), 40e-9, 1e-15) {
			t.Errorf("%s: %g != 4e-8", units, q.Value())
		}
	}
	ds := NewGridDataSet("no2", 2019, "", "ppb", nil)
	if _, err := ds.Quantity(40); err == nil {
		t.Error("want an error for unsupported units")
	}
}
