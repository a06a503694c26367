package aqmap

import (
	"errors"
	"strings"
	"testing"
)

func TestReadGrid(t *testing.T) {
	const data = `Annual mean NO2 2019
Units: ugm-3
gridcode,x,y,no22019
1,500,500,10.5
2,1500,500,MISSING
3,500,1500, 30
4,x,1500,40
`
	ds, stats, err := ReadGrid(strings.NewReader(data), "no2", 2019)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Metric() != "Annual mean NO2 2019" {
		t.Errorf("metric %q", ds.Metric())
	}
	if ds.Units() != "ugm-3" {
		t.Errorf("units %q", ds.Units())
	}
	want := LoadStats{Rows: 4, Substituted: 2, Unlocated: 1}
	if stats != want {
		t.Errorf("stats %+v != %+v", stats, want)
	}
	if ds.Len() != 3 {
		t.Fatalf("len %d != 3", ds.Len())
	}
	if c, _ := ds.Cell(1500, 500); c.Value != MissingValue {
		t.Errorf("unparseable value should be missing, got %g", c.Value)
	}
	if c, _ := ds.Cell(500, 1500); c.Value != 30 || c.GridCode != 3 {
		t.Errorf("cell %+v", c)
	}
}

func TestReadGrid_unitsField(t *testing.T) {
	const data = `Units,µgm-3
1,500,500,1
`
	ds, _, err := ReadGrid(strings.NewReader(data), "pm25", 2018)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Units() != "µgm-3" {
		t.Errorf("units %q", ds.Units())
	}
	if ds.Pollutant() != "pm25" || ds.Year() != 2018 {
		t.Errorf("key %+v", ds.Key())
	}
}

func TestReadGrid_file(t *testing.T) {
	s := &DirSource{Dir: "testdata", Patterns: map[string]string{"no2": "mapno2%d.csv"}}
	r, err := s.Open("no2", 2019)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	ds, stats, err := ReadGrid(r, "no2", 2019)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != 36 {
		t.Errorf("len %d != 36", ds.Len())
	}
	want := LoadStats{Rows: 37, Substituted: 2, Unlocated: 1}
	if stats != want {
		t.Errorf("stats %+v != %+v", stats, want)
	}
}

func TestDirSource(t *testing.T) {
	s := &DirSource{
		Dir:      "testdata",
		Patterns: map[string]string{"no2": "mapno2%d.csv", "pm10": "mappm10%d.csv"},
	}
	if _, err := s.Open("co", 2019); !errors.Is(err, ErrUnknownPollutant) {
		t.Errorf("unknown pollutant: %v", err)
	}
	if _, err := s.Open("no2", 2001); !errors.Is(err, ErrDataNotFound) {
		t.Errorf("missing year: %v", err)
	}
	if _, err := s.Open("pm10", 2019); !errors.Is(err, ErrDataNotFound) {
		t.Errorf("missing directory: %v", err)
	}
	if got := strings.Join(s.Pollutants(), ","); got != "no2,pm10" {
		t.Errorf("pollutants %s", got)
	}
}
