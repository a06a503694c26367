package aqmap

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Source opens the raw data for a pollutant and year.
type Source interface {
	Open(pollutant string, year int) (io.ReadCloser, error)
}

// DirSource reads datasets from a directory tree with one subdirectory
// per pollutant.
type DirSource struct {
	// Dir is the root data directory.
	Dir string

	// Patterns holds a file name pattern for each pollutant. Each pattern
	// is a format string taking the year as its only argument,
	// for example "mapno2%d.csv".
	Patterns map[string]string
}

// Open opens the file for the given pollutant and year.
func (s *DirSource) Open(pollutant string, year int) (io.ReadCloser, error) {
	path, err := s.Path(pollutant, year)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s %d (%s)", ErrDataNotFound, pollutant, year, path)
	} else if err != nil {
		return nil, fmt.Errorf("aqmap: opening %s: %w", path, err)
	}
	return f, nil
}

// Path returns the location of the file for the given pollutant and year.
func (s *DirSource) Path(pollutant string, year int) (string, error) {
	pattern, ok := s.Patterns[pollutant]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPollutant, pollutant)
	}
	return filepath.Join(os.ExpandEnv(s.Dir), pollutant, fmt.Sprintf(pattern, year)), nil
}

// Pollutants returns the configured pollutants in sorted order.
func (s *DirSource) Pollutants() []string {
	o := make([]string, 0, len(s.Patterns))
	for p := range s.Patterns {
		o = append(o, p)
	}
	sort.Strings(o)
	return o
}

// LoadStats summarizes the rows read by ReadGrid.
type LoadStats struct {
	Rows int

	// Substituted is the number of fields that could not be parsed
	// and were replaced with MissingValue.
	Substituted int

	// Unlocated is the number of rows dropped because their position
	// could not be parsed.
	Unlocated int
}

// ReadGrid reads a dataset from comma-separated text. Rows with fewer than
// four fields are metadata: the first one gives the metric, and one
// starting with "units" gives the units. Data rows hold grid code,
// easting, northing and value. Fields that are not numbers are replaced
// with MissingValue rather than failing the read. Rows whose easting or
// northing is not a number cannot be placed on the grid; they are counted
// in LoadStats.Unlocated and left out of the dataset.
func ReadGrid(r io.Reader, pollutant string, year int) (*GridDataSet, LoadStats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	var (
		stats         LoadStats
		metric, units string
		cells         []Cell
		header        bool
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, stats, fmt.Errorf("aqmap: reading %s %d: %w", pollutant, year, err)
		}
		if len(rec) < 4 {
			m, u := parseMetadata(rec)
			if u != "" {
				units = u
			} else if m != "" && metric == "" {
				metric = m
			}
			continue
		}
		if !header && isHeader(rec) {
			header = true
			continue
		}
		stats.Rows++
		var bad int
		c := Cell{
			GridCode: parseInt(rec[0], &bad),
			Easting:  parseInt(rec[1], &bad),
			Northing: parseInt(rec[2], &bad),
			Value:    parseFloat(rec[3], &bad),
		}
		stats.Substituted += bad
		if c.Easting == MissingValue || c.Northing == MissingValue {
			stats.Unlocated++
			continue
		}
		cells = append(cells, c)
	}
	return NewGridDataSet(pollutant, year, metric, units, cells), stats, nil
}

func parseMetadata(rec []string) (metric, units string) {
	var fields []string
	for _, f := range rec {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return "", ""
	}
	first := fields[0]
	if strings.HasPrefix(strings.ToLower(first), "units") {
		if len(fields) > 1 {
			return "", fields[1]
		}
		u := strings.TrimSpace(first[len("units"):])
		return "", strings.TrimSpace(strings.TrimLeft(u, ":="))
	}
	return strings.Join(fields, ", "), ""
}

// isHeader returns whether rec is the column header row: none of its
// position fields are numbers.
func isHeader(rec []string) bool {
	for _, f := range rec[:3] {
		if _, err := strconv.ParseFloat(strings.TrimSpace(f), 64); err == nil {
			return false
		}
	}
	return true
}

func parseInt(s string, bad *int) int {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*bad++
		return MissingValue
	}
	return int(math.Round(v))
}

func parseFloat(s string, bad *int) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*bad++
		return MissingValue
	}
	return v
}
