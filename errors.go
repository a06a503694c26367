package aqmap

import "errors"

var (
	// ErrDataNotFound is returned when there is no source file for a
	// valid pollutant and year.
	ErrDataNotFound = errors.New("aqmap: data not found")

	// ErrUnknownPollutant is returned when a pollutant has no configured
	// source pattern.
	ErrUnknownPollutant = errors.New("aqmap: unknown pollutant")

	// ErrEmptyDataset is returned when a dataset has no cells.
	ErrEmptyDataset = errors.New("aqmap: empty dataset")

	// ErrIndexOutOfRange is returned when a level of detail is requested
	// outside of the levels held by a table.
	ErrIndexOutOfRange = errors.New("aqmap: level index out of range")
)
