package domain

import (
	"fmt"
	"time"
)

// ReadingType names a plant record series.
type ReadingType string

const (
	ReadingLoad        ReadingType = "load"
	ReadingVoltage     ReadingType = "voltage"
	ReadingTemperature ReadingType = "temperature"
	ReadingUtilization ReadingType = "utilization"
)

// SeriesPoint is one timestamped value.
type SeriesPoint struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// RecordSeries is the time series of a single reading type.
type RecordSeries struct {
	ReadingType ReadingType   `json:"readingType"`
	Points      []SeriesPoint `json:"points"`
}

// PlantRecord holds the historical series of a plant.
type PlantRecord struct {
	ID      string         `json:"id"`
	PlantID string         `json:"plantId"`
	Series  []RecordSeries `json:"series"`
}

// Amend replaces the value of the latest point at or before at and returns the
// replaced value. It never inserts points.
func (r *PlantRecord) Amend(readingType ReadingType, at time.Time, value float64) (float64, error) {
	if r == nil {
		return 0, ErrRecordNotFound
	}
	for s := range r.Series {
		series := &r.Series[s]
		if series.ReadingType != readingType {
			continue
		}
		idx := coveringPoint(series.Points, at)
		if idx < 0 {
			break
		}
		prev := series.Points[idx].Value
		series.Points[idx].Value = value
		return prev, nil
	}
	return 0, fmt.Errorf("%w: %s at %s", ErrNoCoveringRecord, readingType, at.UTC().Format(time.RFC3339))
}

// ValueAt returns the value of the latest point at or before at.
func (r *PlantRecord) ValueAt(readingType ReadingType, at time.Time) (float64, bool) {
	if r == nil {
		return 0, false
	}
	for _, series := range r.Series {
		if series.ReadingType != readingType {
			continue
		}
		if idx := coveringPoint(series.Points, at); idx >= 0 {
			return series.Points[idx].Value, true
		}
	}
	return 0, false
}

// coveringPoint scans the points in descending time order and returns the
// index of the first one at or before at, or -1.
func coveringPoint(points []SeriesPoint, at time.Time) int {
	best := -1
	for i, p := range points {
		if p.At.After(at) {
			continue
		}
		if best < 0 || p.At.After(points[best].At) {
			best = i
		}
	}
	return best
}
