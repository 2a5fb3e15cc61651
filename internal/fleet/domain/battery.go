package domain

import (
	"math"
	"time"
)

// Battery is a single battery block.
type Battery struct {
	ID                string    `json:"id"`
	SerialNumber      string    `json:"serialNumber"`
	ManufacturingDate time.Time `json:"manufacturingDate"`
	CurrentRecordID   string    `json:"currentRecordId,omitempty"`
	BatteryTypeID     string    `json:"batteryTypeId,omitempty"`
}

// BatteryRecord holds measured conductance for a battery.
type BatteryRecord struct {
	ID          string        `json:"id"`
	BatteryID   string        `json:"batteryId"`
	Conductance []SeriesPoint `json:"conductance"`
}

// Latest returns the most recent conductance measurement.
func (r *BatteryRecord) Latest() (SeriesPoint, bool) {
	if r == nil || len(r.Conductance) == 0 {
		return SeriesPoint{}, false
	}
	latest := r.Conductance[0]
	for _, p := range r.Conductance[1:] {
		if p.At.After(latest.At) {
			latest = p
		}
	}
	return latest, true
}

const nominalCellVoltage = 2.0

// BatteryType carries the nominal ratings of a battery model.
type BatteryType struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Conductance        float64 `json:"conductance"`
	Capacity           float64 `json:"capacity"`
	NominalVPCVoltage  float64 `json:"nominalVPCVoltage"`
	CompVoltPerCelsius float64 `json:"compVoltPerCelsius"`
	Voltage            float64 `json:"voltage"`
}

// CellsPerBlock derives the cell count of a block from its nominal voltage.
func (t BatteryType) CellsPerBlock() int {
	if t.Voltage <= 0 {
		return 0
	}
	return int(math.Round(t.Voltage / nominalCellVoltage))
}

// HasVPC reports whether float-voltage constants are available.
func (t BatteryType) HasVPC() bool {
	return t.NominalVPCVoltage > 0 && t.CellsPerBlock() > 0
}
