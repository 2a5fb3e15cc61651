package domain

import "time"

// Routine is a maintenance or reading event for a plant.
type Routine struct {
	ID              string        `json:"id"`
	PlantID         string        `json:"plantId"`
	SiteID          string        `json:"siteId"`
	Date            time.Time     `json:"date"`
	PlantReading    *PlantReading `json:"plantReading,omitempty"`
	LatestReading   *PlantReading `json:"latestReading,omitempty"`
	EditDate        time.Time     `json:"editDate"`
	RoutineUploadID string        `json:"routineUploadId,omitempty"`
}

// Reading returns the routine reading, falling back to the legacy field.
func (r *Routine) Reading() PlantReading {
	if r == nil {
		return PlantReading{}
	}
	if r.PlantReading != nil {
		return *r.PlantReading
	}
	if r.LatestReading != nil {
		return *r.LatestReading
	}
	return PlantReading{Date: r.Date}
}

// RoutineUpload is the uploaded sheet backing a routine.
type RoutineUpload struct {
	ID                string `json:"id"`
	ConditionOverride string `json:"conditionOverride,omitempty"`
}

// RoutineAsOf returns the routine dated at or most recently before at.
func RoutineAsOf(routines []*Routine, at time.Time) *Routine {
	var best *Routine
	for _, r := range routines {
		if r == nil || r.Date.After(at) {
			continue
		}
		if best == nil || r.Date.After(best.Date) {
			best = r
		}
	}
	return best
}
