package application

import (
	"fmt"
	"strings"
	"time"

	"plantfleet/internal/fleet/domain"
)

// GeneratorAction is a generator lifecycle request.
type GeneratorAction string

const (
	GeneratorAdd    GeneratorAction = "add"
	GeneratorRemove GeneratorAction = "remove"
)

// GeneratorInput describes a generator being installed.
type GeneratorInput struct {
	Model string `json:"model,omitempty"`
}

// SiteUpdates holds site field changes. Empty fields are left untouched.
type SiteUpdates struct {
	SiteNum            string          `json:"siteNum"`
	LocationType       string          `json:"locationType,omitempty"`
	Name               string          `json:"name,omitempty"`
	Region             string          `json:"region,omitempty"`
	Coords             *domain.Coords  `json:"coords,omitempty"`
	Address            string          `json:"address,omitempty"`
	GeneratorAction    GeneratorAction `json:"generatorAction,omitempty"`
	Generator          *GeneratorInput `json:"generator,omitempty"`
	AccessInstructions string          `json:"accessInstructions,omitempty"`
	Notes              string          `json:"notes,omitempty"`
}

// ReadingInput carries caller-supplied reading values. Nil fields are not supplied.
type ReadingInput struct {
	Load           *float64 `json:"load,omitempty"`
	Voltage        *float64 `json:"voltage,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	ActualCapacity *float64 `json:"actualCapacity,omitempty"`
}

func (r *ReadingInput) empty() bool {
	return r == nil || (r.Load == nil && r.Voltage == nil && r.Temperature == nil && r.ActualCapacity == nil)
}

// overlay returns r with the supplied fields of other taking precedence.
func (r *ReadingInput) overlay(other *ReadingInput) *ReadingInput {
	if r == nil && other == nil {
		return nil
	}
	out := &ReadingInput{}
	for _, src := range []*ReadingInput{r, other} {
		if src == nil {
			continue
		}
		if src.Load != nil {
			out.Load = src.Load
		}
		if src.Voltage != nil {
			out.Voltage = src.Voltage
		}
		if src.Temperature != nil {
			out.Temperature = src.Temperature
		}
		if src.ActualCapacity != nil {
			out.ActualCapacity = src.ActualCapacity
		}
	}
	return out
}

// PlantUpdates targets one plant of the site by plant number.
type PlantUpdates struct {
	PlantNum        string        `json:"plantNum"`
	LatestReading   *ReadingInput `json:"latestReading,omitempty"`
	Transmission    string        `json:"transmission,omitempty"`
	TechnologyFlags []string      `json:"technologyFlags,omitempty"`
	ServiceLevel    string        `json:"serviceLevel,omitempty"`
}

// RoutineUpdates amends the routine at or before Date.
type RoutineUpdates struct {
	Date          time.Time     `json:"date"`
	LatestReading *ReadingInput `json:"latestReading,omitempty"`
}

// SerialNumberUpdate replaces the serial number of one battery.
type SerialNumberUpdate struct {
	BatteryID    string `json:"batteryId"`
	SerialNumber string `json:"serialNumber"`
}

// BatteryUpdates edits serial numbers. Supplemental batteries are read only
// and join the serial-number status computation.
type BatteryUpdates struct {
	SerialNumbers          []SerialNumberUpdate `json:"serialNumbers"`
	SupplementalBatteryIDs []string             `json:"batteriesIdsSupplimental,omitempty"`
}

// GeneralUpdates holds role reassignments.
type GeneralUpdates struct {
	PrimaryTech string `json:"primaryTech,omitempty"`
}

// UpdateSiteRequest is one change set against a site.
type UpdateSiteRequest struct {
	Submitter string                `json:"submitter"`
	Site      SiteUpdates           `json:"siteUpdates"`
	Plant     *PlantUpdates         `json:"plantUpdates,omitempty"`
	Routine   *RoutineUpdates       `json:"routineUpdates,omitempty"`
	Battery   *BatteryUpdates       `json:"batteryUpdates,omitempty"`
	General   *GeneralUpdates       `json:"generalUpdates,omitempty"`
	Company   *domain.CompanyConfig `json:"companyConfig,omitempty"`
}

// Validate checks the request shape before any entity is touched.
func (r UpdateSiteRequest) Validate() error {
	if strings.TrimSpace(r.Site.SiteNum) == "" {
		return invalid("siteUpdates.siteNum is required")
	}
	switch r.Site.GeneratorAction {
	case "", GeneratorAdd, GeneratorRemove:
	default:
		return invalid("siteUpdates.generatorAction must be add or remove, got %q", r.Site.GeneratorAction)
	}
	if r.Plant != nil && strings.TrimSpace(r.Plant.PlantNum) == "" {
		return invalid("plantUpdates.plantNum is required")
	}
	if r.Routine != nil {
		if r.Plant == nil {
			return invalid("routineUpdates requires plantUpdates")
		}
		if r.Routine.Date.IsZero() {
			return invalid("routineUpdates.date is required")
		}
	}
	if r.Battery != nil {
		seen := make(map[string]struct{}, len(r.Battery.SerialNumbers))
		for i, u := range r.Battery.SerialNumbers {
			if u.BatteryID == "" {
				return invalid("batteryUpdates.serialNumbers[%d].batteryId is required", i)
			}
			if _, dup := seen[u.BatteryID]; dup {
				return invalid("batteryUpdates.serialNumbers[%d]: battery %s listed twice", i, u.BatteryID)
			}
			seen[u.BatteryID] = struct{}{}
		}
	}
	return nil
}

func (r UpdateSiteRequest) wantsPrimaryTech() bool {
	return r.General != nil && r.General.PrimaryTech != ""
}

// reading merges the plant and routine readings, routine values winning.
func (r UpdateSiteRequest) reading() *ReadingInput {
	var plant, routine *ReadingInput
	if r.Plant != nil {
		plant = r.Plant.LatestReading
	}
	if r.Routine != nil {
		routine = r.Routine.LatestReading
	}
	merged := plant.overlay(routine)
	if merged.empty() {
		return nil
	}
	return merged
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
