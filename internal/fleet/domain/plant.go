package domain

import (
	"sort"
	"time"
)

// PlantReading is a point-in-time snapshot of raw and derived plant metrics.
type PlantReading struct {
	Date                        time.Time `json:"date"`
	Load                        float64   `json:"load"`
	Voltage                     float64   `json:"voltage"`
	Temperature                 float64   `json:"temperature"`
	Utilization                 float64   `json:"utilization"`
	ActualCapacity              float64   `json:"actualCapacity"`
	WorstBlockConductanceHealth *float64  `json:"worstBlockConductanceHealth,omitempty"`
}

// PowerPlant is a DC power plant installed at a site.
type PowerPlant struct {
	ID              string       `json:"id"`
	SiteID          string       `json:"siteId"`
	PlantNum        string       `json:"plantNum"`
	Region          string       `json:"region,omitempty"`
	LatestReading   PlantReading `json:"latestReading"`
	Transmission    string       `json:"transmission,omitempty"`
	TechnologyFlags []string     `json:"technologyFlags,omitempty"`
	ServiceLevel    string       `json:"serviceLevel,omitempty"`
}

// PlantBatteryInfo summarises the battery population of a plant.
type PlantBatteryInfo struct {
	ID         string   `json:"id"`
	PlantID    string   `json:"plantId"`
	SiteID     string   `json:"siteId"`
	Region     string   `json:"region,omitempty"`
	BatteryIDs []string `json:"batteryIds,omitempty"`
}

// BatteryString is a series of battery blocks.
type BatteryString struct {
	Name       string   `json:"name"`
	BatteryIDs []string `json:"batteryIds"`
}

// RectifierType is a rectifier model and its installed quantity.
type RectifierType struct {
	Model      string  `json:"model"`
	RatedPower float64 `json:"ratedPower"`
	Quantity   int     `json:"quantity"`
}

// Monitoring and connection values that select a plant's string topology.
const (
	MonitoringRoutine = "routine"
	MonitoringLive    = "live"
	ConnectionLive    = "live"
)

// PlantConfig is one version of a plant's configuration.
type PlantConfig struct {
	ID                               string          `json:"id"`
	PlantID                          string          `json:"plantId"`
	SiteID                           string          `json:"siteId"`
	Region                           string          `json:"region,omitempty"`
	Date                             time.Time       `json:"date"`
	IsCurrent                        bool            `json:"isCurrent"`
	MonitoringType                   string          `json:"monitoringType,omitempty"`
	Connection                       string          `json:"connection,omitempty"`
	Strings                          []BatteryString `json:"strings,omitempty"`
	SNMPStrings                      []BatteryString `json:"snmpStrings,omitempty"`
	RectifierTypes                   []RectifierType `json:"rectifierTypes,omitempty"`
	TransmissionConfig               string          `json:"transmissionConfig,omitempty"`
	ServiceLevel                     string          `json:"serviceLevel,omitempty"`
	TechnologyFlags                  []string        `json:"technologyFlags,omitempty"`
	ThermalProbe                     bool            `json:"thermalProbe"`
	OptimalRuntimeThresholdsOverride []float64       `json:"optimalRuntimeThresholdsOverride,omitempty"`
	PowerPlantTypeID                 string          `json:"powerPlantTypeId,omitempty"`
}

// HasStrings reports whether any string topology is configured.
func (c PlantConfig) HasStrings() bool {
	return len(c.Strings) > 0 || len(c.SNMPStrings) > 0
}

// ActiveStrings selects the standard topology for routine or non-live plants
// and the SNMP topology for live-monitored plants.
func (c PlantConfig) ActiveStrings() []BatteryString {
	if c.MonitoringType == MonitoringRoutine || c.Connection != ConnectionLive {
		return c.Strings
	}
	return c.SNMPStrings
}

// BlocksPerString returns the length of the longest active string.
func (c PlantConfig) BlocksPerString() int {
	longest := 0
	for _, s := range c.ActiveStrings() {
		if len(s.BatteryIDs) > longest {
			longest = len(s.BatteryIDs)
		}
	}
	return longest
}

// PowerPlantType carries the electrical reference of a plant model.
type PowerPlantType struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	ReferenceVoltage float64 `json:"referenceVoltage"`
}

// PlantConfigAsOf returns the latest version whose date is at or before at.
func PlantConfigAsOf(configs []*PlantConfig, at time.Time) (*PlantConfig, error) {
	sorted := make([]*PlantConfig, 0, len(configs))
	for _, cfg := range configs {
		if cfg != nil {
			sorted = append(sorted, cfg)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date)
	})
	for _, cfg := range sorted {
		if !cfg.Date.After(at) {
			return cfg, nil
		}
	}
	return nil, ErrNoPlantConfig
}

// CurrentPlantConfig returns the version flagged current.
func CurrentPlantConfig(configs []*PlantConfig) (*PlantConfig, error) {
	for _, cfg := range configs {
		if cfg != nil && cfg.IsCurrent {
			return cfg, nil
		}
	}
	return nil, ErrNoPlantConfig
}
