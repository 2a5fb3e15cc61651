package domain

// RuntimeThresholdRule selects runtime thresholds for a class of sites.
// Empty selectors match anything.
type RuntimeThresholdRule struct {
	HasGenerator *bool     `yaml:"has_generator" json:"hasGenerator,omitempty"`
	LocationType string    `yaml:"location_type" json:"locationType,omitempty"`
	Transmission string    `yaml:"transmission" json:"transmission,omitempty"`
	Thresholds   []float64 `yaml:"thresholds" json:"thresholds"`
}

func (r RuntimeThresholdRule) matches(hasGenerator bool, location LocationType, transmission string) bool {
	if r.HasGenerator != nil && *r.HasGenerator != hasGenerator {
		return false
	}
	if r.LocationType != "" && LocationType(r.LocationType) != location {
		return false
	}
	if r.Transmission != "" && r.Transmission != transmission {
		return false
	}
	return true
}

// CompanyConfig holds the company-wide thresholds and formula constants.
type CompanyConfig struct {
	Precision                int                    `yaml:"precision" json:"precision"`
	DegradationMultiplier    float64                `yaml:"degradation_multiplier" json:"degradationMultiplier"`
	CriticalFloatModifier    float64                `yaml:"critical_float_modifier" json:"criticalFloatModifier"`
	FloatVoltageTolerance    float64                `yaml:"float_voltage_tolerance" json:"floatVoltageTolerance"`
	UtilizationThresholds    [][]float64            `yaml:"utilization_thresholds" json:"utilizationThresholds"`
	TemperatureThresholds    []float64              `yaml:"temperature_thresholds" json:"temperatureThresholds"`
	RuntimeThresholds        []RuntimeThresholdRule `yaml:"runtime_thresholds" json:"runtimeThresholds"`
	DefaultRuntimeThresholds []float64              `yaml:"default_runtime_thresholds" json:"defaultRuntimeThresholds"`
}

// DefaultCompanyConfig returns the baseline configuration.
func DefaultCompanyConfig() CompanyConfig {
	withGenerator := true
	return CompanyConfig{
		Precision:             1,
		DegradationMultiplier: 0.8,
		CriticalFloatModifier: 2,
		FloatVoltageTolerance: 0.01,
		UtilizationThresholds: [][]float64{{80, 90}},
		TemperatureThresholds: []float64{30, 40},
		RuntimeThresholds: []RuntimeThresholdRule{
			{HasGenerator: &withGenerator, Thresholds: []float64{4, 2}},
			{LocationType: string(LocationRural), Thresholds: []float64{8, 4}},
		},
		DefaultRuntimeThresholds: []float64{6, 3},
	}
}

// Merge overlays the non-zero fields of override onto c.
func (c CompanyConfig) Merge(override CompanyConfig) CompanyConfig {
	if override.Precision != 0 {
		c.Precision = override.Precision
	}
	if override.DegradationMultiplier != 0 {
		c.DegradationMultiplier = override.DegradationMultiplier
	}
	if override.CriticalFloatModifier != 0 {
		c.CriticalFloatModifier = override.CriticalFloatModifier
	}
	if override.FloatVoltageTolerance != 0 {
		c.FloatVoltageTolerance = override.FloatVoltageTolerance
	}
	if len(override.UtilizationThresholds) > 0 {
		c.UtilizationThresholds = override.UtilizationThresholds
	}
	if len(override.TemperatureThresholds) > 0 {
		c.TemperatureThresholds = override.TemperatureThresholds
	}
	if len(override.RuntimeThresholds) > 0 {
		c.RuntimeThresholds = override.RuntimeThresholds
	}
	if len(override.DefaultRuntimeThresholds) > 0 {
		c.DefaultRuntimeThresholds = override.DefaultRuntimeThresholds
	}
	return c
}

// RuntimeThresholdsFor returns the first matching rule's thresholds, or the defaults.
func (c CompanyConfig) RuntimeThresholdsFor(hasGenerator bool, location LocationType, transmission string) []float64 {
	for _, rule := range c.RuntimeThresholds {
		if rule.matches(hasGenerator, location, transmission) {
			return rule.Thresholds
		}
	}
	return c.DefaultRuntimeThresholds
}

// PrimaryUtilizationThresholds returns the first utilization table.
func (c CompanyConfig) PrimaryUtilizationThresholds() []float64 {
	if len(c.UtilizationThresholds) == 0 {
		return nil
	}
	return c.UtilizationThresholds[0]
}
