// Package formula holds the pure electrical and chemical formulas used to
// classify plant health. Functions have no side effects.
package formula

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"plantfleet/internal/fleet/domain"
)

// referenceTemperature is the temperature float voltages are rated at.
const referenceTemperature = 25.0

// InstalledPower sums rated power across rectifier types, in watts.
func InstalledPower(rectifiers []domain.RectifierType) float64 {
	total := 0.0
	for _, r := range rectifiers {
		if r.RatedPower <= 0 || r.Quantity <= 0 {
			continue
		}
		total += r.RatedPower * float64(r.Quantity)
	}
	return total
}

// Utilization is the DC output as a percentage of installed rectifier power.
func Utilization(load, voltage, installedPower float64) float64 {
	if installedPower <= 0 {
		return 0
	}
	return load * voltage / installedPower * 100
}

// Runtime estimates backup hours from capacity (Ah) at the reference voltage
// against the present draw, derated by the degradation multiplier.
func Runtime(actualCapacity, referenceVoltage, load, voltage, degradation float64) float64 {
	if load <= 0 || voltage <= 0 {
		return math.Inf(1)
	}
	if degradation <= 0 {
		degradation = 1
	}
	return actualCapacity * referenceVoltage * degradation / (load * voltage)
}

// RoundTo rounds value to the given number of decimals.
func RoundTo(value float64, precision int) float64 {
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return value
	}
	if precision < 0 {
		precision = 0
	}
	scale := math.Pow(10, float64(precision))
	return math.Round(value*scale) / scale
}

// FloatVoltageTarget returns the float voltage of one block. With a thermal
// probe the charger compensates per cell for the distance from 25 °C.
func FloatVoltageTarget(temperature float64, probe bool, nominalVPC, compVoltPerCelsius float64, cells int) float64 {
	vpc := nominalVPC
	if probe {
		vpc -= compVoltPerCelsius * (temperature - referenceTemperature)
	}
	return vpc * float64(cells)
}

// Range is an inclusive voltage band.
type Range struct {
	Low  float64
	High float64
}

// Contains reports whether v lies within the band.
func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// FloatVoltageRanges derives the nominal and critical plant bands from a
// per-block target. The critical band is the nominal tolerance widened by the
// critical modifier.
func FloatVoltageRanges(blockTarget float64, blocks int, tolerance, criticalModifier float64) (nominal Range, critical Range) {
	target := blockTarget * float64(blocks)
	if criticalModifier < 1 {
		criticalModifier = 1
	}
	nominal = Range{Low: target * (1 - tolerance), High: target * (1 + tolerance)}
	critical = Range{Low: target * (1 - tolerance*criticalModifier), High: target * (1 + tolerance*criticalModifier)}
	return nominal, critical
}

// FloatVoltageStatus classifies a plant voltage against the float bands.
func FloatVoltageStatus(voltage float64, nominal, critical Range) int {
	switch {
	case nominal.Contains(voltage):
		return 0
	case critical.Contains(voltage):
		return 1
	default:
		return 2
	}
}

// RuntimeStatus counts the minimum-runtime thresholds the runtime falls below.
func RuntimeStatus(runtime float64, thresholds []float64) int {
	status := 0
	for _, t := range thresholds {
		if runtime < t {
			status++
		}
	}
	return status
}

// UtilizationStatus counts the utilization thresholds reached.
func UtilizationStatus(utilization float64, thresholds []float64) int {
	status := 0
	for _, t := range thresholds {
		if utilization >= t {
			status++
		}
	}
	return status
}

// TemperatureStatus counts the temperature thresholds exceeded.
func TemperatureStatus(temperature float64, thresholds []float64) int {
	status := 0
	for _, t := range thresholds {
		if temperature > t {
			status++
		}
	}
	return status
}

// ConductanceHealth is measured conductance as a percentage of nominal.
func ConductanceHealth(measured, nominal float64) (float64, bool) {
	if nominal <= 0 {
		return 0, false
	}
	return measured / nominal * 100, true
}

// MajorityBatteryType returns the most frequent type id. Ties resolve to the
// lexically smallest id.
func MajorityBatteryType(typeIDs []string) string {
	counts := make(map[string]int)
	for _, id := range typeIDs {
		if id == "" {
			continue
		}
		counts[id]++
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	best := ""
	for _, id := range ids {
		if best == "" || counts[id] > counts[best] {
			best = id
		}
	}
	return best
}

// Serial number set statuses.
const (
	SerialStatusHomogeneous  = 0
	SerialStatusMixed        = 1
	SerialStatusInconsistent = 2
)

// SerialNumberStatus classifies a set of battery serial numbers: 0 when all
// are present, unique and share a manufacturer prefix, 1 when prefixes are
// mixed, 2 when any is missing or duplicated.
func SerialNumberStatus(serials []string) int {
	seen := make(map[string]struct{}, len(serials))
	prefixes := make(map[string]struct{})
	for _, raw := range serials {
		serial := strings.ToUpper(strings.TrimSpace(raw))
		if serial == "" {
			return SerialStatusInconsistent
		}
		if _, dup := seen[serial]; dup {
			return SerialStatusInconsistent
		}
		seen[serial] = struct{}{}
		prefixes[serialPrefix(serial)] = struct{}{}
	}
	if len(prefixes) > 1 {
		return SerialStatusMixed
	}
	return SerialStatusHomogeneous
}

func serialPrefix(serial string) string {
	end := strings.IndexFunc(serial, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		return serial
	}
	return serial[:end]
}
