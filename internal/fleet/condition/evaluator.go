// Package condition classifies the operating condition of a power plant.
//
// A condition is an ordinal severity: 0 is nominal and higher values are
// worse. It is the maximum of the manual override tier and the runtime,
// utilization, float-voltage and temperature statuses.
package condition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"plantfleet/internal/fleet/domain"
	"plantfleet/internal/fleet/formula"
)

var (
	// ErrMissingInput is returned when the snapshot lacks a site or plant config.
	ErrMissingInput = errors.New("condition: missing site or plant config")
	// ErrPowerPlantTypeNotFound is returned when the plant type cannot be resolved.
	ErrPowerPlantTypeNotFound = errors.New("condition: power plant type not found")
)

// Override tiers of a routine upload.
const (
	OverrideNone = 0
	OverrideWarn = 1
	OverrideHigh = 2
)

// Catalog resolves the reference entities the evaluation reads.
// Battery lookups report domain.ErrBatteryNotFound for unknown ids.
type Catalog interface {
	SiteConfigs(ctx context.Context, siteID string) ([]domain.SiteConfig, error)
	PowerPlantType(ctx context.Context, id string) (*domain.PowerPlantType, error)
	RoutineUpload(ctx context.Context, id string) (*domain.RoutineUpload, error)
	Battery(ctx context.Context, id string) (*domain.Battery, error)
	BatteryType(ctx context.Context, id string) (*domain.BatteryType, error)
	BatteryRecord(ctx context.Context, id string) (*domain.BatteryRecord, error)
}

// Input is the snapshot a condition is computed from.
type Input struct {
	Site        *domain.Site
	PlantConfig *domain.PlantConfig
	Routine     *domain.Routine
	Company     domain.CompanyConfig
	Reading     domain.PlantReading
	Date        time.Time
}

// Result carries the condition and every signal that fed it.
type Result struct {
	Condition          int
	Override           int
	Runtime            float64
	Utilization        float64
	RuntimeStatus      int
	UtilizationStatus  int
	FloatVoltageStatus int
	TemperatureStatus  int
	RuntimeThresholds  []float64
	PrimaryBatteryType string
}

// Evaluate computes the plant condition for in.
func Evaluate(ctx context.Context, catalog Catalog, in Input) (Result, error) {
	if in.Site == nil || in.PlantConfig == nil {
		return Result{}, ErrMissingInput
	}
	if catalog == nil {
		return Result{}, errors.New("condition: nil catalog")
	}

	configs, err := catalog.SiteConfigs(ctx, in.Site.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load site configs: %w", err)
	}
	siteConfig, err := domain.SiteConfigAsOf(configs, in.Date)
	if err != nil {
		return Result{}, err
	}

	referenceVoltage, err := resolveReferenceVoltage(ctx, catalog, in.PlantConfig)
	if err != nil {
		return Result{}, err
	}

	company := in.Company
	reading := in.Reading
	runtime := formula.Runtime(reading.ActualCapacity, referenceVoltage, reading.Load, reading.Voltage, company.DegradationMultiplier)

	override, err := resolveOverride(ctx, catalog, in.Routine)
	if err != nil {
		return Result{}, err
	}

	batteryType, err := primaryBatteryType(ctx, catalog, in.PlantConfig)
	if err != nil {
		return Result{}, err
	}

	floatStatus := 0
	if in.PlantConfig.ThermalProbe && batteryType != nil && batteryType.HasVPC() {
		blocks := in.PlantConfig.BlocksPerString()
		if blocks > 0 {
			target := formula.FloatVoltageTarget(reading.Temperature, in.PlantConfig.ThermalProbe, batteryType.NominalVPCVoltage, batteryType.CompVoltPerCelsius, batteryType.CellsPerBlock())
			nominal, critical := formula.FloatVoltageRanges(target, blocks, company.FloatVoltageTolerance, company.CriticalFloatModifier)
			floatStatus = formula.FloatVoltageStatus(reading.Voltage, nominal, critical)
		}
	}

	thresholds := in.PlantConfig.OptimalRuntimeThresholdsOverride
	if len(thresholds) == 0 {
		thresholds = company.RuntimeThresholdsFor(siteConfig.HasGenerator(), in.Site.LocationType, in.PlantConfig.TransmissionConfig)
	}

	res := Result{
		Override:           override,
		Runtime:            formula.RoundTo(runtime, company.Precision),
		Utilization:        formula.RoundTo(reading.Utilization, company.Precision),
		FloatVoltageStatus: floatStatus,
		RuntimeThresholds:  thresholds,
	}
	if batteryType != nil {
		res.PrimaryBatteryType = batteryType.ID
	}
	res.RuntimeStatus = formula.RuntimeStatus(res.Runtime, thresholds)
	res.UtilizationStatus = formula.UtilizationStatus(res.Utilization, company.PrimaryUtilizationThresholds())
	res.TemperatureStatus = formula.TemperatureStatus(reading.Temperature, company.TemperatureThresholds)
	res.Condition = max(res.Override, res.RuntimeStatus, res.UtilizationStatus, res.FloatVoltageStatus, res.TemperatureStatus)
	return res, nil
}

func resolveReferenceVoltage(ctx context.Context, catalog Catalog, cfg *domain.PlantConfig) (float64, error) {
	if cfg.PowerPlantTypeID == "" {
		return 0, ErrPowerPlantTypeNotFound
	}
	plantType, err := catalog.PowerPlantType(ctx, cfg.PowerPlantTypeID)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrPowerPlantTypeNotFound, cfg.PowerPlantTypeID, err)
	}
	if plantType == nil {
		return 0, ErrPowerPlantTypeNotFound
	}
	return plantType.ReferenceVoltage, nil
}

// OverrideTier maps a manual condition override to its severity floor.
func OverrideTier(value string) int {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return OverrideNone
	case strings.EqualFold(value, "warn"):
		return OverrideWarn
	default:
		return OverrideHigh
	}
}

func resolveOverride(ctx context.Context, catalog Catalog, routine *domain.Routine) (int, error) {
	if routine == nil || routine.RoutineUploadID == "" {
		return OverrideNone, nil
	}
	upload, err := catalog.RoutineUpload(ctx, routine.RoutineUploadID)
	if err != nil {
		return 0, fmt.Errorf("load routine upload %s: %w", routine.RoutineUploadID, err)
	}
	if upload == nil {
		return OverrideNone, nil
	}
	return OverrideTier(upload.ConditionOverride), nil
}

func activeBatteryIDs(cfg *domain.PlantConfig) []string {
	var ids []string
	for _, s := range cfg.ActiveStrings() {
		ids = append(ids, s.BatteryIDs...)
	}
	return ids
}

// primaryBatteryType returns the majority battery type of the active strings,
// or nil when the plant has no string topology.
func primaryBatteryType(ctx context.Context, catalog Catalog, cfg *domain.PlantConfig) (*domain.BatteryType, error) {
	if !cfg.HasStrings() {
		return nil, nil
	}
	var typeIDs []string
	for _, id := range activeBatteryIDs(cfg) {
		battery, err := catalog.Battery(ctx, id)
		if errors.Is(err, domain.ErrBatteryNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load battery %s: %w", id, err)
		}
		typeIDs = append(typeIDs, battery.BatteryTypeID)
	}
	majority := formula.MajorityBatteryType(typeIDs)
	if majority == "" {
		return nil, nil
	}
	batteryType, err := catalog.BatteryType(ctx, majority)
	if err != nil {
		return nil, fmt.Errorf("load battery type %s: %w", majority, err)
	}
	return batteryType, nil
}

// WorstBlockConductanceHealth returns the lowest conductance health across
// every battery of the active strings, or nil when no battery has both a
// measurement and a nominal rating.
func WorstBlockConductanceHealth(ctx context.Context, catalog Catalog, cfg *domain.PlantConfig) (*float64, error) {
	if cfg == nil || catalog == nil {
		return nil, nil
	}
	worst := math.Inf(1)
	types := make(map[string]*domain.BatteryType)
	for _, id := range activeBatteryIDs(cfg) {
		battery, err := catalog.Battery(ctx, id)
		if errors.Is(err, domain.ErrBatteryNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load battery %s: %w", id, err)
		}
		if battery.CurrentRecordID == "" || battery.BatteryTypeID == "" {
			continue
		}
		batteryType, ok := types[battery.BatteryTypeID]
		if !ok {
			batteryType, err = catalog.BatteryType(ctx, battery.BatteryTypeID)
			if err != nil {
				return nil, fmt.Errorf("load battery type %s: %w", battery.BatteryTypeID, err)
			}
			types[battery.BatteryTypeID] = batteryType
		}
		record, err := catalog.BatteryRecord(ctx, battery.CurrentRecordID)
		if err != nil {
			return nil, fmt.Errorf("load battery record %s: %w", battery.CurrentRecordID, err)
		}
		latest, ok := record.Latest()
		if !ok || batteryType == nil {
			continue
		}
		health, ok := formula.ConductanceHealth(latest.Value, batteryType.Conductance)
		if ok && health < worst {
			worst = health
		}
	}
	if math.IsInf(worst, 1) {
		return nil, nil
	}
	return &worst, nil
}
