package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"plantfleet/internal/audit"
	"plantfleet/internal/fleet/condition"
	"plantfleet/internal/fleet/domain"
	"plantfleet/internal/fleet/formula"
	"plantfleet/internal/fleet/store"
	"plantfleet/internal/observability/metrics"
)

// Delta is what a step contributes to the audit trail.
type Delta struct {
	Comments      []audit.CommentUpdate
	SerialStatus  *int
	SerialChanges []audit.SerialChange
}

func (d *Delta) merge(other Delta) {
	d.Comments = append(d.Comments, other.Comments...)
	d.SerialChanges = append(d.SerialChanges, other.SerialChanges...)
	if other.SerialStatus != nil {
		d.SerialStatus = other.SerialStatus
	}
}

// stepEnv is the state shared by the steps of one transaction.
type stepEnv struct {
	tx      store.Tx
	snap    *Snapshot
	req     UpdateSiteRequest
	company domain.CompanyConfig
	catalog *txCatalog
	now     time.Time
	newID   func() string
	logger  zerolog.Logger

	targetDate    time.Time
	reading       domain.PlantReading
	routineEdited bool

	before *condition.Result
	after  *condition.Result
}

// step is one named mutation of the pipeline.
type step struct {
	name  string
	apply func(ctx context.Context, env *stepEnv) (Delta, error)
}

// pipeline lists the mutation steps in dependency order.
var pipeline = []step{
	{name: "site-fields", apply: applySiteFields},
	{name: "primary-tech", apply: applyPrimaryTech},
	{name: "plant-reading", apply: applyPlantReading},
	{name: "generator", apply: applyGenerator},
	{name: "batteries", apply: applyBatteries},
	{name: "region", apply: applyRegion},
	{name: "condition-recheck", apply: recheckCondition},
}

// prepare fixes the target date and the reading the transaction starts from.
func (env *stepEnv) prepare() {
	plant := env.snap.Plant
	if plant == nil {
		env.targetDate = env.now
		return
	}
	switch {
	case env.req.Routine != nil:
		env.targetDate = env.req.Routine.Date
	case !plant.LatestReading.Date.IsZero():
		env.targetDate = plant.LatestReading.Date
	default:
		env.targetDate = env.now
	}
	if env.snap.Routine != nil {
		env.reading = env.snap.Routine.Reading()
	} else {
		env.reading = plant.LatestReading
	}
}

// evaluate computes the plant condition for reading. Failures leave the
// condition unknown.
func (env *stepEnv) evaluate(ctx context.Context, reading domain.PlantReading) *condition.Result {
	if env.snap.Plant == nil {
		return nil
	}
	res, err := condition.Evaluate(ctx, env.catalog, condition.Input{
		Site:        env.snap.Site,
		PlantConfig: env.snap.PlantConfig,
		Routine:     env.snap.Routine,
		Company:     env.company,
		Reading:     reading,
		Date:        env.targetDate,
	})
	if err != nil {
		metrics.IncConditionEvaluation(metrics.ResultError)
		env.logger.Warn().Err(err).
			Str("site_id", env.snap.Site.ID).
			Str("plant_id", env.snap.Plant.ID).
			Msg("condition evaluation failed")
		return nil
	}
	metrics.IncConditionEvaluation(metrics.ResultSuccess)
	return &res
}

func applySiteFields(_ context.Context, env *stepEnv) (Delta, error) {
	site := env.snap.Site
	u := env.req.Site
	if u.Name != "" {
		site.Name = u.Name
	}
	if u.Address != "" {
		site.Address = u.Address
	}
	if u.Notes != "" {
		site.Notes = u.Notes
	}
	if u.AccessInstructions != "" {
		site.AccessInstructions = u.AccessInstructions
	}
	if u.Coords != nil {
		coords := *u.Coords
		site.Coords = &coords
	}
	if u.LocationType != "" {
		if location, ok := domain.ParseLocationType(u.LocationType); ok {
			site.LocationType = location
		} else {
			env.logger.Debug().Str("location_type", u.LocationType).Msg("ignoring unknown location type")
		}
	}
	return Delta{}, nil
}

func applyPrimaryTech(ctx context.Context, env *stepEnv) (Delta, error) {
	if !env.req.wantsPrimaryTech() {
		return Delta{}, nil
	}
	if env.snap.PrimaryTechType == nil {
		return Delta{}, domain.ErrAssociationTypeNotFound
	}
	for _, id := range env.snap.PrimaryTechAssociations {
		if err := env.tx.Remove(ctx, domain.CollectionSiteUserAssociations, id); err != nil {
			return Delta{}, fmt.Errorf("remove association %s: %w", id, err)
		}
	}
	assoc := domain.SiteUserAssociation{
		ID:                env.newID(),
		SiteID:            env.snap.Site.ID,
		UserID:            env.req.General.PrimaryTech,
		AssociationTypeID: env.snap.PrimaryTechType.ID,
	}
	if err := env.tx.Create(ctx, domain.CollectionSiteUserAssociations, assoc.ID, assoc); err != nil {
		return Delta{}, fmt.Errorf("create association: %w", err)
	}
	return Delta{}, nil
}

func applyPlantReading(ctx context.Context, env *stepEnv) (Delta, error) {
	plant := env.snap.Plant
	u := env.req.Plant
	if plant == nil || u == nil {
		return Delta{}, nil
	}
	cfg := env.snap.PlantConfig
	var delta Delta

	if input := env.req.reading(); input != nil {
		if cfg == nil {
			return Delta{}, fmt.Errorf("plant %s: %w", plant.PlantNum, domain.ErrNoPlantConfig)
		}
		installed := formula.InstalledPower(cfg.RectifierTypes)
		if len(cfg.RectifierTypes) == 0 || installed <= 0 {
			return Delta{}, fmt.Errorf("plant config %s: %w", cfg.ID, domain.ErrNoRectifierTypes)
		}
		if env.snap.Record == nil {
			return Delta{}, fmt.Errorf("plant %s: %w", plant.PlantNum, domain.ErrRecordNotFound)
		}

		reading := env.reading
		supplied := []struct {
			readingType domain.ReadingType
			value       *float64
			target      *float64
		}{
			{domain.ReadingLoad, input.Load, &reading.Load},
			{domain.ReadingVoltage, input.Voltage, &reading.Voltage},
			{domain.ReadingTemperature, input.Temperature, &reading.Temperature},
		}
		for _, s := range supplied {
			if s.value == nil {
				continue
			}
			comment, err := amend(env.snap.Record, s.readingType, env.targetDate, *s.value, true)
			if err != nil {
				return Delta{}, err
			}
			if comment != nil {
				delta.Comments = append(delta.Comments, *comment)
			}
			*s.target = *s.value
		}
		if input.ActualCapacity != nil {
			reading.ActualCapacity = *input.ActualCapacity
		}

		reading.Utilization = formula.RoundTo(formula.Utilization(reading.Load, reading.Voltage, installed), env.company.Precision)
		comment, err := amend(env.snap.Record, domain.ReadingUtilization, env.targetDate, reading.Utilization, false)
		if err != nil {
			return Delta{}, err
		}
		if comment != nil {
			delta.Comments = append(delta.Comments, *comment)
		}

		worst, err := condition.WorstBlockConductanceHealth(ctx, env.catalog, cfg)
		if err != nil {
			env.logger.Warn().Err(err).Str("plant_id", plant.ID).Msg("conductance health unavailable")
		} else if worst != nil {
			reading.WorstBlockConductanceHealth = worst
		}
		reading.Date = env.targetDate
		env.reading = reading

		if routine := env.snap.Routine; routine != nil {
			merged := reading
			routine.PlantReading = &merged
		}
		if plant.LatestReading.Date.Equal(env.targetDate) {
			plant.LatestReading = reading
		}
	}

	if u.Transmission != "" || u.ServiceLevel != "" || u.TechnologyFlags != nil {
		if cfg == nil {
			return Delta{}, fmt.Errorf("plant %s: %w", plant.PlantNum, domain.ErrNoPlantConfig)
		}
		if u.Transmission != "" {
			cfg.TransmissionConfig = u.Transmission
			plant.Transmission = u.Transmission
		}
		if u.ServiceLevel != "" {
			cfg.ServiceLevel = u.ServiceLevel
			plant.ServiceLevel = u.ServiceLevel
		}
		if u.TechnologyFlags != nil {
			flags := append([]string(nil), u.TechnologyFlags...)
			cfg.TechnologyFlags = flags
			plant.TechnologyFlags = append([]string(nil), flags...)
		}
	}

	// Any routine update restamps the routine, readings or not.
	if routine := env.snap.Routine; routine != nil && env.req.Routine != nil {
		routine.EditDate = env.now
		env.routineEdited = true
	}
	return delta, nil
}

// amend writes value into the record series and returns a comment when the
// stored value changed.
func amend(record *domain.PlantRecord, readingType domain.ReadingType, at time.Time, value float64, manual bool) (*audit.CommentUpdate, error) {
	prev, err := record.Amend(readingType, at, value)
	if err != nil {
		return nil, err
	}
	if prev == value {
		return nil, nil
	}
	return &audit.CommentUpdate{
		ReadingType: string(readingType),
		Prev:        audit.FormatValue(prev),
		New:         audit.FormatValue(value),
		Manual:      manual,
	}, nil
}

func applyGenerator(ctx context.Context, env *stepEnv) (Delta, error) {
	action := env.req.Site.GeneratorAction
	if action == "" {
		return Delta{}, nil
	}
	site := env.snap.Site
	now := env.now

	next := domain.SiteConfig{SiteID: site.ID}
	if prev := env.snap.SiteConfig; prev != nil {
		next = *prev
		prev.IsCurrent = false
	}
	next.ID = env.newID()
	next.Date = now
	next.IsCurrent = true

	switch action {
	case GeneratorRemove:
		if env.snap.Generator == nil {
			return Delta{}, domain.ErrGeneratorNotFound
		}
		removedAt := now
		env.snap.Generator.RemovalDate = &removedAt
		next.GeneratorID = ""
	case GeneratorAdd:
		generator := domain.Generator{
			ID:          env.newID(),
			SiteID:      site.ID,
			InstallDate: now,
		}
		if env.req.Site.Generator != nil {
			generator.Model = env.req.Site.Generator.Model
		}
		if err := env.tx.Create(ctx, domain.CollectionGenerators, generator.ID, generator); err != nil {
			return Delta{}, fmt.Errorf("create generator: %w", err)
		}
		next.GeneratorID = generator.ID
	default:
		return Delta{}, fmt.Errorf("%w: generator action %q", ErrInvalidRequest, action)
	}

	if err := env.tx.Create(ctx, domain.CollectionSiteConfigs, next.ID, next); err != nil {
		return Delta{}, fmt.Errorf("create site config: %w", err)
	}
	site.GeneratorID = next.GeneratorID
	return Delta{}, nil
}

func applyBatteries(ctx context.Context, env *stepEnv) (Delta, error) {
	u := env.req.Battery
	if u == nil || (len(u.SerialNumbers) == 0 && len(u.SupplementalBatteryIDs) == 0) {
		return Delta{}, nil
	}
	var delta Delta
	serials := make([]string, 0, len(u.SerialNumbers)+len(u.SupplementalBatteryIDs))
	touched := make(map[string]struct{}, len(u.SerialNumbers))
	for _, update := range u.SerialNumbers {
		battery, ok := env.snap.Batteries[update.BatteryID]
		if !ok || battery == nil {
			return Delta{}, fmt.Errorf("%w: %s", domain.ErrBatteryNotFound, update.BatteryID)
		}
		if battery.SerialNumber != update.SerialNumber {
			delta.SerialChanges = append(delta.SerialChanges, audit.SerialChange{
				BatteryID: battery.ID,
				Prev:      battery.SerialNumber,
				New:       update.SerialNumber,
			})
		}
		battery.SerialNumber = update.SerialNumber
		touched[update.BatteryID] = struct{}{}
		serials = append(serials, battery.SerialNumber)
	}
	for _, id := range u.SupplementalBatteryIDs {
		if _, ok := touched[id]; ok {
			continue
		}
		battery, err := env.catalog.Battery(ctx, id)
		if err != nil {
			return Delta{}, err
		}
		touched[id] = struct{}{}
		serials = append(serials, battery.SerialNumber)
	}
	status := formula.SerialNumberStatus(serials)
	delta.SerialStatus = &status
	return delta, nil
}

func applyRegion(_ context.Context, env *stepEnv) (Delta, error) {
	region := env.req.Site.Region
	if region == "" {
		return Delta{}, nil
	}
	env.snap.Site.Region = region
	for _, plant := range env.snap.Plants {
		plant.Region = region
	}
	for _, info := range env.snap.BatteryInfos {
		info.Region = region
	}
	for _, cfg := range env.snap.PlantConfigs {
		cfg.Region = region
	}
	if plant := env.snap.Plant; plant != nil {
		plant.Region = region
	}
	if cfg := env.snap.PlantConfig; cfg != nil {
		cfg.Region = region
	}
	return Delta{}, nil
}

func recheckCondition(ctx context.Context, env *stepEnv) (Delta, error) {
	env.after = env.evaluate(ctx, env.reading)
	if env.before == nil || env.after == nil || env.before.Condition == env.after.Condition {
		return Delta{}, nil
	}
	return Delta{Comments: []audit.CommentUpdate{{
		ReadingType: audit.ReadingCondition,
		Prev:        strconv.Itoa(env.before.Condition),
		New:         strconv.Itoa(env.after.Condition),
		Manual:      false,
	}}}, nil
}

var errStepAborted = errors.New("update site: step aborted")

func runPipeline(ctx context.Context, env *stepEnv) (Delta, error) {
	var total Delta
	for _, s := range pipeline {
		if err := ctx.Err(); err != nil {
			return Delta{}, fmt.Errorf("%w before %s: %w", errStepAborted, s.name, err)
		}
		delta, err := s.apply(ctx, env)
		if err != nil {
			return Delta{}, fmt.Errorf("%s: %w", s.name, err)
		}
		total.merge(delta)
	}
	return total, nil
}
