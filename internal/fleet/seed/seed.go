// Package seed writes a synthetic fleet into a store for local runs and load
// tests.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"plantfleet/internal/fleet/domain"
	"plantfleet/internal/fleet/formula"
	"plantfleet/internal/fleet/store"
)

const (
	PowerPlantTypeID  = "ppt-48v"
	BatteryTypeID     = "bt-agm-12v"
	AssociationTypeID = "at-primary-tech"

	blocksPerString = 4
	stringVoltage   = 54.0
)

var rectifiers = []domain.RectifierType{{Model: "R48-2750", RatedPower: 2750, Quantity: 2}}

// Options sizes the generated fleet.
type Options struct {
	SitePrefix    string
	Sites         int
	PlantsPerSite int
	Start         time.Time
	Days          int
	Region        string
	Logger        zerolog.Logger
}

// Summary counts what was written.
type Summary struct {
	Sites     int
	Skipped   int
	Plants    int
	Routines  int
	Batteries int
	SiteNums  []string
}

// SiteNum returns the site number of the i-th generated site, starting at 1.
func SiteNum(i int) string {
	return fmt.Sprintf("%d", 1000+i)
}

// Fleet seeds reference data once and then one transaction per site. Sites
// whose number already exists are skipped.
func Fleet(ctx context.Context, st store.Store, opts Options) (Summary, error) {
	if st == nil {
		return Summary{}, errors.New("seed: nil store")
	}
	if opts.Sites <= 0 || opts.PlantsPerSite <= 0 || opts.Days <= 0 {
		return Summary{}, errors.New("seed: sites, plants and days must be > 0")
	}
	if opts.SitePrefix == "" {
		opts.SitePrefix = "site-"
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().UTC().AddDate(0, 0, -opts.Days).Truncate(24 * time.Hour)
	}

	if err := st.RunInTransaction(ctx, seedReference); err != nil {
		return Summary{}, fmt.Errorf("seed reference data: %w", err)
	}

	var summary Summary
	for i := 1; i <= opts.Sites; i++ {
		var counts Summary
		err := st.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			counts = Summary{}
			return seedSite(ctx, tx, opts, i, &counts)
		})
		if err != nil {
			return summary, fmt.Errorf("seed site %s: %w", SiteNum(i), err)
		}
		summary.Sites += counts.Sites
		summary.Skipped += counts.Skipped
		summary.Plants += counts.Plants
		summary.Routines += counts.Routines
		summary.Batteries += counts.Batteries
		summary.SiteNums = append(summary.SiteNums, SiteNum(i))
		opts.Logger.Debug().Str("site_num", SiteNum(i)).Int("progress", i).Int("total", opts.Sites).Msg("seeded site")
	}
	opts.Logger.Info().Int("sites", summary.Sites).Int("skipped", summary.Skipped).Int("plants", summary.Plants).Msg("seed completed")
	return summary, nil
}

func createIfMissing(ctx context.Context, tx store.Tx, collection, id string, doc any) error {
	err := tx.Create(ctx, collection, id, doc)
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil
	}
	return err
}

func seedReference(ctx context.Context, tx store.Tx) error {
	if err := createIfMissing(ctx, tx, domain.CollectionPowerPlantTypes, PowerPlantTypeID, domain.PowerPlantType{
		ID: PowerPlantTypeID, Name: "48V DC", ReferenceVoltage: 48,
	}); err != nil {
		return err
	}
	if err := createIfMissing(ctx, tx, domain.CollectionBatteryTypes, BatteryTypeID, domain.BatteryType{
		ID: BatteryTypeID, Name: "AGM 12V 100Ah", Conductance: 1200, Capacity: 100,
		NominalVPCVoltage: 2.25, CompVoltPerCelsius: 0.003, Voltage: 12,
	}); err != nil {
		return err
	}
	return createIfMissing(ctx, tx, domain.CollectionAssociationTypes, AssociationTypeID, domain.AssociationType{
		ID: AssociationTypeID, Name: domain.AssociationPrimaryTechnician,
	})
}

func seedSite(ctx context.Context, tx store.Tx, opts Options, i int, counts *Summary) error {
	siteNum := SiteNum(i)
	existing, err := tx.QueryIDs(ctx, domain.CollectionSites, store.Query{Filter: map[string]any{"siteNum": siteNum}, Limit: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		counts.Skipped++
		return nil
	}

	siteID := fmt.Sprintf("%s%04d", opts.SitePrefix, i)
	site := domain.Site{
		ID:           siteID,
		SiteNum:      siteNum,
		Name:         fmt.Sprintf("Site %s", siteNum),
		LocationType: domain.LocationUrban,
		Region:       opts.Region,
	}
	if i%2 == 1 {
		site.LocationType = domain.LocationRural
	}
	siteConfig := domain.SiteConfig{ID: siteID + "-sc1", SiteID: siteID, Date: opts.Start, IsCurrent: true}
	if i%3 == 0 {
		generator := domain.Generator{ID: siteID + "-gen1", SiteID: siteID, Model: "DG-20", InstallDate: opts.Start}
		if err := tx.Create(ctx, domain.CollectionGenerators, generator.ID, generator); err != nil {
			return err
		}
		site.GeneratorID = generator.ID
		siteConfig.GeneratorID = generator.ID
	}
	if err := tx.Create(ctx, domain.CollectionSites, site.ID, site); err != nil {
		return err
	}
	if err := tx.Create(ctx, domain.CollectionSiteConfigs, siteConfig.ID, siteConfig); err != nil {
		return err
	}
	counts.Sites++

	for j := 1; j <= opts.PlantsPerSite; j++ {
		if err := seedPlant(ctx, tx, opts, site, i, j, counts); err != nil {
			return err
		}
	}
	return nil
}

func seedPlant(ctx context.Context, tx store.Tx, opts Options, site domain.Site, i, j int, counts *Summary) error {
	plantID := fmt.Sprintf("%s-p%d", site.ID, j)

	batteryIDs := make([]string, 0, blocksPerString)
	for b := 1; b <= blocksPerString; b++ {
		batteryID := fmt.Sprintf("%s-b%d", plantID, b)
		recordID := batteryID + "-rec"
		battery := domain.Battery{
			ID:                batteryID,
			SerialNumber:      fmt.Sprintf("SN%04d%02d%d", i, j, b),
			ManufacturingDate: opts.Start.AddDate(-2, 0, 0),
			CurrentRecordID:   recordID,
			BatteryTypeID:     BatteryTypeID,
		}
		record := domain.BatteryRecord{
			ID:          recordID,
			BatteryID:   batteryID,
			Conductance: []domain.SeriesPoint{{At: opts.Start, Value: float64(1000 + 40*((i+j+b)%5))}},
		}
		if err := tx.Create(ctx, domain.CollectionBatteries, battery.ID, battery); err != nil {
			return err
		}
		if err := tx.Create(ctx, domain.CollectionBatteryRecords, record.ID, record); err != nil {
			return err
		}
		batteryIDs = append(batteryIDs, batteryID)
		counts.Batteries++
	}

	cfg := domain.PlantConfig{
		ID:               plantID + "-cfg1",
		PlantID:          plantID,
		SiteID:           site.ID,
		Region:           site.Region,
		Date:             opts.Start,
		IsCurrent:        true,
		MonitoringType:   domain.MonitoringRoutine,
		Strings:          []domain.BatteryString{{Name: "A", BatteryIDs: batteryIDs}},
		RectifierTypes:   rectifiers,
		ThermalProbe:     true,
		PowerPlantTypeID: PowerPlantTypeID,
	}
	if err := tx.Create(ctx, domain.CollectionPlantConfigs, cfg.ID, cfg); err != nil {
		return err
	}
	info := domain.PlantBatteryInfo{ID: plantID + "-info", PlantID: plantID, SiteID: site.ID, Region: site.Region, BatteryIDs: batteryIDs}
	if err := tx.Create(ctx, domain.CollectionPlantBatteryInfo, info.ID, info); err != nil {
		return err
	}

	installed := formula.InstalledPower(rectifiers)
	base := 60 + 10*float64((i+j)%5)
	series := map[domain.ReadingType]*domain.RecordSeries{}
	order := []domain.ReadingType{domain.ReadingLoad, domain.ReadingVoltage, domain.ReadingTemperature, domain.ReadingUtilization}
	for _, rt := range order {
		series[rt] = &domain.RecordSeries{ReadingType: rt}
	}
	var latest domain.PlantReading
	for day := 0; day < opts.Days; day++ {
		at := opts.Start.AddDate(0, 0, day)
		load := base + float64(day%4)
		reading := domain.PlantReading{
			Date:           at,
			Load:           load,
			Voltage:        stringVoltage,
			Temperature:    22 + float64(day%5),
			Utilization:    formula.RoundTo(formula.Utilization(load, stringVoltage, installed), 1),
			ActualCapacity: 400,
		}
		series[domain.ReadingLoad].Points = append(series[domain.ReadingLoad].Points, domain.SeriesPoint{At: at, Value: reading.Load})
		series[domain.ReadingVoltage].Points = append(series[domain.ReadingVoltage].Points, domain.SeriesPoint{At: at, Value: reading.Voltage})
		series[domain.ReadingTemperature].Points = append(series[domain.ReadingTemperature].Points, domain.SeriesPoint{At: at, Value: reading.Temperature})
		series[domain.ReadingUtilization].Points = append(series[domain.ReadingUtilization].Points, domain.SeriesPoint{At: at, Value: reading.Utilization})

		routine := domain.Routine{
			ID:           fmt.Sprintf("%s-rt%03d", plantID, day+1),
			PlantID:      plantID,
			SiteID:       site.ID,
			Date:         at,
			PlantReading: &reading,
			EditDate:     at,
		}
		if err := tx.Create(ctx, domain.CollectionRoutines, routine.ID, routine); err != nil {
			return err
		}
		counts.Routines++
		latest = reading
	}

	record := domain.PlantRecord{ID: plantID + "-rec", PlantID: plantID}
	for _, rt := range order {
		record.Series = append(record.Series, *series[rt])
	}
	if err := tx.Create(ctx, domain.CollectionPlantRecords, record.ID, record); err != nil {
		return err
	}

	plant := domain.PowerPlant{
		ID:            plantID,
		SiteID:        site.ID,
		PlantNum:      fmt.Sprintf("P%d", j),
		Region:        site.Region,
		LatestReading: latest,
	}
	if err := tx.Create(ctx, domain.CollectionPowerPlants, plant.ID, plant); err != nil {
		return err
	}
	counts.Plants++
	return nil
}
