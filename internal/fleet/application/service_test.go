package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantfleet/internal/audit"
	"plantfleet/internal/fleet/domain"
	"plantfleet/internal/fleet/infrastructure/memory"
)

var (
	fixedNow    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	routineDate = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
)

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time {
	return c.now
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ConditionEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event ConditionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	next := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("new-%d", next)
	}
}

func ptr(v float64) *float64 {
	return &v
}

type fixture struct {
	t        *testing.T
	store    *memory.Store
	service  *Service
	notifier *recordingNotifier
}

func seed(t *testing.T, st *memory.Store, collection, id string, doc any) {
	t.Helper()
	require.NoError(t, st.Seed(collection, id, doc))
}

// newFixture seeds one site with two plants. Plant P1 carries a routine
// whose reading puts it at condition 2 through utilization, while its record
// already holds the lower load of 80.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.NewStore()
	configDate := routineDate.AddDate(0, -1, 0)

	seed(t, st, domain.CollectionSites, "site-1", domain.Site{
		ID: "site-1", SiteNum: "100", Name: "North Ridge", LocationType: domain.LocationUrban, Region: "north",
	})
	seed(t, st, domain.CollectionSiteConfigs, "sc-1", domain.SiteConfig{
		ID: "sc-1", SiteID: "site-1", Date: configDate, IsCurrent: true,
	})
	seed(t, st, domain.CollectionPowerPlantTypes, "ppt-48", domain.PowerPlantType{ID: "ppt-48", Name: "48V", ReferenceVoltage: 48})

	routineReading := domain.PlantReading{Date: routineDate, Load: 100, Voltage: 50, Temperature: 25, Utilization: 90.9, ActualCapacity: 1000}
	seed(t, st, domain.CollectionPowerPlants, "plant-1", domain.PowerPlant{
		ID: "plant-1", SiteID: "site-1", PlantNum: "P1", Region: "north", LatestReading: routineReading,
	})
	seed(t, st, domain.CollectionPowerPlants, "plant-2", domain.PowerPlant{
		ID: "plant-2", SiteID: "site-1", PlantNum: "P2", Region: "north",
	})
	seed(t, st, domain.CollectionPlantBatteryInfo, "pbi-1", domain.PlantBatteryInfo{ID: "pbi-1", PlantID: "plant-1", SiteID: "site-1", Region: "north"})
	seed(t, st, domain.CollectionPlantBatteryInfo, "pbi-2", domain.PlantBatteryInfo{ID: "pbi-2", PlantID: "plant-2", SiteID: "site-1", Region: "north"})
	for _, id := range []string{"1", "2"} {
		seed(t, st, domain.CollectionPlantConfigs, "pc-"+id, domain.PlantConfig{
			ID:               "pc-" + id,
			PlantID:          "plant-" + id,
			SiteID:           "site-1",
			Region:           "north",
			Date:             configDate,
			IsCurrent:        true,
			MonitoringType:   domain.MonitoringRoutine,
			RectifierTypes:   []domain.RectifierType{{Model: "R48", RatedPower: 2750, Quantity: 2}},
			PowerPlantTypeID: "ppt-48",
		})
	}
	point := func(v float64) []domain.SeriesPoint {
		return []domain.SeriesPoint{{At: routineDate, Value: v}}
	}
	seed(t, st, domain.CollectionPlantRecords, "rec-1", domain.PlantRecord{
		ID:      "rec-1",
		PlantID: "plant-1",
		Series: []domain.RecordSeries{
			{ReadingType: domain.ReadingLoad, Points: point(80)},
			{ReadingType: domain.ReadingVoltage, Points: point(50)},
			{ReadingType: domain.ReadingTemperature, Points: point(25)},
			{ReadingType: domain.ReadingUtilization, Points: point(72.7)},
		},
	})
	seed(t, st, domain.CollectionRoutines, "rt-1", domain.Routine{
		ID: "rt-1", PlantID: "plant-1", SiteID: "site-1", Date: routineDate, PlantReading: &routineReading,
	})
	seed(t, st, domain.CollectionBatteries, "b1", domain.Battery{ID: "b1", SerialNumber: "OLD123"})
	seed(t, st, domain.CollectionBatteries, "b2", domain.Battery{ID: "b2", SerialNumber: "NEW457"})
	seed(t, st, domain.CollectionAssociationTypes, "at-1", domain.AssociationType{ID: "at-1", Name: domain.AssociationPrimaryTechnician})
	seed(t, st, domain.CollectionSiteUserAssociations, "assoc-1", domain.SiteUserAssociation{
		ID: "assoc-1", SiteID: "site-1", UserID: "user-old", AssociationTypeID: "at-1",
	})

	notifier := &recordingNotifier{}
	service, err := NewService(st, StaticCompanyConfig(domain.DefaultCompanyConfig()),
		WithClock(fakeClock{now: fixedNow}),
		WithIDGenerator(sequentialIDs()),
		WithNotifier(notifier),
	)
	require.NoError(t, err)
	return &fixture{t: t, store: st, service: service, notifier: notifier}
}

func load[T any](f *fixture, collection, id string) T {
	f.t.Helper()
	var out T
	require.NoError(f.t, f.store.Load(collection, id, &out))
	return out
}

func routineLoadRequest(value float64) UpdateSiteRequest {
	return UpdateSiteRequest{
		Submitter: "tech@example.com",
		Site:      SiteUpdates{SiteNum: "100"},
		Plant:     &PlantUpdates{PlantNum: "P1"},
		Routine: &RoutineUpdates{
			Date:          routineDate,
			LatestReading: &ReadingInput{Load: ptr(value)},
		},
	}
}

func TestUpdateSiteConditionImproves(t *testing.T) {
	f := newFixture(t)

	out, err := f.service.UpdateSite(context.Background(), routineLoadRequest(80))
	require.NoError(t, err)
	require.NotNil(t, out.PreviousCondition)
	require.NotNil(t, out.Condition)
	assert.Equal(t, 2, *out.PreviousCondition)
	assert.Equal(t, 0, *out.Condition)

	require.Len(t, out.LogItems, 1)
	item := out.LogItems[0]
	assert.Equal(t, audit.KindComment, item.Kind)
	assert.Equal(t, "plant-1", item.PlantID)
	assert.True(t, item.Date.Equal(fixedNow))
	assert.Equal(t, []audit.CommentUpdate{{ReadingType: audit.ReadingCondition, Prev: "2", New: "0"}}, item.CommentUpdates)

	stored := load[audit.LogItem](f, domain.CollectionLogItems, item.ID)
	assert.Equal(t, "tech@example.com", stored.Submitter)
	assert.NotEmpty(t, stored.PayloadDigest)

	routine := load[domain.Routine](f, domain.CollectionRoutines, "rt-1")
	require.NotNil(t, routine.PlantReading)
	assert.Equal(t, 80.0, routine.PlantReading.Load)
	assert.Equal(t, 72.7, routine.PlantReading.Utilization)
	assert.True(t, routine.EditDate.Equal(fixedNow))

	plant := load[domain.PowerPlant](f, domain.CollectionPowerPlants, "plant-1")
	assert.Equal(t, 80.0, plant.LatestReading.Load)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, 2, f.notifier.events[0].Previous)
	assert.Equal(t, 0, f.notifier.events[0].Current)
	assert.Equal(t, item.ID, f.notifier.events[0].LogItemID)
}

func TestUpdateSiteLogsAmendedReadings(t *testing.T) {
	f := newFixture(t)

	out, err := f.service.UpdateSite(context.Background(), routineLoadRequest(90))
	require.NoError(t, err)
	require.Len(t, out.LogItems, 1)
	assert.Equal(t, []audit.CommentUpdate{
		{ReadingType: string(domain.ReadingLoad), Prev: "80", New: "90", Manual: true},
		{ReadingType: string(domain.ReadingUtilization), Prev: "72.7", New: "81.8"},
		{ReadingType: audit.ReadingCondition, Prev: "2", New: "1"},
	}, out.LogItems[0].CommentUpdates)

	record := load[domain.PlantRecord](f, domain.CollectionPlantRecords, "rec-1")
	value, ok := record.ValueAt(domain.ReadingLoad, routineDate)
	require.True(t, ok)
	assert.Equal(t, 90.0, value)
}

func TestUpdateSiteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.UpdateSite(ctx, routineLoadRequest(80))
	require.NoError(t, err)
	out, err := f.service.UpdateSite(ctx, routineLoadRequest(80))
	require.NoError(t, err)

	assert.Empty(t, out.LogItems)
	assert.Equal(t, *out.PreviousCondition, *out.Condition)
	assert.Len(t, f.store.IDs(domain.CollectionLogItems), 1)
	assert.Len(t, f.notifier.events, 1)
}

func TestUpdateSiteRollsBackOnUncoveredReading(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Seed(domain.CollectionPlantRecords, "rec-1", domain.PlantRecord{
		ID:      "rec-1",
		PlantID: "plant-1",
		Series: []domain.RecordSeries{
			{ReadingType: domain.ReadingLoad, Points: []domain.SeriesPoint{{At: routineDate.Add(time.Hour), Value: 80}}},
		},
	}))
	before := load[domain.Routine](f, domain.CollectionRoutines, "rt-1")

	req := routineLoadRequest(80)
	req.Site.Name = "Renamed"
	_, err := f.service.UpdateSite(ctx, req)
	require.ErrorIs(t, err, domain.ErrNoCoveringRecord)

	assert.Equal(t, before, load[domain.Routine](f, domain.CollectionRoutines, "rt-1"))
	assert.Equal(t, "North Ridge", load[domain.Site](f, domain.CollectionSites, "site-1").Name)
	assert.Empty(t, f.store.IDs(domain.CollectionLogItems))
	assert.Empty(t, f.notifier.events)
}

func TestUpdateSiteFieldsOnly(t *testing.T) {
	f := newFixture(t)
	plantBefore := load[domain.PowerPlant](f, domain.CollectionPowerPlants, "plant-1")
	configBefore := load[domain.PlantConfig](f, domain.CollectionPlantConfigs, "pc-1")

	out, err := f.service.UpdateSite(context.Background(), UpdateSiteRequest{
		Site: SiteUpdates{
			SiteNum:      "100",
			Name:         "North Ridge 2",
			LocationType: "suburban",
			Coords:       &domain.Coords{Lat: 1.5, Lng: 2.5},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, out.Condition)
	assert.Empty(t, out.LogItems)

	site := load[domain.Site](f, domain.CollectionSites, "site-1")
	assert.Equal(t, "North Ridge 2", site.Name)
	assert.Equal(t, domain.LocationUrban, site.LocationType)
	assert.Equal(t, &domain.Coords{Lat: 1.5, Lng: 2.5}, site.Coords)

	assert.Equal(t, plantBefore, load[domain.PowerPlant](f, domain.CollectionPowerPlants, "plant-1"))
	assert.Equal(t, configBefore, load[domain.PlantConfig](f, domain.CollectionPlantConfigs, "pc-1"))
	assert.Len(t, f.store.IDs(domain.CollectionSiteConfigs), 1)
}

func TestUpdateSiteRemovesGenerator(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Seed(domain.CollectionGenerators, "gen-1", domain.Generator{
		ID: "gen-1", SiteID: "site-1", InstallDate: routineDate.AddDate(-1, 0, 0),
	}))
	require.NoError(t, f.store.Seed(domain.CollectionSiteConfigs, "sc-1", domain.SiteConfig{
		ID: "sc-1", SiteID: "site-1", Date: routineDate.AddDate(0, -1, 0), IsCurrent: true, GeneratorID: "gen-1",
	}))

	_, err := f.service.UpdateSite(context.Background(), UpdateSiteRequest{
		Site: SiteUpdates{SiteNum: "100", GeneratorAction: GeneratorRemove},
	})
	require.NoError(t, err)

	generator := load[domain.Generator](f, domain.CollectionGenerators, "gen-1")
	require.NotNil(t, generator.RemovalDate)
	assert.True(t, generator.RemovalDate.Equal(fixedNow))

	previous := load[domain.SiteConfig](f, domain.CollectionSiteConfigs, "sc-1")
	assert.False(t, previous.IsCurrent)
	current := load[domain.SiteConfig](f, domain.CollectionSiteConfigs, "new-1")
	assert.True(t, current.IsCurrent)
	assert.False(t, current.HasGenerator())
	assert.True(t, current.Date.Equal(fixedNow))

	assert.Empty(t, load[domain.Site](f, domain.CollectionSites, "site-1").GeneratorID)
}

func TestUpdateSiteAddsGenerator(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.UpdateSite(context.Background(), UpdateSiteRequest{
		Site: SiteUpdates{SiteNum: "100", GeneratorAction: GeneratorAdd, Generator: &GeneratorInput{Model: "G-20"}},
	})
	require.NoError(t, err)

	var current []domain.SiteConfig
	for _, id := range f.store.IDs(domain.CollectionSiteConfigs) {
		cfg := load[domain.SiteConfig](f, domain.CollectionSiteConfigs, id)
		if cfg.IsCurrent {
			current = append(current, cfg)
		}
	}
	require.Len(t, current, 1)
	assert.Equal(t, "new-2", current[0].GeneratorID)

	generator := load[domain.Generator](f, domain.CollectionGenerators, "new-2")
	assert.Equal(t, "G-20", generator.Model)
	assert.Nil(t, generator.RemovalDate)
	assert.Equal(t, "new-2", load[domain.Site](f, domain.CollectionSites, "site-1").GeneratorID)
}

func TestUpdateSiteRemoveWithoutGenerator(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.UpdateSite(context.Background(), UpdateSiteRequest{
		Site: SiteUpdates{SiteNum: "100", GeneratorAction: GeneratorRemove},
	})
	require.ErrorIs(t, err, domain.ErrGeneratorNotFound)
	assert.Len(t, f.store.IDs(domain.CollectionSiteConfigs), 1)
}

func TestUpdateSiteSerialNumbers(t *testing.T) {
	cases := []struct {
		name   string
		serial string
		status int
	}{
		{name: "homogeneous", serial: "NEW456", status: 0},
		{name: "mixed prefixes", serial: "XYZ456", status: 1},
		{name: "duplicate", serial: "new457", status: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)

			out, err := f.service.UpdateSite(context.Background(), UpdateSiteRequest{
				Submitter: "tech@example.com",
				Site:      SiteUpdates{SiteNum: "100"},
				Battery: &BatteryUpdates{
					SerialNumbers:          []SerialNumberUpdate{{BatteryID: "b1", SerialNumber: tc.serial}},
					SupplementalBatteryIDs: []string{"b2"},
				},
			})
			require.NoError(t, err)
			require.NotNil(t, out.SerialStatus)
			assert.Equal(t, tc.status, *out.SerialStatus)

			require.Len(t, out.LogItems, 1)
			item := out.LogItems[0]
			assert.Equal(t, audit.KindSerialNumber, item.Kind)
			assert.Equal(t, fmt.Sprint(tc.status), item.CommentUpdates[0].New)
			assert.Equal(t, []audit.SerialChange{{BatteryID: "b1", Prev: "OLD123", New: tc.serial}}, item.SerialChanges)

			assert.Equal(t, tc.serial, load[domain.Battery](f, domain.CollectionBatteries, "b1").SerialNumber)
			assert.Equal(t, "NEW457", load[domain.Battery](f, domain.CollectionBatteries, "b2").SerialNumber)
		})
	}
}

func TestUpdateSiteUnknownBattery(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.UpdateSite(context.Background(), UpdateSiteRequest{
		Site:    SiteUpdates{SiteNum: "100"},
		Battery: &BatteryUpdates{SerialNumbers: []SerialNumberUpdate{{BatteryID: "missing", SerialNumber: "X1"}}},
	})
	require.ErrorIs(t, err, domain.ErrBatteryNotFound)
}

func TestUpdateSitePropagatesRegion(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.UpdateSite(context.Background(), UpdateSiteRequest{
		Site: SiteUpdates{SiteNum: "100", Region: "south"},
	})
	require.NoError(t, err)

	assert.Equal(t, "south", load[domain.Site](f, domain.CollectionSites, "site-1").Region)
	for _, id := range []string{"1", "2"} {
		assert.Equal(t, "south", load[domain.PowerPlant](f, domain.CollectionPowerPlants, "plant-"+id).Region)
		assert.Equal(t, "south", load[domain.PlantBatteryInfo](f, domain.CollectionPlantBatteryInfo, "pbi-"+id).Region)
		assert.Equal(t, "south", load[domain.PlantConfig](f, domain.CollectionPlantConfigs, "pc-"+id).Region)
	}
}

func TestUpdateSitePlantConfigOverwrite(t *testing.T) {
	f := newFixture(t)

	out, err := f.service.UpdateSite(context.Background(), UpdateSiteRequest{
		Site: SiteUpdates{SiteNum: "100"},
		Plant: &PlantUpdates{
			PlantNum:        "P1",
			Transmission:    "fiber",
			ServiceLevel:    "gold",
			TechnologyFlags: []string{"lte"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, out.LogItems)
	assert.Equal(t, 2, *out.Condition)

	cfg := load[domain.PlantConfig](f, domain.CollectionPlantConfigs, "pc-1")
	assert.Equal(t, "fiber", cfg.TransmissionConfig)
	assert.Equal(t, "gold", cfg.ServiceLevel)
	assert.Equal(t, []string{"lte"}, cfg.TechnologyFlags)

	plant := load[domain.PowerPlant](f, domain.CollectionPowerPlants, "plant-1")
	assert.Equal(t, "fiber", plant.Transmission)
	assert.Equal(t, []string{"lte"}, plant.TechnologyFlags)
}

func TestUpdateSiteReassignsPrimaryTech(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, domain.CollectionAssociationTypes, "at-2", domain.AssociationType{ID: "at-2", Name: "Backup Technician"})
	seed(t, f.store, domain.CollectionSiteUserAssociations, "assoc-2", domain.SiteUserAssociation{
		ID: "assoc-2", SiteID: "site-1", UserID: "user-older", AssociationTypeID: "at-1",
	})
	seed(t, f.store, domain.CollectionSiteUserAssociations, "assoc-3", domain.SiteUserAssociation{
		ID: "assoc-3", SiteID: "site-1", UserID: "user-backup", AssociationTypeID: "at-2",
	})

	_, err := f.service.UpdateSite(context.Background(), UpdateSiteRequest{
		Site:    SiteUpdates{SiteNum: "100"},
		General: &GeneralUpdates{PrimaryTech: "user-new"},
	})
	require.NoError(t, err)

	ids := f.store.IDs(domain.CollectionSiteUserAssociations)
	require.ElementsMatch(t, []string{"assoc-3", "new-1"}, ids)
	backup := load[domain.SiteUserAssociation](f, domain.CollectionSiteUserAssociations, "assoc-3")
	assert.Equal(t, "user-backup", backup.UserID)
	assoc := load[domain.SiteUserAssociation](f, domain.CollectionSiteUserAssociations, "new-1")
	assert.Equal(t, "user-new", assoc.UserID)
	assert.Equal(t, "at-1", assoc.AssociationTypeID)
}

func TestUpdateSiteMissingAssociationType(t *testing.T) {
	st := memory.NewStore()
	seed(t, st, domain.CollectionSites, "site-1", domain.Site{ID: "site-1", SiteNum: "100"})
	service, err := NewService(st, StaticCompanyConfig(domain.DefaultCompanyConfig()))
	require.NoError(t, err)

	_, err = service.UpdateSite(context.Background(), UpdateSiteRequest{
		Site:    SiteUpdates{SiteNum: "100", Name: "Changed"},
		General: &GeneralUpdates{PrimaryTech: "user-new"},
	})
	require.ErrorIs(t, err, domain.ErrAssociationTypeNotFound)

	var site domain.Site
	require.NoError(t, st.Load(domain.CollectionSites, "site-1", &site))
	assert.Empty(t, site.Name)
}

func TestUpdateSiteErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.UpdateSite(ctx, UpdateSiteRequest{Site: SiteUpdates{SiteNum: "999"}})
	assert.ErrorIs(t, err, domain.ErrSiteNotFound)

	_, err = f.service.UpdateSite(ctx, UpdateSiteRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.service.UpdateSite(ctx, UpdateSiteRequest{Site: SiteUpdates{SiteNum: "100", GeneratorAction: "swap"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	var nilService *Service
	_, err = nilService.UpdateSite(ctx, UpdateSiteRequest{})
	assert.ErrorIs(t, err, ErrNilService)
}

func TestUpdateSiteCompanyOverride(t *testing.T) {
	f := newFixture(t)
	req := routineLoadRequest(80)
	req.Company = &domain.CompanyConfig{UtilizationThresholds: [][]float64{{60, 95}}}

	out, err := f.service.UpdateSite(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, *out.PreviousCondition)
	assert.Equal(t, 1, *out.Condition)
	assert.Empty(t, out.LogItems)
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(nil, StaticCompanyConfig{})
	assert.Error(t, err)
	_, err = NewService(memory.NewStore(), nil)
	assert.Error(t, err)
}

func TestUpdateSiteSerialNumberWithoutSupplemental(t *testing.T) {
	f := newFixture(t)

	out, err := f.service.UpdateSite(context.Background(), UpdateSiteRequest{
		Site:    SiteUpdates{SiteNum: "100"},
		Battery: &BatteryUpdates{SerialNumbers: []SerialNumberUpdate{{BatteryID: "b1", SerialNumber: "NEW456"}}},
	})
	require.NoError(t, err)
	require.Len(t, out.LogItems, 1)
	assert.Equal(t, []audit.CommentUpdate{{ReadingType: audit.ReadingSerialNumber, New: "0"}}, out.LogItems[0].CommentUpdates)
}

func TestUpdateSiteRoutineWithoutReadingRestampsEditDate(t *testing.T) {
	f := newFixture(t)
	previousEdit := time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)
	reading := domain.PlantReading{Date: routineDate, Load: 100, Voltage: 50, Temperature: 25, Utilization: 50, ActualCapacity: 1000}
	seed(t, f.store, domain.CollectionRoutines, "rt-1", domain.Routine{
		ID: "rt-1", PlantID: "plant-1", SiteID: "site-1", Date: routineDate, EditDate: previousEdit, PlantReading: &reading,
	})
	company := domain.DefaultCompanyConfig()
	company.RuntimeThresholds = []domain.RuntimeThresholdRule{{Transmission: "fiber", Thresholds: []float64{12, 10}}}
	service, err := NewService(f.store, StaticCompanyConfig(company),
		WithClock(fakeClock{now: fixedNow}),
		WithIDGenerator(sequentialIDs()),
	)
	require.NoError(t, err)

	out, err := service.UpdateSite(context.Background(), UpdateSiteRequest{
		Site:    SiteUpdates{SiteNum: "100"},
		Plant:   &PlantUpdates{PlantNum: "P1", Transmission: "fiber"},
		Routine: &RoutineUpdates{Date: routineDate},
	})
	require.NoError(t, err)
	require.NotNil(t, out.PreviousCondition)
	require.NotNil(t, out.Condition)
	assert.Equal(t, 0, *out.PreviousCondition)
	assert.Equal(t, 2, *out.Condition)

	require.Len(t, out.LogItems, 1)
	assert.True(t, out.LogItems[0].Date.Equal(fixedNow), "log dated %s", out.LogItems[0].Date)
	assert.Equal(t, []audit.CommentUpdate{{ReadingType: audit.ReadingCondition, Prev: "0", New: "2"}}, out.LogItems[0].CommentUpdates)

	routine := load[domain.Routine](f, domain.CollectionRoutines, "rt-1")
	assert.True(t, routine.EditDate.Equal(fixedNow))
	require.NotNil(t, routine.PlantReading)
	assert.Equal(t, 50.0, routine.PlantReading.Utilization)
}
