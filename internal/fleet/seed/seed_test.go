package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantfleet/internal/fleet/application"
	"plantfleet/internal/fleet/domain"
	"plantfleet/internal/fleet/infrastructure/memory"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFleetSeedsCollections(t *testing.T) {
	st := memory.NewStore()
	ctx := context.Background()

	summary, err := Fleet(ctx, st, Options{Sites: 3, PlantsPerSite: 2, Start: start, Days: 5, Region: "north"})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Sites)
	assert.Equal(t, 6, summary.Plants)
	assert.Equal(t, 30, summary.Routines)
	assert.Equal(t, 24, summary.Batteries)
	assert.Equal(t, []string{"1001", "1002", "1003"}, summary.SiteNums)

	assert.Len(t, st.IDs(domain.CollectionSites), 3)
	assert.Len(t, st.IDs(domain.CollectionGenerators), 1)

	var plant domain.PowerPlant
	require.NoError(t, st.Load(domain.CollectionPowerPlants, "site-0001-p1", &plant))
	assert.True(t, plant.LatestReading.Date.Equal(start.AddDate(0, 0, 4)))

	var record domain.PlantRecord
	require.NoError(t, st.Load(domain.CollectionPlantRecords, "site-0001-p1-rec", &record))
	value, ok := record.ValueAt(domain.ReadingLoad, start.AddDate(0, 0, 2))
	require.True(t, ok)
	assert.Equal(t, plant.LatestReading.Load+2, value)
}

func TestFleetSkipsExistingSites(t *testing.T) {
	st := memory.NewStore()
	ctx := context.Background()
	opts := Options{Sites: 2, PlantsPerSite: 1, Start: start, Days: 2}

	_, err := Fleet(ctx, st, opts)
	require.NoError(t, err)
	opts.Sites = 3
	summary, err := Fleet(ctx, st, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sites)
	assert.Equal(t, 2, summary.Skipped)
	assert.Len(t, st.IDs(domain.CollectionSites), 3)
}

func TestFleetRejectsEmptySizes(t *testing.T) {
	_, err := Fleet(context.Background(), memory.NewStore(), Options{Sites: 1})
	assert.Error(t, err)
	_, err = Fleet(context.Background(), nil, Options{Sites: 1, PlantsPerSite: 1, Days: 1})
	assert.Error(t, err)
}

func TestSeededFleetAcceptsUpdates(t *testing.T) {
	st := memory.NewStore()
	ctx := context.Background()
	_, err := Fleet(ctx, st, Options{Sites: 1, PlantsPerSite: 1, Start: start, Days: 3})
	require.NoError(t, err)

	service, err := application.NewService(st, application.StaticCompanyConfig(domain.DefaultCompanyConfig()))
	require.NoError(t, err)

	load := 150.0
	last := start.AddDate(0, 0, 2)
	out, err := service.UpdateSite(ctx, application.UpdateSiteRequest{
		Submitter: "seed-test",
		Site:      application.SiteUpdates{SiteNum: SiteNum(1)},
		Plant:     &application.PlantUpdates{PlantNum: "P1"},
		Routine:   &application.RoutineUpdates{Date: last, LatestReading: &application.ReadingInput{Load: &load}},
	})
	require.NoError(t, err)
	require.NotNil(t, out.Condition)
	require.NotEmpty(t, out.LogItems)

	var plant domain.PowerPlant
	require.NoError(t, st.Load(domain.CollectionPowerPlants, "site-0001-p1", &plant))
	assert.Equal(t, load, plant.LatestReading.Load)
	require.NotNil(t, plant.LatestReading.WorstBlockConductanceHealth)
}
