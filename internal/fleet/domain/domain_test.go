package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestPlantRecordAmendOverwritesWithoutGrowth(t *testing.T) {
	record := &PlantRecord{
		ID: "rec-1",
		Series: []RecordSeries{
			{ReadingType: ReadingLoad, Points: []SeriesPoint{{At: day(1), Value: 90}, {At: day(10), Value: 100}, {At: day(5), Value: 95}}},
		},
	}

	prev, err := record.Amend(ReadingLoad, day(10), 80)
	require.NoError(t, err)
	assert.Equal(t, 100.0, prev)
	assert.Len(t, record.Series[0].Points, 3)

	prev, err = record.Amend(ReadingLoad, day(7), 70)
	require.NoError(t, err)
	assert.Equal(t, 95.0, prev, "covering entry is the latest at or before the date")
	assert.Len(t, record.Series[0].Points, 3)

	v, ok := record.ValueAt(ReadingLoad, day(8))
	require.True(t, ok)
	assert.Equal(t, 70.0, v)
}

func TestPlantRecordAmendWithoutCoveringEntryFails(t *testing.T) {
	record := &PlantRecord{Series: []RecordSeries{
		{ReadingType: ReadingLoad, Points: []SeriesPoint{{At: day(10), Value: 100}}},
	}}

	_, err := record.Amend(ReadingLoad, day(9), 80)
	require.ErrorIs(t, err, ErrNoCoveringRecord)

	_, err = record.Amend(ReadingVoltage, day(10), 50)
	require.ErrorIs(t, err, ErrNoCoveringRecord)

	var missing *PlantRecord
	_, err = missing.Amend(ReadingLoad, day(10), 1)
	require.ErrorIs(t, err, ErrRecordNotFound)
	assert.Equal(t, 100.0, record.Series[0].Points[0].Value)
}

func TestSiteConfigAsOf(t *testing.T) {
	configs := []SiteConfig{
		{ID: "c1", Date: day(1)},
		{ID: "c3", Date: day(20), IsCurrent: true},
		{ID: "c2", Date: day(10)},
	}

	got, err := SiteConfigAsOf(configs, day(15))
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ID)

	got, err = SiteConfigAsOf(configs, day(20))
	require.NoError(t, err)
	assert.Equal(t, "c3", got.ID)

	_, err = SiteConfigAsOf(configs, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNoSiteConfig)
}

func TestPlantConfigSelection(t *testing.T) {
	old := &PlantConfig{ID: "old", Date: day(1)}
	current := &PlantConfig{ID: "cur", Date: day(10), IsCurrent: true}

	got, err := PlantConfigAsOf([]*PlantConfig{current, old, nil}, day(5))
	require.NoError(t, err)
	assert.Equal(t, "old", got.ID)

	got, err = CurrentPlantConfig([]*PlantConfig{old, current})
	require.NoError(t, err)
	assert.Equal(t, "cur", got.ID)

	_, err = CurrentPlantConfig([]*PlantConfig{old})
	assert.ErrorIs(t, err, ErrNoPlantConfig)
}

func TestActiveStrings(t *testing.T) {
	cfg := PlantConfig{
		MonitoringType: MonitoringLive,
		Connection:     ConnectionLive,
		Strings:        []BatteryString{{Name: "A", BatteryIDs: []string{"b1", "b2"}}},
		SNMPStrings:    []BatteryString{{Name: "S", BatteryIDs: []string{"b1", "b2", "b3"}}},
	}
	assert.Equal(t, "S", cfg.ActiveStrings()[0].Name)
	assert.Equal(t, 3, cfg.BlocksPerString())

	cfg.Connection = "offline"
	assert.Equal(t, "A", cfg.ActiveStrings()[0].Name)

	cfg.Connection = ConnectionLive
	cfg.MonitoringType = MonitoringRoutine
	assert.Equal(t, "A", cfg.ActiveStrings()[0].Name)
	assert.True(t, cfg.HasStrings())
}

func TestRuntimeThresholdsFor(t *testing.T) {
	cfg := DefaultCompanyConfig()
	assert.Equal(t, []float64{4, 2}, cfg.RuntimeThresholdsFor(true, LocationRural, ""))
	assert.Equal(t, []float64{8, 4}, cfg.RuntimeThresholdsFor(false, LocationRural, ""))
	assert.Equal(t, []float64{6, 3}, cfg.RuntimeThresholdsFor(false, LocationUrban, "fiber"))

	merged := cfg.Merge(CompanyConfig{Precision: 2, TemperatureThresholds: []float64{35}})
	assert.Equal(t, 2, merged.Precision)
	assert.Equal(t, []float64{35}, merged.TemperatureThresholds)
	assert.Equal(t, cfg.DegradationMultiplier, merged.DegradationMultiplier)
	assert.Equal(t, []float64{80, 90}, merged.PrimaryUtilizationThresholds())
}

func TestBatteryHelpers(t *testing.T) {
	typ := BatteryType{Voltage: 12, NominalVPCVoltage: 2.25}
	assert.Equal(t, 6, typ.CellsPerBlock())
	assert.True(t, typ.HasVPC())
	assert.False(t, BatteryType{Voltage: 12}.HasVPC())

	rec := &BatteryRecord{Conductance: []SeriesPoint{{At: day(2), Value: 900}, {At: day(5), Value: 850}, {At: day(3), Value: 880}}}
	latest, ok := rec.Latest()
	require.True(t, ok)
	assert.Equal(t, 850.0, latest.Value)
}

func TestRoutineReadingFallback(t *testing.T) {
	legacy := &Routine{Date: day(3), LatestReading: &PlantReading{Load: 12}}
	assert.Equal(t, 12.0, legacy.Reading().Load)

	routines := []*Routine{{ID: "r1", Date: day(1)}, {ID: "r2", Date: day(5)}, legacy}
	assert.Equal(t, "r2", RoutineAsOf(routines, day(6)).ID)
	assert.Nil(t, RoutineAsOf(routines, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParseLocationType(t *testing.T) {
	got, ok := ParseLocationType("rural")
	require.True(t, ok)
	assert.Equal(t, LocationRural, got)

	_, ok = ParseLocationType("suburban")
	assert.False(t, ok)
}
