package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"plantfleet/internal/fleet/domain"
	"plantfleet/internal/fleet/store"
)

// staging indexes every document checked out by the current transaction so
// overlapping lookups reuse the same instance.
type staging struct {
	mu    sync.Mutex
	items map[store.Key]any
}

func newStaging() *staging {
	return &staging{items: make(map[store.Key]any)}
}

// staged returns the staged instance of a document, if any.
func staged[T any](st *staging, collection, id string) (*T, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	v, ok := st.items[store.Key{Collection: collection, ID: id}]
	if !ok {
		return nil, false
	}
	out, ok := v.(*T)
	return out, ok
}

// stage checks a document out unless it is already staged. Concurrent callers
// must stage distinct ids.
func stage[T any](ctx context.Context, tx store.Tx, st *staging, collection, id string) (*T, error) {
	if out, ok := staged[T](st, collection, id); ok {
		return out, nil
	}
	out, err := store.CheckoutAs[T](ctx, tx, collection, id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	st.items[store.Key{Collection: collection, ID: id}] = out
	st.mu.Unlock()
	return out, nil
}

// Snapshot is the working set of one update site transaction. Every pointer
// is a checkout that is written back on commit.
type Snapshot struct {
	Site         *domain.Site
	Plants       []*domain.PowerPlant
	BatteryInfos []*domain.PlantBatteryInfo
	PlantConfigs []*domain.PlantConfig

	// Generator actions only.
	SiteConfig *domain.SiteConfig
	Generator  *domain.Generator

	// Primary technician reassignment only.
	PrimaryTechType         *domain.AssociationType
	PrimaryTechAssociations []string

	// Plant updates only.
	Plant       *domain.PowerPlant
	PlantConfig *domain.PlantConfig
	Record      *domain.PlantRecord
	Routine     *domain.Routine

	Batteries map[string]*domain.Battery

	staging *staging
}

// Coordinator stages the entities an update site request may touch.
type Coordinator struct {
	clock Clock
}

// NewCoordinator constructs a checkout coordinator.
func NewCoordinator(clock Clock) *Coordinator {
	if clock == nil {
		clock = systemClock{}
	}
	return &Coordinator{clock: clock}
}

// Checkout resolves the site and stages its working set. Any resolution
// failure aborts the transaction.
func (c *Coordinator) Checkout(ctx context.Context, tx store.Tx, req UpdateSiteRequest) (*Snapshot, error) {
	if tx == nil {
		return nil, errors.New("checkout: nil transaction")
	}
	snap := &Snapshot{staging: newStaging(), Batteries: make(map[string]*domain.Battery)}

	siteIDs, err := tx.QueryIDs(ctx, domain.CollectionSites, store.Query{
		Filter: map[string]any{"siteNum": req.Site.SiteNum},
		Limit:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve site %s: %w", req.Site.SiteNum, err)
	}
	if len(siteIDs) == 0 {
		return nil, fmt.Errorf("%w: siteNum %s", domain.ErrSiteNotFound, req.Site.SiteNum)
	}
	snap.Site, err = stage[domain.Site](ctx, tx, snap.staging, domain.CollectionSites, siteIDs[0])
	if err != nil {
		return nil, fmt.Errorf("checkout site: %w", err)
	}

	if err := c.stagePlants(ctx, tx, snap); err != nil {
		return nil, err
	}
	if req.Site.GeneratorAction != "" {
		if err := c.stageGenerator(ctx, tx, snap, req.Site.GeneratorAction); err != nil {
			return nil, err
		}
	}
	if req.wantsPrimaryTech() {
		if err := c.stagePrimaryTech(ctx, tx, snap); err != nil {
			return nil, err
		}
	}
	if req.Plant != nil {
		if err := c.stageTargetPlant(ctx, tx, snap, req); err != nil {
			return nil, err
		}
	}
	if req.Battery != nil && len(req.Battery.SerialNumbers) > 0 {
		if err := c.stageBatteries(ctx, tx, snap, req.Battery.SerialNumbers); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (c *Coordinator) stagePlants(ctx context.Context, tx store.Tx, snap *Snapshot) error {
	plantIDs, err := tx.QueryIDs(ctx, domain.CollectionPowerPlants, store.Query{
		Filter: map[string]any{"siteId": snap.Site.ID},
	})
	if err != nil {
		return fmt.Errorf("query plants: %w", err)
	}

	plants := make([]*domain.PowerPlant, len(plantIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range plantIDs {
		g.Go(func() error {
			plant, err := stage[domain.PowerPlant](gctx, tx, snap.staging, domain.CollectionPowerPlants, id)
			if err != nil {
				return fmt.Errorf("checkout plant %s: %w", id, err)
			}
			plants[i] = plant
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	snap.Plants = plants

	var mu sync.Mutex
	g, gctx = errgroup.WithContext(ctx)
	for _, plant := range plants {
		g.Go(func() error {
			infos, err := stageByFilter[domain.PlantBatteryInfo](gctx, tx, snap.staging, domain.CollectionPlantBatteryInfo, map[string]any{"plantId": plant.ID})
			if err != nil {
				return err
			}
			configs, err := stageByFilter[domain.PlantConfig](gctx, tx, snap.staging, domain.CollectionPlantConfigs, map[string]any{"plantId": plant.ID})
			if err != nil {
				return err
			}
			mu.Lock()
			snap.BatteryInfos = append(snap.BatteryInfos, infos...)
			snap.PlantConfigs = append(snap.PlantConfigs, configs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	sort.Slice(snap.BatteryInfos, func(i, j int) bool { return snap.BatteryInfos[i].ID < snap.BatteryInfos[j].ID })
	sort.Slice(snap.PlantConfigs, func(i, j int) bool { return snap.PlantConfigs[i].ID < snap.PlantConfigs[j].ID })
	return nil
}

// stageByFilter stages every document of collection matching filter.
func stageByFilter[T any](ctx context.Context, tx store.Tx, st *staging, collection string, filter map[string]any) ([]*T, error) {
	ids, err := tx.QueryIDs(ctx, collection, store.Query{Filter: filter})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		doc, err := stage[T](ctx, tx, st, collection, id)
		if err != nil {
			return nil, fmt.Errorf("checkout %s/%s: %w", collection, id, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

func (c *Coordinator) stageGenerator(ctx context.Context, tx store.Tx, snap *Snapshot, action GeneratorAction) error {
	configs, err := readSiteConfigs(ctx, tx, snap.staging, snap.Site.ID)
	if err != nil {
		return err
	}
	current, err := domain.SiteConfigAsOf(configs, c.clock.Now())
	switch {
	case errors.Is(err, domain.ErrNoSiteConfig):
	case err != nil:
		return err
	default:
		snap.SiteConfig, err = stage[domain.SiteConfig](ctx, tx, snap.staging, domain.CollectionSiteConfigs, current.ID)
		if err != nil {
			return fmt.Errorf("checkout site config: %w", err)
		}
	}

	if action != GeneratorRemove {
		return nil
	}
	generatorID := snap.Site.GeneratorID
	if snap.SiteConfig != nil && snap.SiteConfig.GeneratorID != "" {
		generatorID = snap.SiteConfig.GeneratorID
	}
	if generatorID == "" {
		return fmt.Errorf("%w: site %s has no generator", domain.ErrGeneratorNotFound, snap.Site.SiteNum)
	}
	snap.Generator, err = stage[domain.Generator](ctx, tx, snap.staging, domain.CollectionGenerators, generatorID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrGeneratorNotFound, generatorID)
	}
	if err != nil {
		return fmt.Errorf("checkout generator: %w", err)
	}
	return nil
}

// readSiteConfigs reads every config version of a site, preferring staged copies.
func readSiteConfigs(ctx context.Context, tx store.Tx, st *staging, siteID string) ([]domain.SiteConfig, error) {
	ids, err := tx.QueryIDs(ctx, domain.CollectionSiteConfigs, store.Query{
		Filter: map[string]any{"siteId": siteID},
	})
	if err != nil {
		return nil, fmt.Errorf("query site configs: %w", err)
	}
	configs := make([]domain.SiteConfig, 0, len(ids))
	for _, id := range ids {
		if cfg, ok := staged[domain.SiteConfig](st, domain.CollectionSiteConfigs, id); ok {
			configs = append(configs, *cfg)
			continue
		}
		cfg, err := store.GetAs[domain.SiteConfig](ctx, tx, domain.CollectionSiteConfigs, id)
		if err != nil {
			return nil, fmt.Errorf("read site config %s: %w", id, err)
		}
		configs = append(configs, *cfg)
	}
	return configs, nil
}

func (c *Coordinator) stagePrimaryTech(ctx context.Context, tx store.Tx, snap *Snapshot) error {
	typeIDs, err := tx.QueryIDs(ctx, domain.CollectionAssociationTypes, store.Query{
		Filter: map[string]any{"name": domain.AssociationPrimaryTechnician},
		Limit:  1,
	})
	if err != nil {
		return fmt.Errorf("resolve association type: %w", err)
	}
	if len(typeIDs) == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAssociationTypeNotFound, domain.AssociationPrimaryTechnician)
	}
	snap.PrimaryTechType, err = store.GetAs[domain.AssociationType](ctx, tx, domain.CollectionAssociationTypes, typeIDs[0])
	if err != nil {
		return fmt.Errorf("read association type: %w", err)
	}

	existing, err := stageByFilter[domain.SiteUserAssociation](ctx, tx, snap.staging, domain.CollectionSiteUserAssociations, map[string]any{
		"siteId":            snap.Site.ID,
		"associationTypeId": snap.PrimaryTechType.ID,
	})
	if err != nil {
		return err
	}
	for _, assoc := range existing {
		snap.PrimaryTechAssociations = append(snap.PrimaryTechAssociations, assoc.ID)
	}
	return nil
}

func (c *Coordinator) stageTargetPlant(ctx context.Context, tx store.Tx, snap *Snapshot, req UpdateSiteRequest) error {
	for _, plant := range snap.Plants {
		if plant.PlantNum == req.Plant.PlantNum {
			snap.Plant = plant
			break
		}
	}
	if snap.Plant == nil {
		ids, err := tx.QueryIDs(ctx, domain.CollectionPowerPlants, store.Query{
			Filter: map[string]any{"siteId": snap.Site.ID, "plantNum": req.Plant.PlantNum},
			Limit:  1,
		})
		if err != nil {
			return fmt.Errorf("resolve plant %s: %w", req.Plant.PlantNum, err)
		}
		if len(ids) == 0 {
			return nil
		}
		snap.Plant, err = stage[domain.PowerPlant](ctx, tx, snap.staging, domain.CollectionPowerPlants, ids[0])
		if err != nil {
			return fmt.Errorf("checkout plant: %w", err)
		}
	}

	var candidates []*domain.PlantConfig
	for _, cfg := range snap.PlantConfigs {
		if cfg.PlantID == snap.Plant.ID {
			candidates = append(candidates, cfg)
		}
	}
	if len(candidates) == 0 {
		configs, err := stageByFilter[domain.PlantConfig](ctx, tx, snap.staging, domain.CollectionPlantConfigs, map[string]any{"plantId": snap.Plant.ID})
		if err != nil {
			return err
		}
		candidates = configs
	}
	var err error
	if req.Routine != nil {
		snap.PlantConfig, err = domain.PlantConfigAsOf(candidates, req.Routine.Date)
	} else {
		snap.PlantConfig, err = domain.CurrentPlantConfig(candidates)
	}
	if err != nil && !errors.Is(err, domain.ErrNoPlantConfig) {
		return err
	}

	recordIDs, err := tx.QueryIDs(ctx, domain.CollectionPlantRecords, store.Query{
		Filter: map[string]any{"plantId": snap.Plant.ID},
		Limit:  1,
	})
	if err != nil {
		return fmt.Errorf("resolve plant record: %w", err)
	}
	if len(recordIDs) > 0 {
		snap.Record, err = stage[domain.PlantRecord](ctx, tx, snap.staging, domain.CollectionPlantRecords, recordIDs[0])
		if err != nil {
			return fmt.Errorf("checkout plant record: %w", err)
		}
	}

	if req.Routine != nil {
		return c.stageRoutine(ctx, tx, snap, req.Routine.Date)
	}
	return nil
}

func (c *Coordinator) stageRoutine(ctx context.Context, tx store.Tx, snap *Snapshot, date time.Time) error {
	ids, err := tx.QueryIDs(ctx, domain.CollectionRoutines, store.Query{
		Filter: map[string]any{"plantId": snap.Plant.ID},
	})
	if err != nil {
		return fmt.Errorf("query routines: %w", err)
	}
	routines := make([]*domain.Routine, 0, len(ids))
	for _, id := range ids {
		routine, err := store.GetAs[domain.Routine](ctx, tx, domain.CollectionRoutines, id)
		if err != nil {
			return fmt.Errorf("read routine %s: %w", id, err)
		}
		routines = append(routines, routine)
	}
	chosen := domain.RoutineAsOf(routines, date)
	if chosen == nil {
		return nil
	}
	snap.Routine, err = stage[domain.Routine](ctx, tx, snap.staging, domain.CollectionRoutines, chosen.ID)
	if err != nil {
		return fmt.Errorf("checkout routine: %w", err)
	}
	return nil
}

func (c *Coordinator) stageBatteries(ctx context.Context, tx store.Tx, snap *Snapshot, updates []SerialNumberUpdate) error {
	batteries := make([]*domain.Battery, len(updates))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range updates {
		g.Go(func() error {
			battery, err := stage[domain.Battery](gctx, tx, snap.staging, domain.CollectionBatteries, u.BatteryID)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", domain.ErrBatteryNotFound, u.BatteryID)
			}
			if err != nil {
				return fmt.Errorf("checkout battery %s: %w", u.BatteryID, err)
			}
			batteries[i] = battery
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, u := range updates {
		snap.Batteries[u.BatteryID] = batteries[i]
	}
	return nil
}
