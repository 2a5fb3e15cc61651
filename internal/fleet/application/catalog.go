package application

import (
	"context"
	"errors"
	"fmt"

	"plantfleet/internal/fleet/condition"
	"plantfleet/internal/fleet/domain"
	"plantfleet/internal/fleet/store"
)

// txCatalog serves condition lookups from the transaction, preferring staged
// documents so evaluations see in-flight mutations.
type txCatalog struct {
	tx      store.Tx
	staging *staging
}

var _ condition.Catalog = (*txCatalog)(nil)

func newTxCatalog(tx store.Tx, st *staging) *txCatalog {
	return &txCatalog{tx: tx, staging: st}
}

func lookup[T any](ctx context.Context, c *txCatalog, collection, id string) (*T, error) {
	if doc, ok := staged[T](c.staging, collection, id); ok {
		return doc, nil
	}
	return store.GetAs[T](ctx, c.tx, collection, id)
}

func (c *txCatalog) SiteConfigs(ctx context.Context, siteID string) ([]domain.SiteConfig, error) {
	return readSiteConfigs(ctx, c.tx, c.staging, siteID)
}

func (c *txCatalog) PowerPlantType(ctx context.Context, id string) (*domain.PowerPlantType, error) {
	return lookup[domain.PowerPlantType](ctx, c, domain.CollectionPowerPlantTypes, id)
}

func (c *txCatalog) RoutineUpload(ctx context.Context, id string) (*domain.RoutineUpload, error) {
	return lookup[domain.RoutineUpload](ctx, c, domain.CollectionRoutineUploads, id)
}

func (c *txCatalog) Battery(ctx context.Context, id string) (*domain.Battery, error) {
	battery, err := lookup[domain.Battery](ctx, c, domain.CollectionBatteries, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBatteryNotFound, id)
	}
	return battery, err
}

func (c *txCatalog) BatteryType(ctx context.Context, id string) (*domain.BatteryType, error) {
	return lookup[domain.BatteryType](ctx, c, domain.CollectionBatteryTypes, id)
}

func (c *txCatalog) BatteryRecord(ctx context.Context, id string) (*domain.BatteryRecord, error) {
	return lookup[domain.BatteryRecord](ctx, c, domain.CollectionBatteryRecords, id)
}
