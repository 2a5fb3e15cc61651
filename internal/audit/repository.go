package audit

import (
	"context"
	"errors"
	"time"

	"plantfleet/internal/fleet/domain"
	"plantfleet/internal/fleet/store"
)

// Append writes a log item inside the transaction. Missing ids, dates and
// digests are filled in.
func Append(ctx context.Context, tx store.Tx, item *LogItem) error {
	if tx == nil {
		return errors.New("audit: nil transaction")
	}
	if item == nil {
		return errors.New("audit: nil log item")
	}
	if item.ID == "" {
		item.ID = NewID()
	}
	if item.Date.IsZero() {
		item.Date = time.Now().UTC()
	}
	if item.PayloadDigest == "" {
		item.PayloadDigest = digestUpdates(item)
	}
	return tx.Create(ctx, domain.CollectionLogItems, item.ID, item)
}
