package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"plantfleet/internal/fleet/store"
	"plantfleet/internal/fleet/store/storetest"
)

func TestStoreContract(t *testing.T) {
	suite.Run(t, &storetest.Suite{NewStore: func() store.Store { return NewStore() }})
}

func TestSeedAndLoad(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("sites", "s1", map[string]any{"siteNum": "100"}))

	var got map[string]any
	require.NoError(t, s.Load("sites", "s1", &got))
	require.Equal(t, "100", got["siteNum"])
	require.Equal(t, []string{"s1"}, s.IDs("sites"))
	require.ErrorIs(t, s.Load("sites", "missing", &got), store.ErrNotFound)
}

func TestConcurrentCheckoutsWithinTransaction(t *testing.T) {
	s := NewStore()
	ids := []string{"a", "b", "c", "d", "e", "f"}
	for _, id := range ids {
		require.NoError(t, s.Seed("batteries", id, map[string]any{"serialNumber": id}))
	}

	err := s.RunInTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var wg sync.WaitGroup
		errs := make(chan error, len(ids))
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				doc, err := store.CheckoutAs[map[string]any](ctx, tx, "batteries", id)
				if err != nil {
					errs <- err
					return
				}
				(*doc)["serialNumber"] = "X" + id
			}(id)
		}
		wg.Wait()
		close(errs)
		if err, ok := <-errs; ok {
			return err
		}
		return nil
	})
	require.NoError(t, err)

	for _, id := range ids {
		var got map[string]any
		require.NoError(t, s.Load("batteries", id, &got))
		require.Equal(t, "X"+id, got["serialNumber"])
	}
}

func TestCanceledContextDiscardsTransaction(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Create(ctx, "sites", "s1", map[string]any{"siteNum": "1"}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, s.IDs("sites"))
}
