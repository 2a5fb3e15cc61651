// Package storetest holds the contract tests every store implementation runs.
package storetest

import (
	"context"
	"errors"

	"github.com/stretchr/testify/suite"

	"plantfleet/internal/fleet/store"
)

// Suite exercises the transaction contract. NewStore must return an empty
// store for every test.
type Suite struct {
	suite.Suite
	NewStore func() store.Store

	store store.Store
	ctx   context.Context
}

type doc struct {
	Name   string `json:"name"`
	SiteID string `json:"siteId"`
	Count  int    `json:"count"`
}

var errAbort = errors.New("abort")

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewStore, "NewStore must be set")
	s.store = s.NewStore()
	s.ctx = context.Background()
}

func (s *Suite) seed(collection, id string, d doc) {
	err := s.store.RunInTransaction(s.ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Create(ctx, collection, id, d)
	})
	s.Require().NoError(err)
}

func (s *Suite) read(collection, id string) (doc, error) {
	var out doc
	err := s.store.RunInTransaction(s.ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Get(ctx, collection, id, &out)
	})
	return out, err
}

// TestCheckoutWritesBackOnCommit verifies mutations of checkout targets persist.
func (s *Suite) TestCheckoutWritesBackOnCommit() {
	s.seed("plants", "p1", doc{Name: "A", SiteID: "s1"})

	err := s.store.RunInTransaction(s.ctx, func(ctx context.Context, tx store.Tx) error {
		d, err := store.CheckoutAs[doc](ctx, tx, "plants", "p1")
		if err != nil {
			return err
		}
		d.Count = 7
		return nil
	})
	s.Require().NoError(err)

	got, err := s.read("plants", "p1")
	s.Require().NoError(err)
	s.Equal(7, got.Count)
}

// TestRollbackOnError verifies nothing persists when fn fails.
func (s *Suite) TestRollbackOnError() {
	s.seed("plants", "p1", doc{Name: "A"})

	err := s.store.RunInTransaction(s.ctx, func(ctx context.Context, tx store.Tx) error {
		d, err := store.CheckoutAs[doc](ctx, tx, "plants", "p1")
		if err != nil {
			return err
		}
		d.Name = "changed"
		if err := tx.Create(ctx, "plants", "p2", doc{Name: "B"}); err != nil {
			return err
		}
		return errAbort
	})
	s.Require().ErrorIs(err, errAbort)

	got, err := s.read("plants", "p1")
	s.Require().NoError(err)
	s.Equal("A", got.Name)
	_, err = s.read("plants", "p2")
	s.ErrorIs(err, store.ErrNotFound)
}

// TestCheckoutAtMostOnce verifies a second checkout of the same id fails.
func (s *Suite) TestCheckoutAtMostOnce() {
	s.seed("plants", "p1", doc{Name: "A"})

	err := s.store.RunInTransaction(s.ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := store.CheckoutAs[doc](ctx, tx, "plants", "p1"); err != nil {
			return err
		}
		_, err := store.CheckoutAs[doc](ctx, tx, "plants", "p1")
		return err
	})
	s.ErrorIs(err, store.ErrAlreadyCheckedOut)
}

// TestStrictReads verifies missing documents surface ErrNotFound.
func (s *Suite) TestStrictReads() {
	err := s.store.RunInTransaction(s.ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := store.GetAs[doc](ctx, tx, "plants", "missing")
		return err
	})
	s.ErrorIs(err, store.ErrNotFound)

	err = s.store.RunInTransaction(s.ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := store.CheckoutAs[doc](ctx, tx, "plants", "missing")
		return err
	})
	s.ErrorIs(err, store.ErrNotFound)

	err = s.store.RunInTransaction(s.ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Remove(ctx, "plants", "missing")
	})
	s.ErrorIs(err, store.ErrNotFound)
}

// TestCreateRejectsDuplicates verifies ids are unique per collection.
func (s *Suite) TestCreateRejectsDuplicates() {
	s.seed("plants", "p1", doc{Name: "A"})

	err := s.store.RunInTransaction(s.ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Create(ctx, "plants", "p1", doc{Name: "again"})
	})
	s.ErrorIs(err, store.ErrAlreadyExists)

	s.seed("sites", "p1", doc{Name: "other collection"})
}

// TestQueryIDs verifies equality filtering, ordering and limits.
func (s *Suite) TestQueryIDs() {
	s.seed("plants", "p3", doc{Name: "C", SiteID: "s1", Count: 1})
	s.seed("plants", "p1", doc{Name: "A", SiteID: "s1", Count: 2})
	s.seed("plants", "p2", doc{Name: "B", SiteID: "s2", Count: 1})

	err := s.store.RunInTransaction(s.ctx, func(ctx context.Context, tx store.Tx) error {
		ids, err := tx.QueryIDs(ctx, "plants", store.Query{Filter: map[string]any{"siteId": "s1"}})
		s.Require().NoError(err)
		s.Equal([]string{"p1", "p3"}, ids)

		ids, err = tx.QueryIDs(ctx, "plants", store.Query{Filter: map[string]any{"siteId": "s1", "count": 1}})
		s.Require().NoError(err)
		s.Equal([]string{"p3"}, ids)

		ids, err = tx.QueryIDs(ctx, "plants", store.Query{Limit: 2})
		s.Require().NoError(err)
		s.Equal([]string{"p1", "p2"}, ids)

		ids, err = tx.QueryIDs(ctx, "plants", store.Query{Filter: map[string]any{"siteId": "nope"}})
		s.Require().NoError(err)
		s.Empty(ids)
		return nil
	})
	s.Require().NoError(err)
}

// TestRemoveDropsCheckout verifies a removed checkout is not resurrected at commit.
func (s *Suite) TestRemoveDropsCheckout() {
	s.seed("associations", "a1", doc{Name: "tech"})

	err := s.store.RunInTransaction(s.ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := store.CheckoutAs[doc](ctx, tx, "associations", "a1"); err != nil {
			return err
		}
		return tx.Remove(ctx, "associations", "a1")
	})
	s.Require().NoError(err)

	_, err = s.read("associations", "a1")
	s.ErrorIs(err, store.ErrNotFound)
}
