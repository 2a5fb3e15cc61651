package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"plantfleet/internal/fleet/store"
)

type state map[string]map[string][]byte

func (s state) clone() state {
	out := make(state, len(s))
	for coll, docs := range s {
		copied := make(map[string][]byte, len(docs))
		for id, data := range docs {
			copied[id] = data
		}
		out[coll] = copied
	}
	return out
}

// Store is an in-memory document store. Transactions run one at a time
// against a cloned state that replaces the committed state on success.
type Store struct {
	mu    sync.Mutex
	state state
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{state: make(state)}
}

// Seed writes a document outside of any transaction.
func (s *Store) Seed(collection, id string, doc any) error {
	if s == nil {
		return errors.New("memory store: nil store")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.state[collection]
	if docs == nil {
		docs = make(map[string][]byte)
		s.state[collection] = docs
	}
	docs[id] = data
	return nil
}

// Load decodes a committed document.
func (s *Store) Load(collection, id string, dst any) error {
	if s == nil {
		return errors.New("memory store: nil store")
	}
	s.mu.Lock()
	data, ok := s.state[collection][id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, id)
	}
	return json.Unmarshal(data, dst)
}

// IDs lists committed document ids of a collection in order.
func (s *Store) IDs(collection string) []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.state[collection]))
	for id := range s.state[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CountDocuments returns the number of committed documents of a collection.
func (s *Store) CountDocuments(_ context.Context, collection string) (int, error) {
	if s == nil {
		return 0, errors.New("memory store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state[collection]), nil
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if s == nil {
		return errors.New("memory store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state:     s.state.clone(),
		checkouts: store.NewCheckouts(),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := tx.checkouts.Flush(func(key store.Key, data []byte) error {
		tx.put(key.Collection, key.ID, data)
		return nil
	})
	if err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

type transaction struct {
	mu        sync.Mutex
	state     state
	checkouts *store.Checkouts
}

func (tx *transaction) put(collection, id string, data []byte) {
	docs := tx.state[collection]
	if docs == nil {
		docs = make(map[string][]byte)
		tx.state[collection] = docs
	}
	docs[id] = data
}

func (tx *transaction) read(collection, id string) ([]byte, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	data, ok := tx.state[collection][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, id)
	}
	return data, nil
}

func (tx *transaction) Checkout(ctx context.Context, collection, id string, dst any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := tx.read(collection, id)
	if err != nil {
		return err
	}
	key := store.Key{Collection: collection, ID: id}
	if err := tx.checkouts.Reserve(key, dst); err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		tx.checkouts.Release(key)
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (tx *transaction) QueryIDs(ctx context.Context, collection string, q store.Query) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	ids := make([]string, 0, len(tx.state[collection]))
	for id := range tx.state[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		ok, err := store.MatchFilter(tx.state[collection][id], q.Filter)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, err)
		}
		if !ok {
			continue
		}
		out = append(out, id)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (tx *transaction) Get(ctx context.Context, collection, id string, dst any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := tx.read(collection, id)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func (tx *transaction) Create(ctx context.Context, collection, id string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if _, exists := tx.state[collection][id]; exists {
		return fmt.Errorf("%w: %s/%s", store.ErrAlreadyExists, collection, id)
	}
	tx.put(collection, id, data)
	return nil
}

func (tx *transaction) Remove(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if _, exists := tx.state[collection][id]; !exists {
		return fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, id)
	}
	delete(tx.state[collection], id)
	tx.checkouts.Release(store.Key{Collection: collection, ID: id})
	return nil
}
