// Package store defines the document transaction contract used by the update
// site workflow. Implementations live under infrastructure/.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	// ErrNotFound is returned by strict reads of a missing document.
	ErrNotFound = errors.New("store: document not found")
	// ErrAlreadyCheckedOut is returned when a document is checked out twice in one transaction.
	ErrAlreadyCheckedOut = errors.New("store: document already checked out")
	// ErrAlreadyExists is returned when creating a document under a taken id.
	ErrAlreadyExists = errors.New("store: document already exists")
	// ErrInvalidTarget is returned when a checkout destination is not a pointer.
	ErrInvalidTarget = errors.New("store: checkout target must be a non-nil pointer")
)

// Query selects document ids by equality on top-level JSON fields.
type Query struct {
	Filter map[string]any
	Limit  int
}

// Tx is a unit of work. Checked-out documents are written back when the
// transaction commits; mutate the checkout target in place.
type Tx interface {
	Checkout(ctx context.Context, collection, id string, dst any) error
	QueryIDs(ctx context.Context, collection string, q Query) ([]string, error)
	Get(ctx context.Context, collection, id string, dst any) error
	Create(ctx context.Context, collection, id string, doc any) error
	Remove(ctx context.Context, collection, id string) error
}

// Store runs all-or-nothing transactions.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// CheckoutAs checks out a document into a new value of T.
func CheckoutAs[T any](ctx context.Context, tx Tx, collection, id string) (*T, error) {
	var out T
	if err := tx.Checkout(ctx, collection, id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAs reads a document into a new value of T without staging it.
func GetAs[T any](ctx context.Context, tx Tx, collection, id string) (*T, error) {
	var out T
	if err := tx.Get(ctx, collection, id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Key identifies a document.
type Key struct {
	Collection string
	ID         string
}

func (k Key) String() string {
	return k.Collection + "/" + k.ID
}

// Checkouts tracks the documents staged for write-back in one transaction.
// It is safe for concurrent use.
type Checkouts struct {
	mu    sync.Mutex
	items map[Key]any
	order []Key
}

// NewCheckouts returns an empty staging set.
func NewCheckouts() *Checkouts {
	return &Checkouts{items: make(map[Key]any)}
}

// Reserve claims key for a checkout. It fails when key is already staged.
func (c *Checkouts) Reserve(key Key, dst any) error {
	if dst == nil {
		return ErrInvalidTarget
	}
	if rv := reflect.ValueOf(dst); rv.Kind() != reflect.Pointer || rv.IsNil() {
		return ErrInvalidTarget
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyCheckedOut, key)
	}
	c.items[key] = dst
	c.order = append(c.order, key)
	return nil
}

// Release drops key from the staging set.
func (c *Checkouts) Release(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; !ok {
		return
	}
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Flush marshals every staged document in checkout order.
func (c *Checkouts) Flush(write func(key Key, data []byte) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.order {
		data, err := json.Marshal(c.items[key])
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		if err := write(key, data); err != nil {
			return err
		}
	}
	return nil
}

// MatchFilter reports whether the JSON document satisfies every equality in
// filter. Values are compared after a JSON round trip so Go types and decoded
// JSON compare alike.
func MatchFilter(doc []byte, filter map[string]any) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(doc, &fields); err != nil {
		return false, fmt.Errorf("decode document: %w", err)
	}
	want, err := normalize(filter)
	if err != nil {
		return false, err
	}
	for k, v := range want {
		got, ok := fields[k]
		if !ok || !reflect.DeepEqual(got, v) {
			return false, nil
		}
	}
	return true, nil
}

func normalize(filter map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode filter: %w", err)
	}
	return out, nil
}
