package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"plantfleet/internal/fleet/store"
)

// Dialect selects the SQL flavour of the documents table.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return DialectPostgres, nil
	case "sqlite":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

// Store keeps every collection in a single documents table.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	now     func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithNow overrides the clock used for updated_at.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open connects with sqlx and returns a store for the driver's dialect.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	dialect, err := DialectForDriver(driver)
	if err != nil {
		return nil, err
	}
	if driver == "postgres" {
		driver = "pgx"
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: connect: %w", err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	return NewStore(db, dialect, opts...)
}

// NewStore wraps an open database.
func NewStore(db *sqlx.DB, dialect Dialect, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlstore: nil db")
	}
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("sqlstore: unsupported dialect %q", dialect)
	}
	s := &Store{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sqlx.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the documents table.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlstore: nil db")
	}
	dataType := "TEXT"
	if s.dialect == DialectPostgres {
		dataType = "JSONB"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data %s NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (collection, id)
)`, dataType),
	}
	if s.dialect == DialectPostgres {
		stmts = append(stmts, `CREATE INDEX IF NOT EXISTS documents_data_gin ON documents USING GIN (data jsonb_path_ops)`)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}
	return nil
}

// CountDocuments returns the number of stored documents of a collection.
func (s *Store) CountDocuments(ctx context.Context, collection string) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("sqlstore: nil db")
	}
	var count int
	err := s.db.GetContext(ctx, &count, s.db.Rebind(`SELECT COUNT(*) FROM documents WHERE collection = ?`), collection)
	return count, err
}

// RunInTransaction runs fn in a database transaction. Checked-out documents
// are written back before commit; any error rolls everything back.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	if s == nil || s.db == nil {
		return errors.New("sqlstore: nil db")
	}
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	t := &transaction{
		tx:        sqlTx,
		dialect:   s.dialect,
		now:       s.now,
		checkouts: store.NewCheckouts(),
	}
	if err = fn(ctx, t); err != nil {
		return err
	}
	if err = t.checkouts.Flush(func(key store.Key, data []byte) error {
		return t.update(ctx, key, data)
	}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit: %w", err)
	}
	return nil
}

type transaction struct {
	mu        sync.Mutex
	tx        *sqlx.Tx
	dialect   Dialect
	now       func() time.Time
	checkouts *store.Checkouts
}

func (t *transaction) jsonParam() string {
	if t.dialect == DialectPostgres {
		return "?::jsonb"
	}
	return "?"
}

func (t *transaction) read(ctx context.Context, collection, id string, lock bool) ([]byte, error) {
	query := `SELECT data FROM documents WHERE collection = ? AND id = ?`
	if lock && t.dialect == DialectPostgres {
		query += ` FOR UPDATE`
	}
	var data []byte
	t.mu.Lock()
	err := t.tx.GetContext(ctx, &data, t.tx.Rebind(query), collection, id)
	t.mu.Unlock()
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: read %s/%s: %w", collection, id, err)
	}
	return data, nil
}

func (t *transaction) update(ctx context.Context, key store.Key, data []byte) error {
	query := `UPDATE documents SET data = ` + t.jsonParam() + `, updated_at = ? WHERE collection = ? AND id = ?`
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), string(data), t.now(), key.Collection, key.ID); err != nil {
		return fmt.Errorf("sqlstore: write %s: %w", key, err)
	}
	return nil
}

func (t *transaction) Checkout(ctx context.Context, collection, id string, dst any) error {
	data, err := t.read(ctx, collection, id, true)
	if err != nil {
		return err
	}
	key := store.Key{Collection: collection, ID: id}
	if err := t.checkouts.Reserve(key, dst); err != nil {
		return err
	}
	if err := unmarshal(data, dst); err != nil {
		t.checkouts.Release(key)
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (t *transaction) Get(ctx context.Context, collection, id string, dst any) error {
	data, err := t.read(ctx, collection, id, false)
	if err != nil {
		return err
	}
	return unmarshal(data, dst)
}

type row struct {
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

func (t *transaction) QueryIDs(ctx context.Context, collection string, q store.Query) ([]string, error) {
	if t.dialect == DialectPostgres {
		return t.queryIDsPostgres(ctx, collection, q)
	}
	var rows []row
	t.mu.Lock()
	err := t.tx.SelectContext(ctx, &rows, t.tx.Rebind(`SELECT id, data FROM documents WHERE collection = ? ORDER BY id`), collection)
	t.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query %s: %w", collection, err)
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ok, err := store.MatchFilter(r.Data, q.Filter)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", collection, r.ID, err)
		}
		if !ok {
			continue
		}
		ids = append(ids, r.ID)
		if q.Limit > 0 && len(ids) == q.Limit {
			break
		}
	}
	return ids, nil
}

func (t *transaction) queryIDsPostgres(ctx context.Context, collection string, q store.Query) ([]string, error) {
	query := `SELECT id FROM documents WHERE collection = ?`
	args := []any{collection}
	if len(q.Filter) > 0 {
		filter, err := marshal(q.Filter)
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		query += ` AND data @> ?::jsonb`
		args = append(args, string(filter))
	}
	query += ` ORDER BY id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	var ids []string
	t.mu.Lock()
	err := t.tx.SelectContext(ctx, &ids, t.tx.Rebind(query), args...)
	t.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query %s: %w", collection, err)
	}
	return ids, nil
}

func (t *transaction) Create(ctx context.Context, collection, id string, doc any) error {
	data, err := marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	query := `INSERT INTO documents (collection, id, data, updated_at) VALUES (?, ?, ` + t.jsonParam() + `, ?) ON CONFLICT (collection, id) DO NOTHING`
	t.mu.Lock()
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), collection, id, string(data), t.now())
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("sqlstore: create %s/%s: %w", collection, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: create %s/%s: %w", collection, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s/%s", store.ErrAlreadyExists, collection, id)
	}
	return nil
}

func (t *transaction) Remove(ctx context.Context, collection, id string) error {
	t.mu.Lock()
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`DELETE FROM documents WHERE collection = ? AND id = ?`), collection, id)
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("sqlstore: remove %s/%s: %w", collection, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: remove %s/%s: %w", collection, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, id)
	}
	t.checkouts.Release(store.Key{Collection: collection, ID: id})
	return nil
}
