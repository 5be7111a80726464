package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL. A Store
// returned by WithinTx routes every statement through the transaction.
type Store struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.CatalogStore = (*Store)(nil)
var _ storage.CartStore = (*Store)(nil)
var _ storage.WishlistStore = (*Store)(nil)
var _ storage.CouponStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)
var _ storage.AbandonmentStore = (*Store)(nil)
var _ storage.TxRunner = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

// PoolOptions tunes the connection pool.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to dsn with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string, opts PoolOptions) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	return db, nil
}

// DB exposes the underlying handle for migrations and health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

// Stores returns s for every store role.
func (s *Store) Stores() storage.Stores {
	return storage.Stores{
		Users:       s,
		Catalog:     s,
		Carts:       s,
		Wishlists:   s,
		Coupons:     s,
		Orders:      s,
		Abandonment: s,
	}
}

// WithinTx runs fn inside a transaction. Calling it on a transaction-bound
// store reuses the open transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Stores) error) error {
	if _, inTx := s.q.(*sqlx.Tx); inTx {
		return fn(s.Stores())
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{db: s.db, q: tx}

	if err := fn(txStore.Stores()); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
	pqForeignKey      = "23503"
)

// mapError converts driver errors into service errors for resource.
func mapError(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return service.NewNotFoundError(resource, id)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return service.NewConflictError("%s %q already exists", resource, id)
		case pqCheckViolation:
			return service.NewConflictError("%s %q violates %s", resource, id, pqErr.Constraint)
		case pqForeignKey:
			return service.NewValidationError(resource, "references a missing record")
		}
	}
	return fmt.Errorf("%s %s: %w", resource, id, err)
}

// requireAffected reports a not-found error when res changed no rows.
func requireAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return service.NewNotFoundError(resource, id)
	}
	return nil
}

// nullString stores empty strings as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
