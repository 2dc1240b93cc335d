// Package postgres is the SQL-backed Store implementation. Every entity
// method is written once against BaseStore.Querier(ctx), which resolves to
// either the raw *sql.DB or a context-bound *sql.Tx; Store and Tx therefore
// share a single code path, exactly as pkg/storage/postgres.BaseStore is
// designed to be embedded.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/meshcompute/inference-marketplace/internal/storage"
	pgbase "github.com/meshcompute/inference-marketplace/pkg/storage/postgres"
)

// Store is the SQL-backed implementation of storage.Store.
type Store struct {
	*pgbase.BaseStore
	db *sql.DB
}

// NewStore wraps an already-open *sql.DB. Callers are responsible for
// running the embedded migrations (see Migrate) before first use.
func NewStore(db *sql.DB) *Store {
	return &Store{BaseStore: pgbase.NewBaseStore(db, ""), db: db}
}

var _ storage.Store = (*Store)(nil)

// BeginSerializable opens a SERIALIZABLE transaction and returns a Tx bound
// to it; every write path in internal/assignment, internal/lifecycle, and
// internal/ledger runs through this.
func (s *Store) BeginSerializable(ctx context.Context) (storage.Tx, error) {
	txCtx, err := s.BaseStore.BeginSerializableTx(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{store: s, ctx: txCtx}, nil
}

// mapErr translates driver-level failures into the storage sentinel errors
// the engines branch on: a missing row becomes storage.ErrNotFound, and a
// postgres serialization failure (SQLSTATE 40001, raised under SERIALIZABLE
// isolation when two transactions' read/write sets conflict) becomes
// storage.ErrConflict so callers retry per internal/core/service.Retry.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "40001" {
		return storage.ErrConflict
	}
	return fmt.Errorf("postgres: %w", err)
}
