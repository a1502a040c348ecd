// Package postgres implements internal/storage's interfaces backed by
// PostgreSQL, using the schema applied by internal/platform/migrations.
package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/internal/storage"
)

// Store implements every internal/storage interface backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var (
	_ storage.RecordStore      = (*Store)(nil)
	_ storage.VectorIndex      = (*Store)(nil)
	_ storage.GraphStore       = (*Store)(nil)
	_ storage.BlobStore        = (*Store)(nil)
	_ storage.AuditSink        = (*Store)(nil)
	_ storage.CostStore        = (*Store)(nil)
	_ storage.CapabilityMatrix = (*Store)(nil)
)

// New creates a Store using the provided database handle. The handle must
// already have migrations applied (internal/platform/migrations.Apply).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Capabilities reports the full feature set: Postgres enforces tenant
// isolation via withTenant's session marker and supports both dense vector
// search (exact, via pgvector-style array scan) and bounded graph hops.
func (s *Store) Capabilities() map[storage.Capability]bool {
	return map[storage.Capability]bool{
		storage.CapabilityTenantRLS:   true,
		storage.CapabilityDenseSearch: true,
		storage.CapabilityGraphHops:   true,
	}
}

// withTenant runs fn inside a transaction that has set the session's
// tenant marker, so Postgres row-level security policies (not modeled in
// this schema directly, but assumed by any RLS policy an operator layers
// on top) always see the correct app.current_tenant_id for the duration
// of the statement.
func (s *Store) withTenant(ctx context.Context, tenant string, fn func(tx *sql.Tx) error) error {
	if tenant == "" {
		return raeerrors.MissingTenant()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return raeerrors.BackendUnavailable("postgres", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT set_config('app.current_tenant_id', $1, true)`, tenant); err != nil {
		return raeerrors.BackendUnavailable("postgres", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return raeerrors.BackendUnavailable("postgres", err)
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

func stringArray(ss []string) interface{} {
	return pq.Array(ss)
}
