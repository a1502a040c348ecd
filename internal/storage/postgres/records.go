package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/lib/pq"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/internal/storage"
)

func (s *Store) CreateRecord(ctx context.Context, rec storage.Record) (storage.Record, error) {
	if rec.ID == "" {
		rec.ID = newID()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.LastAccessedAt = now
	rec.LastDecayedAt = now
	rec.Version = 1

	err := s.withTenant(ctx, rec.Tenant, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memory_records
				(id, tenant, layer, content, content_hash, tags, source, importance,
				 usage_counter, info_class, parent_ids, version, created_at, last_accessed_at, last_decayed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`, rec.ID, rec.Tenant, string(rec.Layer), rec.Content, rec.ContentHash,
			stringArray(rec.Tags), rec.Source, rec.Importance, rec.UsageCounter,
			string(rec.InfoClass), stringArray(rec.ParentIDs), rec.Version, rec.CreatedAt, rec.LastAccessedAt, rec.LastDecayedAt)
		return err
	})
	if err != nil {
		return storage.Record{}, raeerrors.BackendUnavailable("postgres", err)
	}
	return rec, nil
}

func (s *Store) UpdateRecord(ctx context.Context, rec storage.Record) (storage.Record, error) {
	err := s.withTenant(ctx, rec.Tenant, func(tx *sql.Tx) error {
		lastDecayedAt := rec.LastDecayedAt
		if lastDecayedAt.IsZero() {
			lastDecayedAt = time.Now().UTC()
		}
		result, err := tx.ExecContext(ctx, `
			UPDATE memory_records
			SET layer = $3, content = $4, content_hash = $5, tags = $6, source = $7,
			    importance = $8, usage_counter = $9, info_class = $10, parent_ids = $11,
			    version = version + 1, last_accessed_at = $12, last_decayed_at = $14
			WHERE id = $1 AND tenant = $2 AND ($13 = 0 OR version = $13)
		`, rec.ID, rec.Tenant, string(rec.Layer), rec.Content, rec.ContentHash,
			stringArray(rec.Tags), rec.Source, rec.Importance, rec.UsageCounter,
			string(rec.InfoClass), stringArray(rec.ParentIDs), time.Now().UTC(), rec.Version, lastDecayedAt)
		if err != nil {
			return err
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return raeerrors.OptimisticConcurrency(rec.ID)
		}
		return nil
	})
	if err != nil {
		if raeerrors.IsServiceError(err) {
			return storage.Record{}, err
		}
		return storage.Record{}, raeerrors.BackendUnavailable("postgres", err)
	}
	return s.GetRecord(ctx, rec.Tenant, rec.ID)
}

func (s *Store) GetRecord(ctx context.Context, tenant, id string) (storage.Record, error) {
	var rec storage.Record
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, tenant, layer, content, content_hash, tags, source, importance,
			       usage_counter, info_class, parent_ids, version, created_at, last_accessed_at, last_decayed_at
			FROM memory_records WHERE id = $1 AND tenant = $2
		`, id, tenant)

		var layer, infoClass string
		var tags, parentIDs pq.StringArray
		if err := row.Scan(&rec.ID, &rec.Tenant, &layer, &rec.Content, &rec.ContentHash,
			&tags, &rec.Source, &rec.Importance, &rec.UsageCounter, &infoClass,
			&parentIDs, &rec.Version, &rec.CreatedAt, &rec.LastAccessedAt, &rec.LastDecayedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return raeerrors.TenantMismatch(id)
			}
			return err
		}
		rec.Layer = storage.Layer(layer)
		rec.InfoClass = storage.InfoClass(infoClass)
		rec.Tags = []string(tags)
		rec.ParentIDs = []string(parentIDs)
		return nil
	})
	if err != nil {
		if raeerrors.IsServiceError(err) {
			return storage.Record{}, err
		}
		return storage.Record{}, raeerrors.BackendUnavailable("postgres", err)
	}
	return rec, nil
}

func (s *Store) ListRecords(ctx context.Context, tenant string, filter storage.Filter) ([]storage.Record, error) {
	var out []storage.Record
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		query := `
			SELECT id, tenant, layer, content, content_hash, tags, source, importance,
			       usage_counter, info_class, parent_ids, version, created_at, last_accessed_at, last_decayed_at
			FROM memory_records WHERE tenant = $1`
		args := []interface{}{tenant}
		if filter.Layer != "" {
			args = append(args, string(filter.Layer))
			query += " AND layer = $" + strconv.Itoa(len(args))
		}
		if filter.Source != "" {
			args = append(args, filter.Source)
			query += " AND source = $" + strconv.Itoa(len(args))
		}
		if filter.MinImportance > 0 {
			args = append(args, filter.MinImportance)
			query += " AND importance >= $" + strconv.Itoa(len(args))
		}
		if len(filter.Tags) > 0 {
			args = append(args, stringArray(filter.Tags))
			query += " AND tags @> $" + strconv.Itoa(len(args))
		}
		query += " ORDER BY id"
		if filter.Limit > 0 {
			args = append(args, filter.Limit)
			query += " LIMIT $" + strconv.Itoa(len(args))
		}

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var rec storage.Record
			var layer, infoClass string
			var tags, parentIDs pq.StringArray
			if err := rows.Scan(&rec.ID, &rec.Tenant, &layer, &rec.Content, &rec.ContentHash,
				&tags, &rec.Source, &rec.Importance, &rec.UsageCounter, &infoClass,
				&parentIDs, &rec.Version, &rec.CreatedAt, &rec.LastAccessedAt, &rec.LastDecayedAt); err != nil {
				return err
			}
			rec.Layer = storage.Layer(layer)
			rec.InfoClass = storage.InfoClass(infoClass)
			rec.Tags = []string(tags)
			rec.ParentIDs = []string(parentIDs)
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, raeerrors.BackendUnavailable("postgres", err)
	}
	return out, nil
}

func (s *Store) DeleteRecord(ctx context.Context, tenant, id string) error {
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM memory_records WHERE id = $1 AND tenant = $2`, id, tenant)
		if err != nil {
			return err
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return raeerrors.TenantMismatch(id)
		}
		return nil
	})
	if err != nil {
		if raeerrors.IsServiceError(err) {
			return err
		}
		return raeerrors.BackendUnavailable("postgres", err)
	}
	return nil
}

func (s *Store) TouchRecord(ctx context.Context, tenant, id string) error {
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE memory_records SET usage_counter = usage_counter + 1, last_accessed_at = $3
			WHERE id = $1 AND tenant = $2
		`, id, tenant, time.Now().UTC())
		if err != nil {
			return err
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return raeerrors.TenantMismatch(id)
		}
		return nil
	})
	if err != nil {
		if raeerrors.IsServiceError(err) {
			return err
		}
		return raeerrors.BackendUnavailable("postgres", err)
	}
	return nil
}
