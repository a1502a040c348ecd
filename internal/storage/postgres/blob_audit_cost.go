package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/internal/storage"
)

// Blob store ------------------------------------------------------------

func (s *Store) PutBlob(ctx context.Context, tenant, id string, data []byte) error {
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO blobs (tenant, key, data, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (tenant, key) DO UPDATE SET data = $3
		`, tenant, id, data, time.Now().UTC())
		return err
	})
	if err != nil {
		return raeerrors.BackendUnavailable("postgres", err)
	}
	return nil
}

func (s *Store) GetBlob(ctx context.Context, tenant, id string) ([]byte, error) {
	var data []byte
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT data FROM blobs WHERE tenant = $1 AND key = $2`, tenant, id)
		if err := row.Scan(&data); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return raeerrors.TenantMismatch(id)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if raeerrors.IsServiceError(err) {
			return nil, err
		}
		return nil, raeerrors.BackendUnavailable("postgres", err)
	}
	return data, nil
}

func (s *Store) DeleteBlob(ctx context.Context, tenant, id string) error {
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM blobs WHERE tenant = $1 AND key = $2`, tenant, id)
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

// Audit sink --------------------------------------------------------------

func (s *Store) Append(ctx context.Context, ev storage.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = newID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	detailsJSON, err := json.Marshal(ev.Details)
	if err != nil {
		return raeerrors.InvalidRecord("audit details not serializable")
	}

	err = s.withTenant(ctx, ev.Tenant, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO audit_events (event_id, tenant, actor, request_id, operation, outcome, critical, details, created_at)
			VALUES ($1, $2, $3, '', $4, 'recorded', $5, $6, $7)
		`, ev.ID, ev.Tenant, ev.Actor, ev.Action, ev.Critical, detailsJSON, ev.CreatedAt)
		return err
	})
	if err != nil {
		return raeerrors.BackendUnavailable("postgres", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, tenant string, since time.Time, limit int) ([]storage.AuditEvent, error) {
	var out []storage.AuditEvent
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT event_id, tenant, actor, operation, critical, details, created_at
			FROM audit_events
			WHERE tenant = $1 AND created_at >= $2
			ORDER BY created_at
			LIMIT $3
		`, tenant, since, nonZeroLimit(limit))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var ev storage.AuditEvent
			var detailsRaw []byte
			if err := rows.Scan(&ev.ID, &ev.Tenant, &ev.Actor, &ev.Action, &ev.Critical, &detailsRaw, &ev.CreatedAt); err != nil {
				return err
			}
			if len(detailsRaw) > 0 {
				var details map[string]string
				_ = json.Unmarshal(detailsRaw, &details)
				ev.Details = details
			}
			out = append(out, ev)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, raeerrors.BackendUnavailable("postgres", err)
	}
	return out, nil
}

func nonZeroLimit(limit int) int {
	if limit <= 0 {
		return 1000
	}
	return limit
}

// Cost store --------------------------------------------------------------

func (s *Store) CreateReservation(ctx context.Context, r storage.CostReservation) (storage.CostReservation, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = storage.ReservationPending
	}

	err := s.withTenant(ctx, r.Tenant, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cost_reservations (id, tenant, estimated_cost_usd, consumed_cost_usd, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, r.ID, r.Tenant, r.EstimatedUSD, r.ConsumedUSD, string(r.Status), r.CreatedAt)
		return err
	})
	if err != nil {
		return storage.CostReservation{}, raeerrors.BackendUnavailable("postgres", err)
	}
	return r, nil
}

func (s *Store) SettleReservation(ctx context.Context, id string, status storage.ReservationStatus, consumedUSD float64) (storage.CostReservation, error) {
	var out storage.CostReservation
	err := s.db.QueryRowContext(ctx, `
		UPDATE cost_reservations SET status = $2, consumed_cost_usd = $3
		WHERE id = $1
		RETURNING id, tenant, estimated_cost_usd, consumed_cost_usd, status, created_at
	`, id, string(status), consumedUSD).Scan(
		&out.ID, &out.Tenant, &out.EstimatedUSD, &out.ConsumedUSD, &out.Status, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CostReservation{}, raeerrors.Internal("reservation not found", err)
		}
		return storage.CostReservation{}, raeerrors.BackendUnavailable("postgres", err)
	}
	out.SettledAt = time.Now().UTC()
	return out, nil
}

func (s *Store) GetUsage(ctx context.Context, tenant, periodKind, periodKey string) (storage.CostUsage, error) {
	u := storage.CostUsage{Tenant: tenant, PeriodKind: periodKind, PeriodKey: periodKey}
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT spend_usd FROM cost_usage WHERE tenant = $1 AND period_kind = $2 AND period_key = $3
		`, tenant, periodKind, periodKey)
		if err := row.Scan(&u.SpendUSD); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return storage.CostUsage{}, raeerrors.BackendUnavailable("postgres", err)
	}
	return u, nil
}

func (s *Store) AddUsage(ctx context.Context, tenant, periodKind, periodKey string, deltaUSD float64) (storage.CostUsage, error) {
	u := storage.CostUsage{Tenant: tenant, PeriodKind: periodKind, PeriodKey: periodKey}
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO cost_usage (tenant, period_kind, period_key, spend_usd)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (tenant, period_kind, period_key) DO UPDATE
			SET spend_usd = cost_usage.spend_usd + $4
			RETURNING spend_usd
		`, tenant, periodKind, periodKey, deltaUSD)
		return row.Scan(&u.SpendUSD)
	})
	if err != nil {
		return storage.CostUsage{}, raeerrors.BackendUnavailable("postgres", err)
	}
	return u, nil
}
