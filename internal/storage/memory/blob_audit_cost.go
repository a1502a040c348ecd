package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/internal/storage"
)

// Blob store ----------------------------------------------------------------

func (s *Store) PutBlob(_ context.Context, tenant, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.blobs[tenant]
	if !ok {
		bucket = make(map[string][]byte)
		s.blobs[tenant] = bucket
	}
	cp := append([]byte(nil), data...)
	bucket[id] = cp
	return nil
}

func (s *Store) GetBlob(_ context.Context, tenant, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[tenant][id]
	if !ok {
		return nil, raeerrors.TenantMismatch(id)
	}
	return append([]byte(nil), data...), nil
}

func (s *Store) DeleteBlob(_ context.Context, tenant, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.blobs[tenant]
	if bucket == nil {
		return raeerrors.TenantMismatch(id)
	}
	delete(bucket, id)
	return nil
}

// Audit sink ------------------------------------------------------------

func (s *Store) Append(_ context.Context, ev storage.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = s.nextIDLocked()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	s.audit[ev.Tenant] = append(s.audit[ev.Tenant], ev.Clone())
	return nil
}

func (s *Store) List(_ context.Context, tenant string, since time.Time, limit int) ([]storage.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.AuditEvent
	for _, ev := range s.audit[tenant] {
		if !since.IsZero() && ev.CreatedAt.Before(since) {
			continue
		}
		out = append(out, ev.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Cost store ------------------------------------------------------------

func (s *Store) CreateReservation(_ context.Context, r storage.CostReservation) (storage.CostReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = s.nextIDLocked()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = storage.ReservationPending
	}
	s.reservations[r.ID] = r
	return r, nil
}

func (s *Store) SettleReservation(_ context.Context, id string, status storage.ReservationStatus, consumedUSD float64) (storage.CostReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return storage.CostReservation{}, raeerrors.Internal(fmt.Sprintf("reservation %s not found", id), nil)
	}
	r.Status = status
	r.ConsumedUSD = consumedUSD
	r.SettledAt = time.Now().UTC()
	s.reservations[id] = r
	return r, nil
}

func (s *Store) GetUsage(_ context.Context, tenant, periodKind, periodKey string) (storage.CostUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usage[tenant][usageKey(periodKind, periodKey)]
	if !ok {
		return storage.CostUsage{Tenant: tenant, PeriodKind: periodKind, PeriodKey: periodKey}, nil
	}
	return u, nil
}

func (s *Store) AddUsage(_ context.Context, tenant, periodKind, periodKey string, deltaUSD float64) (storage.CostUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.usage[tenant]
	if !ok {
		bucket = make(map[string]storage.CostUsage)
		s.usage[tenant] = bucket
	}
	key := usageKey(periodKind, periodKey)
	u := bucket[key]
	u.Tenant = tenant
	u.PeriodKind = periodKind
	u.PeriodKey = periodKey
	u.SpendUSD += deltaUSD
	bucket[key] = u
	return u, nil
}

func usageKey(periodKind, periodKey string) string {
	return periodKind + "|" + periodKey
}
