// Package memory is a thread-safe in-memory implementation of every
// internal/storage interface. It is intended for tests and prototyping and
// deliberately keeps the implementation simple.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/internal/storage"
)

// Store is a thread-safe in-memory persistence layer implementing every
// storage interface. Every map is keyed first by tenant, then by ID, so
// cross-tenant access is structurally impossible rather than merely filtered.
type Store struct {
	mu sync.RWMutex

	nextID int64

	records    map[string]map[string]storage.Record
	embeddings map[string]map[string]map[string]storage.Embedding // tenant -> memoryID -> model -> embedding
	nodes      map[string]map[string]storage.SemanticNode
	edges      map[string]map[string]storage.Edge
	blobs      map[string]map[string][]byte
	audit      map[string][]storage.AuditEvent
	reservations map[string]storage.CostReservation
	usage      map[string]map[string]storage.CostUsage // tenant -> periodKind|periodKey -> usage
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		nextID:       1,
		records:      make(map[string]map[string]storage.Record),
		embeddings:   make(map[string]map[string]map[string]storage.Embedding),
		nodes:        make(map[string]map[string]storage.SemanticNode),
		edges:        make(map[string]map[string]storage.Edge),
		blobs:        make(map[string]map[string][]byte),
		audit:        make(map[string][]storage.AuditEvent),
		reservations: make(map[string]storage.CostReservation),
		usage:        make(map[string]map[string]storage.CostUsage),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return strconv.FormatInt(id, 10)
}

// Capabilities implements storage.CapabilityMatrix. The in-memory store
// honors tenant isolation structurally but has no real vector or graph
// index, so it reports only what it can actually serve correctly.
func (s *Store) Capabilities() map[storage.Capability]bool {
	return map[storage.Capability]bool{
		storage.CapabilityTenantRLS:   true,
		storage.CapabilityDenseSearch: true,
		storage.CapabilityGraphHops:   true,
	}
}

// Record store -----------------------------------------------------------

func (s *Store) CreateRecord(_ context.Context, rec storage.Record) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Tenant == "" {
		return storage.Record{}, raeerrors.MissingTenant()
	}
	if rec.ID == "" {
		rec.ID = s.nextIDLocked()
	}
	bucket := s.tenantRecordsLocked(rec.Tenant)
	if _, exists := bucket[rec.ID]; exists {
		return storage.Record{}, raeerrors.InvalidRecord(fmt.Sprintf("record %s already exists", rec.ID))
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.LastAccessedAt = now
	rec.Version = 1

	bucket[rec.ID] = rec.Clone()
	return rec.Clone(), nil
}

func (s *Store) UpdateRecord(_ context.Context, rec storage.Record) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.tenantRecordsLocked(rec.Tenant)
	original, ok := bucket[rec.ID]
	if !ok {
		return storage.Record{}, raeerrors.TenantMismatch(rec.ID)
	}
	if rec.Version != 0 && rec.Version != original.Version {
		return storage.Record{}, raeerrors.OptimisticConcurrency(rec.ID)
	}

	rec.CreatedAt = original.CreatedAt
	rec.Version = original.Version + 1
	bucket[rec.ID] = rec.Clone()
	return rec.Clone(), nil
}

func (s *Store) GetRecord(_ context.Context, tenant, id string) (storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[tenant][id]
	if !ok {
		return storage.Record{}, raeerrors.TenantMismatch(id)
	}
	return rec.Clone(), nil
}

func (s *Store) ListRecords(_ context.Context, tenant string, filter storage.Filter) ([]storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.Record
	for _, rec := range s.records[tenant] {
		if !matchesFilter(rec, filter) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) DeleteRecord(_ context.Context, tenant, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.records[tenant]
	if bucket == nil {
		return raeerrors.TenantMismatch(id)
	}
	if _, ok := bucket[id]; !ok {
		return raeerrors.TenantMismatch(id)
	}
	delete(bucket, id)
	return nil
}

func (s *Store) TouchRecord(_ context.Context, tenant, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.records[tenant]
	rec, ok := bucket[id]
	if !ok {
		return raeerrors.TenantMismatch(id)
	}
	rec.UsageCounter++
	rec.LastAccessedAt = time.Now().UTC()
	bucket[id] = rec
	return nil
}

func (s *Store) tenantRecordsLocked(tenant string) map[string]storage.Record {
	bucket, ok := s.records[tenant]
	if !ok {
		bucket = make(map[string]storage.Record)
		s.records[tenant] = bucket
	}
	return bucket
}

func matchesFilter(rec storage.Record, f storage.Filter) bool {
	if f.Layer != "" && rec.Layer != f.Layer {
		return false
	}
	if f.Source != "" && rec.Source != f.Source {
		return false
	}
	if f.MinImportance > 0 && rec.Importance < f.MinImportance {
		return false
	}
	for _, tag := range f.Tags {
		if !containsString(rec.Tags, tag) {
			return false
		}
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, v := range haystack {
		if strings.EqualFold(v, needle) {
			return true
		}
	}
	return false
}
