// Package memrecord implements the Memory Record Store service layer:
// store/fetch/update/delete/list over internal/storage.RecordStore, wired
// through the policy guard and audit sink, with best-effort asynchronous
// embedding generation.
package memrecord

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/infrastructure/logging"
	"github.com/dreamsoft-pro/rae/internal/audit"
	"github.com/dreamsoft-pro/rae/internal/policyguard"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

// Embedder is the narrow surface memrecord needs from the LLM gateway: the
// ability to asynchronously (re)compute embeddings for a record across a
// tenant's active models. memrecord depends on this interface rather than
// llmgateway directly so the two packages never form an import cycle.
type Embedder interface {
	EmbedRecordAsync(tenant, recordID, content string)
}

// Draft is the caller-supplied payload for Store.
type Draft struct {
	Content    string
	Layer      storage.Layer
	Tags       []string
	Source     string
	Importance float64
	ParentIDs  []string
}

// Mutation is the restricted field set Update may change. Content is
// deliberately absent: once embeddings exist for a record its content is
// immutable, per the spec's anti-drift invariant — callers create a new
// record and link it via ParentIDs instead.
type Mutation struct {
	Tags            *[]string
	Importance      *float64
	BumpUsage       bool
	InfoClassDowngrade *storage.InfoClass
}

// Store is the Memory Record Store service.
type Store struct {
	records storage.RecordStore
	vectors storage.VectorIndex
	graph   storage.GraphStore
	guard   *policyguard.Guard
	sink    *audit.Sink
	embed   Embedder
	logger  *logging.Logger
}

// New builds a memrecord.Store.
func New(records storage.RecordStore, vectors storage.VectorIndex, graph storage.GraphStore, guard *policyguard.Guard, sink *audit.Sink, embed Embedder, logger *logging.Logger) *Store {
	return &Store{records: records, vectors: vectors, graph: graph, guard: guard, sink: sink, embed: embed, logger: logger}
}

// Store persists a new record: computes a content hash, classifies it,
// enforces layer containment, writes it, kicks off asynchronous embedding
// generation, and emits an audit event.
func (s *Store) Store(ctx context.Context, tc *tenant.Context, draft Draft) (storage.Record, error) {
	if draft.Content == "" {
		return storage.Record{}, raeerrors.InvalidRecord("content is required")
	}
	if draft.Layer == "" {
		draft.Layer = storage.Sensory
	}
	if !draft.Layer.Valid() {
		return storage.Record{}, raeerrors.BadLayer(string(draft.Layer))
	}

	infoClass := s.guard.Classify(draft.Content)
	content := draft.Content
	if err := s.guard.CheckWrite(infoClass, draft.Layer); err != nil {
		s.recordAudit(tc, "store", "", true, map[string]string{"policy_event": "restricted_detected", "layer": string(draft.Layer)})
		return storage.Record{}, err
	}

	now := time.Now().UTC()
	rec := storage.Record{
		ID:             uuid.NewString(),
		Tenant:         tc.Key,
		Layer:          draft.Layer,
		Content:        content,
		ContentHash:    contentHash(content),
		Tags:           draft.Tags,
		Source:         draft.Source,
		Importance:     clamp01(draft.Importance),
		InfoClass:      infoClass,
		ParentIDs:      draft.ParentIDs,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	created, err := s.records.CreateRecord(ctx, rec)
	if err != nil {
		return storage.Record{}, err
	}

	if s.embed != nil {
		s.embed.EmbedRecordAsync(tc.Key, created.ID, created.Content)
	}

	s.recordAudit(tc, "store", created.ID, false, map[string]string{"layer": string(created.Layer)})
	return created, nil
}

// Fetch retrieves a record by id, enforcing the caller's read-class ceiling
// and bumping its usage counter and last-accessed timestamp.
func (s *Store) Fetch(ctx context.Context, tc *tenant.Context, id string) (storage.Record, error) {
	rec, err := s.records.GetRecord(ctx, tc.Key, id)
	if err != nil {
		return storage.Record{}, err
	}
	if err := s.guard.CheckRead(tc, rec.InfoClass); err != nil {
		s.recordAudit(tc, "fetch", id, true, map[string]string{"reason": "info_class_violation"})
		return storage.Record{}, err
	}
	if err := s.records.TouchRecord(ctx, tc.Key, id); err == nil {
		rec.UsageCounter++
		rec.LastAccessedAt = time.Now().UTC()
	}
	s.recordAudit(tc, "fetch", id, false, nil)
	return rec, nil
}

// Update applies a Mutation's restricted field set. Content is never
// touched here.
func (s *Store) Update(ctx context.Context, tc *tenant.Context, id string, m Mutation) (storage.Record, error) {
	rec, err := s.records.GetRecord(ctx, tc.Key, id)
	if err != nil {
		return storage.Record{}, err
	}

	if m.Tags != nil {
		rec.Tags = *m.Tags
	}
	if m.Importance != nil {
		rec.Importance = clamp01(*m.Importance)
	}
	if m.BumpUsage {
		rec.UsageCounter++
	}
	if m.InfoClassDowngrade != nil {
		if infoClassRank(*m.InfoClassDowngrade) > infoClassRank(rec.InfoClass) {
			return storage.Record{}, raeerrors.InfoClassViolation(string(*m.InfoClassDowngrade))
		}
		rec.InfoClass = *m.InfoClassDowngrade
	}
	rec.LastAccessedAt = time.Now().UTC()

	updated, err := s.records.UpdateRecord(ctx, rec)
	if err != nil {
		return storage.Record{}, err
	}
	s.recordAudit(tc, "update", id, false, nil)
	return updated, nil
}

// Delete cascades: removes embeddings, then the record itself, and writes
// a deletion audit entry. Graph nodes and edges are not touched here or by
// internal/rae's DeleteMemory: the record's provenance node stays in the
// graph after the record is gone.
func (s *Store) Delete(ctx context.Context, tc *tenant.Context, id string) error {
	if _, err := s.records.GetRecord(ctx, tc.Key, id); err != nil {
		return err
	}
	if s.vectors != nil {
		_ = s.vectors.DeleteEmbeddings(ctx, tc.Key, id)
	}
	if err := s.records.DeleteRecord(ctx, tc.Key, id); err != nil {
		return err
	}
	s.recordAudit(tc, "delete", id, false, map[string]string{"right_to_be_forgotten": "true"})
	return nil
}

// List returns records matching filter.
func (s *Store) List(ctx context.Context, tc *tenant.Context, filter storage.Filter) ([]storage.Record, error) {
	recs, err := s.records.ListRecords(ctx, tc.Key, filter)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, r := range recs {
		if s.guard.CheckRead(tc, r.InfoClass) == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) recordAudit(tc *tenant.Context, action, target string, critical bool, details map[string]string) {
	if s.sink == nil {
		return
	}
	s.sink.Record(storage.AuditEvent{
		Tenant:   tc.Key,
		Actor:    tc.Actor,
		Action:   action,
		Target:   target,
		Critical: critical,
		Details:  details,
	})
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var infoClassOrder = map[storage.InfoClass]int{
	storage.Public:       0,
	storage.Internal:     1,
	storage.Confidential: 2,
	storage.Restricted:   3,
}

func infoClassRank(c storage.InfoClass) int { return infoClassOrder[c] }
