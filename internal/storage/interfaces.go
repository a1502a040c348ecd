package storage

import (
	"context"
	"time"
)

// RecordStore persists memory records. Every method is tenant-scoped: a
// Postgres implementation must set the session tenant marker before issuing
// its query; an in-memory implementation filters by tenant directly.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec Record) (Record, error)
	UpdateRecord(ctx context.Context, rec Record) (Record, error)
	GetRecord(ctx context.Context, tenant, id string) (Record, error)
	ListRecords(ctx context.Context, tenant string, filter Filter) ([]Record, error)
	DeleteRecord(ctx context.Context, tenant, id string) error

	// TouchRecord bumps UsageCounter and LastAccessedAt for a record read,
	// used by the decay worker's recency signal.
	TouchRecord(ctx context.Context, tenant, id string) error
}

// VectorIndex stores and searches per-model embeddings.
type VectorIndex interface {
	PutEmbedding(ctx context.Context, emb Embedding) error
	GetEmbedding(ctx context.Context, tenant, memoryID, model string) (Embedding, error)
	DeleteEmbeddings(ctx context.Context, tenant, memoryID string) error

	// SearchDense returns the topK nearest embeddings to query in the given
	// model's space, restricted to tenant. Implementations never compare
	// across model spaces.
	SearchDense(ctx context.Context, tenant, model string, query []float32, topK int) ([]ScoredID, error)

	// MarkStale flags every embedding for memoryID across all models as
	// stale, used when a record's content changes.
	MarkStale(ctx context.Context, tenant, memoryID string) error
}

// GraphStore persists typed nodes and confidence-weighted edges.
type GraphStore interface {
	PutNode(ctx context.Context, node SemanticNode) (SemanticNode, error)
	GetNode(ctx context.Context, tenant, id string) (SemanticNode, error)
	PutEdge(ctx context.Context, edge Edge) (Edge, error)
	DeleteEdge(ctx context.Context, tenant, id string) error

	// Neighbors returns edges within maxHops of nodeID, bounded by limit.
	Neighbors(ctx context.Context, tenant, nodeID string, maxHops, limit int) ([]Edge, error)

	// DecayEdges multiplies every edge's confidence below the floor's
	// protection by factor, used by the decay worker.
	DecayEdges(ctx context.Context, tenant string, factor, floor float64) error
}

// BlobStore persists large or binary payloads referenced by a record but
// not suited to the record table itself (e.g. raw sensory captures).
type BlobStore interface {
	PutBlob(ctx context.Context, tenant, id string, data []byte) error
	GetBlob(ctx context.Context, tenant, id string) ([]byte, error)
	DeleteBlob(ctx context.Context, tenant, id string) error
}

// AuditSink persists audit events. Implementations must never drop a
// Critical event; non-critical events may be dropped under backpressure.
type AuditSink interface {
	Append(ctx context.Context, ev AuditEvent) error
	List(ctx context.Context, tenant string, since time.Time, limit int) ([]AuditEvent, error)
}

// CostStore persists budget reservations and accumulated spend.
type CostStore interface {
	CreateReservation(ctx context.Context, r CostReservation) (CostReservation, error)
	SettleReservation(ctx context.Context, id string, status ReservationStatus, consumedUSD float64) (CostReservation, error)
	GetUsage(ctx context.Context, tenant, periodKind, periodKey string) (CostUsage, error)
	AddUsage(ctx context.Context, tenant, periodKind, periodKey string, deltaUSD float64) (CostUsage, error)
}

// ScoredID is a candidate identifier with its retrieval-channel score.
type ScoredID struct {
	ID    string
	Score float64
}

// Capability is a named backend feature a component may query for before
// relying on it, so the engine can degrade gracefully instead of failing a
// whole request when one backend lacks a capability.
type Capability string

const (
	CapabilityDenseSearch Capability = "dense_search"
	CapabilityGraphHops   Capability = "graph_hops"
	CapabilityTenantRLS   Capability = "tenant_rls"
)

// CapabilityMatrix reports which capabilities a concrete store provides.
// A backend that cannot honor tenant row-level isolation must not report
// CapabilityTenantRLS, and the engine must refuse to run multi-tenant
// workloads against it.
type CapabilityMatrix interface {
	Capabilities() map[Capability]bool
}
