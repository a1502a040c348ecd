// Package vectorindex wraps storage.VectorIndex with the multi-model
// federated-embedding discipline spec §4.4 requires: one vector per active
// tenant model, never ranked or compared across model spaces, and search
// results exposed only as (memory id, score) pairs so callers never see raw
// vectors.
package vectorindex

import (
	"context"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

// Index is the Vector Index service.
type Index struct {
	backend storage.VectorIndex
}

// New builds an Index backed by a storage.VectorIndex implementation.
func New(backend storage.VectorIndex) *Index {
	return &Index{backend: backend}
}

// Upsert writes one embedding for memoryID under model. Callers generating
// embeddings for several active models call Upsert once per model; the
// index never merges vectors from distinct models into one record.
func (idx *Index) Upsert(ctx context.Context, tc *tenant.Context, memoryID, model string, vector []float32, contentHash string) error {
	if len(vector) == 0 {
		return raeerrors.InvalidRecord("embedding vector is empty")
	}
	return idx.backend.PutEmbedding(ctx, storage.Embedding{
		MemoryID:    memoryID,
		ModelName:   model,
		Tenant:      tc.Key,
		Dim:         len(vector),
		Vector:      vector,
		ContentHash: contentHash,
	})
}

// MarkStale flags every embedding for memoryID as needing regeneration,
// used when a record's content changes underneath an existing embedding
// (a rare path today since content is immutable post-embedding, but kept
// for the reconciliation worker's re-embed-on-model-rotation case).
func (idx *Index) MarkStale(ctx context.Context, tc *tenant.Context, memoryID string) error {
	return idx.backend.MarkStale(ctx, tc.Key, memoryID)
}

// Delete removes every embedding for memoryID across all models, used by
// the record store's deletion cascade.
func (idx *Index) Delete(ctx context.Context, tc *tenant.Context, memoryID string) error {
	return idx.backend.DeleteEmbeddings(ctx, tc.Key, memoryID)
}

// Candidate is a dense-search hit: a memory id and its similarity score in
// the queried model's space. It deliberately carries no vector data.
type Candidate struct {
	MemoryID string
	Score    float64
}

// Search returns the topK nearest embeddings to query in model's space.
// model must name one of the tenant's active embedding models; the caller
// (internal/retrieval) is responsible for selecting a model within a single
// space ("cheap" or "heavy") and never mixing results across spaces.
func (idx *Index) Search(ctx context.Context, tc *tenant.Context, model string, query []float32, topK int) ([]Candidate, error) {
	if len(query) == 0 {
		return nil, raeerrors.InvalidRecord("query vector is empty")
	}
	if topK <= 0 {
		topK = 50
	}
	hits, err := idx.backend.SearchDense(ctx, tc.Key, model, query, topK)
	if err != nil {
		return nil, raeerrors.RetrievalUnavailable(err)
	}
	out := make([]Candidate, len(hits))
	for i, h := range hits {
		out[i] = Candidate{MemoryID: h.ID, Score: h.Score}
	}
	return out, nil
}
