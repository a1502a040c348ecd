package memory

import (
	"context"
	"math"
	"sort"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/internal/storage"
)

// Vector index ------------------------------------------------------------

func (s *Store) PutEmbedding(_ context.Context, emb storage.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if emb.Tenant == "" {
		return raeerrors.MissingTenant()
	}
	byMemory, ok := s.embeddings[emb.Tenant]
	if !ok {
		byMemory = make(map[string]map[string]storage.Embedding)
		s.embeddings[emb.Tenant] = byMemory
	}
	byModel, ok := byMemory[emb.MemoryID]
	if !ok {
		byModel = make(map[string]storage.Embedding)
		byMemory[emb.MemoryID] = byModel
	}
	byModel[emb.ModelName] = emb.Clone()
	return nil
}

func (s *Store) GetEmbedding(_ context.Context, tenant, memoryID, model string) (storage.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	emb, ok := s.embeddings[tenant][memoryID][model]
	if !ok {
		return storage.Embedding{}, raeerrors.StaleEmbedding(memoryID, model)
	}
	return emb.Clone(), nil
}

func (s *Store) DeleteEmbeddings(_ context.Context, tenant, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byMemory, ok := s.embeddings[tenant]; ok {
		delete(byMemory, memoryID)
	}
	return nil
}

func (s *Store) MarkStale(_ context.Context, tenant, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byModel, ok := s.embeddings[tenant][memoryID]
	if !ok {
		return nil
	}
	for model, emb := range byModel {
		emb.Stale = true
		byModel[model] = emb
	}
	return nil
}

// SearchDense performs an exact linear cosine-similarity scan. Adequate for
// tests and small tenants; the Postgres backend delegates to pgvector for
// anything larger.
func (s *Store) SearchDense(_ context.Context, tenant, model string, query []float32, topK int) ([]storage.ScoredID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var scored []storage.ScoredID
	for memoryID, byModel := range s.embeddings[tenant] {
		emb, ok := byModel[model]
		if !ok || emb.Stale {
			continue
		}
		scored = append(scored, storage.ScoredID{ID: memoryID, Score: cosineSimilarity(query, emb.Vector)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
