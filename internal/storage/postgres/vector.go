package postgres

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/lib/pq"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/internal/storage"
)

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

func (s *Store) PutEmbedding(ctx context.Context, emb storage.Embedding) error {
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now().UTC()
	}
	err := s.withTenant(ctx, emb.Tenant, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memory_embeddings (memory_id, model_name, tenant, dim, vector, content_hash, stale, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (memory_id, model_name) DO UPDATE
			SET dim = $4, vector = $5, content_hash = $6, stale = $7, created_at = $8
		`, emb.MemoryID, emb.ModelName, emb.Tenant, emb.Dim, pq.Array(emb.Vector), emb.ContentHash, emb.Stale, emb.CreatedAt)
		return err
	})
	if err != nil {
		return raeerrors.BackendUnavailable("postgres", err)
	}
	return nil
}

func (s *Store) GetEmbedding(ctx context.Context, tenant, memoryID, model string) (storage.Embedding, error) {
	var emb storage.Embedding
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT memory_id, model_name, tenant, dim, vector, content_hash, stale, created_at
			FROM memory_embeddings WHERE memory_id = $1 AND model_name = $2 AND tenant = $3
		`, memoryID, model, tenant)

		var vec pq.Float64Array
		if err := row.Scan(&emb.MemoryID, &emb.ModelName, &emb.Tenant, &emb.Dim, &vec, &emb.ContentHash, &emb.Stale, &emb.CreatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return raeerrors.StaleEmbedding(memoryID, model)
			}
			return err
		}
		emb.Vector = float64sToFloat32s(vec)
		return nil
	})
	if err != nil {
		if raeerrors.IsServiceError(err) {
			return storage.Embedding{}, err
		}
		return storage.Embedding{}, raeerrors.BackendUnavailable("postgres", err)
	}
	return emb, nil
}

func (s *Store) DeleteEmbeddings(ctx context.Context, tenant, memoryID string) error {
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM memory_embeddings WHERE memory_id = $1 AND tenant = $2`, memoryID, tenant)
		return err
	})
	if err != nil {
		return raeerrors.BackendUnavailable("postgres", err)
	}
	return nil
}

func (s *Store) MarkStale(ctx context.Context, tenant, memoryID string) error {
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE memory_embeddings SET stale = true WHERE memory_id = $1 AND tenant = $2`, memoryID, tenant)
		return err
	})
	if err != nil {
		return raeerrors.BackendUnavailable("postgres", err)
	}
	return nil
}

// SearchDense pulls every non-stale embedding for the model and ranks by
// cosine similarity in Go. A production deployment would instead delegate
// this to a pgvector ORDER BY <-> index scan; the schema keeps vectors as
// plain arrays so this path stays correct without that extension installed.
func (s *Store) SearchDense(ctx context.Context, tenant, model string, query []float32, topK int) ([]storage.ScoredID, error) {
	var scored []storage.ScoredID
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT memory_id, vector FROM memory_embeddings
			WHERE tenant = $1 AND model_name = $2 AND stale = false
		`, tenant, model)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var memoryID string
			var vec pq.Float64Array
			if err := rows.Scan(&memoryID, &vec); err != nil {
				return err
			}
			scored = append(scored, storage.ScoredID{
				ID:    memoryID,
				Score: cosineSimilarity(query, float64sToFloat32s(vec)),
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, raeerrors.BackendUnavailable("postgres", err)
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

func float64sToFloat32s(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
