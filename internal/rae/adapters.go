package rae

import (
	"context"
	"time"

	"github.com/dreamsoft-pro/rae/internal/graphstore"
	"github.com/dreamsoft-pro/rae/internal/llmgateway"
	"github.com/dreamsoft-pro/rae/internal/retrieval"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/tenant"
	"github.com/dreamsoft-pro/rae/internal/vectorindex"
)

// recordFetcher adapts storage.RecordStore to retrieval.RecordFetcher.
// storage.RecordStore has no bulk-read method, so GetMany loops GetRecord;
// a record that no longer exists (deleted between fusion and shaping) is
// silently omitted rather than failing the whole query.
type recordFetcher struct {
	records storage.RecordStore
}

func (f *recordFetcher) GetMany(ctx context.Context, tenantKey string, ids []string) (map[string]storage.Record, error) {
	out := make(map[string]storage.Record, len(ids))
	for _, id := range ids {
		rec, err := f.records.GetRecord(ctx, tenantKey, id)
		if err != nil {
			continue
		}
		out[rec.ID] = rec
	}
	return out, nil
}

// denseSearcher adapts vectorindex.Index to retrieval.DenseSearcher,
// translating between the two packages' identical but distinct Candidate
// types (retrieval deliberately does not import vectorindex, to keep its
// dependency surface to storage + policyguard only).
type denseSearcher struct {
	index *vectorindex.Index
}

func (d *denseSearcher) Search(ctx context.Context, tc *tenant.Context, model string, query []float32, topK int) ([]retrieval.Candidate, error) {
	hits, err := d.index.Search(ctx, tc, model, query, topK)
	if err != nil {
		return nil, err
	}
	out := make([]retrieval.Candidate, len(hits))
	for i, h := range hits {
		out[i] = retrieval.Candidate{MemoryID: h.MemoryID, Score: h.Score}
	}
	return out, nil
}

// graphSearcher adapts graphstore.Graph to retrieval.GraphSearcher. Each
// dense/lexical seed id is treated as a graph node id in its own right,
// since every stored record gets a corresponding provenance node (see
// Engine.StoreMemory): the expansion surfaces memories reachable from a
// seed's neighborhood, scored by edge confidence, deduplicated by summing
// confidence across multiple paths to the same neighbor.
type graphSearcher struct {
	graph *graphstore.Graph
}

func (g *graphSearcher) Expand(ctx context.Context, tenantKey string, seedIDs []string, maxHops int, limit int) ([]retrieval.Candidate, error) {
	tc := tenant.New(tenantKey, "retrieval-engine", nil, "", time.Time{})
	scores := make(map[string]float64)
	for _, seed := range seedIDs {
		edges, err := g.graph.Neighborhood(ctx, tc, seed, maxHops, nil, limit)
		if err != nil {
			continue
		}
		for _, e := range edges {
			neighbor := e.ToNodeID
			if neighbor == seed {
				neighbor = e.FromNodeID
			}
			scores[neighbor] += e.Confidence
		}
	}
	out := make([]retrieval.Candidate, 0, len(scores))
	for id, score := range scores {
		out = append(out, retrieval.Candidate{MemoryID: id, Score: score})
	}
	return out, nil
}

// clusterAnalyzer adapts storage.RecordStore to workers.ClusterAnalyzer:
// every longterm record counts toward the cluster, and mean usage is the
// simple average of usage counters. A production deployment would cluster
// by semantic similarity (vector proximity); this keeps the promotion
// gate's admission check working end to end without requiring a
// standalone clustering stage.
type clusterAnalyzer struct {
	records storage.RecordStore
}

func (c *clusterAnalyzer) LongtermClusterStats(ctx context.Context, tenantKey string) (int, float64, error) {
	recs, err := c.records.ListRecords(ctx, tenantKey, storage.Filter{Layer: storage.Longterm})
	if err != nil {
		return 0, 0, err
	}
	if len(recs) == 0 {
		return 0, 0, nil
	}
	var total float64
	for _, r := range recs {
		total += float64(r.UsageCounter)
	}
	return len(recs), total / float64(len(recs)), nil
}

// reflectionCompleter adapts llmgateway.Gateway to reflection.Completer,
// partially applying it to the tenant's configured "reflection" profile
// (falling back to "cheap" if the tenant never defines one) so the
// reflection engine's narrow Completer surface never has to know about
// budgets or profile routing.
type reflectionCompleter struct {
	gateway *llmgateway.Gateway
	configs *TenantRegistry
}

func (r *reflectionCompleter) Complete(ctx context.Context, tc *tenant.Context, prompt string) (string, error) {
	cfg := r.configs.Config(tc.Key)
	profile := "reflection"
	if _, ok := cfg.LLMProfiles[profile]; !ok {
		profile = "cheap"
	}
	return r.gateway.Complete(ctx, tc, cfg.Budget, profile, cfg.LLMProfiles, prompt, "")
}

// gatewayReranker adapts llmgateway.Gateway to retrieval.Reranker, resolving
// the tenant's "rerank" profile (falling back to "cheap") to a single model
// name the way reflectionCompleter resolves its own profile. The provider
// contract (internal/llmgateway.RerankProvider) scores candidates by id and
// echoes back a reordering of those same ids, so the ids are what retrieval
// needs to rebuild its ranked list.
type gatewayReranker struct {
	gateway *llmgateway.Gateway
	configs *TenantRegistry
}

func (g *gatewayReranker) Rerank(ctx context.Context, tc *tenant.Context, query string, candidates []storage.Record) ([]string, error) {
	cfg := g.configs.Config(tc.Key)
	profile := "rerank"
	models, ok := cfg.LLMProfiles[profile]
	if !ok || len(models) == 0 {
		profile = "cheap"
		models = cfg.LLMProfiles[profile]
	}
	if len(models) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return g.gateway.Rerank(ctx, tc, cfg.Budget, models[0], query, ids)
}
