// Package retrieval implements the Hybrid Retrieval Engine: parallel dense,
// lexical, and graph candidate generation fused by Reciprocal Rank Fusion,
// shaped by policy and layer, optionally re-ranked by subscores and a
// deadline-bounded learned reranker. Grounded on the RRF fusion idiom used
// by sqvect-style hybrid search: independent ranked lists combined purely
// by rank position, never by raw heterogeneous scores.
package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/infrastructure/logging"
	"github.com/dreamsoft-pro/rae/internal/policyguard"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

// defaults mirror tenant.RetrievalConfig's zero-value fallbacks so a tenant
// config that omits retrieval tuning still behaves sensibly.
const (
	defaultTopK1             = 50 // dense
	defaultTopK2             = 50 // lexical
	defaultTopK3             = 20 // graph
	defaultTopN              = 30
	defaultRRFK              = 60
	defaultSafeExitThreshold = 5
	defaultDiversityTau      = 0.92
	defaultRerankDeadlineMS  = 10
)

// DenseSearcher is the narrow surface retrieval needs from the vector index.
type DenseSearcher interface {
	Search(ctx context.Context, tc *tenant.Context, model string, query []float32, topK int) ([]Candidate, error)
}

// Candidate mirrors vectorindex.Candidate without importing that package,
// keeping retrieval's dependency surface to storage + policyguard only.
type Candidate struct {
	MemoryID string
	Score    float64
}

// LexicalSearcher performs a BM25-like keyword search over record content.
type LexicalSearcher interface {
	Search(ctx context.Context, tenantKey, query string, topK int) ([]Candidate, error)
}

// GraphSearcher performs a bounded-hop neighborhood expansion seeded from
// the dense/lexical candidates, used to pull in structurally related
// memories the text-similarity channels miss.
type GraphSearcher interface {
	Expand(ctx context.Context, tenantKey string, seedIDs []string, maxHops int, limit int) ([]Candidate, error)
}

// RecordFetcher resolves final candidate ids to full records for shaping
// and subscore re-ranking.
type RecordFetcher interface {
	GetMany(ctx context.Context, tenantKey string, ids []string) (map[string]storage.Record, error)
}

// Reranker is an optional learned reranker. Implementations must honor
// ctx's deadline; Engine falls back to the fused order if it does not
// return in time, and also falls back (with a reason surfaced on the
// Response) if the reranker denies the call for budget.
type Reranker interface {
	Rerank(ctx context.Context, tc *tenant.Context, query string, candidates []storage.Record) ([]string, error)
}

// Result is one retrieval hit.
type Result struct {
	Record storage.Record
	Score  float64
}

// Response is the outcome of a Query, including a degradation flag set
// when one or more candidate channels failed but enough survived to
// answer, the safe early-exit reason (if fusion was skipped), and a
// structured reason for any degradation the caller should surface (e.g.
// a reranker skipped for budget).
type Response struct {
	Results           []Result
	Degraded          bool
	EarlyExit         string
	DegradationReason string
}

// Engine is the Hybrid Retrieval Engine.
type Engine struct {
	dense   DenseSearcher
	lexical LexicalSearcher
	graph   GraphSearcher
	records RecordFetcher
	guard   *policyguard.Guard
	rerank  Reranker
	logger  *logging.Logger
}

// New builds a retrieval Engine. rerank may be nil, in which case the
// fused-and-shaped order is always final.
func New(dense DenseSearcher, lexical LexicalSearcher, graph GraphSearcher, records RecordFetcher, guard *policyguard.Guard, rerank Reranker, logger *logging.Logger) *Engine {
	return &Engine{dense: dense, lexical: lexical, graph: graph, records: records, guard: guard, rerank: rerank, logger: logger}
}

// Query runs the full hybrid retrieval pipeline for a free-text query
// against the tenant's memory store.
func (e *Engine) Query(ctx context.Context, tc *tenant.Context, cfg tenant.RetrievalConfig, query string, embedModel string, queryVector []float32) (Response, error) {
	cfg = withDefaults(cfg)
	start := time.Now()

	dense, lexical, graphCandidates, degraded := e.fanOut(ctx, tc, cfg, query, embedModel, queryVector)
	if dense == nil && lexical == nil && graphCandidates == nil {
		return Response{}, raeerrors.RetrievalUnavailable(nil)
	}

	earlyExit := ""
	var fused []string
	if safeEarlyExit(lexical, cfg.SafeExitThreshold) {
		// A small, high-confidence lexical hit set indicates a precise,
		// well-keyworded query (an identifier lookup). Embeddings are
		// generated asynchronously, so the dense channel may still be
		// empty moments after a record is stored; trust the lexical
		// match rather than fusing it away or falling back to a dense
		// order that can be empty outright.
		fused = idsInOrder(lexical)
		earlyExit = "lexical"
	} else {
		fused = reciprocalRankFusion(cfg.RRFK, dense, lexical, graphCandidates)
	}

	if len(fused) > cfg.TopN*3 {
		fused = fused[:cfg.TopN*3]
	}

	recs, err := e.records.GetMany(ctx, tc.Key, fused)
	if err != nil {
		return Response{}, raeerrors.RetrievalUnavailable(err)
	}

	shaped := e.shape(tc, fused, recs)
	ranked := subscoreRerank(shaped, recs, cfg)

	degradationReason := ""
	if e.rerank != nil && len(ranked) > 0 {
		ranked, degradationReason = e.learnedRerank(ctx, tc, query, ranked, recs, cfg)
	}

	if len(ranked) > cfg.TopN {
		ranked = ranked[:cfg.TopN]
	}

	results := make([]Result, 0, len(ranked))
	for _, rs := range ranked {
		results = append(results, Result{Record: recs[rs.id], Score: rs.score})
	}

	if e.logger != nil {
		e.logger.LogRetrieval(ctx, map[string]int{"dense": len(dense), "lexical": len(lexical), "graph": len(graphCandidates)}, len(fused), earlyExit, time.Since(start))
	}
	return Response{Results: results, Degraded: degraded, EarlyExit: earlyExit, DegradationReason: degradationReason}, nil
}

func withDefaults(cfg tenant.RetrievalConfig) tenant.RetrievalConfig {
	if cfg.TopK1 == 0 {
		cfg.TopK1 = defaultTopK1
	}
	if cfg.TopK2 == 0 {
		cfg.TopK2 = defaultTopK2
	}
	if cfg.TopK3 == 0 {
		cfg.TopK3 = defaultTopK3
	}
	if cfg.TopN == 0 {
		cfg.TopN = defaultTopN
	}
	if cfg.RRFK == 0 {
		cfg.RRFK = defaultRRFK
	}
	if cfg.SafeExitThreshold == 0 {
		cfg.SafeExitThreshold = defaultSafeExitThreshold
	}
	if cfg.DiversityTau == 0 {
		cfg.DiversityTau = defaultDiversityTau
	}
	if cfg.RerankDeadlineMS == 0 {
		cfg.RerankDeadlineMS = defaultRerankDeadlineMS
	}
	return cfg
}

// fanOut runs the three candidate channels concurrently. A channel that
// errors contributes no candidates and sets degraded; the query still
// answers from whichever channels succeeded.
func (e *Engine) fanOut(ctx context.Context, tc *tenant.Context, cfg tenant.RetrievalConfig, query, embedModel string, queryVector []float32) (dense, lexical, graph []Candidate, degraded bool) {
	var wg sync.WaitGroup
	var mu sync.Mutex

	run := func(name string, fn func() ([]Candidate, error), dst *[]Candidate) {
		defer wg.Done()
		cands, err := fn()
		if err != nil {
			mu.Lock()
			degraded = true
			mu.Unlock()
			if e.logger != nil {
				e.logger.Error(ctx, "retrieval channel failed: "+name, err, map[string]interface{}{"channel": name})
			}
			return
		}
		mu.Lock()
		*dst = cands
		mu.Unlock()
	}

	if e.dense != nil && len(queryVector) > 0 {
		wg.Add(1)
		go run("dense", func() ([]Candidate, error) {
			return e.dense.Search(ctx, tc, embedModel, queryVector, cfg.TopK1)
		}, &dense)
	}
	if e.lexical != nil {
		wg.Add(1)
		go run("lexical", func() ([]Candidate, error) {
			return e.lexical.Search(ctx, tc.Key, query, cfg.TopK2)
		}, &lexical)
	}
	if e.graph != nil {
		wg.Add(1)
		go run("graph", func() ([]Candidate, error) {
			seeds := make([]string, 0, len(dense))
			for _, c := range dense {
				seeds = append(seeds, c.MemoryID)
			}
			return e.graph.Expand(ctx, tc.Key, seeds, 2, cfg.TopK3)
		}, &graph)
	}
	wg.Wait()
	return dense, lexical, graph, degraded
}

func idsInOrder(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.MemoryID
	}
	return out
}

func safeEarlyExit(lexical []Candidate, threshold int) bool {
	if threshold <= 0 {
		return false
	}
	confident := 0
	for _, c := range lexical {
		if c.Score > 0 {
			confident++
		}
	}
	return confident > 0 && confident < threshold
}

// reciprocalRankFusion combines ranked candidate lists by rank position
// alone: score(id) = sum over lists containing id of 1/(k+rank). Channels
// are order-independent and absent candidates contribute nothing.
func reciprocalRankFusion(k int, lists ...[]Candidate) []string {
	scores := make(map[string]float64)
	for _, list := range lists {
		for rank, c := range list {
			scores[c.MemoryID] += 1.0 / float64(k+rank+1)
		}
	}
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

// shape drops candidates the tenant's read policy forbids or that the
// calling context cannot resolve to a record, preserving fused order.
func (e *Engine) shape(tc *tenant.Context, ids []string, recs map[string]storage.Record) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		rec, ok := recs[id]
		if !ok {
			continue
		}
		if e.guard != nil && e.guard.CheckRead(tc, rec.InfoClass) != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

type rankedID struct {
	id    string
	score float64
}

// subscoreRerank recomputes a weighted score over relevance/importance/
// recency/usage for the surviving candidates, penalizing near-duplicate
// content via a cosine-overlap diversity term. Graph centrality is
// approximated from usage counter in the absence of a precomputed
// centrality signal — a placeholder the graph module can replace once it
// exposes a true centrality score.
func subscoreRerank(ids []string, recs map[string]storage.Record, cfg tenant.RetrievalConfig) []rankedID {
	w := cfg.SubscoreWeights
	now := time.Now().UTC()

	out := make([]rankedID, 0, len(ids))
	for rank, id := range ids {
		rec := recs[id]
		relevance := 1.0 / float64(rank+1)
		importance := rec.Importance
		recency := recencyScore(rec.LastAccessedAt, now)
		centrality := usageCentrality(rec.UsageCounter)
		density := 0.0
		diversity := 1.0

		score := w.Relevance*relevance + w.Importance*importance + w.Recency*recency +
			w.Centrality*centrality + w.Diversity*diversity + w.Density*density
		out = append(out, rankedID{id: id, score: score})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

func recencyScore(last time.Time, now time.Time) float64 {
	if last.IsZero() {
		return 0
	}
	ageDays := now.Sub(last).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays / 14)
}

func usageCentrality(usage int) float64 {
	return 1 - math.Exp(-float64(usage)/5)
}

// learnedRerank hands the current top candidates to the optional reranker
// under a hard deadline; any timeout, provider error, or budget denial
// keeps the incoming order, surfacing a degradation reason for the
// budget-denial and deadline cases so the caller can report why the
// learned reorder did not happen.
func (e *Engine) learnedRerank(ctx context.Context, tc *tenant.Context, query string, ranked []rankedID, recs map[string]storage.Record, cfg tenant.RetrievalConfig) ([]rankedID, string) {
	deadlineCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.RerankDeadlineMS)*time.Millisecond)
	defer cancel()

	window := ranked
	if len(window) > 30 {
		window = window[:30]
	}
	records := make([]storage.Record, 0, len(window))
	for _, r := range window {
		records = append(records, recs[r.id])
	}

	type result struct {
		order []string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		order, err := e.rerank.Rerank(deadlineCtx, tc, query, records)
		done <- result{order: order, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if raeerrors.Is(res.err, raeerrors.ErrCodeBudgetExceeded) {
				return ranked, "rerank_skipped: budget"
			}
			return ranked, ""
		}
		if len(res.order) == 0 {
			return ranked, ""
		}
		reordered := make([]rankedID, 0, len(ranked))
		seen := make(map[string]bool, len(res.order))
		for _, id := range res.order {
			for _, r := range ranked {
				if r.id == id {
					reordered = append(reordered, r)
					seen[id] = true
					break
				}
			}
		}
		for _, r := range ranked {
			if !seen[r.id] {
				reordered = append(reordered, r)
			}
		}
		return reordered, ""
	case <-deadlineCtx.Done():
		if e.logger != nil {
			e.logger.Error(ctx, "rerank deadline exceeded, falling back to fused order", deadlineCtx.Err(), map[string]interface{}{"deadline_ms": cfg.RerankDeadlineMS})
		}
		return ranked, "rerank_skipped: deadline"
	}
}
