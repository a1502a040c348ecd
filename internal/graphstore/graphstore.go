// Package graphstore wraps storage.GraphStore with the bounded-hop
// neighborhood query and confidence-decay semantics spec §4.5 requires.
package graphstore

import (
	"context"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

// maxAllowedHops is the API boundary cap on traversal depth; no caller may
// request a deeper neighborhood regardless of a configured default.
const maxAllowedHops = 3

// Graph is the Graph Store service.
type Graph struct {
	backend storage.GraphStore
}

// New builds a Graph backed by a storage.GraphStore implementation.
func New(backend storage.GraphStore) *Graph {
	return &Graph{backend: backend}
}

// PutNode upserts a semantic node.
func (g *Graph) PutNode(ctx context.Context, tc *tenant.Context, node storage.SemanticNode) (storage.SemanticNode, error) {
	node.Tenant = tc.Key
	return g.backend.PutNode(ctx, node)
}

// GetNode fetches a semantic node by id.
func (g *Graph) GetNode(ctx context.Context, tc *tenant.Context, id string) (storage.SemanticNode, error) {
	return g.backend.GetNode(ctx, tc.Key, id)
}

// PutEdge upserts a confidence-weighted edge. Confidence is clamped to
// [0,1] so a caller cannot push an edge out of the range the decay worker
// assumes.
func (g *Graph) PutEdge(ctx context.Context, tc *tenant.Context, edge storage.Edge) (storage.Edge, error) {
	edge.Tenant = tc.Key
	edge.Confidence = clamp01(edge.Confidence)
	return g.backend.PutEdge(ctx, edge)
}

// DeleteEdge removes an edge by id.
func (g *Graph) DeleteEdge(ctx context.Context, tc *tenant.Context, id string) error {
	return g.backend.DeleteEdge(ctx, tc.Key, id)
}

// Neighborhood returns edges within hops of nodeID, limited to at most
// maxAllowedHops regardless of the requested depth, and filtered to the
// given relation predicates if any are supplied.
func (g *Graph) Neighborhood(ctx context.Context, tc *tenant.Context, nodeID string, hops int, predicates []string, limit int) ([]storage.Edge, error) {
	if hops <= 0 {
		hops = 2
	}
	if hops > maxAllowedHops {
		hops = maxAllowedHops
	}
	if limit <= 0 {
		limit = 100
	}
	edges, err := g.backend.Neighbors(ctx, tc.Key, nodeID, hops, limit)
	if err != nil {
		return nil, raeerrors.RetrievalUnavailable(err)
	}
	if len(predicates) == 0 {
		return edges, nil
	}
	allowed := make(map[string]bool, len(predicates))
	for _, p := range predicates {
		allowed[p] = true
	}
	out := edges[:0]
	for _, e := range edges {
		if allowed[e.Relation] {
			out = append(out, e)
		}
	}
	return out, nil
}

// DecayEdges multiplies every edge's confidence by factor, never pushing a
// value below floor, used by the decay worker's periodic confidence
// erosion cycle.
func (g *Graph) DecayEdges(ctx context.Context, tc *tenant.Context, factor, floor float64) error {
	return g.backend.DecayEdges(ctx, tc.Key, factor, floor)
}

// ReinforceEdge applies a bounded moving-average update to an edge's
// confidence given a new observation, clamped to [0,1]. weight controls how
// strongly the new observation moves the running value; callers use a
// small weight (e.g. 0.2) so one noisy observation cannot swing confidence.
func ReinforceEdge(current, observation, weight float64) float64 {
	return clamp01(current + weight*(observation-current))
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
