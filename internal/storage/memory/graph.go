package memory

import (
	"context"
	"sort"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/internal/storage"
)

// Graph store ---------------------------------------------------------------

func (s *Store) PutNode(_ context.Context, node storage.SemanticNode) (storage.SemanticNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if node.Tenant == "" {
		return storage.SemanticNode{}, raeerrors.MissingTenant()
	}
	if node.ID == "" {
		node.ID = s.nextIDLocked()
	}
	bucket, ok := s.nodes[node.Tenant]
	if !ok {
		bucket = make(map[string]storage.SemanticNode)
		s.nodes[node.Tenant] = bucket
	}
	bucket[node.ID] = node.Clone()
	return node.Clone(), nil
}

func (s *Store) GetNode(_ context.Context, tenant, id string) (storage.SemanticNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[tenant][id]
	if !ok {
		return storage.SemanticNode{}, raeerrors.TenantMismatch(id)
	}
	return node.Clone(), nil
}

func (s *Store) PutEdge(_ context.Context, edge storage.Edge) (storage.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if edge.Tenant == "" {
		return storage.Edge{}, raeerrors.MissingTenant()
	}
	if edge.ID == "" {
		edge.ID = s.nextIDLocked()
	}
	bucket, ok := s.edges[edge.Tenant]
	if !ok {
		bucket = make(map[string]storage.Edge)
		s.edges[edge.Tenant] = bucket
	}
	bucket[edge.ID] = edge.Clone()
	return edge.Clone(), nil
}

func (s *Store) DeleteEdge(_ context.Context, tenant, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.edges[tenant]
	if bucket == nil {
		return raeerrors.TenantMismatch(id)
	}
	delete(bucket, id)
	return nil
}

// Neighbors performs a bounded breadth-first traversal from nodeID. The
// frontier is capped at limit per hop so a densely connected tenant cannot
// make one retrieval call walk the whole graph.
func (s *Store) Neighbors(_ context.Context, tenant, nodeID string, maxHops, limit int) ([]storage.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.edges[tenant]
	visited := map[string]bool{nodeID: true}
	frontier := []string{nodeID}
	var out []storage.Edge

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, e := range bucket {
				var other string
				switch id {
				case e.FromNodeID:
					other = e.ToNodeID
				case e.ToNodeID:
					other = e.FromNodeID
				default:
					continue
				}
				if visited[other] {
					continue
				}
				out = append(out, e.Clone())
				visited[other] = true
				next = append(next, other)
				if limit > 0 && len(out) >= limit {
					return sortedEdges(out), nil
				}
			}
		}
		frontier = next
	}
	return sortedEdges(out), nil
}

func sortedEdges(edges []storage.Edge) []storage.Edge {
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges
}

// DecayEdges multiplies every edge's confidence by factor unless it is
// already at or below floor, which protects load-bearing low-confidence
// edges from being decayed into oblivion by repeated cycles.
func (s *Store) DecayEdges(_ context.Context, tenant string, factor, floor float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.edges[tenant]
	for id, e := range bucket {
		if e.Confidence <= floor {
			continue
		}
		e.Confidence *= factor
		if e.Confidence < floor {
			e.Confidence = floor
		}
		bucket[id] = e
	}
	return nil
}
