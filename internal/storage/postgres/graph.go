package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/internal/storage"
)

func (s *Store) PutNode(ctx context.Context, node storage.SemanticNode) (storage.SemanticNode, error) {
	if node.ID == "" {
		node.ID = newID()
	}
	now := time.Now().UTC()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	node.UpdatedAt = now

	attrsJSON, err := json.Marshal(node.Attributes)
	if err != nil {
		return storage.SemanticNode{}, raeerrors.InvalidRecord("node attributes not serializable")
	}

	err = s.withTenant(ctx, node.Tenant, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO semantic_nodes (id, tenant, label, node_type, attributes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE
			SET label = $3, node_type = $4, attributes = $5, updated_at = $7
		`, node.ID, node.Tenant, node.Label, node.NodeType, attrsJSON, node.CreatedAt, node.UpdatedAt)
		return err
	})
	if err != nil {
		return storage.SemanticNode{}, raeerrors.BackendUnavailable("postgres", err)
	}
	return node, nil
}

func (s *Store) GetNode(ctx context.Context, tenant, id string) (storage.SemanticNode, error) {
	var node storage.SemanticNode
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, tenant, label, node_type, attributes, created_at, updated_at
			FROM semantic_nodes WHERE id = $1 AND tenant = $2
		`, id, tenant)

		var attrsRaw []byte
		if err := row.Scan(&node.ID, &node.Tenant, &node.Label, &node.NodeType, &attrsRaw, &node.CreatedAt, &node.UpdatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return raeerrors.TenantMismatch(id)
			}
			return err
		}
		if len(attrsRaw) > 0 {
			_ = json.Unmarshal(attrsRaw, &node.Attributes)
		}
		return nil
	})
	if err != nil {
		if raeerrors.IsServiceError(err) {
			return storage.SemanticNode{}, err
		}
		return storage.SemanticNode{}, raeerrors.BackendUnavailable("postgres", err)
	}
	return node, nil
}

func (s *Store) PutEdge(ctx context.Context, edge storage.Edge) (storage.Edge, error) {
	if edge.ID == "" {
		edge.ID = newID()
	}
	now := time.Now().UTC()
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = now
	}
	edge.UpdatedAt = now

	err := s.withTenant(ctx, edge.Tenant, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO graph_edges (id, tenant, src_node, predicate, dst_node, confidence, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE
			SET predicate = $4, confidence = $6, updated_at = $8
		`, edge.ID, edge.Tenant, edge.FromNodeID, edge.Relation, edge.ToNodeID, edge.Confidence, edge.CreatedAt, edge.UpdatedAt)
		return err
	})
	if err != nil {
		return storage.Edge{}, raeerrors.BackendUnavailable("postgres", err)
	}
	return edge, nil
}

func (s *Store) DeleteEdge(ctx context.Context, tenant, id string) error {
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM graph_edges WHERE id = $1 AND tenant = $2`, id, tenant)
		if err != nil {
			return err
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return raeerrors.TenantMismatch(id)
		}
		return nil
	})
	if err != nil {
		if raeerrors.IsServiceError(err) {
			return err
		}
		return raeerrors.BackendUnavailable("postgres", err)
	}
	return nil
}

// Neighbors performs a recursive CTE traversal bounded by maxHops, pushing
// the bound into the database instead of walking the graph in Go.
func (s *Store) Neighbors(ctx context.Context, tenant, nodeID string, maxHops, limit int) ([]storage.Edge, error) {
	var out []storage.Edge
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			WITH RECURSIVE frontier AS (
				SELECT id, tenant, src_node, predicate, dst_node, confidence, created_at, updated_at, 1 AS hop
				FROM graph_edges
				WHERE tenant = $1 AND (src_node = $2 OR dst_node = $2)
				UNION
				SELECT e.id, e.tenant, e.src_node, e.predicate, e.dst_node, e.confidence, e.created_at, e.updated_at, f.hop + 1
				FROM graph_edges e
				JOIN frontier f ON (e.src_node = f.dst_node OR e.dst_node = f.src_node OR e.src_node = f.src_node OR e.dst_node = f.dst_node)
				WHERE e.tenant = $1 AND f.hop < $3
			)
			SELECT DISTINCT id, tenant, src_node, predicate, dst_node, confidence, created_at, updated_at
			FROM frontier
			ORDER BY id
			LIMIT $4
		`, tenant, nodeID, maxHops, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e storage.Edge
			if err := rows.Scan(&e.ID, &e.Tenant, &e.FromNodeID, &e.Relation, &e.ToNodeID, &e.Confidence, &e.CreatedAt, &e.UpdatedAt); err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, raeerrors.BackendUnavailable("postgres", err)
	}
	return out, nil
}

func (s *Store) DecayEdges(ctx context.Context, tenant string, factor, floor float64) error {
	err := s.withTenant(ctx, tenant, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE graph_edges
			SET confidence = GREATEST($2, confidence * $3)
			WHERE tenant = $1 AND confidence > $2
		`, tenant, floor, factor)
		return err
	})
	if err != nil {
		return raeerrors.BackendUnavailable("postgres", err)
	}
	return nil
}
