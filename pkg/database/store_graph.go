package database

import (
	"context"
	"fmt"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
	"github.com/tarsy-labs/cogmem/pkg/models"
)

// UpsertGraphNode inserts a node or, if one already exists for
// (label, name), merges its properties last-write-wins. Calling it twice
// with the same (label, name) yields the same node id.
func UpsertGraphNode(ctx context.Context, q Querier, n models.GraphNode) (models.GraphNode, error) {
	meta, err := marshalMetadata(n.Properties)
	if err != nil {
		return models.GraphNode{}, err
	}
	var out models.GraphNode
	err = q.QueryRow(ctx, `
		INSERT INTO graph_nodes (label, name, properties)
		VALUES ($1, $2, $3)
		ON CONFLICT (label, name) DO UPDATE
			SET properties = COALESCE(graph_nodes.properties, '{}'::jsonb) || COALESCE(EXCLUDED.properties, '{}'::jsonb)
		RETURNING id, label, name, properties, created_at`,
		n.Label, n.Name, meta,
	).Scan(&out.ID, &out.Label, &out.Name, &rawProps{&out.Properties}, &out.CreatedAt)
	if err != nil {
		return models.GraphNode{}, fmt.Errorf("%w: upsert graph_node: %v", cogmemerr.ErrStorage, err)
	}
	return out, nil
}

// rawProps adapts a *map[string]any to pgx's Scan by routing through the
// shared JSONB (un)marshal helpers, since properties may be NULL.
type rawProps struct {
	dst *map[string]any
}

func (r *rawProps) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r.dst = nil
		return nil
	case []byte:
		m, err := unmarshalMetadata(v)
		if err != nil {
			return err
		}
		*r.dst = m
		return nil
	default:
		return fmt.Errorf("unsupported scan source %T for properties", src)
	}
}

// GetGraphNodeByAnyName looks up a node by name alone, regardless of its
// label — for callers (add_edge, query_neighbors, find_path) that only
// carry a bare node name, never a label. (label, name) is the true
// uniqueness key, so more than one node can legitimately share a name
// under different labels; the earliest-created match is used, keeping
// the lookup deterministic instead of erroring on ambiguity.
func GetGraphNodeByAnyName(ctx context.Context, q Querier, name string) (models.GraphNode, error) {
	var out models.GraphNode
	err := q.QueryRow(ctx, `
		SELECT id, label, name, properties, created_at FROM graph_nodes
		WHERE name = $1 ORDER BY created_at ASC, id ASC LIMIT 1`, name,
	).Scan(&out.ID, &out.Label, &out.Name, &rawProps{&out.Properties}, &out.CreatedAt)
	if err != nil {
		return models.GraphNode{}, fmt.Errorf("%w: graph node %s: %v", cogmemerr.ErrNotFound, name, err)
	}
	return out, nil
}

// UpsertGraphEdge inserts an edge or, if one already exists for
// (source, target, relation), refreshes its weight and properties. Calling
// it twice with the same triple yields the same edge id.
func UpsertGraphEdge(ctx context.Context, q Querier, e models.GraphEdge) (models.GraphEdge, error) {
	if e.Weight < 0 || e.Weight > 1 {
		return models.GraphEdge{}, cogmemerr.Validation("weight", "must be in [0,1]")
	}
	meta, err := marshalMetadata(e.Properties)
	if err != nil {
		return models.GraphEdge{}, err
	}
	var out models.GraphEdge
	err = q.QueryRow(ctx, `
		INSERT INTO graph_edges (source_id, target_id, relation, weight, properties)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_id, target_id, relation) DO UPDATE
			SET weight = EXCLUDED.weight,
			    properties = COALESCE(graph_edges.properties, '{}'::jsonb) || COALESCE(EXCLUDED.properties, '{}'::jsonb)
		RETURNING id, source_id, target_id, relation, weight, properties, created_at`,
		e.SourceID, e.TargetID, e.Relation, e.Weight, meta,
	).Scan(&out.ID, &out.SourceID, &out.TargetID, &out.Relation, &out.Weight, &rawProps{&out.Properties}, &out.CreatedAt)
	if err != nil {
		return models.GraphEdge{}, fmt.Errorf("%w: upsert graph_edge: %v", cogmemerr.ErrStorage, err)
	}
	return out, nil
}

// OutgoingEdges returns edges directed away from nodeID — the adjacency
// primitive directed BFS (query_neighbors) walks forward along.
func OutgoingEdges(ctx context.Context, q Querier, nodeID string) ([]models.GraphEdge, error) {
	rows, err := q.Query(ctx, `
		SELECT id, source_id, target_id, relation, weight, properties, created_at
		FROM graph_edges WHERE source_id = $1`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("%w: outgoing edges: %v", cogmemerr.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.GraphEdge
	for rows.Next() {
		var e models.GraphEdge
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Relation, &e.Weight, &rawProps{&e.Properties}, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan graph_edge: %v", cogmemerr.ErrStorage, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// IncomingEdges returns edges directed into nodeID — the reverse adjacency
// primitive the backward half of bidirectional shortest-path search walks.
func IncomingEdges(ctx context.Context, q Querier, nodeID string) ([]models.GraphEdge, error) {
	rows, err := q.Query(ctx, `
		SELECT id, source_id, target_id, relation, weight, properties, created_at
		FROM graph_edges WHERE target_id = $1`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("%w: incoming edges: %v", cogmemerr.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.GraphEdge
	for rows.Next() {
		var e models.GraphEdge
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Relation, &e.Weight, &rawProps{&e.Properties}, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan graph_edge: %v", cogmemerr.ErrStorage, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetGraphNodeByID looks up a node by its primary key.
func GetGraphNodeByID(ctx context.Context, q Querier, id string) (models.GraphNode, error) {
	var out models.GraphNode
	err := q.QueryRow(ctx, `
		SELECT id, label, name, properties, created_at FROM graph_nodes WHERE id = $1`, id,
	).Scan(&out.ID, &out.Label, &out.Name, &rawProps{&out.Properties}, &out.CreatedAt)
	if err != nil {
		return models.GraphNode{}, fmt.Errorf("%w: graph node %s: %v", cogmemerr.ErrNotFound, id, err)
	}
	return out, nil
}
