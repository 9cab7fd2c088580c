// Package graph implements the property-graph layer: node/edge
// upserts over the relational store in pkg/database, bounded-depth
// neighbor BFS, and bidirectional shortest-path search with a cycle
// guard and wall-clock budget.
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
	"github.com/tarsy-labs/cogmem/pkg/database"
	"github.com/tarsy-labs/cogmem/pkg/models"
)

// DefaultNodeLabel is the label assigned to an edge endpoint that is
// auto-created because it didn't already exist.
const DefaultNodeLabel = "Entity"

const (
	// MaxNeighborDepth is the hard ceiling on query_neighbors' depth
	// argument.
	MaxNeighborDepth = 5
	// MaxPathDepth is the hard ceiling on find_path's max_depth argument.
	MaxPathDepth = 10
	// DefaultPathTimeout is the wall-clock budget one find_path call gets
	// before it gives up and reports path_found=false.
	DefaultPathTimeout = time.Second
)

// Store is the graph store, built over a shared connection pool.
type Store struct {
	pool             *database.Pool
	maxNeighborDepth int
	maxPathDepth     int
	pathTimeout      time.Duration
}

// Option configures a Store's traversal bounds.
type Option func(*Store)

// WithDepthLimits tightens the neighbor/path depth ceilings below their
// hard maxima. Values outside (0, max] are ignored.
func WithDepthLimits(neighborDepth, pathDepth int) Option {
	return func(s *Store) {
		if neighborDepth > 0 && neighborDepth <= MaxNeighborDepth {
			s.maxNeighborDepth = neighborDepth
		}
		if pathDepth > 0 && pathDepth <= MaxPathDepth {
			s.maxPathDepth = pathDepth
		}
	}
}

// WithPathTimeout overrides find_path's wall-clock budget.
func WithPathTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.pathTimeout = d
		}
	}
}

// New builds a Store against an already-constructed persistence pool.
func New(pool *database.Pool, opts ...Option) *Store {
	s := &Store{
		pool:             pool,
		maxNeighborDepth: MaxNeighborDepth,
		maxPathDepth:     MaxPathDepth,
		pathTimeout:      DefaultPathTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddNode idempotently upserts a node by (label, name), merging
// properties last-write-wins.
func (s *Store) AddNode(ctx context.Context, label, name string, properties map[string]any) (models.GraphNode, error) {
	if label == "" {
		return models.GraphNode{}, cogmemerr.Validation("label", "must be non-empty")
	}
	if name == "" {
		return models.GraphNode{}, cogmemerr.Validation("name", "must be non-empty")
	}
	var out models.GraphNode
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		n, err := database.UpsertGraphNode(ctx, conn, models.GraphNode{Label: label, Name: name, Properties: properties})
		if err != nil {
			return err
		}
		out = n
		return nil
	})
	return out, err
}

// AddEdge idempotently upserts a directed, typed, weighted edge by
// (source, target, relation), auto-creating missing endpoints as nodes
// with DefaultNodeLabel.
func (s *Store) AddEdge(ctx context.Context, sourceName, targetName, relation string, weight float64, properties map[string]any) (models.GraphEdge, error) {
	if weight < 0 || weight > 1 {
		return models.GraphEdge{}, cogmemerr.Validation("weight", "must be in [0,1]")
	}
	if relation == "" {
		return models.GraphEdge{}, cogmemerr.Validation("relation", "must be non-empty")
	}

	var out models.GraphEdge
	err := s.pool.WithTx(ctx, func(ctx context.Context, tx database.Querier) error {
		src, err := resolveOrCreateNode(ctx, tx, sourceName)
		if err != nil {
			return err
		}
		dst, err := resolveOrCreateNode(ctx, tx, targetName)
		if err != nil {
			return err
		}
		e, err := database.UpsertGraphEdge(ctx, tx, models.GraphEdge{
			SourceID: src.ID, TargetID: dst.ID, Relation: relation, Weight: weight, Properties: properties,
		})
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// resolveOrCreateNode finds an existing node by name regardless of its
// label, auto-creating it under DefaultNodeLabel only when no node with
// that name exists at all. A node previously created
// by AddNode under a caller-chosen label is found and reused here rather
// than silently duplicated under DefaultNodeLabel.
func resolveOrCreateNode(ctx context.Context, q database.Querier, name string) (models.GraphNode, error) {
	n, err := database.GetGraphNodeByAnyName(ctx, q, name)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, cogmemerr.ErrNotFound) {
		return models.GraphNode{}, err
	}
	return database.UpsertGraphNode(ctx, q, models.GraphNode{Label: DefaultNodeLabel, Name: name})
}

// Neighbor is one result row of query_neighbors: a reached node plus the
// relation/weight of the edge it was reached by and its BFS distance
// from the start node.
type Neighbor struct {
	NodeID     string
	Label      string
	Name       string
	Properties map[string]any
	Relation   string
	Weight     float64
	Distance   int
}

// QueryNeighbors runs an iterative, cycle-safe BFS outward from nodeName
// up to depth hops, optionally filtered to one relation type at edge
// expansion. Depth above MaxNeighborDepth is rejected.
func (s *Store) QueryNeighbors(ctx context.Context, nodeName string, relationType string, depth int) ([]Neighbor, error) {
	if depth < 1 || depth > s.maxNeighborDepth {
		return nil, cogmemerr.Validation("depth", fmt.Sprintf("must be in [1,%d]", s.maxNeighborDepth))
	}

	var out []Neighbor
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		start, err := database.GetGraphNodeByAnyName(ctx, conn, nodeName)
		if err != nil {
			return err
		}

		visited := map[string]int{start.ID: 0}
		frontier := []string{start.ID}

		for level := 1; level <= depth; level++ {
			var next []string
			for _, nodeID := range frontier {
				edges, err := database.OutgoingEdges(ctx, conn, nodeID)
				if err != nil {
					return err
				}
				for _, e := range edges {
					if relationType != "" && e.Relation != relationType {
						continue
					}
					if _, seen := visited[e.TargetID]; seen {
						continue
					}
					visited[e.TargetID] = level
					next = append(next, e.TargetID)

					target, err := database.GetGraphNodeByID(ctx, conn, e.TargetID)
					if err != nil {
						return err
					}
					out = append(out, Neighbor{
						NodeID:     target.ID,
						Label:      target.Label,
						Name:       target.Name,
						Properties: target.Properties,
						Relation:   e.Relation,
						Weight:     e.Weight,
						Distance:   level,
					})
				}
			}
			if len(next) == 0 {
				break
			}
			frontier = next
		}
		return nil
	})
	return out, err
}

// Path is the result of find_path.
type Path struct {
	Found  bool
	Length int
	Nodes  []string // node names, start..end inclusive
}

// FindPath runs a bidirectional BFS with a cycle guard and a wall-clock
// budget (DefaultPathTimeout unless set by WithPathTimeout), returning the
// shortest path (or Found=false on a
// miss or timeout) — never an error for "no path".
func (s *Store) FindPath(ctx context.Context, startName, endName string, maxDepth int) (Path, error) {
	return s.findPath(ctx, startName, endName, maxDepth, s.pathTimeout)
}

// findPath is FindPath with an injectable budget for testing.
func (s *Store) findPath(ctx context.Context, startName, endName string, maxDepth int, budget time.Duration) (Path, error) {
	if maxDepth < 1 || maxDepth > s.maxPathDepth {
		return Path{}, cogmemerr.Validation("max_depth", fmt.Sprintf("must be in [1,%d]", s.maxPathDepth))
	}

	deadline := time.Now().Add(budget)
	var result Path

	err := s.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		start, err := database.GetGraphNodeByAnyName(ctx, conn, startName)
		if err != nil {
			result = Path{Found: false}
			return nil
		}
		end, err := database.GetGraphNodeByAnyName(ctx, conn, endName)
		if err != nil {
			result = Path{Found: false}
			return nil
		}
		if start.ID == end.ID {
			result = Path{Found: true, Length: 0, Nodes: []string{start.Name}}
			return nil
		}

		fParent := map[string]string{start.ID: ""}
		bParent := map[string]string{end.ID: ""}
		fFrontier := []string{start.ID}
		bFrontier := []string{end.ID}

		// fDepth+bDepth is the combined path length explored so far; the
		// loop stops once it would reach maxDepth so a returned path can
		// never exceed max_depth, even though bidirectional search
		// alternates sides.
		fDepth, bDepth := 0, 0
		for fDepth+bDepth < maxDepth {
			if time.Now().After(deadline) {
				result = Path{Found: false}
				return nil
			}
			if len(fFrontier) == 0 && len(bFrontier) == 0 {
				break
			}

			var meet string
			expandForward := fDepth <= bDepth && len(fFrontier) > 0
			if !expandForward && len(bFrontier) == 0 {
				expandForward = true
			}

			if expandForward {
				fFrontier, meet, err = expand(ctx, conn, fFrontier, fParent, bParent, true)
				if err != nil {
					return err
				}
				fDepth++
			} else {
				bFrontier, meet, err = expand(ctx, conn, bFrontier, bParent, fParent, false)
				if err != nil {
					return err
				}
				bDepth++
			}
			if meet != "" {
				result = buildPath(conn, ctx, fParent, bParent, meet, start.ID, end.ID)
				return nil
			}
		}
		result = Path{Found: false}
		return nil
	})
	return result, err
}

// expand walks one hop outward from frontier (forward==true follows
// outgoing edges, false follows incoming), recording parents in own and
// checking other for a meeting node. Returns the next frontier and the
// first meeting node id found, if any.
func expand(ctx context.Context, conn database.Querier, frontier []string, own, other map[string]string, forward bool) ([]string, string, error) {
	var next []string
	for _, nodeID := range frontier {
		var edges []models.GraphEdge
		var err error
		if forward {
			edges, err = database.OutgoingEdges(ctx, conn, nodeID)
		} else {
			edges, err = database.IncomingEdges(ctx, conn, nodeID)
		}
		if err != nil {
			return nil, "", err
		}
		for _, e := range edges {
			neighbor := e.TargetID
			if !forward {
				neighbor = e.SourceID
			}
			if _, seen := own[neighbor]; seen {
				continue
			}
			own[neighbor] = nodeID
			next = append(next, neighbor)
			if _, met := other[neighbor]; met {
				return next, neighbor, nil
			}
		}
	}
	return next, "", nil
}

// buildPath stitches the forward and backward parent maps into a single
// node-name path through the meeting node.
func buildPath(conn database.Querier, ctx context.Context, fParent, bParent map[string]string, meet, startID, endID string) Path {
	var forwardIDs []string
	for id := meet; id != ""; id = fParent[id] {
		forwardIDs = append([]string{id}, forwardIDs...)
		if id == startID {
			break
		}
	}
	var backwardIDs []string
	for id := bParent[meet]; id != ""; id = bParent[id] {
		backwardIDs = append(backwardIDs, id)
		if id == endID {
			break
		}
	}
	ids := append(forwardIDs, backwardIDs...)

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := database.GetGraphNodeByID(ctx, conn, id)
		if err != nil {
			continue
		}
		names = append(names, n.Name)
	}
	return Path{Found: true, Length: len(names) - 1, Nodes: names}
}
