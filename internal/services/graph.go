package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/guptaanant682/memorybank-backend/internal/data/graph"
	"github.com/guptaanant682/memorybank-backend/internal/kg"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

// GraphNode is one concept in the visualization payload, sized by mention
// count.
type GraphNode struct {
	ID         uuid.UUID `json:"id"`
	Label      string    `json:"label"`
	Kind       string    `json:"kind"`
	Size       int       `json:"size"`
	Importance float64   `json:"importance"`
}

// GraphEdge is one relationship in the visualization payload.
type GraphEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Kind   string  `json:"kind"`
	Weight float64 `json:"weight"`
}

type GraphView struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// RelatedConcept is a direct neighbor of a concept, strongest edge first.
type RelatedConcept struct {
	Label  string  `json:"label"`
	Kind   string  `json:"kind"`
	Weight float64 `json:"weight"`
}

// GraphService exposes the knowledge graph to the API: the visualization
// view, per-concept neighbors and bounded-depth path search.
type GraphService interface {
	View(ctx context.Context, limit int, minWeight float64) (GraphView, error)
	Related(ctx context.Context, name string, limit int) ([]RelatedConcept, error)
	Path(ctx context.Context, from, to string, maxDepth int) ([]string, error)
}

type graphService struct {
	log   *logger.Logger
	graph kg.Graph

	// store is the optional neo4j mirror; path queries prefer it when
	// configured since it searches the durable graph.
	store *graph.KnowledgeStore
}

func NewGraphService(baseLog *logger.Logger, g kg.Graph, store *graph.KnowledgeStore) GraphService {
	return &graphService{
		log:   baseLog.With("service", "GraphService"),
		graph: g,
		store: store,
	}
}

func (s *graphService) View(_ context.Context, limit int, minWeight float64) (GraphView, error) {
	if limit <= 0 {
		limit = 50
	}

	view := GraphView{}
	include := map[string]bool{}
	for _, node := range s.graph.TopConcepts(limit) {
		include[node.Canonical] = true
		view.Nodes = append(view.Nodes, GraphNode{
			ID:         node.ID,
			Label:      node.Label,
			Kind:       node.Kind,
			Size:       node.Mentions,
			Importance: node.Importance,
		})
	}
	for _, edge := range s.graph.AllEdges(minWeight) {
		if !include[edge.Source] || !include[edge.Target] {
			continue
		}
		view.Edges = append(view.Edges, GraphEdge{
			Source: edge.Source,
			Target: edge.Target,
			Kind:   edge.Kind,
			Weight: edge.Weight,
		})
	}
	return view, nil
}

func (s *graphService) Related(_ context.Context, name string, limit int) ([]RelatedConcept, error) {
	canonical := kg.Canonicalize(name)
	if _, ok := s.graph.Concept(canonical); !ok {
		return nil, fmt.Errorf("concept %q not found", name)
	}

	var out []RelatedConcept
	for _, ns := range s.graph.Related(canonical, limit) {
		node, ok := s.graph.Concept(ns.Canonical)
		if !ok {
			continue
		}
		out = append(out, RelatedConcept{
			Label:  node.Label,
			Kind:   node.Kind,
			Weight: ns.Score,
		})
	}
	return out, nil
}

func (s *graphService) Path(ctx context.Context, from, to string, maxDepth int) ([]string, error) {
	if maxDepth <= 0 {
		maxDepth = 4
	}
	fromKey, toKey := kg.Canonicalize(from), kg.Canonicalize(to)

	if s.store != nil {
		path, err := s.store.ShortestPath(ctx, fromKey, toKey, maxDepth)
		if err == nil {
			return s.labelPath(path), nil
		}
		s.log.Warn("graph store path query failed, using in-memory graph", "error", err)
	}
	return s.labelPath(s.graph.Path(fromKey, toKey, maxDepth)), nil
}

// labelPath maps canonical keys back to display labels.
func (s *graphService) labelPath(canonicals []string) []string {
	if len(canonicals) == 0 {
		return nil
	}
	out := make([]string, 0, len(canonicals))
	for _, key := range canonicals {
		if node, ok := s.graph.Concept(key); ok {
			out = append(out, node.Label)
		} else {
			out = append(out, key)
		}
	}
	return out
}
