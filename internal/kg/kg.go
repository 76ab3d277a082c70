// Package kg maintains the knowledge graph: concepts merged from chunk
// extractions, weighted relationships between them, and the traversal
// queries retrieval and the graph endpoints run against it.
package kg

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Canonicalize produces the dedup key for a concept label: trimmed,
// case-folded, inner whitespace collapsed to single spaces.
func Canonicalize(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

// Node is a merged concept. Importance only grows; it is updated
// incrementally on each merge, never recomputed from scratch.
type Node struct {
	ID        uuid.UUID
	Canonical string
	Label     string // display form, first seen wins
	Kind      string
	AltKinds  []string // later conflicting kinds, annotation only

	Importance float64
	Mentions   int

	// Provenance holds the most recent supporting chunk ids, capped.
	Provenance []uuid.UUID
}

// Edge is a weighted relationship. For undirected kinds the key is
// order-independent, so (a,b) and (b,a) land on the same edge.
type Edge struct {
	ID       uuid.UUID
	SourceID uuid.UUID
	TargetID uuid.UUID
	Source   string // canonical
	Target   string // canonical
	Kind     string
	Directed bool
	Weight   float64
	Evidence []uuid.UUID // most recent supporting chunk ids, capped
}

// ObservedMention is one extractor mention routed into a merge.
type ObservedMention struct {
	Label      string
	Kind       string
	Confidence float64
}

// ObservedPair is an unordered co-occurrence between two labels.
type ObservedPair struct {
	A string
	B string
}

// ChunkObservation is everything extracted from a single chunk. Merges are
// idempotent per chunk id: replaying the same chunk changes nothing.
type ChunkObservation struct {
	DocumentID uuid.UUID
	ChunkID    uuid.UUID
	Mentions   []ObservedMention
	Pairs      []ObservedPair
}

// MergeDelta reports what one merge touched, for logging and for pushing
// incremental updates to persistence sinks.
type MergeDelta struct {
	NewConcepts     int
	UpdatedConcepts int
	NewEdges        int
	UpdatedEdges    int

	Nodes []Node // snapshots of every touched node
	Edges []Edge // snapshots of every touched edge
}

func (d MergeDelta) Empty() bool {
	return len(d.Nodes) == 0 && len(d.Edges) == 0
}

// NeighborScore is a concept reached by expansion, scored by the weight of
// the edge it was discovered through divided by its hop distance.
type NeighborScore struct {
	Canonical string
	Hops      int
	Score     float64
}

// Stats summarizes graph size for the knowledge summary endpoint.
type Stats struct {
	Concepts      int
	Relationships int
	TotalMentions int
}

// Graph is the merge and traversal surface. Implementations must be safe
// for concurrent use.
type Graph interface {
	MergeChunk(ctx context.Context, obs ChunkObservation) (MergeDelta, error)

	// Lookup by exact canonical key.
	Concept(canonical string) (Node, bool)

	// MatchSubstring returns concepts whose canonical key contains the
	// canonicalized query, ordered by importance descending.
	MatchSubstring(query string, limit int) []Node

	// ConceptsByChunks returns concepts supported by any of the given
	// chunks, ordered by importance descending.
	ConceptsByChunks(chunkIDs []uuid.UUID) []Node

	// Neighborhood expands from seed canonicals up to maxHops, excluding
	// the seeds themselves. A node reachable by several paths keeps its
	// best score.
	Neighborhood(seeds []string, maxHops int) []NeighborScore

	// Path returns the canonical keys along a shortest path between two
	// concepts, inclusive, or nil when none exists within maxDepth hops.
	Path(from, to string, maxDepth int) []string

	// Related returns direct neighbors of a concept ordered by edge
	// weight descending.
	Related(canonical string, limit int) []NeighborScore

	// RemoveChunkRefs drops provenance for deleted chunks and removes
	// concepts and edges left with no supporting chunks. Returns the ids
	// of removed concepts.
	RemoveChunkRefs(ctx context.Context, chunkIDs []uuid.UUID) ([]uuid.UUID, error)

	TopConcepts(n int) []Node
	AllEdges(minWeight float64) []Edge
	Stats() Stats
}
