package kg

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

// Sink receives incremental graph updates after each merge. The relational
// store and the neo4j mirror both implement it.
type Sink interface {
	UpsertConcepts(ctx context.Context, nodes []Node) error
	UpsertEdges(ctx context.Context, edges []Edge) error
	RemoveConcepts(ctx context.Context, conceptIDs []uuid.UUID) error
}

// Builder merges chunk observations into the authoritative graph and fans
// the resulting delta out to sinks. The in-memory graph is the source of
// truth for merge semantics; sink failures are reported but do not undo a
// merge.
type Builder struct {
	log   *logger.Logger
	graph Graph
	sinks []Sink
}

func NewBuilder(log *logger.Logger, graph Graph, sinks ...Sink) *Builder {
	return &Builder{
		log:   log.With("service", "KGBuilder"),
		graph: graph,
		sinks: sinks,
	}
}

func (b *Builder) Graph() Graph { return b.graph }

func (b *Builder) MergeChunk(ctx context.Context, obs ChunkObservation) (MergeDelta, error) {
	delta, err := b.graph.MergeChunk(ctx, obs)
	if err != nil {
		return MergeDelta{}, fmt.Errorf("merge chunk %s: %w", obs.ChunkID, err)
	}
	if delta.Empty() {
		return delta, nil
	}
	for _, s := range b.sinks {
		if err := s.UpsertConcepts(ctx, delta.Nodes); err != nil {
			return delta, fmt.Errorf("sink concepts for chunk %s: %w", obs.ChunkID, err)
		}
		if err := s.UpsertEdges(ctx, delta.Edges); err != nil {
			return delta, fmt.Errorf("sink edges for chunk %s: %w", obs.ChunkID, err)
		}
	}
	return delta, nil
}

// RemoveChunkRefs prunes provenance for deleted chunks and propagates
// removed concepts to the sinks.
func (b *Builder) RemoveChunkRefs(ctx context.Context, chunkIDs []uuid.UUID) error {
	removed, err := b.graph.RemoveChunkRefs(ctx, chunkIDs)
	if err != nil {
		return fmt.Errorf("remove chunk refs: %w", err)
	}
	if len(removed) == 0 {
		return nil
	}
	for _, s := range b.sinks {
		if err := s.RemoveConcepts(ctx, removed); err != nil {
			return fmt.Errorf("sink concept removal: %w", err)
		}
	}
	return nil
}
