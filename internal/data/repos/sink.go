package repos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/kg"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

// RelationalSink mirrors merged graph state into postgres so concepts and
// relationships survive restarts and feed analytics queries.
type RelationalSink struct {
	log      *logger.Logger
	concepts ConceptRepo
	rels     RelationshipRepo
}

func NewRelationalSink(baseLog *logger.Logger, concepts ConceptRepo, rels RelationshipRepo) *RelationalSink {
	return &RelationalSink{
		log:      baseLog.With("service", "RelationalSink"),
		concepts: concepts,
		rels:     rels,
	}
}

func (s *RelationalSink) UpsertConcepts(ctx context.Context, nodes []kg.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]*domain.Concept, 0, len(nodes))
	for _, n := range nodes {
		var altKinds []byte
		if len(n.AltKinds) > 0 {
			altKinds, _ = json.Marshal(n.AltKinds)
		}
		rows = append(rows, &domain.Concept{
			ID:         n.ID,
			Canonical:  n.Canonical,
			Label:      n.Label,
			Kind:       n.Kind,
			AltKinds:   altKinds,
			Importance: n.Importance,
			Mentions:   n.Mentions,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return s.concepts.UpsertBatch(ctx, nil, rows)
}

func (s *RelationalSink) UpsertEdges(ctx context.Context, edges []kg.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]*domain.Relationship, 0, len(edges))
	for _, e := range edges {
		var evidence []byte
		if len(e.Evidence) > 0 {
			evidence, _ = json.Marshal(e.Evidence)
		}
		rows = append(rows, &domain.Relationship{
			ID:              e.ID,
			SourceConceptID: e.SourceID,
			TargetConceptID: e.TargetID,
			Kind:            e.Kind,
			Directed:        e.Directed,
			Weight:          e.Weight,
			Evidence:        evidence,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return s.rels.UpsertBatch(ctx, nil, rows)
}

func (s *RelationalSink) RemoveConcepts(ctx context.Context, conceptIDs []uuid.UUID) error {
	return s.concepts.DeleteByIDs(ctx, nil, conceptIDs)
}

// DeleteMentionsByChunkIDs drops provenance rows for deleted chunks.
func (s *RelationalSink) DeleteMentionsByChunkIDs(ctx context.Context, chunkIDs []uuid.UUID) error {
	return s.concepts.DeleteMentionsByChunkIDs(ctx, nil, chunkIDs)
}

// RecordMentions writes provenance rows linking concepts to the chunks that
// mention them. Called by the ingestion pipeline after a merge; not part of
// the Sink interface because it needs chunk context the delta lacks.
func (s *RelationalSink) RecordMentions(ctx context.Context, tx *gorm.DB, mentions []*domain.ConceptMention) error {
	return s.concepts.CreateMentions(ctx, tx, mentions)
}
