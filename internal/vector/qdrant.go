package vector

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
	"github.com/guptaanant682/memorybank-backend/internal/platform/qdrant"
)

const (
	payloadDocumentID = "document_id"
	payloadOrdinal    = "ordinal"
	payloadWordCount  = "word_count"
	payloadSeq        = "seq"
)

// QdrantIndex adapts the qdrant HTTP client to the Index contract. Chunk ids
// double as point ids; metadata rides in the payload so queries can attach
// provenance and break ties without a second lookup.
type QdrantIndex struct {
	log    *logger.Logger
	client *qdrant.Client
}

func NewQdrantIndex(log *logger.Logger, client *qdrant.Client) *QdrantIndex {
	return &QdrantIndex{
		log:    log.With("service", "QdrantVectorIndex"),
		client: client,
	}
}

func (q *QdrantIndex) Upsert(ctx context.Context, chunkID uuid.UUID, vec []float32, meta Metadata) error {
	return q.client.UpsertPoints(ctx, []qdrant.Point{{
		ID:     chunkID.String(),
		Vector: vec,
		Payload: map[string]any{
			payloadDocumentID: meta.DocumentID.String(),
			payloadOrdinal:    meta.Ordinal,
			payloadWordCount:  meta.WordCount,
			payloadSeq:        meta.Seq,
		},
	}})
}

func (q *QdrantIndex) Query(ctx context.Context, vec []float32, k int, minSimilarity float64) ([]Match, error) {
	points, err := q.client.Search(ctx, vec, k, minSimilarity)
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(points))
	for _, p := range points {
		id, err := uuid.Parse(p.ID)
		if err != nil {
			q.log.Warn("skipping non-uuid point id", "point_id", p.ID)
			continue
		}
		if p.Score < minSimilarity {
			continue
		}
		out = append(out, Match{
			ChunkID:    id,
			Similarity: p.Score,
			Meta:       metadataFromPayload(p.Payload),
		})
	}
	// Qdrant sorts by score; re-apply the insertion-order tie break locally.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Meta.Seq < out[j].Meta.Seq
	})
	return out, nil
}

func (q *QdrantIndex) Delete(ctx context.Context, chunkID uuid.UUID) error {
	return q.client.DeletePoints(ctx, []string{chunkID.String()})
}

func metadataFromPayload(payload map[string]any) Metadata {
	var meta Metadata
	if payload == nil {
		return meta
	}
	if s, ok := payload[payloadDocumentID].(string); ok {
		if id, err := uuid.Parse(s); err == nil {
			meta.DocumentID = id
		}
	}
	meta.Ordinal = intFromPayload(payload[payloadOrdinal])
	meta.WordCount = intFromPayload(payload[payloadWordCount])
	meta.Seq = int64(intFromPayload(payload[payloadSeq]))
	return meta
}

func intFromPayload(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	default:
		return 0
	}
}
