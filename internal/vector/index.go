// Package vector defines the chunk vector index: nearest-neighbor search by
// cosine similarity over embedded chunks, with deterministic tie-breaking.
package vector

import (
	"context"
	"math"

	"github.com/google/uuid"
)

// Metadata travels with each stored vector and is returned with matches.
type Metadata struct {
	DocumentID uuid.UUID
	Ordinal    int
	WordCount  int

	// Seq orders entries for tie-breaking: equal similarities rank earliest
	// insertion first. Callers pass a stable value (chunk creation time in
	// nanoseconds) so re-upserts keep their original position.
	Seq int64
}

type Match struct {
	ChunkID    uuid.UUID
	Similarity float64
	Meta       Metadata
}

// Index stores chunk vectors and answers nearest-neighbor queries.
//
// Upsert is idempotent: re-upserting an id replaces its vector. Query
// returns matches sorted by similarity descending (ties by insertion order,
// earliest first) with entries below minSimilarity excluded even when among
// the top k. Delete of an absent id is a no-op.
type Index interface {
	Upsert(ctx context.Context, chunkID uuid.UUID, vec []float32, meta Metadata) error
	Query(ctx context.Context, vec []float32, k int, minSimilarity float64) ([]Match, error)
	Delete(ctx context.Context, chunkID uuid.UUID) error
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. Zero-norm
// inputs yield 0.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
