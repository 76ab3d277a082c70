package vector

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

func TestMemoryIndex_UpsertQueryRoundTrip(t *testing.T) {
	idx := NewMemoryIndex(logger.NewNop())
	ctx := context.Background()

	id := uuid.New()
	vec := []float32{0.1, 0.7, 0.2}
	if err := idx.Upsert(ctx, id, vec, Metadata{Ordinal: 0}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := idx.Query(ctx, vec, 5, 0.0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].ChunkID != id {
		t.Fatalf("wrong chunk id: %v", matches[0].ChunkID)
	}
	if math.Abs(matches[0].Similarity-1.0) > 1e-9 {
		t.Fatalf("self-similarity = %v, want ~1.0", matches[0].Similarity)
	}
}

func TestMemoryIndex_ReupsertReplacesVector(t *testing.T) {
	idx := NewMemoryIndex(logger.NewNop())
	ctx := context.Background()

	id := uuid.New()
	if err := idx.Upsert(ctx, id, []float32{1, 0, 0}, Metadata{}); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	if err := idx.Upsert(ctx, id, []float32{0, 1, 0}, Metadata{}); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 entry after re-upsert, got %d", idx.Len())
	}

	matches, err := idx.Query(ctx, []float32{0, 1, 0}, 1, 0.9)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 || matches[0].ChunkID != id {
		t.Fatalf("replaced vector not found: %+v", matches)
	}
}

func TestMemoryIndex_MinSimilarityExcludesTopK(t *testing.T) {
	idx := NewMemoryIndex(logger.NewNop())
	ctx := context.Background()

	near := uuid.New()
	far := uuid.New()
	if err := idx.Upsert(ctx, near, []float32{1, 0}, Metadata{}); err != nil {
		t.Fatalf("Upsert near: %v", err)
	}
	if err := idx.Upsert(ctx, far, []float32{0, 1}, Metadata{}); err != nil {
		t.Fatalf("Upsert far: %v", err)
	}

	matches, err := idx.Query(ctx, []float32{1, 0}, 10, 0.5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 || matches[0].ChunkID != near {
		t.Fatalf("expected only the near match, got %+v", matches)
	}

	// Threshold above any achievable similarity yields an empty result.
	matches, err = idx.Query(ctx, []float32{1, 0}, 10, 1.1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}

func TestMemoryIndex_TiesBreakByInsertionOrder(t *testing.T) {
	idx := NewMemoryIndex(logger.NewNop())
	ctx := context.Background()

	first := uuid.New()
	second := uuid.New()
	// Identical vectors: identical similarity to any query.
	if err := idx.Upsert(ctx, first, []float32{1, 1}, Metadata{}); err != nil {
		t.Fatalf("Upsert first: %v", err)
	}
	if err := idx.Upsert(ctx, second, []float32{1, 1}, Metadata{}); err != nil {
		t.Fatalf("Upsert second: %v", err)
	}
	// Replacing the first entry must not lose its insertion position.
	if err := idx.Upsert(ctx, first, []float32{1, 1}, Metadata{}); err != nil {
		t.Fatalf("re-Upsert first: %v", err)
	}

	matches, err := idx.Query(ctx, []float32{1, 1}, 2, 0.0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ChunkID != first || matches[1].ChunkID != second {
		t.Fatalf("tie not broken by insertion order: %v then %v", matches[0].ChunkID, matches[1].ChunkID)
	}
}

func TestMemoryIndex_DeleteIsIdempotent(t *testing.T) {
	idx := NewMemoryIndex(logger.NewNop())
	ctx := context.Background()

	id := uuid.New()
	if err := idx.Upsert(ctx, id, []float32{1, 0}, Metadata{}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := idx.Delete(ctx, id); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := idx.Delete(ctx, id); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected empty index, got %d entries", idx.Len())
	}
}

func TestCosine_ZeroNormIsZero(t *testing.T) {
	if sim := Cosine([]float32{0, 0}, []float32{1, 2}); sim != 0 {
		t.Fatalf("zero-norm similarity = %v, want 0", sim)
	}
}

func TestCosine_OppositeVectors(t *testing.T) {
	sim := Cosine([]float32{1, 0}, []float32{-1, 0})
	if math.Abs(sim+1.0) > 1e-9 {
		t.Fatalf("opposite vectors similarity = %v, want -1", sim)
	}
}
