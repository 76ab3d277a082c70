package vector

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

type memoryEntry struct {
	vec  []float32
	meta Metadata
	seq  int64
}

// MemoryIndex is the in-process index used in local mode and by tests.
// Exact cosine scan; fine at memory-bank scale.
type MemoryIndex struct {
	log *logger.Logger

	mu      sync.RWMutex
	entries map[uuid.UUID]*memoryEntry
	nextSeq int64
}

func NewMemoryIndex(log *logger.Logger) *MemoryIndex {
	return &MemoryIndex{
		log:     log.With("service", "MemoryVectorIndex"),
		entries: make(map[uuid.UUID]*memoryEntry),
	}
}

func (m *MemoryIndex) Upsert(ctx context.Context, chunkID uuid.UUID, vec []float32, meta Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)

	m.mu.Lock()
	defer m.mu.Unlock()

	seq := meta.Seq
	if existing, ok := m.entries[chunkID]; ok {
		// Replacement keeps the original insertion position.
		seq = existing.seq
	} else if seq == 0 {
		m.nextSeq++
		seq = m.nextSeq
	}
	m.entries[chunkID] = &memoryEntry{vec: cp, meta: meta, seq: seq}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, vec []float32, k int, minSimilarity float64) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	type scored struct {
		id  uuid.UUID
		sim float64
		e   *memoryEntry
	}
	candidates := make([]scored, 0, len(m.entries))
	for id, e := range m.entries {
		sim := Cosine(vec, e.vec)
		if sim < minSimilarity {
			continue
		}
		candidates = append(candidates, scored{id: id, sim: sim, e: e})
	}
	m.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].e.seq < candidates[j].e.seq
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Match{ChunkID: c.id, Similarity: c.sim, Meta: c.e.meta})
	}
	return out, nil
}

func (m *MemoryIndex) Delete(ctx context.Context, chunkID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.entries, chunkID)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored vectors.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
