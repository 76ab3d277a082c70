package kg

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

func obs(docID uuid.UUID, labels ...string) ChunkObservation {
	o := ChunkObservation{DocumentID: docID, ChunkID: uuid.New()}
	for _, l := range labels {
		o.Mentions = append(o.Mentions, ObservedMention{Label: l, Kind: domain.ConceptKindTopic, Confidence: 1.0})
	}
	for i := 0; i < len(labels); i++ {
		for j := i + 1; j < len(labels); j++ {
			o.Pairs = append(o.Pairs, ObservedPair{A: labels[i], B: labels[j]})
		}
	}
	return o
}

func mustMerge(t *testing.T, g *MemoryGraph, o ChunkObservation) MergeDelta {
	t.Helper()
	d, err := g.MergeChunk(context.Background(), o)
	if err != nil {
		t.Fatalf("MergeChunk: %v", err)
	}
	return d
}

func TestMergeChunk_CaseInsensitiveDedup(t *testing.T) {
	g := NewMemoryGraph(logger.NewNop())
	doc := uuid.New()

	mustMerge(t, g, obs(doc, "Neural Networks"))
	mustMerge(t, g, obs(doc, " neural  networks "))

	if s := g.Stats(); s.Concepts != 1 {
		t.Fatalf("expected 1 concept, got %d", s.Concepts)
	}
	n, ok := g.Concept("neural networks")
	if !ok {
		t.Fatalf("canonical lookup failed")
	}
	if n.Label != "Neural Networks" {
		t.Fatalf("display label = %q, want first-seen form", n.Label)
	}
	if n.Mentions != 2 {
		t.Fatalf("mentions = %d, want 2", n.Mentions)
	}
}

func TestMergeChunk_SameDocumentDamping(t *testing.T) {
	g := NewMemoryGraph(logger.NewNop())
	doc := uuid.New()

	mustMerge(t, g, obs(doc, "go"))
	mustMerge(t, g, obs(doc, "go"))
	mustMerge(t, g, obs(doc, "go"))

	n, _ := g.Concept("go")
	// 1.0 + 0.5 + 0.25 within one document.
	if math.Abs(n.Importance-1.75) > 1e-9 {
		t.Fatalf("importance = %v, want 1.75", n.Importance)
	}

	other := uuid.New()
	mustMerge(t, g, obs(other, "go"))
	n, _ = g.Concept("go")
	// A fresh document contributes undamped.
	if math.Abs(n.Importance-2.75) > 1e-9 {
		t.Fatalf("importance = %v, want 2.75", n.Importance)
	}
}

func TestMergeChunk_ImportanceOrderInvariantAcrossDocuments(t *testing.T) {
	docA, docB := uuid.New(), uuid.New()
	obsA1 := obs(docA, "rust")
	obsA2 := obs(docA, "rust")
	obsB1 := obs(docB, "rust")

	forward := NewMemoryGraph(logger.NewNop())
	mustMerge(t, forward, obsA1)
	mustMerge(t, forward, obsA2)
	mustMerge(t, forward, obsB1)

	backward := NewMemoryGraph(logger.NewNop())
	mustMerge(t, backward, obsB1)
	mustMerge(t, backward, obsA2)
	mustMerge(t, backward, obsA1)

	fn, _ := forward.Concept("rust")
	bn, _ := backward.Concept("rust")
	if math.Abs(fn.Importance-bn.Importance) > 1e-9 {
		t.Fatalf("importance depends on document order: %v vs %v", fn.Importance, bn.Importance)
	}
}

func TestMergeChunk_FirstSeenKindWins(t *testing.T) {
	g := NewMemoryGraph(logger.NewNop())
	doc := uuid.New()

	first := ChunkObservation{DocumentID: doc, ChunkID: uuid.New(), Mentions: []ObservedMention{
		{Label: "Apple", Kind: domain.ConceptKindEntity, Confidence: 0.9},
	}}
	second := ChunkObservation{DocumentID: doc, ChunkID: uuid.New(), Mentions: []ObservedMention{
		{Label: "apple", Kind: domain.ConceptKindTopic, Confidence: 0.5},
	}}
	mustMerge(t, g, first)
	mustMerge(t, g, second)

	n, _ := g.Concept("apple")
	if n.Kind != domain.ConceptKindEntity {
		t.Fatalf("kind = %q, want first-seen entity", n.Kind)
	}
	if len(n.AltKinds) != 1 || n.AltKinds[0] != domain.ConceptKindTopic {
		t.Fatalf("alt kinds = %v, want [topic]", n.AltKinds)
	}
}

func TestMergeChunk_IdempotentByChunkID(t *testing.T) {
	g := NewMemoryGraph(logger.NewNop())
	o := obs(uuid.New(), "cache", "redis")

	first := mustMerge(t, g, o)
	if first.Empty() {
		t.Fatalf("first merge produced no delta")
	}
	replay := mustMerge(t, g, o)
	if !replay.Empty() {
		t.Fatalf("replaying the same chunk changed the graph: %+v", replay)
	}

	n, _ := g.Concept("cache")
	if n.Mentions != 1 || math.Abs(n.Importance-1.0) > 1e-9 {
		t.Fatalf("replay mutated counters: mentions=%d importance=%v", n.Mentions, n.Importance)
	}
}

func TestMergeChunk_EdgeKeyOrderIndependent(t *testing.T) {
	g := NewMemoryGraph(logger.NewNop())
	doc := uuid.New()

	a := ChunkObservation{DocumentID: doc, ChunkID: uuid.New(),
		Mentions: []ObservedMention{{Label: "kafka", Confidence: 1}, {Label: "streams", Confidence: 1}},
		Pairs:    []ObservedPair{{A: "kafka", B: "streams"}},
	}
	b := ChunkObservation{DocumentID: doc, ChunkID: uuid.New(),
		Mentions: []ObservedMention{{Label: "Streams", Confidence: 1}, {Label: "Kafka", Confidence: 1}},
		Pairs:    []ObservedPair{{A: "Streams", B: "Kafka"}},
	}
	mustMerge(t, g, a)
	mustMerge(t, g, b)

	edges := g.AllEdges(0)
	if len(edges) != 1 {
		t.Fatalf("expected one undirected edge, got %d: %+v", len(edges), edges)
	}
	if edges[0].Weight != 2 {
		t.Fatalf("edge weight = %v, want 2", edges[0].Weight)
	}
}

func TestMergeChunk_RejectsSelfLoops(t *testing.T) {
	g := NewMemoryGraph(logger.NewNop())
	o := ChunkObservation{DocumentID: uuid.New(), ChunkID: uuid.New(),
		Mentions: []ObservedMention{{Label: "Loop", Confidence: 1}},
		Pairs:    []ObservedPair{{A: "Loop", B: "loop"}},
	}
	mustMerge(t, g, o)
	if edges := g.AllEdges(0); len(edges) != 0 {
		t.Fatalf("self-loop created: %+v", edges)
	}
}

func TestMergeChunk_ProvenanceBounded(t *testing.T) {
	g := NewMemoryGraph(logger.NewNop())
	doc := uuid.New()
	for i := 0; i < provenanceCap+8; i++ {
		mustMerge(t, g, obs(doc, "elastic"))
	}
	n, _ := g.Concept("elastic")
	if len(n.Provenance) != provenanceCap {
		t.Fatalf("provenance length = %d, want cap %d", len(n.Provenance), provenanceCap)
	}
	if n.Mentions != provenanceCap+8 {
		t.Fatalf("mentions = %d, want %d", n.Mentions, provenanceCap+8)
	}
}

func buildChain(t *testing.T) *MemoryGraph {
	t.Helper()
	g := NewMemoryGraph(logger.NewNop())
	doc := uuid.New()
	// a-b observed twice, b-c once.
	mustMerge(t, g, obs(doc, "a", "b"))
	mustMerge(t, g, obs(doc, "a", "b"))
	mustMerge(t, g, obs(doc, "b", "c"))
	return g
}

func TestNeighborhood_ScoresByWeightOverDistance(t *testing.T) {
	g := buildChain(t)

	out := g.Neighborhood([]string{"a"}, 2)
	if len(out) != 2 {
		t.Fatalf("expected 2 neighbors, got %+v", out)
	}
	if out[0].Canonical != "b" || out[0].Hops != 1 || math.Abs(out[0].Score-2.0) > 1e-9 {
		t.Fatalf("direct neighbor scored %+v, want b at hop 1 score 2", out[0])
	}
	if out[1].Canonical != "c" || out[1].Hops != 2 || math.Abs(out[1].Score-0.5) > 1e-9 {
		t.Fatalf("two-hop neighbor scored %+v, want c at hop 2 score 0.5", out[1])
	}
}

func TestNeighborhood_HopBound(t *testing.T) {
	g := buildChain(t)
	out := g.Neighborhood([]string{"a"}, 1)
	if len(out) != 1 || out[0].Canonical != "b" {
		t.Fatalf("one-hop expansion = %+v, want only b", out)
	}
}

func TestPath_ShortestWithinDepth(t *testing.T) {
	g := buildChain(t)

	path := g.Path("a", "c", 4)
	want := []string{"a", "b", "c"}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path = %v, want %v", path, want)
		}
	}

	if p := g.Path("a", "c", 1); p != nil {
		t.Fatalf("depth-bounded path should be nil, got %v", p)
	}
	if p := g.Path("a", "missing", 4); p != nil {
		t.Fatalf("path to unknown concept should be nil, got %v", p)
	}
}

func TestMatchSubstring_OrderedByImportance(t *testing.T) {
	g := NewMemoryGraph(logger.NewNop())
	doc := uuid.New()
	mustMerge(t, g, obs(doc, "machine learning"))
	mustMerge(t, g, obs(uuid.New(), "deep learning"))
	mustMerge(t, g, obs(uuid.New(), "deep learning"))

	out := g.MatchSubstring("LEARNING", 10)
	if len(out) != 2 {
		t.Fatalf("expected 2 matches, got %+v", out)
	}
	if out[0].Canonical != "deep learning" {
		t.Fatalf("expected most important match first, got %+v", out)
	}
}

func TestMergeChunk_ConcurrentSameConcept(t *testing.T) {
	g := NewMemoryGraph(logger.NewNop())

	const workers = 32
	kinds := []string{domain.ConceptKindTopic, domain.ConceptKindEntity}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := ChunkObservation{
				DocumentID: uuid.New(),
				ChunkID:    uuid.New(),
				Mentions: []ObservedMention{
					{Label: "Graph Theory", Kind: kinds[i%2], Confidence: 1.0},
					{Label: "Math", Kind: domain.ConceptKindTopic, Confidence: 1.0},
				},
				Pairs: []ObservedPair{{A: "Graph Theory", B: "Math"}},
			}
			if _, err := g.MergeChunk(context.Background(), o); err != nil {
				t.Errorf("MergeChunk: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if s := g.Stats(); s.Concepts != 2 {
		t.Fatalf("concepts = %d, want 2", s.Concepts)
	}
	n, ok := g.Concept("graph theory")
	if !ok {
		t.Fatalf("canonical lookup failed")
	}
	if n.Mentions != workers {
		t.Fatalf("mentions = %d, want %d", n.Mentions, workers)
	}
	// Every merge used a distinct document, so contributions are undamped
	// and the total is independent of interleaving.
	if math.Abs(n.Importance-float64(workers)) > 1e-9 {
		t.Fatalf("importance = %v, want %d", n.Importance, workers)
	}
	// Whichever kind landed first won; the other must survive exactly once
	// as an annotation.
	other := kinds[0]
	if n.Kind == kinds[0] {
		other = kinds[1]
	}
	if len(n.AltKinds) != 1 || n.AltKinds[0] != other {
		t.Fatalf("kind %q with alt kinds %v, want exactly [%q]", n.Kind, n.AltKinds, other)
	}
	edges := g.AllEdges(0)
	if len(edges) != 1 || edges[0].Weight != workers {
		t.Fatalf("edges = %+v, want one edge of weight %d", edges, workers)
	}
}

func TestRemoveChunkRefs_ConcurrentWithMerges(t *testing.T) {
	g := NewMemoryGraph(logger.NewNop())

	const batch = 16
	stale := make([]uuid.UUID, 0, batch)
	for i := 0; i < batch; i++ {
		o := obs(uuid.New(), "shared")
		stale = append(stale, o.ChunkID)
		mustMerge(t, g, o)
	}
	for i := 0; i < batch; i++ {
		mustMerge(t, g, obs(uuid.New(), "shared"))
	}

	// Remove the first batch while new chunks land on the same concept.
	var wg sync.WaitGroup
	for i := 0; i < batch; i++ {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if _, err := g.RemoveChunkRefs(context.Background(), []uuid.UUID{id}); err != nil {
				t.Errorf("RemoveChunkRefs: %v", err)
			}
		}(stale[i])
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.MergeChunk(context.Background(), obs(uuid.New(), "shared")); err != nil {
				t.Errorf("MergeChunk: %v", err)
			}
		}()
	}
	wg.Wait()

	n, ok := g.Concept("shared")
	if !ok {
		t.Fatalf("concept pruned while still referenced")
	}
	// 2*batch merged up front, batch removed, batch merged concurrently.
	if n.Mentions != 2*batch {
		t.Fatalf("mentions = %d, want %d", n.Mentions, 2*batch)
	}
}

func TestRemoveChunkRefs_PrunesOrphanedConcepts(t *testing.T) {
	g := NewMemoryGraph(logger.NewNop())
	o := obs(uuid.New(), "solo", "pair")
	mustMerge(t, g, o)
	keep := obs(uuid.New(), "pair")
	mustMerge(t, g, keep)

	removed, err := g.RemoveChunkRefs(context.Background(), []uuid.UUID{o.ChunkID})
	if err != nil {
		t.Fatalf("RemoveChunkRefs: %v", err)
	}
	if len(removed) != 1 {
		t.Fatalf("expected 1 removed concept, got %d", len(removed))
	}
	if _, ok := g.Concept("solo"); ok {
		t.Fatalf("orphaned concept survived pruning")
	}
	if _, ok := g.Concept("pair"); !ok {
		t.Fatalf("still-referenced concept was pruned")
	}
	if edges := g.AllEdges(0); len(edges) != 0 {
		t.Fatalf("edge without evidence survived: %+v", edges)
	}
}
