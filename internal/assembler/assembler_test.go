package assembler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/guptaanant682/memorybank-backend/internal/answercache"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
	"github.com/guptaanant682/memorybank-backend/internal/retrieval"
)

type fakeGenerator struct {
	calls      int
	lastPrompt string
	answer     string
}

func (f *fakeGenerator) GenerateText(_ context.Context, _ string, user string) (string, error) {
	f.calls++
	f.lastPrompt = user
	return f.answer, nil
}

type fakeRetriever struct {
	calls  int
	result retrieval.Result
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string) (retrieval.Result, error) {
	f.calls++
	return f.result, nil
}

func contextResult(partial bool) retrieval.Result {
	return retrieval.Result{
		State: retrieval.StateDone,
		Chunks: []retrieval.RetrievedChunk{
			{ChunkID: uuid.New(), DocumentID: uuid.New(), Ordinal: 0, Text: "Machine learning is a subset of AI.", VectorScore: 0.9},
			{ChunkID: uuid.New(), DocumentID: uuid.New(), Ordinal: 3, Text: "Neural networks are used in deep learning.", VectorScore: 0.5},
		},
		Partial: partial,
	}
}

func newAssembler(t *testing.T, gen *fakeGenerator, ret *fakeRetriever) (*Assembler, *answercache.MemoryCache) {
	t.Helper()
	log := logger.NewNop()
	cache := answercache.NewMemoryCache(log, answercache.Config{TTL: time.Minute, MaxSize: 8})
	return NewAssembler(log, gen, ret, cache), cache
}

func TestAnswer_BuildsSourcedPromptAndConfidence(t *testing.T) {
	gen := &fakeGenerator{answer: "ML is part of AI [Source 1]."}
	ret := &fakeRetriever{result: contextResult(false)}
	a, _ := newAssembler(t, gen, ret)

	res, err := a.Answer(context.Background(), "what is machine learning?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.FromCache {
		t.Fatalf("first answer should not come from cache")
	}
	if res.Answer != gen.answer {
		t.Fatalf("answer = %q", res.Answer)
	}

	if !strings.Contains(gen.lastPrompt, "[Source 1]\nMachine learning") {
		t.Fatalf("prompt missing first source block:\n%s", gen.lastPrompt)
	}
	if !strings.Contains(gen.lastPrompt, "[Source 2]\nNeural networks") {
		t.Fatalf("prompt missing second source block:\n%s", gen.lastPrompt)
	}
	if !strings.Contains(gen.lastPrompt, "Question: what is machine learning?") {
		t.Fatalf("prompt missing the question:\n%s", gen.lastPrompt)
	}

	// mean(0.9, 0.5) * 1.2 = 0.84
	if res.Confidence < 0.839 || res.Confidence > 0.841 {
		t.Fatalf("confidence = %v, want 0.84", res.Confidence)
	}
	if len(res.Sources) != 2 || res.Sources[0].Index != 1 || res.Sources[1].Ordinal != 3 {
		t.Fatalf("sources = %+v", res.Sources)
	}
}

func TestAnswer_ConfidenceClampedToOne(t *testing.T) {
	gen := &fakeGenerator{answer: "ok"}
	ret := &fakeRetriever{result: retrieval.Result{
		Chunks: []retrieval.RetrievedChunk{{ChunkID: uuid.New(), Text: "x", VectorScore: 0.99}},
	}}
	a, _ := newAssembler(t, gen, ret)

	res, err := a.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Confidence != 1 {
		t.Fatalf("confidence = %v, want clamp at 1", res.Confidence)
	}
}

func TestAnswer_SecondIdenticalQueryHitsCache(t *testing.T) {
	gen := &fakeGenerator{answer: "cached answer"}
	ret := &fakeRetriever{result: contextResult(false)}
	a, _ := newAssembler(t, gen, ret)
	ctx := context.Background()

	if _, err := a.Answer(ctx, "What is ML?"); err != nil {
		t.Fatalf("first Answer: %v", err)
	}
	res, err := a.Answer(ctx, "what   is ml?")
	if err != nil {
		t.Fatalf("second Answer: %v", err)
	}
	if !res.FromCache {
		t.Fatalf("expected cache hit")
	}
	if res.Answer != "cached answer" {
		t.Fatalf("cached answer = %q", res.Answer)
	}
	if len(res.Sources) != 2 {
		t.Fatalf("cached sources = %+v", res.Sources)
	}
	if gen.calls != 1 || ret.calls != 1 {
		t.Fatalf("cache hit still called collaborators: gen=%d retriever=%d", gen.calls, ret.calls)
	}
}

func TestAnswer_NoRelevantContextSkipsGeneration(t *testing.T) {
	gen := &fakeGenerator{answer: "should not be called"}
	ret := &fakeRetriever{result: retrieval.Result{NoRelevantContext: true}}
	a, cache := newAssembler(t, gen, ret)

	res, err := a.Answer(context.Background(), "unknown topic")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !res.NoRelevantContext {
		t.Fatalf("expected NoRelevantContext response, got %+v", res)
	}
	if res.Answer != noContextAnswer {
		t.Fatalf("answer = %q", res.Answer)
	}
	if gen.calls != 0 {
		t.Fatalf("generation called without context")
	}
	if cache.Len() != 0 {
		t.Fatalf("no-context response was cached")
	}
}

func TestAnswer_PartialResultNotCached(t *testing.T) {
	gen := &fakeGenerator{answer: "partial answer"}
	ret := &fakeRetriever{result: contextResult(true)}
	a, cache := newAssembler(t, gen, ret)

	res, err := a.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !res.Partial {
		t.Fatalf("partial flag dropped: %+v", res)
	}
	if cache.Len() != 0 {
		t.Fatalf("partial answer was cached")
	}
}
