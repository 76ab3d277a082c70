// Package assembler turns ranked retrieval context into a bounded prompt,
// calls the answer-generation service and attaches provenance, confidence
// and timing to the response.
package assembler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guptaanant682/memorybank-backend/internal/answercache"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
	"github.com/guptaanant682/memorybank-backend/internal/retrieval"
)

const systemPrompt = "You answer questions using only the numbered context " +
	"sources provided. Cite sources inline as [Source N]. If the context " +
	"does not contain the answer, say so plainly."

const noContextAnswer = "I don't have any information about that in the memory bank yet."

// Generator is the slice of the model client the assembler needs.
type Generator interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

// Retriever produces ranked context for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (retrieval.Result, error)
}

// SourceRef points a citation back at its chunk.
type SourceRef struct {
	Index      int       `json:"index"`
	DocumentID uuid.UUID `json:"document_id"`
	ChunkID    uuid.UUID `json:"chunk_id"`
	Ordinal    int       `json:"ordinal"`
}

// Response is the assembled answer returned to the caller.
type Response struct {
	Answer     string      `json:"answer"`
	Confidence float64     `json:"confidence"`
	Sources    []SourceRef `json:"sources,omitempty"`

	NoRelevantContext bool  `json:"no_relevant_context"`
	Partial           bool  `json:"partial"`
	FromCache         bool  `json:"from_cache"`
	LatencyMS         int64 `json:"latency_ms"`
}

type Assembler struct {
	log       *logger.Logger
	gen       Generator
	retriever Retriever
	cache     answercache.Cache
}

func NewAssembler(log *logger.Logger, gen Generator, retriever Retriever, cache answercache.Cache) *Assembler {
	return &Assembler{
		log:       log.With("service", "Assembler"),
		gen:       gen,
		retriever: retriever,
		cache:     cache,
	}
}

// Answer runs the full query flow: cache lookup, retrieval, prompt assembly,
// generation, cache fill. Partial retrievals are answered but never cached.
func (a *Assembler) Answer(ctx context.Context, query string) (Response, error) {
	start := time.Now()

	if a.cache != nil {
		if entry, ok, err := a.cache.Get(ctx, query); err != nil {
			a.log.Warn("answer cache lookup failed", "error", err)
		} else if ok {
			return Response{
				Answer:     entry.Answer,
				Confidence: entry.Confidence,
				Sources:    sourcesFromCache(entry.Sources),
				FromCache:  true,
				LatencyMS:  time.Since(start).Milliseconds(),
			}, nil
		}
	}

	res, err := a.retriever.Retrieve(ctx, query)
	if err != nil {
		return Response{}, err
	}
	if res.NoRelevantContext {
		return Response{
			Answer:            noContextAnswer,
			NoRelevantContext: true,
			LatencyMS:         time.Since(start).Milliseconds(),
		}, nil
	}

	answer, err := a.gen.GenerateText(ctx, systemPrompt, BuildPrompt(query, res.Chunks))
	if err != nil {
		return Response{}, fmt.Errorf("generate answer: %w", err)
	}

	out := Response{
		Answer:     answer,
		Confidence: confidence(res.Chunks),
		Sources:    sourcesFromChunks(res.Chunks),
		Partial:    res.Partial,
		LatencyMS:  time.Since(start).Milliseconds(),
	}

	if a.cache != nil && !res.Partial {
		entry := answercache.Entry{
			Answer:     out.Answer,
			Confidence: out.Confidence,
			Sources:    cacheSources(out.Sources),
			CreatedAt:  time.Now(),
		}
		if err := a.cache.Set(ctx, query, entry); err != nil {
			a.log.Warn("answer cache store failed", "error", err)
		}
	}
	return out, nil
}

// BuildPrompt renders the ranked chunks as numbered source blocks followed
// by the question.
func BuildPrompt(query string, chunks []retrieval.RetrievedChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&b, "[Source %d]\n%s\n\n", i+1, strings.TrimSpace(c.Text))
	}
	fmt.Fprintf(&b, "Question: %s", strings.TrimSpace(query))
	return b.String()
}

// confidence maps the mean vector similarity of the context onto [0, 1].
func confidence(chunks []retrieval.RetrievedChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += c.VectorScore
	}
	conf := (sum / float64(len(chunks))) * 1.2
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

func sourcesFromChunks(chunks []retrieval.RetrievedChunk) []SourceRef {
	out := make([]SourceRef, 0, len(chunks))
	for i, c := range chunks {
		out = append(out, SourceRef{
			Index:      i + 1,
			DocumentID: c.DocumentID,
			ChunkID:    c.ChunkID,
			Ordinal:    c.Ordinal,
		})
	}
	return out
}

func cacheSources(refs []SourceRef) []answercache.Source {
	out := make([]answercache.Source, 0, len(refs))
	for _, r := range refs {
		out = append(out, answercache.Source{
			DocumentID: r.DocumentID,
			ChunkID:    r.ChunkID,
			Ordinal:    r.Ordinal,
		})
	}
	return out
}

func sourcesFromCache(srcs []answercache.Source) []SourceRef {
	out := make([]SourceRef, 0, len(srcs))
	for i, s := range srcs {
		out = append(out, SourceRef{
			Index:      i + 1,
			DocumentID: s.DocumentID,
			ChunkID:    s.ChunkID,
			Ordinal:    s.Ordinal,
		})
	}
	return out
}
