// Package retrieval answers queries by fusing vector similarity with
// knowledge-graph proximity. A query moves through fixed states; when the
// deadline cuts in after the vector step the engine degrades to partial
// vector-only results instead of failing.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/extract"
	"github.com/guptaanant682/memorybank-backend/internal/kg"
	"github.com/guptaanant682/memorybank-backend/internal/platform/envutil"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
	"github.com/guptaanant682/memorybank-backend/internal/vector"
)

// Query states, in order of progress.
const (
	StateReceived       = "received"
	StateVectorSearched = "vector_searched"
	StateGraphExpanded  = "graph_expanded"
	StateRanked         = "ranked"
	StateDone           = "done"
	StateFailed         = "failed"
)

type Config struct {
	VectorK       int
	MinSimilarity float64

	// Alpha weights vector similarity against normalized graph score.
	Alpha float64
	Hops  int

	WordBudget int
	MaxResults int
}

func ConfigFromEnv() Config {
	return Config{
		VectorK:       envutil.Int("RETRIEVAL_VECTOR_K", 10),
		MinSimilarity: envutil.Float("RETRIEVAL_MIN_SIMILARITY", 0.25),
		Alpha:         envutil.Float("RETRIEVAL_ALPHA", 0.6),
		Hops:          envutil.Int("RETRIEVAL_HOPS", 2),
		WordBudget:    envutil.Int("RETRIEVAL_WORD_BUDGET", 1200),
		MaxResults:    envutil.Int("RETRIEVAL_MAX_RESULTS", 8),
	}
}

// Embedder is the slice of the model client the engine needs.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// ChunkLoader fetches chunk rows for candidates.
type ChunkLoader interface {
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.DocumentChunk, error)
}

// RetrievedChunk is one ranked context candidate with its score breakdown.
type RetrievedChunk struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	WordCount  int       `json:"word_count"`

	VectorScore float64 `json:"vector_score"`
	GraphScore  float64 `json:"graph_score"`
	Fused       float64 `json:"fused_score"`

	// Concepts lists graph concepts that routed to this chunk.
	Concepts []string `json:"concepts,omitempty"`
}

type Result struct {
	State             string           `json:"state"`
	Chunks            []RetrievedChunk `json:"chunks"`
	SeedConcepts      []string         `json:"seed_concepts,omitempty"`
	NoRelevantContext bool             `json:"no_relevant_context"`
	Partial           bool             `json:"partial"`
}

type candidate struct {
	chunkID  uuid.UUID
	docID    uuid.UUID
	ordinal  int
	wc       int
	sim      float64
	graphRaw float64
	concepts []string
	seq      int64
}

type Engine struct {
	log       *logger.Logger
	cfg       Config
	embedder  Embedder
	index     vector.Index
	graph     kg.Graph
	chunks    ChunkLoader
	extractor extract.Extractor // optional query-side concept shortcut
}

func NewEngine(
	log *logger.Logger,
	cfg Config,
	embedder Embedder,
	index vector.Index,
	graph kg.Graph,
	chunks ChunkLoader,
	extractor extract.Extractor,
) *Engine {
	if cfg.Alpha < 0 || cfg.Alpha > 1 {
		cfg.Alpha = 0.6
	}
	if cfg.Hops <= 0 {
		cfg.Hops = 2
	}
	if cfg.VectorK <= 0 {
		cfg.VectorK = 10
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 8
	}
	return &Engine{
		log:       log.With("service", "RetrievalEngine"),
		cfg:       cfg,
		embedder:  embedder,
		index:     index,
		graph:     graph,
		chunks:    chunks,
		extractor: extractor,
	}
}

func (e *Engine) Retrieve(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{State: StateFailed}, fmt.Errorf("empty query")
	}

	vecs, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Result{State: StateFailed}, fmt.Errorf("embed query: %w", err)
	}

	matches, err := e.index.Query(ctx, vecs[0], e.cfg.VectorK, e.cfg.MinSimilarity)
	if err != nil {
		return Result{State: StateFailed}, fmt.Errorf("vector search: %w", err)
	}

	candidates := map[uuid.UUID]*candidate{}
	for _, m := range matches {
		candidates[m.ChunkID] = &candidate{
			chunkID: m.ChunkID,
			docID:   m.Meta.DocumentID,
			ordinal: m.Meta.Ordinal,
			wc:      m.Meta.WordCount,
			sim:     m.Similarity,
			seq:     m.Meta.Seq,
		}
	}

	// Deadline already spent: degrade to vector-only ranking rather than
	// returning nothing.
	if ctx.Err() != nil {
		res := e.rank(candidates, nil, true)
		if err := e.hydrateTexts(context.WithoutCancel(ctx), &res); err != nil {
			return Result{State: StateFailed}, err
		}
		return res, nil
	}

	seeds := e.seedConcepts(ctx, query, matches)

	// Graph proximity. Seed concepts route at the strength of the best
	// expansion hit so directly-mentioned concepts dominate their
	// neighborhood.
	conceptScores := map[string]float64{}
	if len(seeds) > 0 {
		neighbors := e.graph.Neighborhood(seeds, e.cfg.Hops)
		seedScore := 1.0
		for _, ns := range neighbors {
			if ns.Score > seedScore {
				seedScore = ns.Score
			}
			conceptScores[ns.Canonical] = ns.Score
		}
		for _, s := range seeds {
			conceptScores[s] = seedScore
		}
	}

	// Route concept scores onto their supporting chunks.
	graphOnly := map[uuid.UUID]bool{}
	for canonical, score := range conceptScores {
		node, ok := e.graph.Concept(canonical)
		if !ok {
			continue
		}
		for _, chunkID := range node.Provenance {
			c, ok := candidates[chunkID]
			if !ok {
				c = &candidate{chunkID: chunkID}
				candidates[chunkID] = c
				graphOnly[chunkID] = true
			}
			c.graphRaw += score
			if !containsLabel(c.concepts, node.Label) {
				c.concepts = append(c.concepts, node.Label)
			}
		}
	}

	// Hydrate graph-only candidates from the store.
	if len(graphOnly) > 0 {
		ids := make([]uuid.UUID, 0, len(graphOnly))
		for id := range graphOnly {
			ids = append(ids, id)
		}
		rows, err := e.chunks.GetByIDs(ctx, nil, ids)
		if err != nil {
			return Result{State: StateFailed}, fmt.Errorf("load graph candidates: %w", err)
		}
		found := map[uuid.UUID]*domain.DocumentChunk{}
		for _, row := range rows {
			found[row.ID] = row
		}
		for id := range graphOnly {
			row, ok := found[id]
			if !ok {
				// Stale provenance (chunk deleted); drop the candidate.
				delete(candidates, id)
				continue
			}
			c := candidates[id]
			c.docID = row.DocumentID
			c.ordinal = row.Ordinal
			c.wc = row.WordCount
			c.seq = row.CreatedAt.UnixNano()
		}
	}

	res := e.rank(candidates, seeds, false)
	if err := e.hydrateTexts(ctx, &res); err != nil {
		return Result{State: StateFailed}, err
	}
	return res, nil
}

// seedConcepts finds graph entry points for the query: extracted query
// concepts first, then concepts of the top vector matches, then substring
// matching as a last resort.
func (e *Engine) seedConcepts(ctx context.Context, query string, matches []vector.Match) []string {
	var seeds []string
	seen := map[string]bool{}
	add := func(canonical string) {
		if canonical == "" || seen[canonical] {
			return
		}
		if _, ok := e.graph.Concept(canonical); !ok {
			return
		}
		seen[canonical] = true
		seeds = append(seeds, canonical)
	}

	if e.extractor != nil {
		if res, err := e.extractor.Extract(ctx, query); err == nil {
			for _, m := range res.Mentions {
				add(kg.Canonicalize(m.Label))
			}
		} else {
			e.log.Warn("query concept extraction failed", "error", err)
		}
	}

	if len(seeds) == 0 && len(matches) > 0 {
		ids := make([]uuid.UUID, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ChunkID)
		}
		for _, node := range e.graph.ConceptsByChunks(ids) {
			add(node.Canonical)
		}
	}

	if len(seeds) == 0 {
		for _, node := range e.graph.MatchSubstring(query, 5) {
			add(node.Canonical)
		}
	}
	return seeds
}

// rank fuses scores, orders candidates and applies the word budget.
func (e *Engine) rank(candidates map[uuid.UUID]*candidate, seeds []string, partial bool) Result {
	var maxGraph float64
	for _, c := range candidates {
		if c.graphRaw > maxGraph {
			maxGraph = c.graphRaw
		}
	}

	ordered := make([]*candidate, 0, len(candidates))
	for _, c := range candidates {
		ordered = append(ordered, c)
	}
	alpha := e.cfg.Alpha
	fused := func(c *candidate) float64 {
		graphNorm := 0.0
		if maxGraph > 0 {
			graphNorm = c.graphRaw / maxGraph
		}
		return alpha*c.sim + (1-alpha)*graphNorm
	}
	sort.Slice(ordered, func(i, j int) bool {
		fi, fj := fused(ordered[i]), fused(ordered[j])
		if fi != fj {
			return fi > fj
		}
		if ordered[i].sim != ordered[j].sim {
			return ordered[i].sim > ordered[j].sim
		}
		if ordered[i].seq != ordered[j].seq {
			return ordered[i].seq < ordered[j].seq
		}
		return ordered[i].chunkID.String() < ordered[j].chunkID.String()
	})

	res := Result{SeedConcepts: seeds, Partial: partial, State: StateDone}

	budget := e.cfg.WordBudget
	used := 0
	for _, c := range ordered {
		if len(res.Chunks) >= e.cfg.MaxResults {
			break
		}
		// The first chunk always fits; after that the word budget rules.
		if len(res.Chunks) > 0 && budget > 0 && used+c.wc > budget {
			continue
		}
		used += c.wc
		graphNorm := 0.0
		if maxGraph > 0 {
			graphNorm = c.graphRaw / maxGraph
		}
		sort.Strings(c.concepts)
		res.Chunks = append(res.Chunks, RetrievedChunk{
			ChunkID:     c.chunkID,
			DocumentID:  c.docID,
			Ordinal:     c.ordinal,
			WordCount:   c.wc,
			VectorScore: c.sim,
			GraphScore:  graphNorm,
			Fused:       fused(c),
			Concepts:    c.concepts,
		})
	}

	if len(res.Chunks) == 0 {
		res.NoRelevantContext = true
	}
	return res
}

// hydrateTexts loads chunk texts for the final result set.
func (e *Engine) hydrateTexts(ctx context.Context, res *Result) error {
	if len(res.Chunks) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(res.Chunks))
	for _, c := range res.Chunks {
		ids = append(ids, c.ChunkID)
	}
	rows, err := e.chunks.GetByIDs(ctx, nil, ids)
	if err != nil {
		return fmt.Errorf("load chunk texts: %w", err)
	}
	texts := make(map[uuid.UUID]string, len(rows))
	for _, row := range rows {
		texts[row.ID] = row.Text
	}
	for i := range res.Chunks {
		res.Chunks[i].Text = texts[res.Chunks[i].ChunkID]
	}
	return nil
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
