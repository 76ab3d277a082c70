// Package ingest drives a document from raw text to fully merged knowledge:
// chunking, embedding, extraction and graph merge, with resumable failure
// handling at every stage.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/guptaanant682/memorybank-backend/internal/chunker"
	"github.com/guptaanant682/memorybank-backend/internal/data/repos"
	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/extract"
	"github.com/guptaanant682/memorybank-backend/internal/kg"
	"github.com/guptaanant682/memorybank-backend/internal/platform/envutil"
	"github.com/guptaanant682/memorybank-backend/internal/platform/faults"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
	"github.com/guptaanant682/memorybank-backend/internal/vector"
)

// Embedder is the slice of the model client the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type Config struct {
	TargetWords   int
	OverlapWords  int
	EmbedBatch    int
	MaxConcurrent int64
	TagCount      int
}

func ConfigFromEnv() Config {
	return Config{
		TargetWords:   envutil.Int("CHUNK_TARGET_WORDS", 200),
		OverlapWords:  envutil.Int("CHUNK_OVERLAP_WORDS", 30),
		EmbedBatch:    envutil.Int("EMBED_BATCH_SIZE", 16),
		MaxConcurrent: int64(envutil.Int("INGEST_MAX_CONCURRENT", 4)),
		TagCount:      envutil.Int("DOCUMENT_TAG_COUNT", 5),
	}
}

type Pipeline struct {
	log       *logger.Logger
	cfg       Config
	docs      repos.DocumentRepo
	chunks    repos.ChunkRepo
	sink      *repos.RelationalSink
	builder   *kg.Builder
	index     vector.Index
	embedder  Embedder
	extractor extract.Extractor

	sem *semaphore.Weighted
}

func NewPipeline(
	log *logger.Logger,
	cfg Config,
	docs repos.DocumentRepo,
	chunks repos.ChunkRepo,
	sink *repos.RelationalSink,
	builder *kg.Builder,
	index vector.Index,
	embedder Embedder,
	extractor extract.Extractor,
) *Pipeline {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Pipeline{
		log:       log.With("service", "IngestPipeline"),
		cfg:       cfg,
		docs:      docs,
		chunks:    chunks,
		sink:      sink,
		builder:   builder,
		index:     index,
		embedder:  embedder,
		extractor: extractor,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// IngestText registers a document. Resubmitting identical content returns
// the existing document untouched so graph weights are not inflated.
func (p *Pipeline) IngestText(ctx context.Context, title, content, contentType string) (*domain.Document, bool, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, false, fmt.Errorf("empty content")
	}
	if contentType == "" {
		contentType = domain.ContentTypeText
	}

	hash := hashContent(content)
	if existing, err := p.docs.GetByContentHash(ctx, nil, hash); err == nil {
		if existing.Status == domain.DocumentStatusReady {
			p.log.Info("identical content already ingested", "document_id", existing.ID)
			return existing, false, nil
		}
		// Partial or failed earlier run; resume it instead of duplicating.
		return existing, true, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("lookup content hash: %w", err)
	}

	if title == "" {
		title = inferTitle(content)
	}
	doc, err := p.docs.Create(ctx, nil, &domain.Document{
		Title:       title,
		Content:     content,
		ContentType: contentType,
		ContentHash: hash,
		Status:      domain.DocumentStatusPending,
		SizeBytes:   int64(len(content)),
	})
	if err != nil {
		return nil, false, fmt.Errorf("create document: %w", err)
	}
	return doc, true, nil
}

// Process runs the document through all remaining stages. Safe to call on a
// document in any state; completed stages are skipped.
func (p *Pipeline) Process(ctx context.Context, docID uuid.UUID) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	doc, err := p.docs.GetByID(ctx, nil, docID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", docID, err)
	}

	status := doc.Status
	if status == domain.DocumentStatusFailed {
		status = statusBeforeStage(doc.FailedStage)
		p.log.Info("resuming failed document", "document_id", doc.ID, "stage", doc.FailedStage)
	}

	if status == domain.DocumentStatusPending {
		if err := p.chunkStage(ctx, doc); err != nil {
			return p.fail(ctx, doc, domain.StageChunk, err)
		}
		status = domain.DocumentStatusChunked
	}
	if status == domain.DocumentStatusChunked {
		if err := p.embedStage(ctx, doc); err != nil {
			return p.fail(ctx, doc, domain.StageEmbed, err)
		}
		status = domain.DocumentStatusIndexed
	}
	if status == domain.DocumentStatusIndexed {
		if err := p.extractStage(ctx, doc); err != nil {
			return p.fail(ctx, doc, domain.StageExtract, err)
		}
		status = domain.DocumentStatusGraphed
	}
	if status == domain.DocumentStatusGraphed {
		if err := p.finalize(ctx, doc); err != nil {
			return p.fail(ctx, doc, domain.StageExtract, err)
		}
	}
	return nil
}

// statusBeforeStage maps a failed stage back to the status whose work it
// performs, so resume re-enters at the right point.
func statusBeforeStage(stage string) string {
	switch stage {
	case domain.StageEmbed:
		return domain.DocumentStatusChunked
	case domain.StageExtract:
		return domain.DocumentStatusIndexed
	default:
		return domain.DocumentStatusPending
	}
}

func (p *Pipeline) fail(ctx context.Context, doc *domain.Document, stage string, cause error) error {
	p.log.Error("ingestion stage failed", "document_id", doc.ID, "stage", stage, "error", cause)
	if err := p.docs.UpdateFields(ctx, nil, doc.ID, map[string]any{
		"status":       domain.DocumentStatusFailed,
		"failed_stage": stage,
		"fail_reason":  cause.Error(),
	}); err != nil {
		p.log.Error("could not record failure", "document_id", doc.ID, "error", err)
	}
	return fmt.Errorf("stage %s: %w", stage, cause)
}

func (p *Pipeline) chunkStage(ctx context.Context, doc *domain.Document) error {
	pieces, err := chunker.Split(doc.Content, chunker.Config{
		TargetWords:  p.cfg.TargetWords,
		OverlapWords: p.cfg.OverlapWords,
	})
	if err != nil {
		return err
	}

	// Chunking is deterministic, so a partial earlier run is wiped rather
	// than reconciled.
	if err := p.chunks.DeleteByDocumentID(ctx, nil, doc.ID); err != nil {
		return fmt.Errorf("clear stale chunks: %w", err)
	}

	rows := make([]*domain.DocumentChunk, 0, len(pieces))
	for _, piece := range pieces {
		rows = append(rows, &domain.DocumentChunk{
			DocumentID:      doc.ID,
			Ordinal:         piece.Ordinal,
			Text:            piece.Text,
			WordCount:       piece.WordCount,
			ExtractionState: domain.ExtractionPending,
		})
	}
	if _, err := p.chunks.CreateBatch(ctx, nil, rows); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}

	return p.docs.UpdateFields(ctx, nil, doc.ID, map[string]any{
		"status": domain.DocumentStatusChunked,
	})
}

func (p *Pipeline) embedStage(ctx context.Context, doc *domain.Document) error {
	all, err := p.chunks.GetByDocumentID(ctx, nil, doc.ID)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	if err := verifyOrdinals(all); err != nil {
		return err
	}

	// Ordinal order, skipping chunks embedded by an earlier run.
	pending := make([]*domain.DocumentChunk, 0, len(all))
	for _, c := range all {
		if c.EmbeddedAt == nil {
			pending = append(pending, c)
		}
	}

	batch := p.cfg.EmbedBatch
	if batch <= 0 {
		batch = 16
	}
	for start := 0; start < len(pending); start += batch {
		end := start + batch
		if end > len(pending) {
			end = len(pending)
		}
		window := pending[start:end]
		inputs := make([]string, len(window))
		for i, c := range window {
			inputs[i] = c.Text
		}
		vectors, err := p.embedder.Embed(ctx, inputs)
		if err != nil {
			return fmt.Errorf("embed batch at ordinal %d: %w", window[0].Ordinal, err)
		}
		if len(vectors) != len(window) {
			return fmt.Errorf("%w: embedder returned %d vectors for %d chunks",
				faults.ErrConsistency, len(vectors), len(window))
		}
		for i, c := range window {
			if err := p.storeEmbedding(ctx, doc, c, vectors[i]); err != nil {
				return err
			}
		}
	}

	return p.docs.UpdateFields(ctx, nil, doc.ID, map[string]any{
		"status": domain.DocumentStatusIndexed,
	})
}

func (p *Pipeline) storeEmbedding(ctx context.Context, doc *domain.Document, c *domain.DocumentChunk, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	now := time.Now().UTC()
	if err := p.chunks.UpdateFields(ctx, nil, c.ID, map[string]any{
		"embedding":   raw,
		"embedded_at": now,
	}); err != nil {
		return fmt.Errorf("persist embedding for chunk %s: %w", c.ID, err)
	}
	meta := vector.Metadata{
		DocumentID: doc.ID,
		Ordinal:    c.Ordinal,
		WordCount:  c.WordCount,
		Seq:        c.CreatedAt.UnixNano(),
	}
	if err := p.index.Upsert(ctx, c.ID, vec, meta); err != nil {
		return fmt.Errorf("index chunk %s: %w", c.ID, err)
	}
	return nil
}

func verifyOrdinals(chunks []*domain.DocumentChunk) error {
	for i, c := range chunks {
		if c.Ordinal != i {
			return fmt.Errorf("%w: ordinal gap at position %d (got %d)", faults.ErrConsistency, i, c.Ordinal)
		}
	}
	return nil
}

func (p *Pipeline) extractStage(ctx context.Context, doc *domain.Document) error {
	all, err := p.chunks.GetByDocumentID(ctx, nil, doc.ID)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}

	failed := 0
	for _, c := range all {
		if c.ExtractionState == domain.ExtractionMerged {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := p.extractor.Extract(ctx, c.Text)
		if err != nil {
			// One bad chunk never sinks its siblings; it is retried on the
			// next resume.
			failed++
			p.log.Warn("chunk extraction failed", "chunk_id", c.ID, "ordinal", c.Ordinal, "error", err)
			if uerr := p.chunks.UpdateFields(ctx, nil, c.ID, map[string]any{
				"extraction_state": domain.ExtractionFailed,
			}); uerr != nil {
				return fmt.Errorf("mark chunk %s failed: %w", c.ID, uerr)
			}
			continue
		}

		if err := p.mergeChunk(ctx, doc, c, res); err != nil {
			return err
		}
	}

	if failed > 0 && failed == len(all) {
		return fmt.Errorf("extraction failed for all %d chunks", failed)
	}
	return p.docs.UpdateFields(ctx, nil, doc.ID, map[string]any{
		"status": domain.DocumentStatusGraphed,
	})
}

func (p *Pipeline) mergeChunk(ctx context.Context, doc *domain.Document, c *domain.DocumentChunk, res extract.Result) error {
	obsv := kg.ChunkObservation{
		DocumentID: doc.ID,
		ChunkID:    c.ID,
	}
	for _, m := range res.Mentions {
		obsv.Mentions = append(obsv.Mentions, kg.ObservedMention{
			Label:      m.Label,
			Kind:       m.Kind,
			Confidence: m.Confidence,
		})
	}
	for _, pr := range res.Cooccurrences {
		obsv.Pairs = append(obsv.Pairs, kg.ObservedPair{A: pr.A, B: pr.B})
	}

	delta, err := p.builder.MergeChunk(ctx, obsv)
	if err != nil {
		return fmt.Errorf("merge chunk %s: %w", c.ID, err)
	}

	if p.sink != nil && len(delta.Nodes) > 0 {
		mentions := make([]*domain.ConceptMention, 0, len(delta.Nodes))
		for _, n := range delta.Nodes {
			mentions = append(mentions, &domain.ConceptMention{
				ConceptID:  n.ID,
				ChunkID:    c.ID,
				DocumentID: doc.ID,
				Weight:     1,
			})
		}
		if err := p.sink.RecordMentions(ctx, nil, mentions); err != nil {
			return fmt.Errorf("record mentions for chunk %s: %w", c.ID, err)
		}
	}

	return p.chunks.UpdateFields(ctx, nil, c.ID, map[string]any{
		"extraction_state": domain.ExtractionMerged,
	})
}

func (p *Pipeline) finalize(ctx context.Context, doc *domain.Document) error {
	fields := map[string]any{
		"status":       domain.DocumentStatusReady,
		"processed_at": time.Now().UTC(),
		"failed_stage": "",
		"fail_reason":  "",
	}
	if tags := p.documentTags(ctx, doc.ID); len(tags) > 0 {
		if raw, err := json.Marshal(tags); err == nil {
			fields["tags"] = raw
		}
	}
	if err := p.docs.UpdateFields(ctx, nil, doc.ID, fields); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	p.log.Info("document ready", "document_id", doc.ID)
	return nil
}

// documentTags picks the document's most important concepts as tags.
func (p *Pipeline) documentTags(ctx context.Context, docID uuid.UUID) []string {
	graph := p.builder.Graph()
	top := graph.TopConcepts(0)
	chunks, err := p.chunks.GetByDocumentID(ctx, nil, docID)
	if err != nil {
		return nil
	}
	inDoc := map[uuid.UUID]bool{}
	for _, c := range chunks {
		inDoc[c.ID] = true
	}

	var tags []string
	for _, n := range top {
		for _, chunkID := range n.Provenance {
			if inDoc[chunkID] {
				tags = append(tags, n.Label)
				break
			}
		}
		if len(tags) >= p.cfg.TagCount {
			break
		}
	}
	return tags
}

// Delete removes a document and everything derived from it: chunks, vector
// entries, provenance rows and concepts left without support.
func (p *Pipeline) Delete(ctx context.Context, docID uuid.UUID) error {
	doc, err := p.docs.GetByID(ctx, nil, docID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", docID, err)
	}
	chunks, err := p.chunks.GetByDocumentID(ctx, nil, doc.ID)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}

	chunkIDs := make([]uuid.UUID, 0, len(chunks))
	for _, c := range chunks {
		chunkIDs = append(chunkIDs, c.ID)
		if err := p.index.Delete(ctx, c.ID); err != nil {
			return fmt.Errorf("remove chunk %s from index: %w", c.ID, err)
		}
	}

	if err := p.builder.RemoveChunkRefs(ctx, chunkIDs); err != nil {
		return err
	}
	if p.sink != nil {
		if err := p.sink.DeleteMentionsByChunkIDs(ctx, chunkIDs); err != nil {
			return fmt.Errorf("delete provenance: %w", err)
		}
	}
	if err := p.chunks.DeleteByDocumentID(ctx, nil, doc.ID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := p.docs.Delete(ctx, nil, doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	p.log.Info("document deleted", "document_id", doc.ID, "chunks", len(chunkIDs))
	return nil
}

func inferTitle(content string) string {
	line := content
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	words := strings.Fields(line)
	if len(words) > 8 {
		words = words[:8]
	}
	title := strings.Join(words, " ")
	title = strings.TrimRight(title, ".!?,;:")
	if title == "" {
		return "Untitled"
	}
	return title
}
