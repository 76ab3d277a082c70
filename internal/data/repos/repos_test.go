package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

func TestDocumentRepo_CreateGetDelete(t *testing.T) {
	db := testDB(t)
	repo := NewDocumentRepo(db, logger.NewNop())
	ctx := context.Background()

	doc, err := repo.Create(ctx, nil, &domain.Document{
		Title:       "Notes",
		Content:     "some text",
		ContentType: domain.ContentTypeText,
		Status:      domain.DocumentStatusPending,
		ContentHash: "abc123",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc.ID == uuid.Nil {
		t.Fatalf("id not assigned")
	}
	if doc.UploadedAt.IsZero() {
		t.Fatalf("uploaded_at not defaulted")
	}

	got, err := repo.GetByID(ctx, nil, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "Notes" {
		t.Fatalf("title = %q", got.Title)
	}

	byHash, err := repo.GetByContentHash(ctx, nil, "abc123")
	if err != nil {
		t.Fatalf("GetByContentHash: %v", err)
	}
	if byHash.ID != doc.ID {
		t.Fatalf("hash lookup returned wrong document")
	}

	if err := repo.UpdateFields(ctx, nil, doc.ID, map[string]any{
		"status": domain.DocumentStatusReady,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, _ = repo.GetByID(ctx, nil, doc.ID)
	if got.Status != domain.DocumentStatusReady {
		t.Fatalf("status = %q, want ready", got.Status)
	}

	if err := repo.Delete(ctx, nil, doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, nil, doc.ID); err != gorm.ErrRecordNotFound {
		t.Fatalf("expected ErrRecordNotFound after delete, got %v", err)
	}
}

func TestDocumentRepo_CountUploadedBetween(t *testing.T) {
	db := testDB(t)
	repo := NewDocumentRepo(db, logger.NewNop())
	ctx := context.Background()

	now := time.Now().UTC()
	for i, age := range []time.Duration{time.Hour, 48 * time.Hour} {
		_, err := repo.Create(ctx, nil, &domain.Document{
			Title:      "d",
			Content:    "c",
			Status:     domain.DocumentStatusPending,
			UploadedAt: now.Add(-age),
		})
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	n, err := repo.CountUploadedBetween(ctx, nil, now.Add(-24*time.Hour), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("CountUploadedBetween: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestChunkRepo_OrdinalOrdering(t *testing.T) {
	db := testDB(t)
	docs := NewDocumentRepo(db, logger.NewNop())
	chunks := NewChunkRepo(db, logger.NewNop())
	ctx := context.Background()

	doc, err := docs.Create(ctx, nil, &domain.Document{Title: "d", Content: "c", Status: domain.DocumentStatusPending})
	if err != nil {
		t.Fatalf("Create document: %v", err)
	}

	// Insert out of order; reads come back by ordinal.
	batch := []*domain.DocumentChunk{
		{DocumentID: doc.ID, Ordinal: 2, Text: "three", WordCount: 1, ExtractionState: domain.ExtractionPending},
		{DocumentID: doc.ID, Ordinal: 0, Text: "one", WordCount: 1, ExtractionState: domain.ExtractionPending},
		{DocumentID: doc.ID, Ordinal: 1, Text: "two", WordCount: 1, ExtractionState: domain.ExtractionPending},
	}
	if _, err := chunks.CreateBatch(ctx, nil, batch); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	got, err := chunks.GetByDocumentID(ctx, nil, doc.ID)
	if err != nil {
		t.Fatalf("GetByDocumentID: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	for i, c := range got {
		if c.Ordinal != i {
			t.Fatalf("position %d has ordinal %d", i, c.Ordinal)
		}
	}

	if err := chunks.DeleteByDocumentID(ctx, nil, doc.ID); err != nil {
		t.Fatalf("DeleteByDocumentID: %v", err)
	}
	n, err := chunks.CountByDocumentID(ctx, nil, doc.ID)
	if err != nil {
		t.Fatalf("CountByDocumentID: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 chunks after delete, got %d", n)
	}
}

func TestConceptRepo_UpsertKeepsFirstLabel(t *testing.T) {
	db := testDB(t)
	repo := NewConceptRepo(db, logger.NewNop())
	ctx := context.Background()

	id := uuid.New()
	first := &domain.Concept{ID: id, Canonical: "neural networks", Label: "Neural Networks", Kind: domain.ConceptKindTopic, Importance: 1, Mentions: 1}
	if err := repo.UpsertBatch(ctx, nil, []*domain.Concept{first}); err != nil {
		t.Fatalf("first UpsertBatch: %v", err)
	}

	// Same canonical, different display label and counters.
	second := &domain.Concept{ID: uuid.New(), Canonical: "neural networks", Label: "neural networks", Kind: domain.ConceptKindTopic, Importance: 2.5, Mentions: 3}
	if err := repo.UpsertBatch(ctx, nil, []*domain.Concept{second}); err != nil {
		t.Fatalf("second UpsertBatch: %v", err)
	}

	got, err := repo.GetByCanonical(ctx, nil, "neural networks")
	if err != nil {
		t.Fatalf("GetByCanonical: %v", err)
	}
	if got.ID != id {
		t.Fatalf("upsert created a second row")
	}
	if got.Label != "Neural Networks" {
		t.Fatalf("label = %q, want first-seen form preserved", got.Label)
	}
	if got.Importance != 2.5 || got.Mentions != 3 {
		t.Fatalf("counters not updated: importance=%v mentions=%d", got.Importance, got.Mentions)
	}
}

func TestConceptRepo_MentionsConflictIgnored(t *testing.T) {
	db := testDB(t)
	repo := NewConceptRepo(db, logger.NewNop())
	ctx := context.Background()

	conceptID, chunkID, docID := uuid.New(), uuid.New(), uuid.New()
	m := &domain.ConceptMention{ConceptID: conceptID, ChunkID: chunkID, DocumentID: docID, Weight: 1}
	if err := repo.CreateMentions(ctx, nil, []*domain.ConceptMention{m}); err != nil {
		t.Fatalf("CreateMentions: %v", err)
	}
	dup := &domain.ConceptMention{ConceptID: conceptID, ChunkID: chunkID, DocumentID: docID, Weight: 1}
	if err := repo.CreateMentions(ctx, nil, []*domain.ConceptMention{dup}); err != nil {
		t.Fatalf("duplicate CreateMentions should be ignored: %v", err)
	}
}

func TestRelationshipRepo_UpsertAndFilter(t *testing.T) {
	db := testDB(t)
	repo := NewRelationshipRepo(db, logger.NewNop())
	ctx := context.Background()

	src, dst := uuid.New(), uuid.New()
	rel := &domain.Relationship{
		ID: uuid.New(), SourceConceptID: src, TargetConceptID: dst,
		Kind: domain.RelationCooccurrence, Weight: 1,
	}
	if err := repo.UpsertBatch(ctx, nil, []*domain.Relationship{rel}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	// Re-observed edge after a restart: fresh row id, same key triple.
	again := &domain.Relationship{
		ID: uuid.New(), SourceConceptID: src, TargetConceptID: dst,
		Kind: domain.RelationCooccurrence, Weight: 4,
	}
	if err := repo.UpsertBatch(ctx, nil, []*domain.Relationship{again}); err != nil {
		t.Fatalf("second UpsertBatch: %v", err)
	}

	n, err := repo.Count(ctx, nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 relationship, got %d", n)
	}

	heavy, err := repo.ListByMinWeight(ctx, nil, 2, 10)
	if err != nil {
		t.Fatalf("ListByMinWeight: %v", err)
	}
	if len(heavy) != 1 || heavy[0].Weight != 4 {
		t.Fatalf("weight filter wrong: %+v", heavy)
	}

	none, err := repo.ListByMinWeight(ctx, nil, 5, 10)
	if err != nil {
		t.Fatalf("ListByMinWeight: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no relationships above weight 5, got %+v", none)
	}
}
