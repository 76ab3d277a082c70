package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/guptaanant682/memorybank-backend/internal/data/repos"
	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/kg"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

type analyticsEnv struct {
	svc      *Service
	docs     repos.DocumentRepo
	concepts repos.ConceptRepo
	graph    *kg.MemoryGraph
	now      time.Time
}

func newAnalyticsEnv(t *testing.T) *analyticsEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&domain.Document{}, &domain.Concept{}, &domain.ConceptMention{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	log := logger.NewNop()
	docs := repos.NewDocumentRepo(db, log)
	concepts := repos.NewConceptRepo(db, log)
	graph := kg.NewMemoryGraph(log)

	svc := NewService(log, docs, concepts, graph)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &analyticsEnv{svc: svc, docs: docs, concepts: concepts, graph: graph, now: now}
}

func (e *analyticsEnv) addDocument(t *testing.T, uploadedAt time.Time) uuid.UUID {
	t.Helper()
	doc := &domain.Document{
		Title:       "doc",
		ContentHash: uuid.NewString(),
		Status:      domain.DocumentStatusReady,
		UploadedAt:  uploadedAt,
	}
	created, err := e.docs.Create(context.Background(), nil, doc)
	if err != nil {
		t.Fatalf("Create document: %v", err)
	}
	return created.ID
}

func (e *analyticsEnv) addConcept(t *testing.T, label string) uuid.UUID {
	t.Helper()
	c := &domain.Concept{
		ID:        uuid.New(),
		Canonical: kg.Canonicalize(label),
		Label:     label,
		Kind:      domain.ConceptKindTopic,
	}
	if err := e.concepts.UpsertBatch(context.Background(), nil, []*domain.Concept{c}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	return c.ID
}

func (e *analyticsEnv) addMentions(t *testing.T, conceptID, docID uuid.UUID, at time.Time, n int) {
	t.Helper()
	rows := make([]*domain.ConceptMention, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, &domain.ConceptMention{
			ConceptID:  conceptID,
			ChunkID:    uuid.New(),
			DocumentID: docID,
			Weight:     1,
			CreatedAt:  at,
		})
	}
	if err := e.concepts.CreateMentions(context.Background(), nil, rows); err != nil {
		t.Fatalf("CreateMentions: %v", err)
	}
}

func TestEvolution_VelocityAndTrends(t *testing.T) {
	env := newAnalyticsEnv(t)
	ctx := context.Background()

	// 30-day window: earlier half ends at now-15d.
	earlierAt := env.now.AddDate(0, 0, -20)
	recentAt := env.now.AddDate(0, 0, -5)

	docA := env.addDocument(t, earlierAt)
	docB := env.addDocument(t, recentAt)
	env.addDocument(t, recentAt.Add(time.Hour))
	env.addDocument(t, env.now.AddDate(0, 0, -90)) // outside the window

	rising := env.addConcept(t, "machine learning")
	falling := env.addConcept(t, "databases")
	fresh := env.addConcept(t, "quantum computing")

	env.addMentions(t, rising, docA, earlierAt, 2)
	env.addMentions(t, rising, docB, recentAt, 5)
	env.addMentions(t, falling, docA, earlierAt, 4)
	env.addMentions(t, falling, docB, recentAt, 1)
	env.addMentions(t, fresh, docB, recentAt, 3)

	report, err := env.svc.Evolution(ctx, 30)
	if err != nil {
		t.Fatalf("Evolution: %v", err)
	}

	if report.TotalDocuments != 3 {
		t.Fatalf("documents in window = %d, want 3", report.TotalDocuments)
	}
	if report.UploadVelocity != 0.1 {
		t.Fatalf("velocity = %v, want 0.1", report.UploadVelocity)
	}

	if len(report.TrendingUp) != 1 || report.TrendingUp[0].Topic != "machine learning" {
		t.Fatalf("trending up = %+v", report.TrendingUp)
	}
	// (5-2)/2 = 150%
	if report.TrendingUp[0].ChangeRate != 150 {
		t.Fatalf("growth rate = %v, want 150", report.TrendingUp[0].ChangeRate)
	}

	if len(report.TrendingDown) != 1 || report.TrendingDown[0].Topic != "databases" {
		t.Fatalf("trending down = %+v", report.TrendingDown)
	}
	if report.TrendingDown[0].ChangeRate != 75 {
		t.Fatalf("decline rate = %v, want 75", report.TrendingDown[0].ChangeRate)
	}

	if len(report.NewTopics) != 1 || report.NewTopics[0].Topic != "quantum computing" {
		t.Fatalf("new topics = %+v", report.NewTopics)
	}
	if report.NewTopics[0].RecentCount != 3 {
		t.Fatalf("new topic mentions = %d, want 3", report.NewTopics[0].RecentCount)
	}
}

func TestEvolution_EmptyBank(t *testing.T) {
	env := newAnalyticsEnv(t)

	report, err := env.svc.Evolution(context.Background(), 30)
	if err != nil {
		t.Fatalf("Evolution: %v", err)
	}
	if report.TotalDocuments != 0 || report.UploadVelocity != 0 {
		t.Fatalf("unexpected activity: %+v", report)
	}
	if len(report.TrendingUp)+len(report.TrendingDown)+len(report.NewTopics) != 0 {
		t.Fatalf("trends from empty bank: %+v", report)
	}
}

func TestKnowledgeSummary(t *testing.T) {
	env := newAnalyticsEnv(t)
	ctx := context.Background()

	env.addDocument(t, env.now.AddDate(0, 0, -1))
	docID := uuid.New()
	obs := kg.ChunkObservation{
		DocumentID: docID,
		ChunkID:    uuid.New(),
		Mentions: []kg.ObservedMention{
			{Label: "machine learning", Kind: domain.ConceptKindTopic, Confidence: 1},
			{Label: "AI", Kind: domain.ConceptKindEntity, Confidence: 0.5},
		},
		Pairs: []kg.ObservedPair{{A: "machine learning", B: "AI"}},
	}
	if _, err := env.graph.MergeChunk(ctx, obs); err != nil {
		t.Fatalf("MergeChunk: %v", err)
	}

	sum, err := env.svc.KnowledgeSummary(ctx, 5)
	if err != nil {
		t.Fatalf("KnowledgeSummary: %v", err)
	}
	if sum.Documents != 1 {
		t.Fatalf("documents = %d", sum.Documents)
	}
	if sum.Concepts != 2 || sum.Relationships != 1 {
		t.Fatalf("graph counts = %+v", sum)
	}
	if sum.NetworkDensity != 1 {
		t.Fatalf("density = %v, want 1 (single possible edge exists)", sum.NetworkDensity)
	}
	if len(sum.TopConcepts) != 2 || sum.TopConcepts[0].Label != "machine learning" {
		t.Fatalf("top concepts = %+v", sum.TopConcepts)
	}
}
