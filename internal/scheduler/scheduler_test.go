package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/guptaanant682/memorybank-backend/internal/data/repos"
	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

type fakeSource struct {
	name  string
	items []SourceItem
	err   error
	pulls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Pull(context.Context) ([]SourceItem, error) {
	f.pulls++
	return f.items, f.err
}

type fakeIngestor struct {
	ingested  []string
	processed []uuid.UUID
	skipNew   bool
}

func (f *fakeIngestor) IngestText(_ context.Context, title, _, _ string) (*domain.Document, bool, error) {
	f.ingested = append(f.ingested, title)
	return &domain.Document{ID: uuid.New(), Title: title}, !f.skipNew, nil
}

func (f *fakeIngestor) Process(_ context.Context, docID uuid.UUID) error {
	f.processed = append(f.processed, docID)
	return nil
}

func newDocRepo(t *testing.T) repos.DocumentRepo {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&domain.Document{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return repos.NewDocumentRepo(db, logger.NewNop())
}

func TestSync_PullsSourcesIntoIngestion(t *testing.T) {
	docs := newDocRepo(t)
	ingestor := &fakeIngestor{}
	src := &fakeSource{name: "notes", items: []SourceItem{
		{Title: "one", Content: "first item", ContentType: domain.ContentTypeText},
		{Title: "two", Content: "second item", ContentType: domain.ContentTypeText},
	}}

	s := NewScheduler(logger.NewNop(), Config{Interval: time.Minute}, docs, ingestor, src)
	s.Sync(context.Background())

	if src.pulls != 1 {
		t.Fatalf("pulls = %d", src.pulls)
	}
	if len(ingestor.ingested) != 2 {
		t.Fatalf("ingested = %v", ingestor.ingested)
	}
	if len(ingestor.processed) != 2 {
		t.Fatalf("processed = %d documents, want 2", len(ingestor.processed))
	}
}

func TestSync_DuplicateSourceItemsNotReprocessed(t *testing.T) {
	docs := newDocRepo(t)
	ingestor := &fakeIngestor{skipNew: true}
	src := &fakeSource{name: "notes", items: []SourceItem{{Title: "dup", Content: "x"}}}

	s := NewScheduler(logger.NewNop(), Config{Interval: time.Minute}, docs, ingestor, src)
	s.Sync(context.Background())

	if len(ingestor.processed) != 0 {
		t.Fatalf("duplicate item was processed: %v", ingestor.processed)
	}
}

func TestSync_ResumesFailedAndStalePending(t *testing.T) {
	docs := newDocRepo(t)
	ctx := context.Background()

	mk := func(status string) uuid.UUID {
		doc, err := docs.Create(ctx, nil, &domain.Document{
			Title:       status,
			ContentHash: uuid.NewString(),
			Status:      status,
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		return doc.ID
	}
	failedID := mk(domain.DocumentStatusFailed)
	freshPendingID := mk(domain.DocumentStatusPending)
	mk(domain.DocumentStatusReady)

	ingestor := &fakeIngestor{}
	s := NewScheduler(logger.NewNop(), Config{
		Interval:     time.Minute,
		StalePending: time.Hour, // fresh pending docs are left alone
	}, docs, ingestor)
	s.Sync(ctx)

	if len(ingestor.processed) != 1 || ingestor.processed[0] != failedID {
		t.Fatalf("processed = %v, want only failed document %v", ingestor.processed, failedID)
	}
	for _, id := range ingestor.processed {
		if id == freshPendingID {
			t.Fatalf("fresh pending document was resumed")
		}
	}
}

func TestSync_SourceErrorDoesNotStopOthers(t *testing.T) {
	docs := newDocRepo(t)
	ingestor := &fakeIngestor{}
	broken := &fakeSource{name: "broken", err: fmt.Errorf("unreachable")}
	healthy := &fakeSource{name: "ok", items: []SourceItem{{Title: "item", Content: "x"}}}

	s := NewScheduler(logger.NewNop(), Config{Interval: time.Minute}, docs, ingestor, broken, healthy)
	s.Sync(context.Background())

	if healthy.pulls != 1 || len(ingestor.ingested) != 1 {
		t.Fatalf("healthy source skipped after broken one: pulls=%d ingested=%v", healthy.pulls, ingestor.ingested)
	}
}
