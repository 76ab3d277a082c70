// Package scheduler runs the background sync loop: it pulls items from
// registered external sources into the ingestion pipeline and resumes
// documents that failed or were left pending by a crashed process.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/guptaanant682/memorybank-backend/internal/data/repos"
	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/platform/envutil"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

// SourceItem is one document pulled from an external source.
type SourceItem struct {
	Title       string
	Content     string
	ContentType string
}

// Source supplies external documents. Pull returns whatever is new since
// the last call; duplicate content is deduplicated downstream by hash.
type Source interface {
	Name() string
	Pull(ctx context.Context) ([]SourceItem, error)
}

// Ingestor is the slice of the ingestion pipeline the scheduler drives.
type Ingestor interface {
	IngestText(ctx context.Context, title, content, contentType string) (*domain.Document, bool, error)
	Process(ctx context.Context, docID uuid.UUID) error
}

type Config struct {
	Interval    time.Duration
	ResumeBatch int

	// StalePending guards against racing a request that is still working
	// on a freshly created document: pending documents are only resumed
	// after sitting untouched this long.
	StalePending time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Interval:     envutil.Duration("SCHEDULER_INTERVAL", time.Minute),
		ResumeBatch:  envutil.Int("SCHEDULER_RESUME_BATCH", 10),
		StalePending: envutil.Duration("SCHEDULER_STALE_PENDING", 5*time.Minute),
	}
}

type Scheduler struct {
	log      *logger.Logger
	cfg      Config
	docs     repos.DocumentRepo
	ingestor Ingestor
	sources  []Source
}

func NewScheduler(log *logger.Logger, cfg Config, docs repos.DocumentRepo, ingestor Ingestor, sources ...Source) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ResumeBatch <= 0 {
		cfg.ResumeBatch = 10
	}
	if cfg.StalePending <= 0 {
		cfg.StalePending = 5 * time.Minute
	}
	return &Scheduler{
		log:      log.With("component", "Scheduler"),
		cfg:      cfg,
		docs:     docs,
		ingestor: ingestor,
		sources:  sources,
	}
}

// Start launches the loop and returns immediately. The loop stops when ctx
// is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sync(ctx)
			}
		}
	}()
}

// Sync runs one scheduling pass: source pulls, then stalled-document
// recovery. Errors are logged, never fatal to the loop.
func (s *Scheduler) Sync(ctx context.Context) {
	for _, src := range s.sources {
		s.pullSource(ctx, src)
	}
	s.resumeStalled(ctx)
}

func (s *Scheduler) pullSource(ctx context.Context, src Source) {
	items, err := src.Pull(ctx)
	if err != nil {
		s.log.Warn("source pull failed", "source", src.Name(), "error", err)
		return
	}
	for _, item := range items {
		doc, process, err := s.ingestor.IngestText(ctx, item.Title, item.Content, item.ContentType)
		if err != nil {
			s.log.Warn("source ingest failed", "source", src.Name(), "title", item.Title, "error", err)
			continue
		}
		if !process {
			continue
		}
		if err := s.ingestor.Process(ctx, doc.ID); err != nil {
			s.log.Warn("source document processing failed", "source", src.Name(), "document_id", doc.ID, "error", err)
		}
	}
}

func (s *Scheduler) resumeStalled(ctx context.Context) {
	for _, status := range []string{domain.DocumentStatusFailed, domain.DocumentStatusPending} {
		docs, err := s.docs.ListByStatus(ctx, nil, status, s.cfg.ResumeBatch)
		if err != nil {
			s.log.Warn("list stalled documents failed", "status", status, "error", err)
			continue
		}
		for _, doc := range docs {
			if status == domain.DocumentStatusPending && time.Since(doc.UpdatedAt) < s.cfg.StalePending {
				continue
			}
			if err := s.ingestor.Process(ctx, doc.ID); err != nil {
				s.log.Warn("resume failed", "document_id", doc.ID, "status", status, "error", err)
			}
		}
	}
}
