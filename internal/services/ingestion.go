package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/guptaanant682/memorybank-backend/internal/answercache"
	"github.com/guptaanant682/memorybank-backend/internal/data/repos"
	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/ingest"
	"github.com/guptaanant682/memorybank-backend/internal/media"
	"github.com/guptaanant682/memorybank-backend/internal/platform/faults"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

// IngestionService is the upload-facing surface: it accepts text and media,
// drives the pipeline and keeps the answer cache coherent with the bank.
type IngestionService interface {
	UploadText(ctx context.Context, title, content string) (*domain.Document, error)
	UploadMedia(ctx context.Context, filename, mimeType string, data []byte) (*domain.Document, error)

	Get(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Reprocess resumes a failed document from its recorded stage.
	Reprocess(ctx context.Context, id uuid.UUID) error
}

type ingestionService struct {
	log         *logger.Logger
	pipeline    *ingest.Pipeline
	docs        repos.DocumentRepo
	transcriber media.Transcriber
	captioner   media.Captioner
	cache       answercache.Cache
}

func NewIngestionService(
	baseLog *logger.Logger,
	pipeline *ingest.Pipeline,
	docs repos.DocumentRepo,
	transcriber media.Transcriber,
	captioner media.Captioner,
	cache answercache.Cache,
) IngestionService {
	return &ingestionService{
		log:         baseLog.With("service", "IngestionService"),
		pipeline:    pipeline,
		docs:        docs,
		transcriber: transcriber,
		captioner:   captioner,
		cache:       cache,
	}
}

func (s *ingestionService) UploadText(ctx context.Context, title, content string) (*domain.Document, error) {
	return s.upload(ctx, title, content, domain.ContentTypeText)
}

func (s *ingestionService) UploadMedia(ctx context.Context, filename, mimeType string, data []byte) (*domain.Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty media payload")
	}

	var (
		text        string
		contentType string
		err         error
	)
	switch {
	case strings.HasPrefix(mimeType, "audio/"):
		if s.transcriber == nil {
			return nil, fmt.Errorf("audio transcription not configured")
		}
		contentType = domain.ContentTypeAudio
		text, err = s.transcriber.TranscribeBytes(ctx, data, mimeType)
	case strings.HasPrefix(mimeType, "image/"):
		if s.captioner == nil {
			return nil, fmt.Errorf("image captioning not configured")
		}
		contentType = domain.ContentTypeImage
		text, err = s.captioner.CaptionBytes(ctx, data, mimeType)
	default:
		return nil, fmt.Errorf("unsupported media type %q", mimeType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", faults.ErrConversionFailed, filename, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s produced no text", faults.ErrConversionFailed, filename)
	}

	return s.upload(ctx, filename, text, contentType)
}

// upload registers the document and processes it in the background. The
// request gets the pending document back immediately; status is polled.
func (s *ingestionService) upload(ctx context.Context, title, content, contentType string) (*domain.Document, error) {
	doc, process, err := s.pipeline.IngestText(ctx, title, content, contentType)
	if err != nil {
		return nil, err
	}
	if !process {
		return doc, nil
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		if err := s.pipeline.Process(bg, doc.ID); err != nil {
			s.log.Error("document processing failed", "document_id", doc.ID, "error", err)
			return
		}
		s.flushCache(bg)
	}()
	return doc, nil
}

func (s *ingestionService) Get(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	return s.docs.GetByID(ctx, nil, id)
}

func (s *ingestionService) List(ctx context.Context, limit, offset int) ([]*domain.Document, error) {
	return s.docs.List(ctx, nil, limit, offset)
}

func (s *ingestionService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.pipeline.Delete(ctx, id); err != nil {
		return err
	}
	s.flushCache(ctx)
	return nil
}

func (s *ingestionService) Reprocess(ctx context.Context, id uuid.UUID) error {
	if err := s.pipeline.Process(ctx, id); err != nil {
		return err
	}
	s.flushCache(ctx)
	return nil
}

// flushCache drops cached answers after the bank changes; any of them may
// now be stale.
func (s *ingestionService) flushCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Flush(ctx); err != nil {
		s.log.Warn("answer cache flush failed", "error", err)
	}
}
