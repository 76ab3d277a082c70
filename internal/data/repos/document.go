package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

type DocumentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, doc *domain.Document) (*domain.Document, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Document, error)
	GetByContentHash(ctx context.Context, tx *gorm.DB, hash string) (*domain.Document, error)
	List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*domain.Document, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
	CountUploadedBetween(ctx context.Context, tx *gorm.DB, start, end time.Time) (int64, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*domain.Document, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *documentRepo) Create(ctx context.Context, tx *gorm.DB, doc *domain.Document) (*domain.Document, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if err := r.conn(tx).WithContext(ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *documentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Document, error) {
	var doc domain.Document
	if err := r.conn(tx).WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) GetByContentHash(ctx context.Context, tx *gorm.DB, hash string) (*domain.Document, error) {
	if hash == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var doc domain.Document
	if err := r.conn(tx).WithContext(ctx).
		Where("content_hash = ?", hash).
		Order("uploaded_at DESC").
		First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*domain.Document, error) {
	var docs []*domain.Document
	q := r.conn(tx).WithContext(ctx).Order("uploaded_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	return r.conn(tx).WithContext(ctx).
		Model(&domain.Document{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *documentRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).
		Unscoped().
		Delete(&domain.Document{}, "id = ?", id).Error
}

func (r *documentRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	var n int64
	if err := r.conn(tx).WithContext(ctx).Model(&domain.Document{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *documentRepo) CountUploadedBetween(ctx context.Context, tx *gorm.DB, start, end time.Time) (int64, error) {
	var n int64
	if err := r.conn(tx).WithContext(ctx).
		Model(&domain.Document{}).
		Where("uploaded_at >= ? AND uploaded_at < ?", start, end).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *documentRepo) ListByStatus(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*domain.Document, error) {
	var docs []*domain.Document
	q := r.conn(tx).WithContext(ctx).
		Where("status = ?", status).
		Order("uploaded_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}
