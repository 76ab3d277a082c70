package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

type ChunkRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*domain.DocumentChunk) ([]*domain.DocumentChunk, error)
	GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*domain.DocumentChunk, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.DocumentChunk, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error
	DeleteByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error
	CountByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) (int64, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: baseLog.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *chunkRepo) CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*domain.DocumentChunk) ([]*domain.DocumentChunk, error) {
	if len(chunks) == 0 {
		return []*domain.DocumentChunk{}, nil
	}
	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
	}

	// Keep batches small because Text is large.
	const batchSize = 100
	if err := r.conn(tx).WithContext(ctx).CreateInBatches(chunks, batchSize).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *chunkRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*domain.DocumentChunk, error) {
	var chunks []*domain.DocumentChunk
	if err := r.conn(tx).WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("ordinal ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *chunkRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.DocumentChunk, error) {
	var chunks []*domain.DocumentChunk
	if len(ids) == 0 {
		return chunks, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Where("id IN ?", ids).
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *chunkRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	return r.conn(tx).WithContext(ctx).
		Model(&domain.DocumentChunk{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *chunkRepo) DeleteByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).
		Delete(&domain.DocumentChunk{}, "document_id = ?", documentID).Error
}

func (r *chunkRepo) CountByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) (int64, error) {
	var n int64
	if err := r.conn(tx).WithContext(ctx).
		Model(&domain.DocumentChunk{}).
		Where("document_id = ?", documentID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
