package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

type RelationshipRepo interface {
	UpsertBatch(ctx context.Context, tx *gorm.DB, rels []*domain.Relationship) error
	ListByMinWeight(ctx context.Context, tx *gorm.DB, minWeight float64, limit int) ([]*domain.Relationship, error)
	ListByConceptIDs(ctx context.Context, tx *gorm.DB, conceptIDs []uuid.UUID) ([]*domain.Relationship, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
}

type relationshipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRelationshipRepo(db *gorm.DB, baseLog *logger.Logger) RelationshipRepo {
	return &relationshipRepo{db: db, log: baseLog.With("repo", "RelationshipRepo")}
}

func (r *relationshipRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// UpsertBatch writes edge state keyed by (source, target, kind); existing
// rows keep their id and created_at.
func (r *relationshipRepo) UpsertBatch(ctx context.Context, tx *gorm.DB, rels []*domain.Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	conn := r.conn(tx).WithContext(ctx)

	var creates []*domain.Relationship
	for _, rel := range rels {
		res := conn.Model(&domain.Relationship{}).
			Where("source_concept_id = ? AND target_concept_id = ? AND kind = ?",
				rel.SourceConceptID, rel.TargetConceptID, rel.Kind).
			Updates(map[string]any{
				"weight":     rel.Weight,
				"evidence":   rel.Evidence,
				"updated_at": rel.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			creates = append(creates, rel)
		}
	}
	if len(creates) == 0 {
		return nil
	}
	return conn.Create(creates).Error
}

func (r *relationshipRepo) ListByMinWeight(ctx context.Context, tx *gorm.DB, minWeight float64, limit int) ([]*domain.Relationship, error) {
	var out []*domain.Relationship
	q := r.conn(tx).WithContext(ctx).
		Where("weight >= ?", minWeight).
		Order("weight DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *relationshipRepo) ListByConceptIDs(ctx context.Context, tx *gorm.DB, conceptIDs []uuid.UUID) ([]*domain.Relationship, error) {
	var out []*domain.Relationship
	if len(conceptIDs) == 0 {
		return out, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Where("source_concept_id IN ? OR target_concept_id IN ?", conceptIDs, conceptIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *relationshipRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	var n int64
	if err := r.conn(tx).WithContext(ctx).Model(&domain.Relationship{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
