package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

// MentionCount pairs a concept with its mention volume inside a window,
// for trend analytics.
type MentionCount struct {
	ConceptID uuid.UUID `gorm:"column:concept_id"`
	Count     int64     `gorm:"column:count"`
}

type ConceptRepo interface {
	UpsertBatch(ctx context.Context, tx *gorm.DB, concepts []*domain.Concept) error
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Concept, error)
	GetByCanonical(ctx context.Context, tx *gorm.DB, canonical string) (*domain.Concept, error)
	TopByImportance(ctx context.Context, tx *gorm.DB, limit int) ([]*domain.Concept, error)
	DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
	Count(ctx context.Context, tx *gorm.DB) (int64, error)

	CreateMentions(ctx context.Context, tx *gorm.DB, mentions []*domain.ConceptMention) error
	DeleteMentionsByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) error
	MentionCountsBetween(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]MentionCount, error)
}

type conceptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptRepo(db *gorm.DB, baseLog *logger.Logger) ConceptRepo {
	return &conceptRepo{db: db, log: baseLog.With("repo", "ConceptRepo")}
}

func (r *conceptRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// UpsertBatch writes merged concept state keyed by canonical. The display
// label and created_at of an existing row are preserved; the stored row id
// wins over the incoming one so restarts do not fork identities.
func (r *conceptRepo) UpsertBatch(ctx context.Context, tx *gorm.DB, concepts []*domain.Concept) error {
	if len(concepts) == 0 {
		return nil
	}
	conn := r.conn(tx).WithContext(ctx)

	canonicals := make([]string, 0, len(concepts))
	for _, c := range concepts {
		canonicals = append(canonicals, c.Canonical)
	}
	var existing []*domain.Concept
	if err := conn.Where("canonical IN ?", canonicals).Find(&existing).Error; err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, c := range existing {
		known[c.Canonical] = true
	}

	var creates []*domain.Concept
	for _, c := range concepts {
		if !known[c.Canonical] {
			creates = append(creates, c)
			continue
		}
		if err := conn.Model(&domain.Concept{}).
			Where("canonical = ?", c.Canonical).
			Updates(map[string]any{
				"kind":       c.Kind,
				"alt_kinds":  c.AltKinds,
				"importance": c.Importance,
				"mentions":   c.Mentions,
				"updated_at": c.UpdatedAt,
			}).Error; err != nil {
			return err
		}
	}
	if len(creates) == 0 {
		return nil
	}
	return conn.Create(creates).Error
}

func (r *conceptRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Concept, error) {
	var out []*domain.Concept
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conceptRepo) GetByCanonical(ctx context.Context, tx *gorm.DB, canonical string) (*domain.Concept, error) {
	var c domain.Concept
	if err := r.conn(tx).WithContext(ctx).
		Where("canonical = ?", canonical).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *conceptRepo) TopByImportance(ctx context.Context, tx *gorm.DB, limit int) ([]*domain.Concept, error) {
	var out []*domain.Concept
	q := r.conn(tx).WithContext(ctx).Order("importance DESC, canonical ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conceptRepo) DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	conn := r.conn(tx).WithContext(ctx)
	if err := conn.Delete(&domain.ConceptMention{}, "concept_id IN ?", ids).Error; err != nil {
		return err
	}
	if err := conn.Delete(&domain.Relationship{}, "source_concept_id IN ? OR target_concept_id IN ?", ids, ids).Error; err != nil {
		return err
	}
	return conn.Delete(&domain.Concept{}, "id IN ?", ids).Error
}

func (r *conceptRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	var n int64
	if err := r.conn(tx).WithContext(ctx).Model(&domain.Concept{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *conceptRepo) CreateMentions(ctx context.Context, tx *gorm.DB, mentions []*domain.ConceptMention) error {
	if len(mentions) == 0 {
		return nil
	}
	for _, m := range mentions {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
	}
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "concept_id"}, {Name: "chunk_id"}},
			DoNothing: true,
		}).
		Create(mentions).Error
}

func (r *conceptRepo) DeleteMentionsByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).
		Delete(&domain.ConceptMention{}, "chunk_id IN ?", chunkIDs).Error
}

func (r *conceptRepo) MentionCountsBetween(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]MentionCount, error) {
	var out []MentionCount
	if err := r.conn(tx).WithContext(ctx).
		Model(&domain.ConceptMention{}).
		Select("concept_id, COUNT(*) AS count").
		Where("created_at >= ? AND created_at < ?", start, end).
		Group("concept_id").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
