package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Relationship kinds. Co-occurrence is undirected; its uniqueness key is
// order-independent.
const (
	RelationCooccurrence = "co_occurrence"
	RelationContains     = "contains"
	RelationRelatedTo    = "related_to"
)

// Relationship is a weighted edge between two concepts. Weight is
// incremented on repeated observation, never overwritten, and is >= 1.
// Self-loops are rejected at merge time.
type Relationship struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceConceptID uuid.UUID `gorm:"type:uuid;not null;index:idx_relationship,unique,priority:1" json:"source_concept_id"`
	TargetConceptID uuid.UUID `gorm:"type:uuid;not null;index:idx_relationship,unique,priority:2" json:"target_concept_id"`
	Kind            string    `gorm:"column:kind;not null;index:idx_relationship,unique,priority:3" json:"kind"`
	Directed        bool      `gorm:"column:directed;not null;default:false" json:"directed"`
	Weight          float64   `gorm:"column:weight;not null;default:1" json:"weight"`

	// Evidence holds the bounded set of supporting chunk ids (most recent
	// first, capped).
	Evidence datatypes.JSON `gorm:"column:evidence;type:jsonb" json:"evidence,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Relationship) TableName() string { return "relationship" }
