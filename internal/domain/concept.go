package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Concept kinds assigned by the extractor. The first-seen kind wins on
// merge collisions; later conflicting kinds become alternate annotations.
const (
	ConceptKindEntity = "entity"
	ConceptKindTopic  = "topic"
)

type Concept struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	// Canonical is the case-folded, whitespace-collapsed dedup key.
	Canonical string `gorm:"column:canonical;not null;uniqueIndex" json:"canonical"`
	Label     string `gorm:"column:label;not null" json:"label"`
	Kind      string `gorm:"column:kind;not null;default:'topic'" json:"kind"`
	AltKinds  datatypes.JSON `gorm:"column:alt_kinds;type:jsonb" json:"alt_kinds,omitempty"`

	// Importance is updated incrementally, never recomputed from scratch.
	Importance float64 `gorm:"column:importance;not null;default:0" json:"importance"`
	Mentions   int     `gorm:"column:mentions;not null;default:0" json:"mentions"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Concept) TableName() string { return "concept" }

// ConceptMention is the provenance back-reference from a concept to a chunk
// that mentions it. It supports citation, not ownership.
type ConceptMention struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConceptID  uuid.UUID `gorm:"type:uuid;not null;index:idx_concept_mention,unique,priority:1" json:"concept_id"`
	ChunkID    uuid.UUID `gorm:"type:uuid;not null;index:idx_concept_mention,unique,priority:2" json:"chunk_id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	Weight     float64   `gorm:"column:weight;not null;default:1" json:"weight"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ConceptMention) TableName() string { return "concept_mention" }
