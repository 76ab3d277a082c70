package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Extraction states per chunk. A failed extraction never aborts sibling
// chunks; the chunk is retried independently on resume.
const (
	ExtractionPending = "pending"
	ExtractionMerged  = "merged"
	ExtractionFailed  = "extraction_failed"
)

type DocumentChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	// Ordinal is the 0-based position within the document. Ordinals are
	// contiguous; a gap is a consistency violation.
	Ordinal   int    `gorm:"column:ordinal;not null;index:idx_chunk_doc_ordinal,unique,priority:2" json:"ordinal"`
	Text      string `gorm:"column:text;type:text;not null" json:"text"`
	WordCount int    `gorm:"column:word_count;not null" json:"word_count"`

	// Embedding is null until computed; the chunk is immutable once embedded.
	Embedding  datatypes.JSON `gorm:"column:embedding;type:jsonb" json:"embedding,omitempty"`
	EmbeddedAt *time.Time     `gorm:"column:embedded_at" json:"embedded_at,omitempty"`

	ExtractionState string `gorm:"column:extraction_state;not null;default:'pending';index" json:"extraction_state"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }
