package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document processing statuses. Transitions are one-directional
// (pending -> chunked -> indexed -> graphed -> ready) except failed,
// which is terminal and retryable only by resubmission.
const (
	DocumentStatusPending = "pending"
	DocumentStatusChunked = "chunked"
	DocumentStatusIndexed = "indexed"
	DocumentStatusGraphed = "graphed"
	DocumentStatusReady   = "ready"
	DocumentStatusFailed  = "failed"
)

// Content types. Audio- and image-derived documents carry text produced by
// the media converters and are processed identically to native text.
const (
	ContentTypeText  = "text"
	ContentTypeAudio = "audio_transcript"
	ContentTypeImage = "image_caption"
)

// Ingestion stages recorded on failure so resubmission reports where
// processing stopped.
const (
	StageChunk   = "chunk"
	StageEmbed   = "embed"
	StageExtract = "extract"
)

type Document struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"column:title;not null" json:"title"`
	Content     string    `gorm:"column:content;type:text;not null" json:"content"`
	ContentType string    `gorm:"column:content_type;not null;default:'text';index" json:"content_type"`

	// ContentHash detects identical resubmissions so re-ingesting a ready
	// document is a no-op.
	ContentHash string `gorm:"column:content_hash;index" json:"content_hash,omitempty"`

	Status      string `gorm:"column:status;not null;default:'pending';index" json:"status"`
	FailedStage string `gorm:"column:failed_stage" json:"failed_stage,omitempty"`
	FailReason  string `gorm:"column:fail_reason;type:text" json:"fail_reason,omitempty"`

	Summary   string         `gorm:"column:summary;type:text" json:"summary,omitempty"`
	Tags      datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`
	SizeBytes int64          `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`

	UploadedAt  time.Time  `gorm:"column:uploaded_at;not null" json:"uploaded_at"`
	ProcessedAt *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }
