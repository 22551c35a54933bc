package materials

import (
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	StatusRegistered DocumentStatus = "registered"
	StatusExtracting DocumentStatus = "extracting"
	StatusExtracted  DocumentStatus = "extracted"
	StatusEmbedding  DocumentStatus = "embedding"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

type DeclaredType string

const (
	TypePDF       DeclaredType = "pdf"
	TypeDOCX      DeclaredType = "docx"
	TypePlainText DeclaredType = "plain-text"
)

func (t DeclaredType) Valid() bool {
	switch t {
	case TypePDF, TypeDOCX, TypePlainText:
		return true
	default:
		return false
	}
}

// MimeType is the content type used for storage uploads of this declared type.
func (t DeclaredType) MimeType() string {
	switch t {
	case TypePDF:
		return "application/pdf"
	case TypeDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "text/plain; charset=utf-8"
	}
}

// SourceDocument is an uploaded file moving through the ingestion stages.
// ProcessingStatus is only changed through guarded transitions.
type SourceDocument struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`

	Filename     string       `gorm:"column:filename;not null" json:"filename"`
	DeclaredType DeclaredType `gorm:"column:declared_type;not null" json:"declared_type"`
	SizeBytes    int64        `gorm:"column:size_bytes;not null" json:"size_bytes"`
	StorageKey   string       `gorm:"column:storage_key;not null;uniqueIndex" json:"storage_key"`

	ProcessingStatus DocumentStatus `gorm:"column:processing_status;not null;index" json:"processing_status"`
	Summary          string         `gorm:"column:summary;type:text;not null;default:''" json:"summary"`
	ErrorMessage     string         `gorm:"column:error_message;type:text;not null;default:''" json:"error_message,omitempty"`

	// Stage hand-off; never serialized.
	ExtractedText string `gorm:"column:extracted_text;type:text;not null;default:''" json:"-"`

	ChunkCount      int        `gorm:"column:chunk_count;not null;default:0" json:"chunk_count"`
	StageLeaseUntil *time.Time `gorm:"column:stage_lease_until" json:"-"`
	StageLeaseToken string     `gorm:"column:stage_lease_token;not null;default:''" json:"-"`
	ExtractedAt     *time.Time `gorm:"column:extracted_at" json:"extracted_at,omitempty"`
	CompletedAt     *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (SourceDocument) TableName() string { return "source_document" }
