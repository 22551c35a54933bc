package materials

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DocumentChunk is one ordinal slice of a document's extracted text.
// Embedding is NULL until a complete vector is written.
type DocumentChunk struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_document_chunk_ordinal,priority:1" json:"document_id"`
	Document   *SourceDocument `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"-"`
	OwnerID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"owner_id"`

	Ordinal       int    `gorm:"column:ordinal;not null;uniqueIndex:idx_document_chunk_ordinal,priority:2" json:"ordinal"`
	Text          string `gorm:"column:text;type:text;not null" json:"text"`
	CharCount     int    `gorm:"column:char_count;not null" json:"char_count"`
	TokenEstimate int    `gorm:"column:token_estimate;not null" json:"token_estimate"`

	Embedding     datatypes.JSON `gorm:"column:embedding;type:jsonb" json:"-"`
	EmbeddedAt    *time.Time     `gorm:"column:embedded_at" json:"embedded_at,omitempty"`
	EmbedError    string         `gorm:"column:embed_error;type:text;not null;default:''" json:"embed_error,omitempty"`
	EmbedAttempts int            `gorm:"column:embed_attempts;not null;default:0" json:"embed_attempts"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }

func (c *DocumentChunk) HasEmbedding() bool {
	if c == nil {
		return false
	}
	s := string(c.Embedding)
	return len(s) > 0 && s != "null" && s != "[]"
}

func (c *DocumentChunk) Vector() ([]float32, error) {
	if !c.HasEmbedding() {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal(c.Embedding, &v); err != nil {
		return nil, fmt.Errorf("decode embedding for chunk %s: %w", c.ID, err)
	}
	return v, nil
}

func EncodeVector(v []float32) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
