package learning

import (
	"time"

	"github.com/google/uuid"
)

type Course struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID     uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Title       string    `gorm:"column:title;not null" json:"title"`
	Description string    `gorm:"column:description;type:text;not null;default:''" json:"description"`

	Levels []CourseLevel `gorm:"foreignKey:CourseID" json:"levels,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Course) TableName() string { return "course" }

type CourseLevel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID   uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_course_level_order,priority:1" json:"course_id"`
	Course     *Course   `gorm:"constraint:OnDelete:CASCADE;foreignKey:CourseID;references:ID" json:"-"`
	OrderIndex int       `gorm:"column:order_index;not null;uniqueIndex:idx_course_level_order,priority:2" json:"order_index"`
	Title      string    `gorm:"column:title;not null" json:"title"`

	Chapters []Chapter `gorm:"foreignKey:LevelID" json:"chapters,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (CourseLevel) TableName() string { return "course_level" }

type Chapter struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	LevelID    uuid.UUID    `gorm:"type:uuid;not null;index;uniqueIndex:idx_chapter_order,priority:1" json:"level_id"`
	Level      *CourseLevel `gorm:"constraint:OnDelete:CASCADE;foreignKey:LevelID;references:ID" json:"-"`
	CourseID   uuid.UUID    `gorm:"type:uuid;not null;index" json:"course_id"`
	OrderIndex int          `gorm:"column:order_index;not null;uniqueIndex:idx_chapter_order,priority:2" json:"order_index"`
	Title      string       `gorm:"column:title;not null" json:"title"`
	Content    string       `gorm:"column:content;type:text;not null;default:''" json:"content,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Chapter) TableName() string { return "chapter" }

// CourseDocument attaches an ingested document to a course for retrieval scoping.
type CourseDocument struct {
	CourseID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"course_id"`
	DocumentID uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"document_id"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (CourseDocument) TableName() string { return "course_document" }
