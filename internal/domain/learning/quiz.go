package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type QuizType string

const (
	QuizTypeChapter   QuizType = "chapter"
	QuizTypeLevelTest QuizType = "level_test"
)

func (t QuizType) Valid() bool {
	return t == QuizTypeChapter || t == QuizTypeLevelTest
}

// Quiz belongs to a chapter (chapter quiz) or to a level (level test).
type Quiz struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_id"`
	CourseID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"course_id"`
	LevelID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"level_id"`
	ChapterID *uuid.UUID `gorm:"type:uuid;index" json:"chapter_id,omitempty"`
	QuizType  QuizType   `gorm:"column:quiz_type;not null" json:"quiz_type"`
	Title     string     `gorm:"column:title;not null;default:''" json:"title"`

	Questions []QuizQuestion `gorm:"foreignKey:QuizID" json:"-"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Quiz) TableName() string { return "quiz" }

type QuizOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuizQuestion carries grading data and is never serialized directly;
// handlers render PublicQuestion.
type QuizQuestion struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	QuizID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_quiz_question_order,priority:1" json:"-"`
	Quiz       *Quiz     `gorm:"constraint:OnDelete:CASCADE;foreignKey:QuizID;references:ID" json:"-"`
	OrderIndex int       `gorm:"column:order_index;not null;uniqueIndex:idx_quiz_question_order,priority:2" json:"-"`
	Prompt     string    `gorm:"column:prompt;type:text;not null" json:"-"`

	Options                datatypes.JSONType[[]QuizOption]      `gorm:"column:options;type:jsonb;not null" json:"-"`
	CorrectOptionID        string                                `gorm:"column:correct_option_id;not null" json:"-"`
	Explanation            string                                `gorm:"column:explanation;type:text;not null;default:''" json:"-"`
	DistractorExplanations datatypes.JSONType[map[string]string] `gorm:"column:distractor_explanations;type:jsonb" json:"-"`

	CreatedAt time.Time `gorm:"not null" json:"-"`
	UpdatedAt time.Time `gorm:"not null" json:"-"`
}

func (QuizQuestion) TableName() string { return "quiz_question" }

// PublicQuestion is the only question shape sent before grading.
type PublicQuestion struct {
	ID         uuid.UUID    `json:"id"`
	OrderIndex int          `json:"order_index"`
	Prompt     string       `json:"prompt"`
	Options    []QuizOption `json:"options"`
}

func (q QuizQuestion) Public() PublicQuestion {
	opts := q.Options.Data()
	if opts == nil {
		opts = []QuizOption{}
	}
	return PublicQuestion{ID: q.ID, OrderIndex: q.OrderIndex, Prompt: q.Prompt, Options: opts}
}

type AttemptStatus string

const (
	AttemptCreated   AttemptStatus = "created"
	AttemptSubmitted AttemptStatus = "submitted"
)

// QuestionResult is the per-question grading outcome, returned only after submit.
type QuestionResult struct {
	QuestionID      uuid.UUID `json:"question_id"`
	ChosenOptionID  string    `json:"chosen_option_id"`
	CorrectOptionID string    `json:"correct_option_id"`
	Correct         bool      `json:"correct"`
	Explanation     string    `json:"explanation"`
	ChosenRationale string    `json:"chosen_rationale,omitempty"`
}

type QuizAttempt struct {
	ID     uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	QuizID uuid.UUID     `gorm:"type:uuid;not null;index" json:"quiz_id"`
	Quiz   *Quiz         `gorm:"constraint:OnDelete:CASCADE;foreignKey:QuizID;references:ID" json:"-"`
	UserID uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	Status AttemptStatus `gorm:"column:status;not null;index" json:"status"`

	Answers        datatypes.JSONType[map[string]string] `gorm:"column:answers;type:jsonb" json:"answers"`
	Results        datatypes.JSONType[[]QuestionResult]  `gorm:"column:results;type:jsonb" json:"results,omitempty"`
	CorrectCount   int                                   `gorm:"column:correct_count;not null;default:0" json:"correct_count"`
	TotalQuestions int                                   `gorm:"column:total_questions;not null;default:0" json:"total_questions"`
	Score          float64                               `gorm:"column:score;not null;default:0" json:"score"`
	Passed         bool                                  `gorm:"column:passed;not null;default:false" json:"passed"`
	SubmittedAt    *time.Time                            `gorm:"column:submitted_at" json:"submitted_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (QuizAttempt) TableName() string { return "quiz_attempt" }
