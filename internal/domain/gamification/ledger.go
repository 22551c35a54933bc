package gamification

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventQuizPassed       EventType = "quiz_passed"
	EventQuizPerfect      EventType = "quiz_perfect"
	EventChapterCompleted EventType = "chapter_completed"
	EventLevelCompleted   EventType = "level_completed"
	EventCourseCompleted  EventType = "course_completed"
	EventSessionCompleted EventType = "session_completed"
	EventLevelSkipped     EventType = "level_skipped"
)

// PointsLedgerEntry is append-only. (UserID, EventType, RefID) is unique so a
// re-triggered event cannot award twice.
type PointsLedgerEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_points_ledger_event,priority:1;index" json:"user_id"`
	EventType EventType `gorm:"column:event_type;not null;uniqueIndex:idx_points_ledger_event,priority:2" json:"event_type"`
	RefID     string    `gorm:"column:ref_id;not null;uniqueIndex:idx_points_ledger_event,priority:3" json:"ref_id"`
	Points    int       `gorm:"column:points;not null" json:"points"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (PointsLedgerEntry) TableName() string { return "points_ledger_entry" }

type AchievementGrant struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_achievement_grant_user,priority:1" json:"user_id"`
	AchievementID string    `gorm:"column:achievement_id;not null;uniqueIndex:idx_achievement_grant_user,priority:2" json:"achievement_id"`
	Category      string    `gorm:"column:category;not null" json:"category"`
	GrantedAt     time.Time `gorm:"column:granted_at;not null" json:"granted_at"`
}

func (AchievementGrant) TableName() string { return "achievement_grant" }

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

type StudySession struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	CourseID        *uuid.UUID    `gorm:"type:uuid;index" json:"course_id,omitempty"`
	Status          SessionStatus `gorm:"column:status;not null" json:"status"`
	StartedAt       time.Time     `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt     *time.Time    `gorm:"column:completed_at" json:"completed_at,omitempty"`
	DurationSeconds int           `gorm:"column:duration_seconds;not null;default:0" json:"duration_seconds"`
}

func (StudySession) TableName() string { return "study_session" }
