package learning

import (
	"time"

	"github.com/google/uuid"
)

type UnlockReason string

const (
	UnlockInitial    UnlockReason = "initial"
	UnlockTestPassed UnlockReason = "test_passed"
	UnlockSkipped    UnlockReason = "skipped"
)

// LevelUnlock is the durable record that a user may reach a level.
// (UserID, LevelID) is unique; rows are never updated.
type LevelUnlock struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_level_unlock_user_level,priority:1" json:"user_id"`
	LevelID    uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_level_unlock_user_level,priority:2;index" json:"level_id"`
	CourseID   uuid.UUID    `gorm:"type:uuid;not null;index" json:"course_id"`
	Reason     UnlockReason `gorm:"column:reason;not null" json:"reason"`
	AttemptID  *uuid.UUID   `gorm:"type:uuid" json:"attempt_id,omitempty"`
	UnlockedAt time.Time    `gorm:"column:unlocked_at;not null" json:"unlocked_at"`
}

func (LevelUnlock) TableName() string { return "level_unlock" }
