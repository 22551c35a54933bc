package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/lumen-backend/internal/domain/gamification"
	"github.com/yungbote/lumen-backend/internal/domain/learning"
	"github.com/yungbote/lumen-backend/internal/domain/materials"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Ingestion
		&materials.SourceDocument{},
		&materials.DocumentChunk{},

		// Curriculum
		&learning.Course{},
		&learning.CourseLevel{},
		&learning.Chapter{},
		&learning.CourseDocument{},
		&learning.Quiz{},
		&learning.QuizQuestion{},
		&learning.QuizAttempt{},
		&learning.LevelUnlock{},

		// Gamification
		&gamification.PointsLedgerEntry{},
		&gamification.AchievementGrant{},
		&gamification.StudySession{},
	)
}
