package app

import (
	"gorm.io/gorm"

	gamificationrepo "github.com/yungbote/lumen-backend/internal/data/repos/gamification"
	learningrepo "github.com/yungbote/lumen-backend/internal/data/repos/learning"
	materialsrepo "github.com/yungbote/lumen-backend/internal/data/repos/materials"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type Repos struct {
	Documents materialsrepo.DocumentRepo
	Chunks    materialsrepo.ChunkRepo

	Courses  learningrepo.CourseRepo
	Unlocks  learningrepo.LevelUnlockRepo
	Quizzes  learningrepo.QuizRepo
	Attempts learningrepo.AttemptRepo

	Ledger       gamificationrepo.LedgerRepo
	Achievements gamificationrepo.AchievementRepo
	Sessions     gamificationrepo.SessionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Documents:    materialsrepo.NewDocumentRepo(db, log),
		Chunks:       materialsrepo.NewChunkRepo(db, log),
		Courses:      learningrepo.NewCourseRepo(db, log),
		Unlocks:      learningrepo.NewLevelUnlockRepo(db, log),
		Quizzes:      learningrepo.NewQuizRepo(db, log),
		Attempts:     learningrepo.NewAttemptRepo(db, log),
		Ledger:       gamificationrepo.NewLedgerRepo(db, log),
		Achievements: gamificationrepo.NewAchievementRepo(db, log),
		Sessions:     gamificationrepo.NewSessionRepo(db, log),
	}
}
