package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lumen-backend/internal/domain/learning"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type LevelUnlockRepo interface {
	// Insert writes the unlock unless (user, level) already exists. It reports
	// whether a new row was written.
	Insert(dbc dbctx.Context, unlock *types.LevelUnlock) (bool, error)
	IsUnlocked(dbc dbctx.Context, userID, levelID uuid.UUID) (bool, error)
	ListByUserAndCourse(dbc dbctx.Context, userID, courseID uuid.UUID) ([]*types.LevelUnlock, error)
}

type levelUnlockRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLevelUnlockRepo(db *gorm.DB, baseLog *logger.Logger) LevelUnlockRepo {
	return &levelUnlockRepo{db: db, log: baseLog.With("repo", "LevelUnlockRepo")}
}

func (r *levelUnlockRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *levelUnlockRepo) Insert(dbc dbctx.Context, unlock *types.LevelUnlock) (bool, error) {
	if unlock == nil || unlock.UserID == uuid.Nil || unlock.LevelID == uuid.Nil {
		return false, nil
	}
	if unlock.ID == uuid.Nil {
		unlock.ID = uuid.New()
	}
	if unlock.UnlockedAt.IsZero() {
		unlock.UnlockedAt = time.Now().UTC()
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "level_id"}},
			DoNothing: true,
		}).
		Create(unlock)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *levelUnlockRepo) IsUnlocked(dbc dbctx.Context, userID, levelID uuid.UUID) (bool, error) {
	if userID == uuid.Nil || levelID == uuid.Nil {
		return false, nil
	}
	var n int64
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.LevelUnlock{}).
		Where("user_id = ? AND level_id = ?", userID, levelID).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *levelUnlockRepo) ListByUserAndCourse(dbc dbctx.Context, userID, courseID uuid.UUID) ([]*types.LevelUnlock, error) {
	out := []*types.LevelUnlock{}
	if userID == uuid.Nil || courseID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Order("unlocked_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
