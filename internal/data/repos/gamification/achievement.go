package gamification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lumen-backend/internal/domain/gamification"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type AchievementRepo interface {
	// Grant records the achievement once per user. It reports whether this
	// call created the grant.
	Grant(dbc dbctx.Context, grant *types.AchievementGrant) (bool, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.AchievementGrant, error)
}

type achievementRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAchievementRepo(db *gorm.DB, baseLog *logger.Logger) AchievementRepo {
	return &achievementRepo{db: db, log: baseLog.With("repo", "AchievementRepo")}
}

func (r *achievementRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *achievementRepo) Grant(dbc dbctx.Context, grant *types.AchievementGrant) (bool, error) {
	if grant == nil || grant.UserID == uuid.Nil || grant.AchievementID == "" {
		return false, nil
	}
	if grant.ID == uuid.Nil {
		grant.ID = uuid.New()
	}
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now().UTC()
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
			DoNothing: true,
		}).
		Create(grant)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *achievementRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.AchievementGrant, error) {
	out := []*types.AchievementGrant{}
	if userID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("granted_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
