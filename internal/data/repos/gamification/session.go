package gamification

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lumen-backend/internal/domain/gamification"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type SessionRepo interface {
	Create(dbc dbctx.Context, session *types.StudySession) error
	GetByUserAndID(dbc dbctx.Context, userID, id uuid.UUID) (*types.StudySession, error)
	// Complete moves an active session to completed. It reports false when
	// the session was already completed.
	Complete(dbc dbctx.Context, session *types.StudySession, at time.Time) (bool, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *sessionRepo) Create(dbc dbctx.Context, session *types.StudySession) error {
	if session == nil {
		return nil
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.Status == "" {
		session.Status = types.SessionActive
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Create(session).Error
}

func (r *sessionRepo) GetByUserAndID(dbc dbctx.Context, userID, id uuid.UUID) (*types.StudySession, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var out types.StudySession
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *sessionRepo) Complete(dbc dbctx.Context, session *types.StudySession, at time.Time) (bool, error) {
	if session == nil || session.ID == uuid.Nil {
		return false, nil
	}
	dur := int(at.Sub(session.StartedAt).Seconds())
	if dur < 0 {
		dur = 0
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.StudySession{}).
		Where("id = ? AND status = ?", session.ID, types.SessionActive).
		Updates(map[string]interface{}{
			"status":           types.SessionCompleted,
			"completed_at":     at,
			"duration_seconds": dur,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	session.Status = types.SessionCompleted
	session.CompletedAt = &at
	session.DurationSeconds = dur
	return true, nil
}
