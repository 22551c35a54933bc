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

type LedgerRepo interface {
	// Insert appends entry unless (user, event type, ref) already exists. It
	// reports whether a row was written.
	Insert(dbc dbctx.Context, entry *types.PointsLedgerEntry) (bool, error)
	Total(dbc dbctx.Context, userID uuid.UUID) (int64, error)
	ListRecent(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.PointsLedgerEntry, error)
	CountByEvent(dbc dbctx.Context, userID uuid.UUID) (map[types.EventType]int64, error)
	// ActivityTimes returns entry timestamps at or after since, newest first.
	ActivityTimes(dbc dbctx.Context, userID uuid.UUID, since time.Time) ([]time.Time, error)
}

type ledgerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLedgerRepo(db *gorm.DB, baseLog *logger.Logger) LedgerRepo {
	return &ledgerRepo{db: db, log: baseLog.With("repo", "LedgerRepo")}
}

func (r *ledgerRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *ledgerRepo) Insert(dbc dbctx.Context, entry *types.PointsLedgerEntry) (bool, error) {
	if entry == nil || entry.UserID == uuid.Nil || entry.EventType == "" || entry.RefID == "" {
		return false, nil
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "event_type"}, {Name: "ref_id"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ledgerRepo) Total(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, nil
	}
	var total int64
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.PointsLedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *ledgerRepo) ListRecent(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.PointsLedgerEntry, error) {
	out := []*types.PointsLedgerEntry{}
	if userID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ledgerRepo) CountByEvent(dbc dbctx.Context, userID uuid.UUID) (map[types.EventType]int64, error) {
	out := map[types.EventType]int64{}
	if userID == uuid.Nil {
		return out, nil
	}
	type row struct {
		EventType types.EventType
		N         int64
	}
	var rows []row
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.PointsLedgerEntry{}).
		Select("event_type, COUNT(*) AS n").
		Where("user_id = ?", userID).
		Group("event_type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, rr := range rows {
		out[rr.EventType] = rr.N
	}
	return out, nil
}

func (r *ledgerRepo) ActivityTimes(dbc dbctx.Context, userID uuid.UUID, since time.Time) ([]time.Time, error) {
	out := []time.Time{}
	if userID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.PointsLedgerEntry{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC").
		Pluck("created_at", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
