package learning

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lumen-backend/internal/domain/learning"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type CourseRepo interface {
	// Create inserts the course with its levels and chapters.
	Create(dbc dbctx.Context, course *types.Course) error
	GetByOwnerAndID(dbc dbctx.Context, ownerID, id uuid.UUID) (*types.Course, error)
	GetWithOutline(dbc dbctx.Context, ownerID, id uuid.UUID) (*types.Course, error)
	ListByOwner(dbc dbctx.Context, ownerID uuid.UUID) ([]*types.Course, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error

	GetLevel(dbc dbctx.Context, levelID uuid.UUID) (*types.CourseLevel, error)
	ListLevels(dbc dbctx.Context, courseID uuid.UUID) ([]*types.CourseLevel, error)
	GetChapter(dbc dbctx.Context, chapterID uuid.UUID) (*types.Chapter, error)
	ListChapters(dbc dbctx.Context, levelID uuid.UUID) ([]*types.Chapter, error)

	AttachDocuments(dbc dbctx.Context, courseID uuid.UUID, documentIDs []uuid.UUID) error
	ListDocumentIDs(dbc dbctx.Context, courseID uuid.UUID) ([]uuid.UUID, error)
	DetachDocument(dbc dbctx.Context, documentID uuid.UUID) error
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return &courseRepo{db: db, log: baseLog.With("repo", "CourseRepo")}
}

func (r *courseRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *courseRepo) Create(dbc dbctx.Context, course *types.Course) error {
	if course == nil {
		return nil
	}
	now := time.Now().UTC()
	if course.ID == uuid.Nil {
		course.ID = uuid.New()
	}
	course.CreatedAt = now
	course.UpdatedAt = now
	for i := range course.Levels {
		lvl := &course.Levels[i]
		if lvl.ID == uuid.Nil {
			lvl.ID = uuid.New()
		}
		lvl.CourseID = course.ID
		lvl.CreatedAt = now
		lvl.UpdatedAt = now
		for j := range lvl.Chapters {
			ch := &lvl.Chapters[j]
			if ch.ID == uuid.Nil {
				ch.ID = uuid.New()
			}
			ch.LevelID = lvl.ID
			ch.CourseID = course.ID
			ch.CreatedAt = now
			ch.UpdatedAt = now
		}
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Create(course).Error
}

func (r *courseRepo) GetByOwnerAndID(dbc dbctx.Context, ownerID, id uuid.UUID) (*types.Course, error) {
	if ownerID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var out types.Course
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *courseRepo) GetWithOutline(dbc dbctx.Context, ownerID, id uuid.UUID) (*types.Course, error) {
	if ownerID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var out types.Course
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Preload("Levels", func(db *gorm.DB) *gorm.DB { return db.Order("order_index ASC") }).
		Preload("Levels.Chapters", func(db *gorm.DB) *gorm.DB { return db.Order("order_index ASC") }).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *courseRepo) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID) ([]*types.Course, error) {
	out := []*types.Course{}
	if ownerID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the course and everything hanging off it. Callers pass a
// transaction.
func (r *courseRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	t := r.dbx(dbc).WithContext(dbc.Ctx)
	quizIDs := t.Model(&types.Quiz{}).Select("id").Where("course_id = ?", id)
	steps := []func() error{
		func() error { return t.Where("quiz_id IN (?)", quizIDs).Delete(&types.QuizAttempt{}).Error },
		func() error { return t.Where("quiz_id IN (?)", quizIDs).Delete(&types.QuizQuestion{}).Error },
		func() error { return t.Where("course_id = ?", id).Delete(&types.Quiz{}).Error },
		func() error { return t.Where("course_id = ?", id).Delete(&types.LevelUnlock{}).Error },
		func() error { return t.Where("course_id = ?", id).Delete(&types.Chapter{}).Error },
		func() error { return t.Where("course_id = ?", id).Delete(&types.CourseLevel{}).Error },
		func() error { return t.Where("course_id = ?", id).Delete(&types.CourseDocument{}).Error },
		func() error { return t.Where("id = ?", id).Delete(&types.Course{}).Error },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (r *courseRepo) GetLevel(dbc dbctx.Context, levelID uuid.UUID) (*types.CourseLevel, error) {
	if levelID == uuid.Nil {
		return nil, nil
	}
	var out types.CourseLevel
	err := r.dbx(dbc).WithContext(dbc.Ctx).Where("id = ?", levelID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *courseRepo) ListLevels(dbc dbctx.Context, courseID uuid.UUID) ([]*types.CourseLevel, error) {
	out := []*types.CourseLevel{}
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("course_id = ?", courseID).
		Order("order_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *courseRepo) GetChapter(dbc dbctx.Context, chapterID uuid.UUID) (*types.Chapter, error) {
	if chapterID == uuid.Nil {
		return nil, nil
	}
	var out types.Chapter
	err := r.dbx(dbc).WithContext(dbc.Ctx).Where("id = ?", chapterID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *courseRepo) ListChapters(dbc dbctx.Context, levelID uuid.UUID) ([]*types.Chapter, error) {
	out := []*types.Chapter{}
	if levelID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("level_id = ?", levelID).
		Order("order_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *courseRepo) AttachDocuments(dbc dbctx.Context, courseID uuid.UUID, documentIDs []uuid.UUID) error {
	if courseID == uuid.Nil || len(documentIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]*types.CourseDocument, 0, len(documentIDs))
	for _, id := range documentIDs {
		if id == uuid.Nil {
			continue
		}
		rows = append(rows, &types.CourseDocument{CourseID: courseID, DocumentID: id, CreatedAt: now})
	}
	if len(rows) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "course_id"}, {Name: "document_id"}},
			DoNothing: true,
		}).
		Create(&rows).Error
}

func (r *courseRepo) ListDocumentIDs(dbc dbctx.Context, courseID uuid.UUID) ([]uuid.UUID, error) {
	out := []uuid.UUID{}
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.CourseDocument{}).
		Where("course_id = ?", courseID).
		Order("document_id ASC").
		Pluck("document_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *courseRepo) DetachDocument(dbc dbctx.Context, documentID uuid.UUID) error {
	if documentID == uuid.Nil {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Delete(&types.CourseDocument{}).Error
}
