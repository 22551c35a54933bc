package learning

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lumen-backend/internal/domain/learning"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type QuizRepo interface {
	// Create inserts the quiz and its questions.
	Create(dbc dbctx.Context, quiz *types.Quiz) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Quiz, error)
	// GetWithQuestions loads the quiz with questions in order.
	GetWithQuestions(dbc dbctx.Context, id uuid.UUID) (*types.Quiz, error)
	ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Quiz, error)
	ListLevelTests(dbc dbctx.Context, levelID uuid.UUID) ([]*types.Quiz, error)
}

type quizRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuizRepo(db *gorm.DB, baseLog *logger.Logger) QuizRepo {
	return &quizRepo{db: db, log: baseLog.With("repo", "QuizRepo")}
}

func (r *quizRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *quizRepo) Create(dbc dbctx.Context, quiz *types.Quiz) error {
	if quiz == nil {
		return nil
	}
	now := time.Now().UTC()
	if quiz.ID == uuid.Nil {
		quiz.ID = uuid.New()
	}
	quiz.CreatedAt = now
	quiz.UpdatedAt = now
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		q.QuizID = quiz.ID
		q.OrderIndex = i
		q.CreatedAt = now
		q.UpdatedAt = now
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Create(quiz).Error
}

func (r *quizRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Quiz, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Quiz
	err := r.dbx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *quizRepo) GetWithQuestions(dbc dbctx.Context, id uuid.UUID) (*types.Quiz, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Quiz
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("order_index ASC") }).
		Where("id = ?", id).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *quizRepo) ListByCourse(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Quiz, error) {
	out := []*types.Quiz{}
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("course_id = ?", courseID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *quizRepo) ListLevelTests(dbc dbctx.Context, levelID uuid.UUID) ([]*types.Quiz, error) {
	out := []*types.Quiz{}
	if levelID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("level_id = ? AND quiz_type = ?", levelID, types.QuizTypeLevelTest).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
