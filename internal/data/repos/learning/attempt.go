package learning

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/lumen-backend/internal/domain/learning"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type AttemptRepo interface {
	Create(dbc dbctx.Context, attempt *types.QuizAttempt) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.QuizAttempt, error)
	// MarkSubmitted records grading results if the attempt is still open. It
	// reports false when another submit got there first.
	MarkSubmitted(dbc dbctx.Context, attempt *types.QuizAttempt) (bool, error)
	ListByUserAndQuiz(dbc dbctx.Context, userID, quizID uuid.UUID) ([]*types.QuizAttempt, error)
	ListSubmittedByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.QuizAttempt, error)
}

type attemptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttemptRepo(db *gorm.DB, baseLog *logger.Logger) AttemptRepo {
	return &attemptRepo{db: db, log: baseLog.With("repo", "AttemptRepo")}
}

func (r *attemptRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *attemptRepo) Create(dbc dbctx.Context, attempt *types.QuizAttempt) error {
	if attempt == nil {
		return nil
	}
	now := time.Now().UTC()
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.Status == "" {
		attempt.Status = types.AttemptCreated
	}
	if attempt.Answers.Data() == nil {
		attempt.Answers = datatypes.NewJSONType(map[string]string{})
	}
	if attempt.Results.Data() == nil {
		attempt.Results = datatypes.NewJSONType([]types.QuestionResult{})
	}
	attempt.CreatedAt = now
	attempt.UpdatedAt = now
	return r.dbx(dbc).WithContext(dbc.Ctx).Create(attempt).Error
}

func (r *attemptRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.QuizAttempt, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.QuizAttempt
	err := r.dbx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *attemptRepo) MarkSubmitted(dbc dbctx.Context, attempt *types.QuizAttempt) (bool, error) {
	if attempt == nil || attempt.ID == uuid.Nil {
		return false, nil
	}
	now := time.Now().UTC()
	if attempt.SubmittedAt == nil {
		attempt.SubmittedAt = &now
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.QuizAttempt{}).
		Where("id = ? AND status = ?", attempt.ID, types.AttemptCreated).
		Updates(map[string]interface{}{
			"status":          types.AttemptSubmitted,
			"answers":         attempt.Answers,
			"results":         attempt.Results,
			"correct_count":   attempt.CorrectCount,
			"total_questions": attempt.TotalQuestions,
			"score":           attempt.Score,
			"passed":          attempt.Passed,
			"submitted_at":    attempt.SubmittedAt,
			"updated_at":      now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	attempt.Status = types.AttemptSubmitted
	attempt.UpdatedAt = now
	return true, nil
}

func (r *attemptRepo) ListByUserAndQuiz(dbc dbctx.Context, userID, quizID uuid.UUID) ([]*types.QuizAttempt, error) {
	out := []*types.QuizAttempt{}
	if userID == uuid.Nil || quizID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *attemptRepo) ListSubmittedByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.QuizAttempt, error) {
	out := []*types.QuizAttempt{}
	if userID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ? AND status = ?", userID, types.AttemptSubmitted).
		Order("submitted_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
