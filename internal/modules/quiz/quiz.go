package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/lumen-backend/internal/data/db"
	learningrepo "github.com/yungbote/lumen-backend/internal/data/repos/learning"
	types "github.com/yungbote/lumen-backend/internal/domain/learning"
	"github.com/yungbote/lumen-backend/internal/modules/gamification"
	"github.com/yungbote/lumen-backend/internal/modules/progression"
	"github.com/yungbote/lumen-backend/internal/modules/retrieval"
	"github.com/yungbote/lumen-backend/internal/observability"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/llm"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
	"github.com/yungbote/lumen-backend/internal/realtime"
)

// Passages supplies source material for generated questions.
type Passages interface {
	Search(ctx context.Context, callerID uuid.UUID, q retrieval.Query) (*retrieval.Result, error)
}

type Deps struct {
	Tx           db.TxRunner
	Log          *logger.Logger
	Courses      learningrepo.CourseRepo
	Quizzes      learningrepo.QuizRepo
	Attempts     learningrepo.AttemptRepo
	Progression  *progression.Service
	Gamification *gamification.Service
	Passages     Passages
	Models       *llm.Router
	Notify       realtime.Notifier
	Metrics      *observability.Metrics
}

type Engine struct {
	deps     Deps
	cfg      Config
	log      *logger.Logger
	validate *validator.Validate
}

func New(deps Deps, cfg Config) *Engine {
	if deps.Notify == nil {
		deps.Notify = realtime.NopNotifier()
	}
	cfg, notes := cfg.normalized()
	log := deps.Log.With("service", "QuizEngine")
	for _, n := range notes {
		log.Warn("Quiz config value replaced", "detail", n)
	}
	return &Engine{
		deps:     deps,
		cfg:      cfg,
		log:      log,
		validate: validator.New(),
	}
}

func (e *Engine) PassThreshold() float64 { return e.cfg.PassThreshold }

type OptionInput struct {
	ID   string `json:"id" validate:"required,max=64"`
	Text string `json:"text" validate:"required,max=2000"`
}

type QuestionInput struct {
	Prompt                 string            `json:"prompt" validate:"required,max=4000"`
	Options                []OptionInput     `json:"options" validate:"min=2,max=8,dive"`
	CorrectOptionID        string            `json:"correct_option_id" validate:"required"`
	Explanation            string            `json:"explanation" validate:"max=4000"`
	DistractorExplanations map[string]string `json:"distractor_explanations"`
}

type CreateQuizInput struct {
	LevelID   uuid.UUID       `json:"level_id"`
	ChapterID *uuid.UUID      `json:"chapter_id"`
	QuizType  types.QuizType  `json:"quiz_type"`
	Title     string          `json:"title" validate:"max=200"`
	Questions []QuestionInput `json:"questions" validate:"min=1,max=100,dive"`
}

// QuizView is the pre-submission shape: no correct ids, no explanations.
type QuizView struct {
	ID            uuid.UUID              `json:"id"`
	CourseID      uuid.UUID              `json:"course_id"`
	LevelID       uuid.UUID              `json:"level_id"`
	ChapterID     *uuid.UUID             `json:"chapter_id,omitempty"`
	QuizType      types.QuizType         `json:"quiz_type"`
	Title         string                 `json:"title"`
	PassThreshold float64                `json:"pass_threshold"`
	Questions     []types.PublicQuestion `json:"questions"`
}

func (e *Engine) publicView(q *types.Quiz) *QuizView {
	v := &QuizView{
		ID:            q.ID,
		CourseID:      q.CourseID,
		LevelID:       q.LevelID,
		ChapterID:     q.ChapterID,
		QuizType:      q.QuizType,
		Title:         q.Title,
		PassThreshold: e.cfg.PassThreshold,
		Questions:     make([]types.PublicQuestion, 0, len(q.Questions)),
	}
	for _, qq := range q.Questions {
		v.Questions = append(v.Questions, qq.Public())
	}
	return v
}

func validationError(code string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apierr.Validation(code, "%s failed %q", strings.ToLower(verrs[0].Namespace()), verrs[0].Tag())
	}
	return apierr.Validation(code, "%v", err)
}

// checkQuestion enforces what struct tags cannot: unique option ids and a
// correct option that is one of them.
func checkQuestion(i int, q QuestionInput) error {
	seen := map[string]bool{}
	for _, o := range q.Options {
		id := strings.TrimSpace(o.ID)
		if seen[id] {
			return apierr.Validation("invalid_quiz", "question %d repeats option id %q", i, id)
		}
		seen[id] = true
	}
	if !seen[strings.TrimSpace(q.CorrectOptionID)] {
		return apierr.Validation("invalid_quiz", "question %d: correct option %q is not among its options", i, q.CorrectOptionID)
	}
	return nil
}

func (e *Engine) validateQuestion(i int, q QuestionInput) error {
	if err := e.validate.Struct(q); err != nil {
		return validationError("invalid_quiz", err)
	}
	return checkQuestion(i, q)
}

func buildQuestion(q QuestionInput) types.QuizQuestion {
	opts := make([]types.QuizOption, 0, len(q.Options))
	valid := map[string]bool{}
	for _, o := range q.Options {
		id := strings.TrimSpace(o.ID)
		valid[id] = true
		opts = append(opts, types.QuizOption{ID: id, Text: strings.TrimSpace(o.Text)})
	}
	distractors := map[string]string{}
	for k, v := range q.DistractorExplanations {
		k = strings.TrimSpace(k)
		if valid[k] && k != strings.TrimSpace(q.CorrectOptionID) && strings.TrimSpace(v) != "" {
			distractors[k] = strings.TrimSpace(v)
		}
	}
	return types.QuizQuestion{
		ID:                     uuid.New(),
		Prompt:                 strings.TrimSpace(q.Prompt),
		Options:                datatypes.NewJSONType(opts),
		CorrectOptionID:        strings.TrimSpace(q.CorrectOptionID),
		Explanation:            strings.TrimSpace(q.Explanation),
		DistractorExplanations: datatypes.NewJSONType(distractors),
	}
}

// ownedLevel resolves a level the caller owns, with its course.
func (e *Engine) ownedLevel(ctx context.Context, ownerID, levelID uuid.UUID) (*types.Course, *types.CourseLevel, error) {
	dbc := dbctx.Context{Ctx: ctx}
	level, err := e.deps.Courses.GetLevel(dbc, levelID)
	if err != nil {
		return nil, nil, fmt.Errorf("load level: %w", err)
	}
	if level == nil {
		return nil, nil, apierr.NotFound("level_not_found", "level not found")
	}
	course, err := e.deps.Courses.GetByOwnerAndID(dbc, ownerID, level.CourseID)
	if err != nil {
		return nil, nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, nil, apierr.NotFound("level_not_found", "level not found")
	}
	return course, level, nil
}

// CreateQuiz stores an authored quiz for a chapter or as a level test.
func (e *Engine) CreateQuiz(ctx context.Context, ownerID uuid.UUID, in CreateQuizInput) (*QuizView, error) {
	if ownerID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	if !in.QuizType.Valid() {
		return nil, apierr.Validation("invalid_quiz", "quiz type %q is not chapter or level_test", in.QuizType)
	}
	if in.LevelID == uuid.Nil {
		return nil, apierr.Validation("invalid_quiz", "level id is required")
	}
	if err := e.validate.Struct(in); err != nil {
		return nil, validationError("invalid_quiz", err)
	}
	for i, q := range in.Questions {
		if err := checkQuestion(i, q); err != nil {
			return nil, err
		}
	}
	course, level, err := e.ownedLevel(ctx, ownerID, in.LevelID)
	if err != nil {
		return nil, err
	}

	quiz := &types.Quiz{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		CourseID: course.ID,
		LevelID:  level.ID,
		QuizType: in.QuizType,
		Title:    strings.TrimSpace(in.Title),
	}
	switch in.QuizType {
	case types.QuizTypeChapter:
		if in.ChapterID == nil || *in.ChapterID == uuid.Nil {
			return nil, apierr.Validation("invalid_quiz", "a chapter quiz needs a chapter id")
		}
		ch, err := e.deps.Courses.GetChapter(dbctx.Context{Ctx: ctx}, *in.ChapterID)
		if err != nil {
			return nil, fmt.Errorf("load chapter: %w", err)
		}
		if ch == nil || ch.LevelID != level.ID {
			return nil, apierr.NotFound("chapter_not_found", "chapter not found in this level")
		}
		id := ch.ID
		quiz.ChapterID = &id
	case types.QuizTypeLevelTest:
		if in.ChapterID != nil && *in.ChapterID != uuid.Nil {
			return nil, apierr.Validation("invalid_quiz", "a level test cannot belong to a chapter")
		}
	}
	for _, q := range in.Questions {
		quiz.Questions = append(quiz.Questions, buildQuestion(q))
	}

	if err := e.deps.Quizzes.Create(dbctx.Context{Ctx: ctx}, quiz); err != nil {
		return nil, fmt.Errorf("create quiz: %w", err)
	}
	e.log.Info("quiz created", "quiz_id", quiz.ID, "quiz_type", quiz.QuizType, "questions", len(quiz.Questions))
	return e.publicView(quiz), nil
}

// loadQuiz fetches a quiz with its questions and fails unless ownerID owns
// it and its level is reachable.
func (e *Engine) loadQuiz(ctx context.Context, ownerID, quizID uuid.UUID) (*types.Quiz, error) {
	if ownerID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	quiz, err := e.deps.Quizzes.GetWithQuestions(dbctx.Context{Ctx: ctx}, quizID)
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	if quiz == nil || quiz.OwnerID != ownerID {
		return nil, apierr.NotFound("quiz_not_found", "quiz not found")
	}
	r, err := e.deps.Progression.IsReachable(ctx, ownerID, quiz.LevelID)
	if err != nil {
		return nil, err
	}
	if !r.Reachable {
		return nil, apierr.Forbidden("level_locked", "this quiz belongs to a locked level")
	}
	return quiz, nil
}

func (e *Engine) GetQuiz(ctx context.Context, ownerID, quizID uuid.UUID) (*QuizView, error) {
	quiz, err := e.loadQuiz(ctx, ownerID, quizID)
	if err != nil {
		return nil, err
	}
	return e.publicView(quiz), nil
}
