package quiz

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	gamtypes "github.com/yungbote/lumen-backend/internal/domain/gamification"
	types "github.com/yungbote/lumen-backend/internal/domain/learning"
	"github.com/yungbote/lumen-backend/internal/modules/gamification"
	"github.com/yungbote/lumen-backend/internal/modules/progression"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/realtime"
)

type AttemptView struct {
	ID        uuid.UUID           `json:"id"`
	QuizID    uuid.UUID           `json:"quiz_id"`
	Status    types.AttemptStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	Quiz      *QuizView           `json:"quiz"`
}

// SubmitResult is returned once grading is recorded. It is the first payload
// that carries correct option ids.
type SubmitResult struct {
	AttemptID        uuid.UUID              `json:"attempt_id"`
	QuizID           uuid.UUID              `json:"quiz_id"`
	QuizType         types.QuizType         `json:"quiz_type"`
	Score            float64                `json:"score"`
	Passed           bool                   `json:"passed"`
	PassThreshold    float64                `json:"pass_threshold"`
	CorrectCount     int                    `json:"correct_count"`
	TotalQuestions   int                    `json:"total_questions"`
	Results          []types.QuestionResult `json:"results"`
	AlreadySubmitted bool                   `json:"already_submitted"`
	SubmittedAt      *time.Time             `json:"submitted_at,omitempty"`
	Progression      *progression.Advance   `json:"progression,omitempty"`
	Rewards          gamification.Outcome   `json:"rewards"`
}

type AttemptSummary struct {
	ID             uuid.UUID           `json:"id"`
	QuizID         uuid.UUID           `json:"quiz_id"`
	Status         types.AttemptStatus `json:"status"`
	Score          float64             `json:"score"`
	Passed         bool                `json:"passed"`
	CorrectCount   int                 `json:"correct_count"`
	TotalQuestions int                 `json:"total_questions"`
	CreatedAt      time.Time           `json:"created_at"`
	SubmittedAt    *time.Time          `json:"submitted_at,omitempty"`
}

func summarize(a *types.QuizAttempt) AttemptSummary {
	return AttemptSummary{
		ID:             a.ID,
		QuizID:         a.QuizID,
		Status:         a.Status,
		Score:          a.Score,
		Passed:         a.Passed,
		CorrectCount:   a.CorrectCount,
		TotalQuestions: a.TotalQuestions,
		CreatedAt:      a.CreatedAt,
		SubmittedAt:    a.SubmittedAt,
	}
}

// CreateAttempt opens an attempt on a quiz the caller can reach.
func (e *Engine) CreateAttempt(ctx context.Context, userID, quizID uuid.UUID) (*AttemptView, error) {
	quiz, err := e.loadQuiz(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	attempt := &types.QuizAttempt{
		ID:     uuid.New(),
		QuizID: quiz.ID,
		UserID: userID,
		Status: types.AttemptCreated,
	}
	if err := e.deps.Attempts.Create(dbctx.Context{Ctx: ctx}, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	return &AttemptView{ID: attempt.ID, QuizID: quiz.ID, Status: attempt.Status, CreatedAt: attempt.CreatedAt, Quiz: e.publicView(quiz)}, nil
}

// Score is correct/total as a percentage rounded to one decimal.
func Score(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(correct)*1000/float64(total)) / 10
}

// Grade compares each chosen option with the stored correct option.
// Unanswered questions count as wrong.
func Grade(questions []types.QuizQuestion, answers map[string]string) ([]types.QuestionResult, int) {
	results := make([]types.QuestionResult, 0, len(questions))
	correct := 0
	for _, q := range questions {
		chosen := answers[q.ID.String()]
		r := types.QuestionResult{
			QuestionID:      q.ID,
			ChosenOptionID:  chosen,
			CorrectOptionID: q.CorrectOptionID,
			Correct:         chosen != "" && chosen == q.CorrectOptionID,
			Explanation:     q.Explanation,
		}
		if r.Correct {
			correct++
		} else if chosen != "" {
			r.ChosenRationale = q.DistractorExplanations.Data()[chosen]
		}
		results = append(results, r)
	}
	return results, correct
}

// normalizeAnswers checks every key names a question of the quiz and every
// value one of that question's options.
func normalizeAnswers(questions []types.QuizQuestion, answers map[string]string) (map[string]string, error) {
	byID := make(map[string]types.QuizQuestion, len(questions))
	for _, q := range questions {
		byID[q.ID.String()] = q
	}
	out := make(map[string]string, len(answers))
	for k, v := range answers {
		qid, err := uuid.Parse(strings.TrimSpace(k))
		if err != nil {
			return nil, apierr.Validation("invalid_answers", "answer key %q is not a question id", k)
		}
		q, ok := byID[qid.String()]
		if !ok {
			return nil, apierr.Validation("invalid_answers", "question %s is not part of this quiz", qid)
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		valid := false
		for _, o := range q.Options.Data() {
			if o.ID == v {
				valid = true
				break
			}
		}
		if !valid {
			return nil, apierr.Validation("invalid_answers", "option %q is not an option of question %s", v, qid)
		}
		out[qid.String()] = v
	}
	return out, nil
}

// Submit grades an open attempt once. A second submit, concurrent or not,
// returns the recorded result and triggers nothing.
func (e *Engine) Submit(ctx context.Context, userID, attemptID uuid.UUID, answers map[string]string) (*SubmitResult, error) {
	if userID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	dbc := dbctx.Context{Ctx: ctx}
	attempt, err := e.deps.Attempts.GetByID(dbc, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	if attempt == nil || attempt.UserID != userID {
		return nil, apierr.NotFound("attempt_not_found", "attempt not found")
	}
	quiz, err := e.deps.Quizzes.GetWithQuestions(dbc, attempt.QuizID)
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	if quiz == nil || quiz.OwnerID != userID {
		return nil, apierr.NotFound("quiz_not_found", "quiz not found")
	}
	if attempt.Status == types.AttemptSubmitted {
		return e.recorded(attempt, quiz), nil
	}
	if len(quiz.Questions) == 0 {
		return nil, apierr.Validation("quiz_empty", "quiz has no questions")
	}
	clean, err := normalizeAnswers(quiz.Questions, answers)
	if err != nil {
		return nil, err
	}

	results, correct := Grade(quiz.Questions, clean)
	score := Score(correct, len(quiz.Questions))
	now := time.Now().UTC()
	attempt.Answers = datatypes.NewJSONType(clean)
	attempt.Results = datatypes.NewJSONType(results)
	attempt.CorrectCount = correct
	attempt.TotalQuestions = len(quiz.Questions)
	attempt.Score = score
	attempt.Passed = score >= e.cfg.PassThreshold
	attempt.SubmittedAt = &now

	won := false
	err = e.deps.Tx.InTx(ctx, func(txc dbctx.Context) error {
		ok, err := e.deps.Attempts.MarkSubmitted(txc, attempt)
		if err != nil {
			return fmt.Errorf("record submission: %w", err)
		}
		won = ok
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !won {
		fresh, err := e.deps.Attempts.GetByID(dbc, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("reload attempt: %w", err)
		}
		if fresh == nil {
			return nil, apierr.NotFound("attempt_not_found", "attempt not found")
		}
		return e.recorded(fresh, quiz), nil
	}

	e.deps.Metrics.ObserveQuizSubmission(string(quiz.QuizType), attempt.Passed)
	e.log.Info("quiz graded", "attempt_id", attempt.ID, "quiz_id", quiz.ID, "score", score, "passed", attempt.Passed)

	res := e.recorded(attempt, quiz)
	res.AlreadySubmitted = false
	e.afterCommit(ctx, userID, quiz, attempt, res)
	return res, nil
}

// afterCommit runs the side effects of a graded attempt. None of them can
// fail the submission.
func (e *Engine) afterCommit(ctx context.Context, userID uuid.UUID, quiz *types.Quiz, attempt *types.QuizAttempt, res *SubmitResult) {
	e.deps.Notify.Notify(ctx, userID, realtime.SSEEventQuizGraded, map[string]any{
		"attempt_id": attempt.ID,
		"quiz_id":    quiz.ID,
		"score":      attempt.Score,
		"passed":     attempt.Passed,
	})
	if !attempt.Passed {
		return
	}

	awards := []gamification.Award{{Event: gamtypes.EventQuizPassed, RefID: quiz.ID.String()}}
	if attempt.CorrectCount == attempt.TotalQuestions {
		awards = append(awards, gamification.Award{Event: gamtypes.EventQuizPerfect, RefID: quiz.ID.String()})
	}
	if quiz.QuizType == types.QuizTypeChapter && quiz.ChapterID != nil {
		awards = append(awards, gamification.Award{Event: gamtypes.EventChapterCompleted, RefID: quiz.ChapterID.String()})
	}
	res.Rewards = e.deps.Gamification.Fire(ctx, userID, awards...)

	if quiz.QuizType != types.QuizTypeLevelTest {
		return
	}
	adv, err := e.deps.Progression.UnlockAfterTest(context.WithoutCancel(ctx), userID, quiz.CourseID, quiz.LevelID, attempt.ID)
	if err != nil {
		e.log.Warn("level unlock after pass failed", "attempt_id", attempt.ID, "level_id", quiz.LevelID, "error", err)
		return
	}
	res.Progression = adv
	res.Rewards.PointsAwarded += adv.Rewards.PointsAwarded
	res.Rewards.Events = append(res.Rewards.Events, adv.Rewards.Events...)
	res.Rewards.Achievements = append(res.Rewards.Achievements, adv.Rewards.Achievements...)
}

func (e *Engine) recorded(a *types.QuizAttempt, quiz *types.Quiz) *SubmitResult {
	results := a.Results.Data()
	if results == nil {
		results = []types.QuestionResult{}
	}
	return &SubmitResult{
		AttemptID:        a.ID,
		QuizID:           a.QuizID,
		QuizType:         quiz.QuizType,
		Score:            a.Score,
		Passed:           a.Passed,
		PassThreshold:    e.cfg.PassThreshold,
		CorrectCount:     a.CorrectCount,
		TotalQuestions:   a.TotalQuestions,
		Results:          results,
		AlreadySubmitted: true,
		SubmittedAt:      a.SubmittedAt,
		Rewards:          gamification.Outcome{Events: []string{}, Achievements: []string{}},
	}
}

// SubmitQuiz opens an attempt and submits it in one call.
func (e *Engine) SubmitQuiz(ctx context.Context, userID, quizID uuid.UUID, answers map[string]string) (*SubmitResult, error) {
	attempt, err := e.CreateAttempt(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	return e.Submit(ctx, userID, attempt.ID, answers)
}

// History lists the caller's attempts on one quiz, newest first.
func (e *Engine) History(ctx context.Context, userID, quizID uuid.UUID) ([]AttemptSummary, error) {
	if userID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	dbc := dbctx.Context{Ctx: ctx}
	quiz, err := e.deps.Quizzes.GetByID(dbc, quizID)
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	if quiz == nil || quiz.OwnerID != userID {
		return nil, apierr.NotFound("quiz_not_found", "quiz not found")
	}
	rows, err := e.deps.Attempts.ListByUserAndQuiz(dbc, userID, quizID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	out := make([]AttemptSummary, 0, len(rows))
	for _, a := range rows {
		out = append(out, summarize(a))
	}
	return out, nil
}

// Recent lists the caller's latest graded attempts across quizzes.
func (e *Engine) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]AttemptSummary, error) {
	if userID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	rows, err := e.deps.Attempts.ListSubmittedByUser(dbctx.Context{Ctx: ctx}, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	out := make([]AttemptSummary, 0, len(rows))
	for _, a := range rows {
		out = append(out, summarize(a))
	}
	return out, nil
}
