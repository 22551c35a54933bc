package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/lumen-backend/internal/data/db"
	gamificationrepo "github.com/yungbote/lumen-backend/internal/data/repos/gamification"
	learningrepo "github.com/yungbote/lumen-backend/internal/data/repos/learning"
	"github.com/yungbote/lumen-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lumen-backend/internal/domain/learning"
	"github.com/yungbote/lumen-backend/internal/modules/gamification"
	"github.com/yungbote/lumen-backend/internal/modules/progression"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/llm"
)

type fakeGen struct {
	obj  map[string]any
	text string
	err  error
}

func (f *fakeGen) GenerateJSON(context.Context, string, string, string, map[string]any) (map[string]any, error) {
	return f.obj, f.err
}

func (f *fakeGen) GenerateText(context.Context, string, string) (string, error) {
	return f.text, f.err
}

type harness struct {
	db     *gorm.DB
	engine *Engine
	prog   *progression.Service
	gam    *gamification.Service
}

func newHarness(t *testing.T, gen llm.Generator) *harness {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	courses := learningrepo.NewCourseRepo(gdb, log)
	quizzes := learningrepo.NewQuizRepo(gdb, log)
	attempts := learningrepo.NewAttemptRepo(gdb, log)
	gam := gamification.New(gamification.Deps{
		Log:          log,
		Ledger:       gamificationrepo.NewLedgerRepo(gdb, log),
		Achievements: gamificationrepo.NewAchievementRepo(gdb, log),
		Sessions:     gamificationrepo.NewSessionRepo(gdb, log),
	}, gamification.DefaultConfig())
	prog := progression.New(progression.Deps{
		Log:          log,
		Courses:      courses,
		Unlocks:      learningrepo.NewLevelUnlockRepo(gdb, log),
		Quizzes:      quizzes,
		Attempts:     attempts,
		Gamification: gam,
	})
	router, _, err := llm.NewRouter(llm.Routes{
		llm.TaskQuizGeneration: {Provider: "static", Model: "m"},
		llm.TaskRemediation:    {Provider: "static", Model: "m"},
	}, llm.StaticProvider("static", gen, nil))
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	engine := New(Deps{
		Tx:           db.NewTxRunner(gdb),
		Log:          log,
		Courses:      courses,
		Quizzes:      quizzes,
		Attempts:     attempts,
		Progression:  prog,
		Gamification: gam,
		Models:       router,
	}, DefaultConfig())
	return &harness{db: gdb, engine: engine, prog: prog, gam: gam}
}

// seedChapterQuiz makes a one-level course with a chapter quiz whose
// questions all have correct option "a".
func (h *harness) seedChapterQuiz(t *testing.T, owner uuid.UUID, n int) (*types.Quiz, []*types.QuizQuestion) {
	t.Helper()
	ctx := context.Background()
	course, levels, chapters := testutil.SeedCourse(t, ctx, h.db, owner, 1, 1)
	correct := make([]string, n)
	for i := range correct {
		correct[i] = "a"
	}
	return testutil.SeedQuiz(t, ctx, h.db, course, levels[0], chapters[0], types.QuizTypeChapter, correct)
}

func answersWith(questions []*types.QuizQuestion, right int) map[string]string {
	out := map[string]string{}
	for i, q := range questions {
		if i < right {
			out[q.ID.String()] = q.CorrectOptionID
		} else {
			out[q.ID.String()] = "d"
		}
	}
	return out
}

func TestScore(t *testing.T) {
	cases := []struct {
		correct, total int
		want           float64
	}{
		{7, 10, 70},
		{6, 10, 60},
		{2, 3, 66.7},
		{1, 3, 33.3},
		{0, 4, 0},
		{5, 5, 100},
	}
	for _, tc := range cases {
		if got := Score(tc.correct, tc.total); got != tc.want {
			t.Fatalf("Score(%d,%d): got %v want %v", tc.correct, tc.total, got, tc.want)
		}
	}
}

func TestSubmitAppliesPassThreshold(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	quiz, questions := h.seedChapterQuiz(t, owner, 10)

	res, err := h.engine.SubmitQuiz(ctx, owner, quiz.ID, answersWith(questions, 6))
	if err != nil {
		t.Fatalf("SubmitQuiz: %v", err)
	}
	if res.Score != 60 || res.Passed {
		t.Fatalf("6/10: score=%v passed=%v", res.Score, res.Passed)
	}
	if res.Rewards.PointsAwarded != 0 {
		t.Fatalf("a failed quiz earns nothing, got %d", res.Rewards.PointsAwarded)
	}

	res, err = h.engine.SubmitQuiz(ctx, owner, quiz.ID, answersWith(questions, 7))
	if err != nil {
		t.Fatalf("SubmitQuiz: %v", err)
	}
	if res.Score != 70 || !res.Passed || res.CorrectCount != 7 || res.TotalQuestions != 10 {
		t.Fatalf("7/10: %+v", res)
	}
	if res.Rewards.PointsAwarded != 70 {
		t.Fatalf("quiz_passed + chapter_completed should be 70 points, got %d", res.Rewards.PointsAwarded)
	}
	if len(res.Results) != 10 || res.Results[9].CorrectOptionID != "a" || res.Results[9].Correct {
		t.Fatalf("per-question results: %+v", res.Results[9])
	}
	if res.Results[9].ChosenRationale != "" {
		t.Fatalf("seeded quiz has no distractor text; got %q", res.Results[9].ChosenRationale)
	}
}

func TestPreSubmitPayloadsHideAnswers(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	quiz, _ := h.seedChapterQuiz(t, owner, 3)

	view, err := h.engine.GetQuiz(ctx, owner, quiz.ID)
	if err != nil {
		t.Fatalf("GetQuiz: %v", err)
	}
	attempt, err := h.engine.CreateAttempt(ctx, owner, quiz.ID)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	for name, v := range map[string]any{"quiz": view, "attempt": attempt} {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", name, err)
		}
		s := string(raw)
		if strings.Contains(s, "correct") || strings.Contains(s, "because") || strings.Contains(s, "explanation") {
			t.Fatalf("%s payload leaks grading data: %s", name, s)
		}
	}
	if len(view.Questions) != 3 || len(view.Questions[0].Options) != 4 {
		t.Fatalf("public view: %+v", view)
	}
}

func TestSubmitIsOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	quiz, questions := h.seedChapterQuiz(t, owner, 4)

	attempt, err := h.engine.CreateAttempt(ctx, owner, quiz.ID)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	first, err := h.engine.Submit(ctx, owner, attempt.ID, answersWith(questions, 4))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.AlreadySubmitted || first.Score != 100 {
		t.Fatalf("first submit: %+v", first)
	}
	second, err := h.engine.Submit(ctx, owner, attempt.ID, answersWith(questions, 0))
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if !second.AlreadySubmitted || second.Score != 100 || second.Rewards.PointsAwarded != 0 {
		t.Fatalf("second submit should return the recorded result: %+v", second)
	}
}

func TestConcurrentSubmitScoresOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	quiz, questions := h.seedChapterQuiz(t, owner, 2)
	attempt, err := h.engine.CreateAttempt(ctx, owner, quiz.ID)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	const writers = 4
	var wg sync.WaitGroup
	results := make([]*SubmitResult, writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.engine.Submit(ctx, owner, attempt.ID, answersWith(questions, 2))
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < writers; i++ {
		if errs[i] != nil {
			t.Fatalf("writer %d: %v", i, errs[i])
		}
		if !results[i].AlreadySubmitted {
			fresh++
		}
		if results[i].Score != 100 {
			t.Fatalf("writer %d saw score %v", i, results[i].Score)
		}
	}
	if fresh != 1 {
		t.Fatalf("exactly one submit should grade, got %d", fresh)
	}
	sum, err := h.gam.Points(ctx, owner, 10)
	if err != nil {
		t.Fatalf("Points: %v", err)
	}
	if sum.Total != 95 {
		t.Fatalf("points should be awarded once (50+25+20), got %d", sum.Total)
	}
}

func TestLevelTestPassUnlocksNextLevel(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	course, levels, _ := testutil.SeedCourse(t, ctx, h.db, owner, 2, 1)
	test, questions := testutil.SeedQuiz(t, ctx, h.db, course, levels[0], nil, types.QuizTypeLevelTest, []string{"a", "b"})
	locked, _ := testutil.SeedQuiz(t, ctx, h.db, course, levels[1], nil, types.QuizTypeLevelTest, []string{"a"})

	if _, err := h.engine.CreateAttempt(ctx, owner, locked.ID); !apierr.IsKind(err, apierr.KindForbidden) {
		t.Fatalf("quiz on locked level: expected forbidden, got %v", err)
	}

	res, err := h.engine.SubmitQuiz(ctx, owner, test.ID, map[string]string{
		questions[0].ID.String(): "a",
		questions[1].ID.String(): "c",
	})
	if err != nil {
		t.Fatalf("failing SubmitQuiz: %v", err)
	}
	if res.Passed || res.Progression != nil {
		t.Fatalf("a failed level test must not unlock: %+v", res)
	}

	res, err = h.engine.SubmitQuiz(ctx, owner, test.ID, map[string]string{
		questions[0].ID.String(): "a",
		questions[1].ID.String(): "b",
	})
	if err != nil {
		t.Fatalf("passing SubmitQuiz: %v", err)
	}
	if res.Progression == nil || res.Progression.NextLevelID == nil || *res.Progression.NextLevelID != levels[1].ID {
		t.Fatalf("pass should unlock level 1: %+v", res.Progression)
	}
	r, err := h.prog.IsReachable(ctx, owner, levels[1].ID)
	if err != nil || !r.Reachable {
		t.Fatalf("level 1 reachability: %+v %v", r, err)
	}
	if _, err := h.engine.CreateAttempt(ctx, owner, locked.ID); err != nil {
		t.Fatalf("level 1 quiz should now open: %v", err)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	quiz, questions := h.seedChapterQuiz(t, owner, 2)
	attempt, err := h.engine.CreateAttempt(ctx, owner, quiz.ID)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	if _, err := h.engine.Submit(ctx, uuid.New(), attempt.ID, nil); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("stranger: expected not found, got %v", err)
	}
	if _, err := h.engine.Submit(ctx, owner, attempt.ID, map[string]string{uuid.NewString(): "a"}); !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("unknown question: expected validation, got %v", err)
	}
	if _, err := h.engine.Submit(ctx, owner, attempt.ID, map[string]string{questions[0].ID.String(): "z"}); !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("unknown option: expected validation, got %v", err)
	}
	if _, err := h.engine.CreateAttempt(ctx, owner, uuid.New()); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("missing quiz: expected not found, got %v", err)
	}

	res, err := h.engine.Submit(ctx, owner, attempt.ID, map[string]string{questions[0].ID.String(): "a"})
	if err != nil {
		t.Fatalf("partial answers should grade: %v", err)
	}
	if res.Score != 50 {
		t.Fatalf("unanswered counts as wrong: score %v", res.Score)
	}
}

func TestCreateQuizValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	_, levels, chapters := testutil.SeedCourse(t, ctx, h.db, owner, 1, 1)
	chID := chapters[0].ID
	good := QuestionInput{
		Prompt:                 "Which organelle makes ATP?",
		Options:                []OptionInput{{ID: "a", Text: "Mitochondrion"}, {ID: "b", Text: "Ribosome"}},
		CorrectOptionID:        "a",
		Explanation:            "Oxidative phosphorylation happens in mitochondria.",
		DistractorExplanations: map[string]string{"b": "Ribosomes make proteins.", "a": "ignored", "zz": "ignored"},
	}
	dup := good
	dup.Options = []OptionInput{{ID: "a", Text: "x"}, {ID: "a", Text: "y"}}
	missing := good
	missing.CorrectOptionID = "c"
	single := good
	single.Options = good.Options[:1]

	bad := []CreateQuizInput{
		{LevelID: levels[0].ID, ChapterID: &chID, QuizType: types.QuizTypeChapter},
		{LevelID: levels[0].ID, ChapterID: &chID, QuizType: types.QuizTypeChapter, Questions: []QuestionInput{dup}},
		{LevelID: levels[0].ID, ChapterID: &chID, QuizType: types.QuizTypeChapter, Questions: []QuestionInput{missing}},
		{LevelID: levels[0].ID, ChapterID: &chID, QuizType: types.QuizTypeChapter, Questions: []QuestionInput{single}},
		{LevelID: levels[0].ID, QuizType: types.QuizTypeChapter, Questions: []QuestionInput{good}},
		{LevelID: levels[0].ID, ChapterID: &chID, QuizType: types.QuizTypeLevelTest, Questions: []QuestionInput{good}},
		{LevelID: levels[0].ID, QuizType: "essay", Questions: []QuestionInput{good}},
	}
	for i, in := range bad {
		if _, err := h.engine.CreateQuiz(ctx, owner, in); !apierr.IsKind(err, apierr.KindValidation) {
			t.Fatalf("case %d: expected validation, got %v", i, err)
		}
	}
	if _, err := h.engine.CreateQuiz(ctx, uuid.New(), CreateQuizInput{LevelID: levels[0].ID, QuizType: types.QuizTypeLevelTest, Questions: []QuestionInput{good}}); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("stranger: expected not found, got %v", err)
	}

	view, err := h.engine.CreateQuiz(ctx, owner, CreateQuizInput{LevelID: levels[0].ID, ChapterID: &chID, QuizType: types.QuizTypeChapter, Title: "ATP", Questions: []QuestionInput{good}})
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	res, err := h.engine.SubmitQuiz(ctx, owner, view.ID, map[string]string{view.Questions[0].ID.String(): "b"})
	if err != nil {
		t.Fatalf("SubmitQuiz: %v", err)
	}
	if res.Results[0].ChosenRationale != "Ribosomes make proteins." {
		t.Fatalf("distractor rationale: %q", res.Results[0].ChosenRationale)
	}
}

func generatedFixture() map[string]any {
	q := func(prompt, correct string) map[string]any {
		return map[string]any{
			"prompt": prompt,
			"options": []any{
				map[string]any{"id": "a", "text": "first"},
				map[string]any{"id": "b", "text": "second"},
			},
			"correct_option_id": correct,
			"explanation":       "see the chapter",
			"distractors":       []any{map[string]any{"option_id": "b", "explanation": "not this one"}},
		}
	}
	return map[string]any{
		"title": "Generated",
		"questions": []any{
			q("one?", "a"),
			q("two?", "x"),
			q("three?", "a"),
		},
	}
}

func TestGenerateChapterQuizDropsInvalidQuestions(t *testing.T) {
	gen := &fakeGen{obj: generatedFixture()}
	h := newHarness(t, gen)
	ctx := context.Background()
	owner := uuid.New()
	_, _, chapters := testutil.SeedCourse(t, ctx, h.db, owner, 1, 1)
	if err := h.db.Model(&types.Chapter{}).Where("id = ?", chapters[0].ID).Update("content", "Cells divide by mitosis.").Error; err != nil {
		t.Fatalf("set content: %v", err)
	}

	view, err := h.engine.GenerateChapterQuiz(ctx, owner, chapters[0].ID, 5)
	if err != nil {
		t.Fatalf("GenerateChapterQuiz: %v", err)
	}
	if len(view.Questions) != 2 || view.QuizType != types.QuizTypeChapter || view.ChapterID == nil {
		t.Fatalf("generated view: %+v", view)
	}
	if _, err := h.engine.GenerateChapterQuiz(ctx, uuid.New(), chapters[0].ID, 5); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("stranger: expected not found, got %v", err)
	}

	gen.err = errors.New("model overloaded")
	if _, err := h.engine.GenerateChapterQuiz(ctx, owner, chapters[0].ID, 5); !apierr.IsKind(err, apierr.KindUpstream) {
		t.Fatalf("model failure: expected upstream, got %v", err)
	}
}

func TestGenerateChapterQuizWithoutRoute(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	_, _, chapters := testutil.SeedCourse(t, ctx, h.db, owner, 1, 1)
	if _, err := h.engine.GenerateChapterQuiz(ctx, owner, chapters[0].ID, 3); !apierr.IsKind(err, apierr.KindUpstream) {
		t.Fatalf("expected upstream when no model is routed, got %v", err)
	}
}

func TestRemediation(t *testing.T) {
	gen := &fakeGen{text: "Review how mitochondria produce ATP."}
	h := newHarness(t, gen)
	ctx := context.Background()
	owner := uuid.New()
	quiz, questions := h.seedChapterQuiz(t, owner, 2)

	attempt, err := h.engine.CreateAttempt(ctx, owner, quiz.ID)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if _, err := h.engine.Remediation(ctx, owner, attempt.ID); !apierr.IsKind(err, apierr.KindConflict) {
		t.Fatalf("before submit: expected conflict, got %v", err)
	}
	if _, err := h.engine.Submit(ctx, owner, attempt.ID, answersWith(questions, 1)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	rem, err := h.engine.Remediation(ctx, owner, attempt.ID)
	if err != nil {
		t.Fatalf("Remediation: %v", err)
	}
	if len(rem.Missed) != 1 || rem.Missed[0].QuestionID != questions[1].ID || !rem.Generated || rem.Guidance != gen.text {
		t.Fatalf("remediation: %+v", rem)
	}

	gen.err = errors.New("timeout")
	rem, err = h.engine.Remediation(ctx, owner, attempt.ID)
	if err != nil {
		t.Fatalf("Remediation fallback: %v", err)
	}
	if rem.Generated || !strings.Contains(rem.Guidance, "because a") {
		t.Fatalf("fallback should use stored explanations: %+v", rem)
	}

	hist, err := h.engine.History(ctx, owner, quiz.ID)
	if err != nil || len(hist) != 1 || hist[0].Status != types.AttemptSubmitted {
		t.Fatalf("history: %+v %v", hist, err)
	}
}
