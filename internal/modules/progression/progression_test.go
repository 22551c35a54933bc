package progression

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	gamificationrepo "github.com/yungbote/lumen-backend/internal/data/repos/gamification"
	learningrepo "github.com/yungbote/lumen-backend/internal/data/repos/learning"
	"github.com/yungbote/lumen-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lumen-backend/internal/domain/learning"
	"github.com/yungbote/lumen-backend/internal/modules/gamification"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
)

type harness struct {
	db      *gorm.DB
	svc     *Service
	unlocks learningrepo.LevelUnlockRepo
	ledger  gamificationrepo.LedgerRepo
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	unlocks := learningrepo.NewLevelUnlockRepo(db, log)
	ledger := gamificationrepo.NewLedgerRepo(db, log)
	gam := gamification.New(gamification.Deps{
		Log:          log,
		Ledger:       ledger,
		Achievements: gamificationrepo.NewAchievementRepo(db, log),
		Sessions:     gamificationrepo.NewSessionRepo(db, log),
	}, gamification.DefaultConfig())
	svc := New(Deps{
		Log:          log,
		Courses:      learningrepo.NewCourseRepo(db, log),
		Unlocks:      unlocks,
		Quizzes:      learningrepo.NewQuizRepo(db, log),
		Attempts:     learningrepo.NewAttemptRepo(db, log),
		Gamification: gam,
	})
	return &harness{db: db, svc: svc, unlocks: unlocks, ledger: ledger}
}

func TestUnlockIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()
	_, levels, _ := testutil.SeedCourse(t, ctx, h.db, owner, 2, 1)

	first, created, err := h.svc.Unlock(ctx, owner, levels[1].ID, types.UnlockTestPassed, nil)
	if err != nil || !created {
		t.Fatalf("first unlock: created=%v err=%v", created, err)
	}
	time.Sleep(5 * time.Millisecond)
	second, created, err := h.svc.Unlock(ctx, owner, levels[1].ID, types.UnlockSkipped, nil)
	if err != nil {
		t.Fatalf("second unlock: %v", err)
	}
	if created {
		t.Fatalf("second unlock should be a no-op")
	}
	drift := second.UnlockedAt.Sub(first.UnlockedAt)
	if drift < 0 {
		drift = -drift
	}
	if second.Reason != first.Reason || drift > time.Millisecond {
		t.Fatalf("unlock record changed: first=%+v second=%+v", first, second)
	}
}

func TestOwnershipPrecedesProgression(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()
	_, levels, _ := testutil.SeedCourse(t, ctx, h.db, owner, 2, 1)

	if _, err := h.svc.IsReachable(ctx, uuid.Nil, levels[0].ID); !apierr.IsKind(err, apierr.KindUnauthorized) {
		t.Fatalf("anonymous: expected unauthorized, got %v", err)
	}
	if _, err := h.svc.IsReachable(ctx, uuid.New(), levels[0].ID); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("stranger: expected not found, got %v", err)
	}
	if _, err := h.svc.Skip(ctx, uuid.New(), uuid.Nil, levels[0].ID); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("stranger skip: expected not found, got %v", err)
	}

	r, err := h.svc.IsReachable(ctx, owner, levels[0].ID)
	if err != nil || !r.Reachable {
		t.Fatalf("level 0 should be reachable: %+v %v", r, err)
	}
	r, err = h.svc.IsReachable(ctx, owner, levels[1].ID)
	if err != nil || r.Reachable {
		t.Fatalf("level 1 should be locked: %+v %v", r, err)
	}
}

func TestSkipAdvancesAndFinalSkipCompletesCourse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()
	course, levels, _ := testutil.SeedCourse(t, ctx, h.db, owner, 2, 1)

	if _, err := h.svc.Skip(ctx, owner, course.ID, levels[1].ID); !apierr.IsKind(err, apierr.KindForbidden) {
		t.Fatalf("skipping a locked level: expected forbidden, got %v", err)
	}

	adv, err := h.svc.Skip(ctx, owner, course.ID, levels[0].ID)
	if err != nil {
		t.Fatalf("Skip level 0: %v", err)
	}
	if adv.NextLevelID == nil || *adv.NextLevelID != levels[1].ID || adv.CourseComplete || !adv.NewlyUnlocked {
		t.Fatalf("unexpected advance: %+v", adv)
	}
	unlocks, err := h.unlocks.ListByUserAndCourse(dbctx.Context{Ctx: ctx}, owner, course.ID)
	if err != nil || len(unlocks) != 1 || unlocks[0].Reason != types.UnlockSkipped || unlocks[0].AttemptID != nil {
		t.Fatalf("expected one skipped unlock, got %+v err=%v", unlocks, err)
	}

	final, err := h.svc.Skip(ctx, owner, course.ID, levels[1].ID)
	if err != nil {
		t.Fatalf("Skip final level: %v", err)
	}
	if !final.CourseComplete || final.NextLevelID != nil {
		t.Fatalf("final skip should report course completion: %+v", final)
	}
	unlocks, _ = h.unlocks.ListByUserAndCourse(dbctx.Context{Ctx: ctx}, owner, course.ID)
	if len(unlocks) != 1 {
		t.Fatalf("final skip must not write an unlock, got %d rows", len(unlocks))
	}
	total, _ := h.ledger.Total(dbctx.Context{Ctx: ctx}, owner)
	if total != 0 {
		t.Fatalf("skips should not earn points, got %d", total)
	}
}

func TestUnlockAfterTestRequiresPassedLevelTest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()
	course, levels, _ := testutil.SeedCourse(t, ctx, h.db, owner, 2, 1)
	quiz, _ := testutil.SeedQuiz(t, ctx, h.db, course, levels[0], nil, types.QuizTypeLevelTest, []string{"a"})
	attempts := learningrepo.NewAttemptRepo(h.db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	failed := &types.QuizAttempt{QuizID: quiz.ID, UserID: owner, Status: types.AttemptSubmitted, Passed: false}
	if err := attempts.Create(dbc, failed); err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if _, err := h.svc.UnlockAfterTest(ctx, owner, course.ID, levels[0].ID, failed.ID); !apierr.IsKind(err, apierr.KindForbidden) {
		t.Fatalf("failed attempt: expected forbidden, got %v", err)
	}

	passed := &types.QuizAttempt{QuizID: quiz.ID, UserID: owner, Status: types.AttemptSubmitted, Passed: true, Score: 100}
	if err := attempts.Create(dbc, passed); err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if _, err := h.svc.UnlockAfterTest(ctx, uuid.New(), course.ID, levels[0].ID, passed.ID); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("stranger: expected not found, got %v", err)
	}
	adv, err := h.svc.UnlockAfterTest(ctx, owner, course.ID, levels[0].ID, passed.ID)
	if err != nil {
		t.Fatalf("UnlockAfterTest: %v", err)
	}
	if adv.NextLevelID == nil || *adv.NextLevelID != levels[1].ID || adv.Rewards.PointsAwarded != 100 {
		t.Fatalf("unexpected advance: %+v", adv)
	}
	unlocks, _ := h.unlocks.ListByUserAndCourse(dbc, owner, course.ID)
	if len(unlocks) != 1 || unlocks[0].AttemptID == nil || *unlocks[0].AttemptID != passed.ID {
		t.Fatalf("unlock should carry the attempt id: %+v", unlocks)
	}

	again, err := h.svc.UnlockAfterTest(ctx, owner, course.ID, levels[0].ID, passed.ID)
	if err != nil {
		t.Fatalf("repeat UnlockAfterTest: %v", err)
	}
	if again.NewlyUnlocked || again.Rewards.PointsAwarded != 0 {
		t.Fatalf("repeat should be a no-op: %+v", again)
	}
}

func TestInitialUnlockUsesLowestLevel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()
	course := &types.Course{
		ID:      uuid.New(),
		OwnerID: owner,
		Levels: []types.CourseLevel{
			{ID: uuid.New(), OrderIndex: 1},
			{ID: uuid.New(), OrderIndex: 0},
		},
	}
	if err := h.svc.InitialUnlock(dbctx.Context{Ctx: ctx}, owner, course); err != nil {
		t.Fatalf("InitialUnlock: %v", err)
	}
	ok, err := h.unlocks.IsUnlocked(dbctx.Context{Ctx: ctx}, owner, course.Levels[1].ID)
	if err != nil || !ok {
		t.Fatalf("expected order-0 level unlocked: ok=%v err=%v", ok, err)
	}
}
