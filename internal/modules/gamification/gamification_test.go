package gamification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	gamificationrepo "github.com/yungbote/lumen-backend/internal/data/repos/gamification"
	"github.com/yungbote/lumen-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lumen-backend/internal/domain/gamification"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
)

func newService(t *testing.T, now time.Time) *Service {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	return New(Deps{
		Log:          log,
		Ledger:       gamificationrepo.NewLedgerRepo(db, log),
		Achievements: gamificationrepo.NewAchievementRepo(db, log),
		Sessions:     gamificationrepo.NewSessionRepo(db, log),
		Now:          func() time.Time { return now },
	}, DefaultConfig())
}

func TestAwardPointsIsExactlyOnce(t *testing.T) {
	s := newService(t, time.Now().UTC())
	ctx := context.Background()
	user := uuid.New()
	ref := uuid.NewString()

	created, err := s.AwardPoints(ctx, user, types.EventQuizPassed, ref)
	if err != nil || !created {
		t.Fatalf("first award: created=%v err=%v", created, err)
	}
	created, err = s.AwardPoints(ctx, user, types.EventQuizPassed, ref)
	if err != nil {
		t.Fatalf("duplicate award should not error: %v", err)
	}
	if created {
		t.Fatalf("duplicate award should be a no-op")
	}
	sum, err := s.Points(ctx, user, 10)
	if err != nil {
		t.Fatalf("Points: %v", err)
	}
	if sum.Total != 50 || len(sum.Recent) != 1 {
		t.Fatalf("expected one 50-point entry, got total=%d rows=%d", sum.Total, len(sum.Recent))
	}
}

func TestFireGrantsAchievementsOnce(t *testing.T) {
	s := newService(t, time.Now().UTC())
	ctx := context.Background()
	user := uuid.New()

	out := s.Fire(ctx, user,
		Award{Event: types.EventChapterCompleted, RefID: "ch-1"},
		Award{Event: types.EventQuizPerfect, RefID: "attempt-1"},
	)
	if out.PointsAwarded != 45 {
		t.Fatalf("points: got %d want 45", out.PointsAwarded)
	}
	want := map[string]bool{"first_chapter": true, "first_perfect": true}
	if len(out.Achievements) != len(want) {
		t.Fatalf("achievements: got %v", out.Achievements)
	}
	for _, id := range out.Achievements {
		if !want[id] {
			t.Fatalf("unexpected achievement %q", id)
		}
	}

	again := s.Fire(ctx, user, Award{Event: types.EventChapterCompleted, RefID: "ch-1"})
	if again.PointsAwarded != 0 || len(again.Achievements) != 0 {
		t.Fatalf("re-fire should change nothing: %+v", again)
	}

	views, err := s.Achievements(ctx, user)
	if err != nil {
		t.Fatalf("Achievements: %v", err)
	}
	granted := 0
	for _, v := range views {
		if v.Granted {
			granted++
		}
	}
	if len(views) != len(Rules) || granted != 2 {
		t.Fatalf("catalog: %d views, %d granted", len(views), granted)
	}
}

func TestCheckAchievementsByCategory(t *testing.T) {
	s := newService(t, time.Now().UTC())
	ctx := context.Background()
	user := uuid.New()
	for i := 0; i < 5; i++ {
		if _, err := s.AwardPoints(ctx, user, types.EventChapterCompleted, uuid.NewString()); err != nil {
			t.Fatalf("AwardPoints: %v", err)
		}
	}
	ids, err := s.CheckAchievements(ctx, user, CategoryLevels)
	if err != nil {
		t.Fatalf("CheckAchievements levels: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("levels category should grant nothing, got %v", ids)
	}
	ids, err = s.CheckAchievements(ctx, user, CategoryChapters)
	if err != nil {
		t.Fatalf("CheckAchievements chapters: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected first_chapter and five_chapters, got %v", ids)
	}
}

type brokenLedger struct{ gamificationrepo.LedgerRepo }

func (brokenLedger) Insert(dbctx.Context, *types.PointsLedgerEntry) (bool, error) {
	return false, errors.New("database is down")
}

func (brokenLedger) CountByEvent(dbctx.Context, uuid.UUID) (map[types.EventType]int64, error) {
	return nil, errors.New("database is down")
}

func TestFireSwallowsFailures(t *testing.T) {
	s := New(Deps{Log: testutil.Logger(t), Ledger: brokenLedger{}}, DefaultConfig())
	out := s.Fire(context.Background(), uuid.New(), Award{Event: types.EventQuizPassed, RefID: "a"})
	if out.PointsAwarded != 0 || len(out.Achievements) != 0 {
		t.Fatalf("expected empty outcome, got %+v", out)
	}
}

func TestFireSurvivesCanceledCaller(t *testing.T) {
	s := newService(t, time.Now().UTC())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := s.Fire(ctx, uuid.New(), Award{Event: types.EventQuizPassed, RefID: "a"})
	if out.PointsAwarded != 50 {
		t.Fatalf("award should run detached from the request context, got %+v", out)
	}
}

func TestStreakDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	day := func(d int) time.Time { return time.Date(2026, 3, d, 9, 0, 0, 0, time.UTC) }
	cases := []struct {
		name  string
		times []time.Time
		want  int
	}{
		{"none", nil, 0},
		{"today only", []time.Time{day(10)}, 1},
		{"ends yesterday", []time.Time{day(9), day(8), day(7)}, 3},
		{"broken", []time.Time{day(8), day(7)}, 0},
		{"gap", []time.Time{day(10), day(9), day(7)}, 2},
		{"same day twice", []time.Time{day(10), day(10).Add(time.Hour)}, 1},
	}
	for _, tc := range cases {
		if got := StreakDays(tc.times, now); got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestSessionCompletesOnce(t *testing.T) {
	start := time.Now().UTC()
	s := newService(t, start)
	ctx := context.Background()
	user := uuid.New()

	sess, err := s.StartSession(ctx, user, nil)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	res, err := s.CompleteSession(ctx, user, sess.ID)
	if err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	if res.Session.Status != types.SessionCompleted || res.Rewards.PointsAwarded != 10 {
		t.Fatalf("unexpected result: status=%s rewards=%+v", res.Session.Status, res.Rewards)
	}
	res, err = s.CompleteSession(ctx, user, sess.ID)
	if err != nil {
		t.Fatalf("second CompleteSession: %v", err)
	}
	if res.Rewards.PointsAwarded != 0 {
		t.Fatalf("second completion must not award")
	}
	if _, err := s.CompleteSession(ctx, uuid.New(), sess.ID); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("foreign session: expected not found, got %v", err)
	}
}
