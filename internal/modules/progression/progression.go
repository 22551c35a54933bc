package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	learningrepo "github.com/yungbote/lumen-backend/internal/data/repos/learning"
	gamtypes "github.com/yungbote/lumen-backend/internal/domain/gamification"
	types "github.com/yungbote/lumen-backend/internal/domain/learning"
	"github.com/yungbote/lumen-backend/internal/modules/gamification"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
	"github.com/yungbote/lumen-backend/internal/realtime"
)

type Deps struct {
	Log          *logger.Logger
	Courses      learningrepo.CourseRepo
	Unlocks      learningrepo.LevelUnlockRepo
	Quizzes      learningrepo.QuizRepo
	Attempts     learningrepo.AttemptRepo
	Gamification *gamification.Service
	Notify       realtime.Notifier
}

type Service struct {
	deps Deps
	log  *logger.Logger
}

func New(deps Deps) *Service {
	if deps.Notify == nil {
		deps.Notify = realtime.NopNotifier()
	}
	return &Service{deps: deps, log: deps.Log.With("service", "LevelProgression")}
}

// Advance is the outcome of finishing (or skipping) a level.
type Advance struct {
	CourseID       uuid.UUID            `json:"course_id"`
	LevelID        uuid.UUID            `json:"level_id"`
	NextLevelID    *uuid.UUID           `json:"next_level_id"`
	CourseComplete bool                 `json:"course_complete"`
	NewlyUnlocked  bool                 `json:"newly_unlocked"`
	Reason         types.UnlockReason   `json:"reason"`
	Rewards        gamification.Outcome `json:"rewards"`
}

type Reachability struct {
	LevelID   uuid.UUID `json:"level_id"`
	CourseID  uuid.UUID `json:"course_id"`
	Reachable bool      `json:"reachable"`
}

// InitialUnlock records level 0 of a freshly created course. It runs inside
// the course creation transaction.
func (s *Service) InitialUnlock(dbc dbctx.Context, userID uuid.UUID, course *types.Course) error {
	if course == nil || len(course.Levels) == 0 {
		return nil
	}
	first := course.Levels[0]
	for _, l := range course.Levels[1:] {
		if l.OrderIndex < first.OrderIndex {
			first = l
		}
	}
	_, err := s.deps.Unlocks.Insert(dbc, &types.LevelUnlock{
		UserID:     userID,
		LevelID:    first.ID,
		CourseID:   course.ID,
		Reason:     types.UnlockInitial,
		UnlockedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("initial unlock: %w", err)
	}
	return nil
}

// ownedLevel loads a level and its course, failing unless userID owns the
// course. It is the first read every operation makes.
func (s *Service) ownedLevel(ctx context.Context, userID, levelID uuid.UUID) (*types.Course, *types.CourseLevel, error) {
	if userID == uuid.Nil {
		return nil, nil, apierr.Unauthorized("no verified identity")
	}
	if levelID == uuid.Nil {
		return nil, nil, apierr.Validation("invalid_level", "level id is required")
	}
	dbc := dbctx.Context{Ctx: ctx}
	level, err := s.deps.Courses.GetLevel(dbc, levelID)
	if err != nil {
		return nil, nil, fmt.Errorf("load level: %w", err)
	}
	if level == nil {
		return nil, nil, apierr.NotFound("level_not_found", "level not found")
	}
	course, err := s.deps.Courses.GetByOwnerAndID(dbc, userID, level.CourseID)
	if err != nil {
		return nil, nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, nil, apierr.NotFound("level_not_found", "level not found")
	}
	return course, level, nil
}

// IsReachable reports whether the caller may open chapters of levelID.
func (s *Service) IsReachable(ctx context.Context, userID, levelID uuid.UUID) (*Reachability, error) {
	course, level, err := s.ownedLevel(ctx, userID, levelID)
	if err != nil {
		return nil, err
	}
	ok, err := s.reachable(ctx, userID, level)
	if err != nil {
		return nil, err
	}
	return &Reachability{LevelID: level.ID, CourseID: course.ID, Reachable: ok}, nil
}

func (s *Service) reachable(ctx context.Context, userID uuid.UUID, level *types.CourseLevel) (bool, error) {
	if level.OrderIndex == 0 {
		return true, nil
	}
	ok, err := s.deps.Unlocks.IsUnlocked(dbctx.Context{Ctx: ctx}, userID, level.ID)
	if err != nil {
		return false, fmt.Errorf("read unlock: %w", err)
	}
	return ok, nil
}

// Unlock records that userID may reach levelID. Unlocking twice keeps the
// first record and reports false.
func (s *Service) Unlock(ctx context.Context, userID, levelID uuid.UUID, reason types.UnlockReason, attemptID *uuid.UUID) (*types.LevelUnlock, bool, error) {
	course, level, err := s.ownedLevel(ctx, userID, levelID)
	if err != nil {
		return nil, false, err
	}
	return s.unlock(ctx, userID, course, level, reason, attemptID)
}

func (s *Service) unlock(ctx context.Context, userID uuid.UUID, course *types.Course, level *types.CourseLevel, reason types.UnlockReason, attemptID *uuid.UUID) (*types.LevelUnlock, bool, error) {
	switch reason {
	case types.UnlockTestPassed, types.UnlockSkipped, types.UnlockInitial:
	default:
		return nil, false, apierr.Validation("invalid_reason", "unlock reason %q is not supported", reason)
	}
	dbc := dbctx.Context{Ctx: ctx}
	rec := &types.LevelUnlock{
		UserID:     userID,
		LevelID:    level.ID,
		CourseID:   course.ID,
		Reason:     reason,
		AttemptID:  attemptID,
		UnlockedAt: time.Now().UTC(),
	}
	created, err := s.deps.Unlocks.Insert(dbc, rec)
	if err != nil {
		return nil, false, fmt.Errorf("insert unlock: %w", err)
	}
	if created {
		s.log.Info("level unlocked", "user_id", userID, "level_id", level.ID, "reason", reason)
		s.deps.Notify.Notify(ctx, userID, realtime.SSEEventLevelUnlocked, map[string]any{
			"course_id": course.ID,
			"level_id":  level.ID,
			"reason":    reason,
		})
		return rec, true, nil
	}
	existing, err := s.deps.Unlocks.ListByUserAndCourse(dbc, userID, course.ID)
	if err != nil {
		return nil, false, fmt.Errorf("load unlock: %w", err)
	}
	for _, u := range existing {
		if u.LevelID == level.ID {
			return u, false, nil
		}
	}
	return rec, false, nil
}

// Skip unlocks the level after levelID without a passing attempt.
func (s *Service) Skip(ctx context.Context, userID, courseID, levelID uuid.UUID) (*Advance, error) {
	course, level, err := s.ownedLevel(ctx, userID, levelID)
	if err != nil {
		return nil, err
	}
	if courseID != uuid.Nil && courseID != course.ID {
		return nil, apierr.Validation("course_mismatch", "level does not belong to course %s", courseID)
	}
	if err := s.requireReachable(ctx, userID, level); err != nil {
		return nil, err
	}
	return s.advance(ctx, userID, course, level, types.UnlockSkipped, nil)
}

// UnlockAfterTest unlocks the level after levelID once attemptID is a passed
// level test of that level by the caller.
func (s *Service) UnlockAfterTest(ctx context.Context, userID, courseID, levelID, attemptID uuid.UUID) (*Advance, error) {
	course, level, err := s.ownedLevel(ctx, userID, levelID)
	if err != nil {
		return nil, err
	}
	if courseID != uuid.Nil && courseID != course.ID {
		return nil, apierr.Validation("course_mismatch", "level does not belong to course %s", courseID)
	}
	if attemptID == uuid.Nil {
		return nil, apierr.Validation("invalid_attempt", "attempt id is required")
	}
	dbc := dbctx.Context{Ctx: ctx}
	attempt, err := s.deps.Attempts.GetByID(dbc, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	if attempt == nil || attempt.UserID != userID {
		return nil, apierr.NotFound("attempt_not_found", "attempt not found")
	}
	quiz, err := s.deps.Quizzes.GetByID(dbc, attempt.QuizID)
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	if quiz == nil || quiz.QuizType != types.QuizTypeLevelTest || quiz.LevelID != level.ID {
		return nil, apierr.Validation("attempt_not_level_test", "attempt is not a level test for this level")
	}
	if attempt.Status != types.AttemptSubmitted || !attempt.Passed {
		return nil, apierr.Forbidden("level_test_not_passed", "the level test has not been passed")
	}
	id := attempt.ID
	return s.advance(ctx, userID, course, level, types.UnlockTestPassed, &id)
}

func (s *Service) requireReachable(ctx context.Context, userID uuid.UUID, level *types.CourseLevel) error {
	ok, err := s.reachable(ctx, userID, level)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.Forbidden("level_locked", "level is locked")
	}
	return nil
}

// advance unlocks the successor of level. With no successor the course is
// complete and no unlock is written.
func (s *Service) advance(ctx context.Context, userID uuid.UUID, course *types.Course, level *types.CourseLevel, reason types.UnlockReason, attemptID *uuid.UUID) (*Advance, error) {
	levels, err := s.deps.Courses.ListLevels(dbctx.Context{Ctx: ctx}, course.ID)
	if err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	out := &Advance{CourseID: course.ID, LevelID: level.ID, Reason: reason}

	next := successor(levels, level)
	if next == nil {
		out.CourseComplete = true
	} else {
		_, created, err := s.unlock(ctx, userID, course, next, reason, attemptID)
		if err != nil {
			return nil, err
		}
		id := next.ID
		out.NextLevelID = &id
		out.NewlyUnlocked = created
	}

	var awards []gamification.Award
	if reason == types.UnlockSkipped {
		awards = append(awards, gamification.Award{Event: gamtypes.EventLevelSkipped, RefID: level.ID.String()})
	} else {
		awards = append(awards, gamification.Award{Event: gamtypes.EventLevelCompleted, RefID: level.ID.String()})
		if out.CourseComplete {
			awards = append(awards, gamification.Award{Event: gamtypes.EventCourseCompleted, RefID: course.ID.String()})
		}
	}
	out.Rewards = s.deps.Gamification.Fire(ctx, userID, awards...)

	if out.CourseComplete {
		s.log.Info("course completed", "user_id", userID, "course_id", course.ID, "reason", reason)
		s.deps.Notify.Notify(ctx, userID, realtime.SSEEventCourseCompleted, map[string]any{
			"course_id": course.ID,
			"reason":    reason,
		})
	}
	return out, nil
}

func successor(levels []*types.CourseLevel, level *types.CourseLevel) *types.CourseLevel {
	var next *types.CourseLevel
	for _, l := range levels {
		if l.OrderIndex > level.OrderIndex && (next == nil || l.OrderIndex < next.OrderIndex) {
			next = l
		}
	}
	return next
}

// States maps level id to its unlock record for one course.
func (s *Service) States(ctx context.Context, userID, courseID uuid.UUID) (map[uuid.UUID]*types.LevelUnlock, error) {
	rows, err := s.deps.Unlocks.ListByUserAndCourse(dbctx.Context{Ctx: ctx}, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	out := make(map[uuid.UUID]*types.LevelUnlock, len(rows))
	for _, r := range rows {
		out[r.LevelID] = r
	}
	return out, nil
}
