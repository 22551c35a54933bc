package gamification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	types "github.com/yungbote/lumen-backend/internal/domain/gamification"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
)

type SessionResult struct {
	Session *types.StudySession `json:"session"`
	Rewards Outcome             `json:"rewards"`
}

func (s *Service) StartSession(ctx context.Context, userID uuid.UUID, courseID *uuid.UUID) (*types.StudySession, error) {
	if userID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	sess := &types.StudySession{
		ID:        uuid.New(),
		UserID:    userID,
		CourseID:  courseID,
		Status:    types.SessionActive,
		StartedAt: s.deps.Now(),
	}
	if err := s.deps.Sessions.Create(dbctx.Context{Ctx: ctx}, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// CompleteSession closes an active session and awards session_completed.
// Completing an already completed session returns it unchanged.
func (s *Service) CompleteSession(ctx context.Context, userID, sessionID uuid.UUID) (*SessionResult, error) {
	if userID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	dbc := dbctx.Context{Ctx: ctx}
	sess, err := s.deps.Sessions.GetByUserAndID(dbc, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, apierr.NotFound("session_not_found", "session not found")
	}
	res := &SessionResult{Session: sess, Rewards: Outcome{Events: []string{}, Achievements: []string{}}}
	if sess.Status == types.SessionCompleted {
		return res, nil
	}

	ok, err := s.deps.Sessions.Complete(dbc, sess, s.deps.Now())
	if err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	if fresh, err := s.deps.Sessions.GetByUserAndID(dbc, userID, sessionID); err == nil && fresh != nil {
		res.Session = fresh
	}
	if !ok {
		return res, nil
	}
	res.Rewards = s.Fire(ctx, userID, Award{Event: types.EventSessionCompleted, RefID: sess.ID.String()})
	return res, nil
}
