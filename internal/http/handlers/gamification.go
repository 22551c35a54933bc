package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/lumen-backend/internal/domain/gamification"
	"github.com/yungbote/lumen-backend/internal/http/response"
	"github.com/yungbote/lumen-backend/internal/modules/gamification"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type GamificationService interface {
	Points(ctx context.Context, userID uuid.UUID, limit int) (*gamification.PointsSummary, error)
	Achievements(ctx context.Context, userID uuid.UUID) ([]gamification.AchievementView, error)
	StartSession(ctx context.Context, userID uuid.UUID, courseID *uuid.UUID) (*types.StudySession, error)
	CompleteSession(ctx context.Context, userID, sessionID uuid.UUID) (*gamification.SessionResult, error)
}

type GamificationHandler struct {
	log          *logger.Logger
	gamification GamificationService
}

func NewGamificationHandler(log *logger.Logger, svc GamificationService) *GamificationHandler {
	return &GamificationHandler{log: log.With("handler", "GamificationHandler"), gamification: svc}
}

func (h *GamificationHandler) Points(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	summary, err := h.gamification.Points(c.Request.Context(), userID, queryInt(c, "limit", 20))
	if err != nil {
		response.RespondErr(c, "load_points_failed", err)
		return
	}
	response.RespondOK(c, summary)
}

func (h *GamificationHandler) Achievements(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.gamification.Achievements(c.Request.Context(), userID)
	if err != nil {
		response.RespondErr(c, "load_achievements_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"achievements": list})
}

type startSessionRequest struct {
	CourseID *uuid.UUID `json:"course_id"`
}

func (h *GamificationHandler) StartSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req startSessionRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	session, err := h.gamification.StartSession(c.Request.Context(), userID, req.CourseID)
	if err != nil {
		response.RespondErr(c, "start_session_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"session": session})
}

func (h *GamificationHandler) CompleteSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_session_id")
	if !ok {
		return
	}
	res, err := h.gamification.CompleteSession(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondErr(c, "complete_session_failed", err)
		return
	}
	response.RespondOK(c, res)
}
