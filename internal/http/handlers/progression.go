package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/lumen-backend/internal/http/response"
	"github.com/yungbote/lumen-backend/internal/modules/progression"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type ProgressionService interface {
	IsReachable(ctx context.Context, userID, levelID uuid.UUID) (*progression.Reachability, error)
	Skip(ctx context.Context, userID, courseID, levelID uuid.UUID) (*progression.Advance, error)
	UnlockAfterTest(ctx context.Context, userID, courseID, levelID, attemptID uuid.UUID) (*progression.Advance, error)
}

type ProgressionHandler struct {
	log         *logger.Logger
	progression ProgressionService
}

func NewProgressionHandler(log *logger.Logger, svc ProgressionService) *ProgressionHandler {
	return &ProgressionHandler{log: log.With("handler", "ProgressionHandler"), progression: svc}
}

type levelRequest struct {
	CourseID  uuid.UUID `json:"course_id"`
	LevelID   uuid.UUID `json:"level_id"`
	AttemptID uuid.UUID `json:"attempt_id"`
}

func (r levelRequest) missing(needAttempt bool) error {
	switch {
	case r.CourseID == uuid.Nil:
		return errors.New("course_id is required")
	case r.LevelID == uuid.Nil:
		return errors.New("level_id is required")
	case needAttempt && r.AttemptID == uuid.Nil:
		return errors.New("attempt_id is required")
	}
	return nil
}

// UnlockLevel advances past a level whose level test the caller passed.
func (h *ProgressionHandler) UnlockLevel(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req levelRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.missing(true); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	adv, err := h.progression.UnlockAfterTest(c.Request.Context(), userID, req.CourseID, req.LevelID, req.AttemptID)
	if err != nil {
		response.RespondErr(c, "unlock_failed", err)
		return
	}
	response.RespondOK(c, adv)
}

func (h *ProgressionHandler) SkipLevel(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req levelRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.missing(false); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	adv, err := h.progression.Skip(c.Request.Context(), userID, req.CourseID, req.LevelID)
	if err != nil {
		response.RespondErr(c, "skip_failed", err)
		return
	}
	response.RespondOK(c, adv)
}

func (h *ProgressionHandler) Reachable(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_level_id")
	if !ok {
		return
	}
	r, err := h.progression.IsReachable(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondErr(c, "reachability_failed", err)
		return
	}
	response.RespondOK(c, r)
}
