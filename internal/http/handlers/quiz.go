package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/lumen-backend/internal/http/response"
	"github.com/yungbote/lumen-backend/internal/modules/quiz"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type QuizService interface {
	CreateQuiz(ctx context.Context, ownerID uuid.UUID, in quiz.CreateQuizInput) (*quiz.QuizView, error)
	GenerateChapterQuiz(ctx context.Context, ownerID, chapterID uuid.UUID, count int) (*quiz.QuizView, error)
	GetQuiz(ctx context.Context, ownerID, quizID uuid.UUID) (*quiz.QuizView, error)
	CreateAttempt(ctx context.Context, userID, quizID uuid.UUID) (*quiz.AttemptView, error)
	Submit(ctx context.Context, userID, attemptID uuid.UUID, answers map[string]string) (*quiz.SubmitResult, error)
	SubmitQuiz(ctx context.Context, userID, quizID uuid.UUID, answers map[string]string) (*quiz.SubmitResult, error)
	History(ctx context.Context, userID, quizID uuid.UUID) ([]quiz.AttemptSummary, error)
	Recent(ctx context.Context, userID uuid.UUID, limit int) ([]quiz.AttemptSummary, error)
	Remediation(ctx context.Context, userID, attemptID uuid.UUID) (*quiz.Remediation, error)
}

type QuizHandler struct {
	log     *logger.Logger
	quizzes QuizService
}

func NewQuizHandler(log *logger.Logger, quizzes QuizService) *QuizHandler {
	return &QuizHandler{log: log.With("handler", "QuizHandler"), quizzes: quizzes}
}

func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req quiz.CreateQuizInput
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.quizzes.CreateQuiz(c.Request.Context(), userID, req)
	if err != nil {
		response.RespondErr(c, "create_quiz_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"quiz": view})
}

type generateQuizRequest struct {
	Count int `json:"count"`
}

func (h *QuizHandler) GenerateForChapter(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chapterID, ok := pathID(c, "invalid_chapter_id")
	if !ok {
		return
	}
	var req generateQuizRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	view, err := h.quizzes.GenerateChapterQuiz(c.Request.Context(), userID, chapterID, req.Count)
	if err != nil {
		h.log.Warn("GenerateChapterQuiz failed", "error", err, "chapter_id", chapterID)
		response.RespondErr(c, "generate_quiz_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"quiz": view})
}

func (h *QuizHandler) GetQuiz(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_quiz_id")
	if !ok {
		return
	}
	view, err := h.quizzes.GetQuiz(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondErr(c, "load_quiz_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"quiz": view})
}

func (h *QuizHandler) ListAttempts(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_quiz_id")
	if !ok {
		return
	}
	attempts, err := h.quizzes.History(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondErr(c, "load_attempts_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"attempts": attempts})
}

func (h *QuizHandler) RecentAttempts(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	attempts, err := h.quizzes.Recent(c.Request.Context(), userID, queryInt(c, "limit", 20))
	if err != nil {
		response.RespondErr(c, "load_attempts_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"attempts": attempts})
}

func (h *QuizHandler) CreateAttempt(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_quiz_id")
	if !ok {
		return
	}
	attempt, err := h.quizzes.CreateAttempt(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondErr(c, "create_attempt_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"attempt": attempt})
}

type submitAnswersRequest struct {
	Answers map[string]string `json:"answers"`
}

func (h *QuizHandler) SubmitAttempt(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_attempt_id")
	if !ok {
		return
	}
	var req submitAnswersRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.quizzes.Submit(c.Request.Context(), userID, id, req.Answers)
	if err != nil {
		response.RespondErr(c, "submit_failed", err)
		return
	}
	response.RespondOK(c, res)
}

type submitQuizRequest struct {
	QuizID  uuid.UUID         `json:"quiz_id"`
	Answers map[string]string `json:"answers"`
}

func (h *QuizHandler) SubmitQuiz(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req submitQuizRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.QuizID == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_quiz_id", errors.New("quiz_id is required"))
		return
	}
	res, err := h.quizzes.SubmitQuiz(c.Request.Context(), userID, req.QuizID, req.Answers)
	if err != nil {
		response.RespondErr(c, "submit_failed", err)
		return
	}
	response.RespondOK(c, res)
}

func (h *QuizHandler) Remediation(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_attempt_id")
	if !ok {
		return
	}
	rem, err := h.quizzes.Remediation(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondErr(c, "remediation_failed", err)
		return
	}
	response.RespondOK(c, rem)
}
