package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/lumen-backend/internal/domain/learning"
	"github.com/yungbote/lumen-backend/internal/http/response"
	"github.com/yungbote/lumen-backend/internal/modules/courses"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type CourseService interface {
	CreateCourse(ctx context.Context, ownerID uuid.UUID, in courses.CreateCourseInput) (*types.Course, error)
	AttachDocuments(ctx context.Context, ownerID, courseID uuid.UUID, documentIDs []uuid.UUID) ([]uuid.UUID, error)
	GetCourse(ctx context.Context, ownerID, courseID uuid.UUID) (*courses.CourseView, error)
	ListCourses(ctx context.Context, ownerID uuid.UUID) ([]*types.Course, error)
	DeleteCourse(ctx context.Context, ownerID, courseID uuid.UUID) error
	GetChapter(ctx context.Context, ownerID, chapterID uuid.UUID) (*types.Chapter, error)
}

type CourseHandler struct {
	log           *logger.Logger
	courseService CourseService
}

func NewCourseHandler(log *logger.Logger, courseService CourseService) *CourseHandler {
	return &CourseHandler{
		log:           log.With("handler", "CourseHandler"),
		courseService: courseService,
	}
}

func (h *CourseHandler) CreateCourse(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req courses.CreateCourseInput
	if !bindJSON(c, &req) {
		return
	}
	course, err := h.courseService.CreateCourse(c.Request.Context(), userID, req)
	if err != nil {
		h.log.Warn("CreateCourse failed", "error", err, "user_id", userID)
		response.RespondErr(c, "create_course_failed", err)
		return
	}
	view, err := h.courseService.GetCourse(c.Request.Context(), userID, course.ID)
	if err != nil {
		response.RespondErr(c, "load_course_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"course": view})
}

func (h *CourseHandler) ListUserCourses(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.courseService.ListCourses(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("ListUserCourses failed", "error", err, "user_id", userID)
		response.RespondErr(c, "load_courses_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"courses": list})
}

func (h *CourseHandler) GetCourse(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_course_id")
	if !ok {
		return
	}
	view, err := h.courseService.GetCourse(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondErr(c, "load_course_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"course": view})
}

func (h *CourseHandler) DeleteCourse(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_course_id")
	if !ok {
		return
	}
	if err := h.courseService.DeleteCourse(c.Request.Context(), userID, id); err != nil {
		response.RespondErr(c, "delete_course_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type attachDocumentsRequest struct {
	DocumentIDs []uuid.UUID `json:"document_ids"`
}

func (h *CourseHandler) AttachDocuments(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_course_id")
	if !ok {
		return
	}
	var req attachDocumentsRequest
	if !bindJSON(c, &req) {
		return
	}
	attached, err := h.courseService.AttachDocuments(c.Request.Context(), userID, id, req.DocumentIDs)
	if err != nil {
		response.RespondErr(c, "attach_documents_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"document_ids": attached})
}

func (h *CourseHandler) GetChapter(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "invalid_chapter_id")
	if !ok {
		return
	}
	ch, err := h.courseService.GetChapter(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondErr(c, "load_chapter_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"chapter": ch})
}
