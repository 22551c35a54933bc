package courses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/yungbote/lumen-backend/internal/data/db"
	learningrepo "github.com/yungbote/lumen-backend/internal/data/repos/learning"
	materialsrepo "github.com/yungbote/lumen-backend/internal/data/repos/materials"
	types "github.com/yungbote/lumen-backend/internal/domain/learning"
	"github.com/yungbote/lumen-backend/internal/modules/progression"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type Deps struct {
	Tx          db.TxRunner
	Log         *logger.Logger
	Courses     learningrepo.CourseRepo
	Documents   materialsrepo.DocumentRepo
	Progression *progression.Service
}

type Service struct {
	deps     Deps
	log      *logger.Logger
	validate *validator.Validate
}

func New(deps Deps) *Service {
	return &Service{deps: deps, log: deps.Log.With("service", "CourseService"), validate: validator.New()}
}

type ChapterInput struct {
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content" validate:"max=200000"`
}

type LevelInput struct {
	Title    string         `json:"title" validate:"required,max=200"`
	Chapters []ChapterInput `json:"chapters" validate:"max=100,dive"`
}

type CreateCourseInput struct {
	Title       string       `json:"title" validate:"required,max=200"`
	Description string       `json:"description" validate:"max=4000"`
	Levels      []LevelInput `json:"levels" validate:"min=1,max=50,dive"`
	DocumentIDs []uuid.UUID  `json:"document_ids"`
}

func validationError(code string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apierr.Validation(code, "%s failed %q", strings.ToLower(verrs[0].Namespace()), verrs[0].Tag())
	}
	return apierr.Validation(code, "%v", err)
}

// CreateCourse writes the course outline in order and unlocks its first
// level for the owner in the same transaction.
func (s *Service) CreateCourse(ctx context.Context, ownerID uuid.UUID, in CreateCourseInput) (*types.Course, error) {
	if ownerID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError("invalid_course", err)
	}
	docIDs, err := s.ownedDocuments(ctx, ownerID, in.DocumentIDs)
	if err != nil {
		return nil, err
	}

	course := &types.Course{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
	}
	for i, l := range in.Levels {
		level := types.CourseLevel{ID: uuid.New(), OrderIndex: i, Title: strings.TrimSpace(l.Title)}
		for j, ch := range l.Chapters {
			level.Chapters = append(level.Chapters, types.Chapter{
				ID:         uuid.New(),
				OrderIndex: j,
				Title:      strings.TrimSpace(ch.Title),
				Content:    ch.Content,
			})
		}
		course.Levels = append(course.Levels, level)
	}

	err = s.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		if err := s.deps.Courses.Create(dbc, course); err != nil {
			return fmt.Errorf("create course: %w", err)
		}
		if err := s.deps.Progression.InitialUnlock(dbc, ownerID, course); err != nil {
			return err
		}
		if len(docIDs) > 0 {
			if err := s.deps.Courses.AttachDocuments(dbc, course.ID, docIDs); err != nil {
				return fmt.Errorf("attach documents: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("course created", "course_id", course.ID, "owner_id", ownerID, "levels", len(course.Levels))
	return course, nil
}

// ownedDocuments dedupes ids and fails unless every one belongs to ownerID.
func (s *Service) ownedDocuments(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	ids = lo.Uniq(lo.Filter(ids, func(id uuid.UUID, _ int) bool { return id != uuid.Nil }))
	if len(ids) == 0 {
		return nil, nil
	}
	owned, err := s.deps.Documents.ListOwnedIDs(dbctx.Context{Ctx: ctx}, ownerID, ids)
	if err != nil {
		return nil, fmt.Errorf("check document ownership: %w", err)
	}
	if len(owned) != len(ids) {
		return nil, apierr.NotFound("document_not_found", "document not found")
	}
	return ids, nil
}

func (s *Service) ownedCourse(ctx context.Context, ownerID, courseID uuid.UUID) (*types.Course, error) {
	if ownerID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	course, err := s.deps.Courses.GetByOwnerAndID(dbctx.Context{Ctx: ctx}, ownerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, apierr.NotFound("course_not_found", "course not found")
	}
	return course, nil
}

// AttachDocuments links owned documents to a course for scoped retrieval and
// returns the full attached set.
func (s *Service) AttachDocuments(ctx context.Context, ownerID, courseID uuid.UUID, documentIDs []uuid.UUID) ([]uuid.UUID, error) {
	course, err := s.ownedCourse(ctx, ownerID, courseID)
	if err != nil {
		return nil, err
	}
	ids, err := s.ownedDocuments(ctx, ownerID, documentIDs)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apierr.Validation("invalid_documents", "at least one document id is required")
	}
	dbc := dbctx.Context{Ctx: ctx}
	if err := s.deps.Courses.AttachDocuments(dbc, course.ID, ids); err != nil {
		return nil, fmt.Errorf("attach documents: %w", err)
	}
	return s.deps.Courses.ListDocumentIDs(dbc, course.ID)
}

type ChapterSummary struct {
	ID         uuid.UUID `json:"id"`
	OrderIndex int       `json:"order_index"`
	Title      string    `json:"title"`
}

type LevelView struct {
	ID           uuid.UUID          `json:"id"`
	OrderIndex   int                `json:"order_index"`
	Title        string             `json:"title"`
	Unlocked     bool               `json:"unlocked"`
	UnlockReason types.UnlockReason `json:"unlock_reason,omitempty"`
	UnlockedAt   *time.Time         `json:"unlocked_at,omitempty"`
	Chapters     []ChapterSummary   `json:"chapters"`
}

type CourseView struct {
	ID          uuid.UUID   `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Levels      []LevelView `json:"levels"`
	DocumentIDs []uuid.UUID `json:"document_ids"`
	CreatedAt   time.Time   `json:"created_at"`
}

// GetCourse returns the outline with the caller's unlock state per level.
func (s *Service) GetCourse(ctx context.Context, ownerID, courseID uuid.UUID) (*CourseView, error) {
	if ownerID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	dbc := dbctx.Context{Ctx: ctx}
	course, err := s.deps.Courses.GetWithOutline(dbc, ownerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, apierr.NotFound("course_not_found", "course not found")
	}
	states, err := s.deps.Progression.States(ctx, ownerID, course.ID)
	if err != nil {
		return nil, err
	}
	docIDs, err := s.deps.Courses.ListDocumentIDs(dbc, course.ID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	view := &CourseView{
		ID:          course.ID,
		Title:       course.Title,
		Description: course.Description,
		Levels:      make([]LevelView, 0, len(course.Levels)),
		DocumentIDs: docIDs,
		CreatedAt:   course.CreatedAt,
	}
	for _, l := range course.Levels {
		lv := LevelView{ID: l.ID, OrderIndex: l.OrderIndex, Title: l.Title, Chapters: make([]ChapterSummary, 0, len(l.Chapters))}
		if u, ok := states[l.ID]; ok {
			at := u.UnlockedAt
			lv.Unlocked = true
			lv.UnlockReason = u.Reason
			lv.UnlockedAt = &at
		} else if l.OrderIndex == 0 {
			lv.Unlocked = true
			lv.UnlockReason = types.UnlockInitial
		}
		for _, ch := range l.Chapters {
			lv.Chapters = append(lv.Chapters, ChapterSummary{ID: ch.ID, OrderIndex: ch.OrderIndex, Title: ch.Title})
		}
		view.Levels = append(view.Levels, lv)
	}
	return view, nil
}

func (s *Service) ListCourses(ctx context.Context, ownerID uuid.UUID) ([]*types.Course, error) {
	if ownerID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	return s.deps.Courses.ListByOwner(dbctx.Context{Ctx: ctx}, ownerID)
}

func (s *Service) DeleteCourse(ctx context.Context, ownerID, courseID uuid.UUID) error {
	course, err := s.ownedCourse(ctx, ownerID, courseID)
	if err != nil {
		return err
	}
	return s.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		return s.deps.Courses.Delete(dbc, course.ID)
	})
}

// GetChapter returns chapter content once its level is reachable.
func (s *Service) GetChapter(ctx context.Context, ownerID, chapterID uuid.UUID) (*types.Chapter, error) {
	if ownerID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	ch, err := s.deps.Courses.GetChapter(dbctx.Context{Ctx: ctx}, chapterID)
	if err != nil {
		return nil, fmt.Errorf("load chapter: %w", err)
	}
	if ch == nil {
		return nil, apierr.NotFound("chapter_not_found", "chapter not found")
	}
	r, err := s.deps.Progression.IsReachable(ctx, ownerID, ch.LevelID)
	if err != nil {
		if apierr.IsKind(err, apierr.KindNotFound) {
			return nil, apierr.NotFound("chapter_not_found", "chapter not found")
		}
		return nil, err
	}
	if !r.Reachable {
		return nil, apierr.Forbidden("level_locked", "this chapter's level is locked")
	}
	return ch, nil
}
