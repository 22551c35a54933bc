package courses

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/lumen-backend/internal/data/db"
	learningrepo "github.com/yungbote/lumen-backend/internal/data/repos/learning"
	materialsrepo "github.com/yungbote/lumen-backend/internal/data/repos/materials"
	"github.com/yungbote/lumen-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lumen-backend/internal/domain/learning"
	materials "github.com/yungbote/lumen-backend/internal/domain/materials"
	"github.com/yungbote/lumen-backend/internal/modules/progression"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
)

func newService(t *testing.T) (*Service, *progression.Service, *gorm.DB) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	courses := learningrepo.NewCourseRepo(gdb, log)
	prog := progression.New(progression.Deps{
		Log:      log,
		Courses:  courses,
		Unlocks:  learningrepo.NewLevelUnlockRepo(gdb, log),
		Quizzes:  learningrepo.NewQuizRepo(gdb, log),
		Attempts: learningrepo.NewAttemptRepo(gdb, log),
	})
	svc := New(Deps{
		Tx:          db.NewTxRunner(gdb),
		Log:         log,
		Courses:     courses,
		Documents:   materialsrepo.NewDocumentRepo(gdb, log),
		Progression: prog,
	})
	return svc, prog, gdb
}

func sampleInput() CreateCourseInput {
	return CreateCourseInput{
		Title: "Cell biology",
		Levels: []LevelInput{
			{Title: "Basics", Chapters: []ChapterInput{{Title: "Membranes", Content: "lipids"}, {Title: "Organelles"}}},
			{Title: "Advanced", Chapters: []ChapterInput{{Title: "Signalling", Content: "kinases"}}},
		},
	}
}

func TestCreateCourseUnlocksFirstLevel(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	owner := uuid.New()

	course, err := svc.CreateCourse(ctx, owner, sampleInput())
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	view, err := svc.GetCourse(ctx, owner, course.ID)
	if err != nil {
		t.Fatalf("GetCourse: %v", err)
	}
	if len(view.Levels) != 2 {
		t.Fatalf("levels: got %d", len(view.Levels))
	}
	first, second := view.Levels[0], view.Levels[1]
	if first.OrderIndex != 0 || !first.Unlocked || first.UnlockReason != types.UnlockInitial || first.UnlockedAt == nil {
		t.Fatalf("level 0 should carry an initial unlock record: %+v", first)
	}
	if second.Unlocked {
		t.Fatalf("level 1 should start locked")
	}
	if len(first.Chapters) != 2 || first.Chapters[0].Title != "Membranes" || first.Chapters[1].OrderIndex != 1 {
		t.Fatalf("chapter order: %+v", first.Chapters)
	}

	if _, err := svc.GetCourse(ctx, uuid.New(), course.ID); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("stranger: expected not found, got %v", err)
	}
}

func TestCreateCourseValidates(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	owner := uuid.New()

	if _, err := svc.CreateCourse(ctx, owner, CreateCourseInput{Title: "empty"}); !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("no levels: expected validation, got %v", err)
	}
	bad := sampleInput()
	bad.Levels[1].Chapters[0].Title = ""
	if _, err := svc.CreateCourse(ctx, owner, bad); !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("untitled chapter: expected validation, got %v", err)
	}
	if _, err := svc.CreateCourse(ctx, uuid.Nil, sampleInput()); !apierr.IsKind(err, apierr.KindUnauthorized) {
		t.Fatalf("anonymous: expected unauthorized, got %v", err)
	}
}

func TestAttachDocumentsRequiresOwnership(t *testing.T) {
	svc, _, gdb := newService(t)
	ctx := context.Background()
	owner := uuid.New()
	mine := testutil.SeedDocument(t, ctx, gdb, owner, materials.StatusCompleted)
	theirs := testutil.SeedDocument(t, ctx, gdb, uuid.New(), materials.StatusCompleted)

	course, err := svc.CreateCourse(ctx, owner, sampleInput())
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	if _, err := svc.AttachDocuments(ctx, owner, course.ID, []uuid.UUID{mine.ID, theirs.ID}); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("foreign document: expected not found, got %v", err)
	}
	ids, err := svc.AttachDocuments(ctx, owner, course.ID, []uuid.UUID{mine.ID, mine.ID})
	if err != nil {
		t.Fatalf("AttachDocuments: %v", err)
	}
	if len(ids) != 1 || ids[0] != mine.ID {
		t.Fatalf("attached: %v", ids)
	}
}

func TestGetChapterEnforcesReachability(t *testing.T) {
	svc, prog, _ := newService(t)
	ctx := context.Background()
	owner := uuid.New()

	course, err := svc.CreateCourse(ctx, owner, sampleInput())
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	open := course.Levels[0].Chapters[0]
	locked := course.Levels[1].Chapters[0]

	ch, err := svc.GetChapter(ctx, owner, open.ID)
	if err != nil || ch.Content != "lipids" {
		t.Fatalf("open chapter: %+v %v", ch, err)
	}
	if _, err := svc.GetChapter(ctx, owner, locked.ID); !apierr.IsKind(err, apierr.KindForbidden) {
		t.Fatalf("locked chapter: expected forbidden, got %v", err)
	}
	if _, err := svc.GetChapter(ctx, uuid.New(), open.ID); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("stranger: expected not found, got %v", err)
	}

	if _, err := prog.Skip(ctx, owner, course.ID, course.Levels[0].ID); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	ch, err = svc.GetChapter(ctx, owner, locked.ID)
	if err != nil || ch.Content != "kinases" {
		t.Fatalf("chapter after skip: %+v %v", ch, err)
	}
}

func TestDeleteCourse(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	owner := uuid.New()
	course, err := svc.CreateCourse(ctx, owner, sampleInput())
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	if err := svc.DeleteCourse(ctx, uuid.New(), course.ID); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("stranger delete: expected not found, got %v", err)
	}
	if err := svc.DeleteCourse(ctx, owner, course.ID); err != nil {
		t.Fatalf("DeleteCourse: %v", err)
	}
	list, err := svc.ListCourses(ctx, owner)
	if err != nil || len(list) != 0 {
		t.Fatalf("courses after delete: %d %v", len(list), err)
	}
}
