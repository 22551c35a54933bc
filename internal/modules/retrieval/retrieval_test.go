package retrieval

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	learningrepo "github.com/yungbote/lumen-backend/internal/data/repos/learning"
	materialsrepo "github.com/yungbote/lumen-backend/internal/data/repos/materials"
	"github.com/yungbote/lumen-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lumen-backend/internal/domain/materials"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/llm"
)

type fixedEmbedder struct{ vec []float32 }

func (e fixedEmbedder) Embed(_ context.Context, in []string) ([][]float32, error) {
	out := make([][]float32, len(in))
	for i := range in {
		out[i] = e.vec
	}
	return out, nil
}

func newRetriever(t *testing.T, query []float32) (*Retriever, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	router, _, err := llm.NewRouter(llm.Routes{
		llm.TaskEmbedding: {Provider: "static", Model: "m"},
	}, llm.StaticProvider("static", nil, fixedEmbedder{vec: query}))
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	r := New(Deps{
		Log:       log,
		Documents: materialsrepo.NewDocumentRepo(db, log),
		Chunks:    materialsrepo.NewChunkRepo(db, log),
		Courses:   learningrepo.NewCourseRepo(db, log),
		Models:    router,
	}, Config{DefaultThreshold: 0.5, DefaultLimit: 10, MaxLimit: 20})
	return r, db
}

func TestSearchNeverLeaksAcrossOwners(t *testing.T) {
	r, db := newRetriever(t, []float32{1, 0})
	ctx := context.Background()
	owner, other := uuid.New(), uuid.New()

	mine := testutil.SeedDocument(t, ctx, db, owner, types.StatusCompleted)
	testutil.SeedChunks(t, ctx, db, mine, [][]float32{{0.8, 0.6}, {0, 1}})
	theirs := testutil.SeedDocument(t, ctx, db, other, types.StatusCompleted)
	testutil.SeedChunks(t, ctx, db, theirs, [][]float32{{1, 0}})

	res, err := r.Search(ctx, owner, Query{Text: "cells"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].DocumentID != mine.ID {
		t.Fatalf("unexpected hits: %+v", res.Hits)
	}
	if math.Abs(res.Hits[0].Score-0.8) > 1e-6 {
		t.Fatalf("score: got %f", res.Hits[0].Score)
	}

	if _, err := r.Search(ctx, owner, Query{Text: "cells", Scope: Scope{Kind: ScopeDocuments, DocumentIDs: []uuid.UUID{theirs.ID}}}); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("foreign document scope: expected not found, got %v", err)
	}
}

func TestSearchOrdersTiesByOrdinal(t *testing.T) {
	r, db := newRetriever(t, []float32{1, 0})
	ctx := context.Background()
	owner := uuid.New()
	doc := testutil.SeedDocument(t, ctx, db, owner, types.StatusCompleted)
	testutil.SeedChunks(t, ctx, db, doc, [][]float32{{0, 1}, {2, 0}, {1, 0}, {0.6, 0.8}})

	zero := 0.0
	res, err := r.Search(ctx, owner, Query{Text: "q", Threshold: &zero, Limit: 3, Scope: Scope{Kind: ScopeDocuments, DocumentIDs: []uuid.UUID{doc.ID}}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 3 {
		t.Fatalf("expected limit to truncate to 3, got %d", len(res.Hits))
	}
	if res.Hits[0].Ordinal != 1 || res.Hits[1].Ordinal != 2 || res.Hits[2].Ordinal != 3 {
		t.Fatalf("order: %d %d %d", res.Hits[0].Ordinal, res.Hits[1].Ordinal, res.Hits[2].Ordinal)
	}
}

func TestSearchCourseScopeAndNoResults(t *testing.T) {
	r, db := newRetriever(t, []float32{1, 0})
	ctx := context.Background()
	owner := uuid.New()

	inCourse := testutil.SeedDocument(t, ctx, db, owner, types.StatusCompleted)
	testutil.SeedChunks(t, ctx, db, inCourse, [][]float32{{0.9, 0.1}})
	outside := testutil.SeedDocument(t, ctx, db, owner, types.StatusCompleted)
	testutil.SeedChunks(t, ctx, db, outside, [][]float32{{1, 0}})

	course, _, _ := testutil.SeedCourse(t, ctx, db, owner, 1, 0)
	if err := r.deps.Courses.AttachDocuments(dbctx.Context{Ctx: ctx}, course.ID, []uuid.UUID{inCourse.ID}); err != nil {
		t.Fatalf("AttachDocuments: %v", err)
	}

	res, err := r.Search(ctx, owner, Query{Text: "q", Scope: Scope{Kind: ScopeCourse, CourseID: course.ID}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].DocumentID != inCourse.ID {
		t.Fatalf("course scope leaked: %+v", res.Hits)
	}

	high := 0.999
	res, err = r.Search(ctx, owner, Query{Text: "q", Threshold: &high, Scope: Scope{Kind: ScopeCourse, CourseID: course.ID}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.NoResults || len(res.Hits) != 0 {
		t.Fatalf("expected explicit no results, got %+v", res)
	}

	if _, err := r.Search(ctx, uuid.New(), Query{Text: "q", Scope: Scope{Kind: ScopeCourse, CourseID: course.ID}}); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("foreign course: expected not found, got %v", err)
	}
}

func TestSearchValidatesInput(t *testing.T) {
	r, _ := newRetriever(t, []float32{1, 0})
	ctx := context.Background()
	owner := uuid.New()
	bad := 2.0
	cases := []Query{
		{Text: "  "},
		{Text: "q", Threshold: &bad},
		{Text: "q", Limit: 500},
		{Text: "q", Scope: Scope{Kind: "galaxy"}},
		{Text: "q", Scope: Scope{Kind: ScopeDocuments}},
	}
	for i, q := range cases {
		if _, err := r.Search(ctx, owner, q); !apierr.IsKind(err, apierr.KindValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if _, err := r.Search(ctx, uuid.Nil, Query{Text: "q"}); !apierr.IsKind(err, apierr.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestCosine(t *testing.T) {
	if s, ok := Cosine([]float32{1, 0}, []float32{0, 1}); !ok || s != 0 {
		t.Fatalf("orthogonal: %v %v", s, ok)
	}
	if _, ok := Cosine([]float32{1}, []float32{1, 2}); ok {
		t.Fatalf("length mismatch should not score")
	}
	if _, ok := Cosine([]float32{0, 0}, []float32{1, 2}); ok {
		t.Fatalf("zero vector should not score")
	}
}

func TestRankBreaksTiesByOrdinalThenDocument(t *testing.T) {
	lo := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	hi := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	hits := []Hit{
		{DocumentID: lo, Ordinal: 3, Score: 0.5},
		{DocumentID: hi, Ordinal: 1, Score: 0.5},
		{DocumentID: lo, Ordinal: 1, Score: 0.5},
		{DocumentID: hi, Ordinal: 9, Score: 0.9},
	}
	Rank(hits)

	want := []struct {
		doc     uuid.UUID
		ordinal int
	}{{hi, 9}, {lo, 1}, {hi, 1}, {lo, 3}}
	for i, w := range want {
		if hits[i].DocumentID != w.doc || hits[i].Ordinal != w.ordinal {
			t.Fatalf("position %d: got doc=%s ordinal=%d", i, hits[i].DocumentID, hits[i].Ordinal)
		}
	}
}
