package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	learningrepo "github.com/yungbote/lumen-backend/internal/data/repos/learning"
	materialsrepo "github.com/yungbote/lumen-backend/internal/data/repos/materials"
	"github.com/yungbote/lumen-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lumen-backend/internal/domain/materials"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/gcp"
	"github.com/yungbote/lumen-backend/internal/platform/llm"
)

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
}

func newMemStorage() *memStorage { return &memStorage{objects: map[string][]byte{}} }

func (s *memStorage) Upload(_ context.Context, key string, r io.Reader, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	return nil
}

func (s *memStorage) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.test/" + key, nil
}

func (s *memStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.removed = append(s.removed, key)
	return nil
}

func (s *memStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, gcp.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *memStorage) Close() error { return nil }

// fakeEmbedder returns [rune count, 1, 0...] vectors. It fails any call
// carrying the poison marker, or every call when failAll is set. delay slows
// every call and onCall runs before each one.
type fakeEmbedder struct {
	mu      sync.Mutex
	poison  string
	failAll bool
	dims    int
	inputs  []string
	delay   time.Duration
	onCall  func()
}

func (e *fakeEmbedder) Embed(ctx context.Context, in []string) ([][]float32, error) {
	if e.onCall != nil {
		e.onCall()
	}
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append(e.inputs, in...)
	if e.failAll {
		return nil, errors.New("provider unavailable")
	}
	out := make([][]float32, 0, len(in))
	for _, s := range in {
		if e.poison != "" && strings.Contains(s, e.poison) {
			return nil, errors.New("provider rejected input")
		}
		v := make([]float32, e.dims)
		v[0] = float32(len([]rune(s)))
		if e.dims > 1 {
			v[1] = 1
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *fakeEmbedder) calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.inputs...)
}

type fakeGen struct {
	summary string
	err     error
}

func (g fakeGen) GenerateJSON(context.Context, string, string, string, map[string]any) (map[string]any, error) {
	if g.err != nil {
		return nil, g.err
	}
	return map[string]any{"summary": g.summary}, nil
}

func (g fakeGen) GenerateText(context.Context, string, string) (string, error) {
	return g.summary, g.err
}

type harness struct {
	p       *Pipeline
	docs    materialsrepo.DocumentRepo
	chunks  materialsrepo.ChunkRepo
	storage *memStorage
	embed   *fakeEmbedder
}

func newHarness(t *testing.T, gen fakeGen) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	emb := &fakeEmbedder{dims: 3}
	router, _, err := llm.NewRouter(llm.DefaultRoutes(), llm.StaticProvider("openai", gen, emb))
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	h := &harness{
		docs:    materialsrepo.NewDocumentRepo(db, log),
		chunks:  materialsrepo.NewChunkRepo(db, log),
		storage: newMemStorage(),
		embed:   emb,
	}
	cfg := DefaultConfig()
	cfg.ChunkSize = 64
	cfg.ChunkOverlap = 16
	cfg.EmbedDimensions = 3
	cfg.EmbedBatchSize = 2
	cfg.EmbedConcurrency = 2
	h.p = New(Deps{
		DB:        db,
		Log:       log,
		Documents: h.docs,
		Chunks:    h.chunks,
		Courses:   learningrepo.NewCourseRepo(db, log),
		Storage:   h.storage,
		Extractor: NewExtractor(log, nil),
		Models:    router,
	}, cfg)
	return h
}

func sampleText(paragraphs int) string {
	var sb strings.Builder
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&sb, "Paragraph %d explains one idea about cells and membranes in detail.\n\n", i)
	}
	return sb.String()
}

func (h *harness) upload(t *testing.T, owner uuid.UUID, text string) *types.SourceDocument {
	t.Helper()
	doc, err := h.p.Upload(context.Background(), owner, UploadInput{
		Filename:     "notes.txt",
		DeclaredType: types.TypePlainText,
		SizeBytes:    int64(len(text)),
		Body:         strings.NewReader(text),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return doc
}

func TestRegisterRejectsBadInput(t *testing.T) {
	h := newHarness(t, fakeGen{summary: "s"})
	ctx := context.Background()
	owner := uuid.New()
	good := RegisterInput{
		Filename:     "a.pdf",
		DeclaredType: types.TypePDF,
		SizeBytes:    10,
		StorageKey:   owner.String() + "/documents/x/a.pdf",
	}

	bad := good
	bad.DeclaredType = "exe"
	if _, err := h.p.Register(ctx, owner, bad); !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("declared type: expected validation error, got %v", err)
	}

	bad = good
	bad.SizeBytes = DefaultConfig().MaxBytes + 1
	if _, err := h.p.Register(ctx, owner, bad); !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("size: expected validation error, got %v", err)
	}

	bad = good
	bad.StorageKey = uuid.NewString() + "/documents/x/a.pdf"
	if _, err := h.p.Register(ctx, owner, bad); !apierr.IsKind(err, apierr.KindForbidden) {
		t.Fatalf("locator: expected forbidden error, got %v", err)
	}
	list, err := h.p.List(ctx, owner)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("rejected registration created %d documents", len(list))
	}

	if _, err := h.p.Register(ctx, owner, good); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := h.p.Register(ctx, owner, good); !apierr.IsKind(err, apierr.KindConflict) {
		t.Fatalf("duplicate locator: expected conflict, got %v", err)
	}
}

func TestLocatorOwnedBy(t *testing.T) {
	owner := uuid.New()
	cases := map[string]bool{
		owner.String() + "/documents/a/b.txt":   true,
		owner.String():                          false,
		"/" + owner.String() + "/x":             false,
		owner.String() + "/../other/x":          false,
		uuid.NewString() + "/documents/a/b.txt": false,
		owner.String() + "//x":                  false,
	}
	for key, want := range cases {
		if got := LocatorOwnedBy(key, owner); got != want {
			t.Fatalf("LocatorOwnedBy(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestPipelineRunsToCompletion(t *testing.T) {
	h := newHarness(t, fakeGen{summary: "A document about cells."})
	ctx := context.Background()
	owner := uuid.New()
	doc := h.upload(t, owner, sampleText(6))

	doc, err := h.p.Extract(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.ProcessingStatus != types.StatusExtracted {
		t.Fatalf("status after extract: %q", doc.ProcessingStatus)
	}
	if doc.Summary != "A document about cells." {
		t.Fatalf("summary: %q", doc.Summary)
	}

	again, err := h.p.Extract(ctx, doc.ID)
	if err != nil || again.ProcessingStatus != types.StatusExtracted {
		t.Fatalf("re-extract should be a no-op: %v %v", again, err)
	}

	res, err := h.p.ChunkAndEmbed(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ChunkAndEmbed: %v", err)
	}
	if res.Status != types.StatusCompleted || res.RemainingCount != 0 || res.TotalChunks < 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.EmbeddedCount != res.TotalChunks {
		t.Fatalf("embedded %d of %d", res.EmbeddedCount, res.TotalChunks)
	}

	chunks, err := h.chunks.ListByDocument(dbctx.Context{Ctx: ctx}, doc.ID)
	if err != nil {
		t.Fatalf("ListByDocument: %v", err)
	}
	for i, c := range chunks {
		if c.Ordinal != i {
			t.Fatalf("ordinal gap: position %d has ordinal %d", i, c.Ordinal)
		}
		if !c.HasEmbedding() {
			t.Fatalf("chunk %d has no embedding", i)
		}
	}

	calls := len(h.embed.calls())
	res, err = h.p.ChunkAndEmbed(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ChunkAndEmbed on completed: %v", err)
	}
	if res.EmbeddedCount != 0 || len(h.embed.calls()) != calls {
		t.Fatalf("completed document was re-embedded")
	}
}

func TestEmbeddingResumesOnlyMissingChunks(t *testing.T) {
	h := newHarness(t, fakeGen{summary: "s"})
	ctx := context.Background()
	owner := uuid.New()
	text := sampleText(3) + "POISON paragraph that the provider refuses to embed for now.\n\n" + sampleText(2)
	doc := h.upload(t, owner, text)
	if _, err := h.p.Extract(ctx, doc.ID); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	h.embed.poison = "POISON"
	res, err := h.p.ChunkAndEmbed(ctx, doc.ID)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if res.Status != types.StatusEmbedding {
		t.Fatalf("partial run should stay embedding, got %q", res.Status)
	}
	if res.RemainingCount == 0 || res.FailedCount != res.RemainingCount {
		t.Fatalf("unexpected first result: %+v", res)
	}

	before, err := h.chunks.ListByDocument(dbctx.Context{Ctx: ctx}, doc.ID)
	if err != nil {
		t.Fatalf("ListByDocument: %v", err)
	}
	vectors := map[uuid.UUID]string{}
	for _, c := range before {
		if c.HasEmbedding() {
			vectors[c.ID] = string(c.Embedding)
		} else if c.EmbedAttempts != 1 || c.EmbedError == "" {
			t.Fatalf("failed chunk %d not recorded: attempts=%d", c.Ordinal, c.EmbedAttempts)
		}
	}

	// The lease was released, so the stage can be re-run right away.
	h.embed.mu.Lock()
	h.embed.poison = ""
	h.embed.inputs = nil
	h.embed.mu.Unlock()

	res, err = h.p.ChunkAndEmbed(ctx, doc.ID)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Status != types.StatusCompleted || res.RemainingCount != 0 {
		t.Fatalf("second run result: %+v", res)
	}
	if got := len(h.embed.calls()); got != len(before)-len(vectors) {
		t.Fatalf("second run embedded %d inputs, want %d", got, len(before)-len(vectors))
	}
	after, err := h.chunks.ListByDocument(dbctx.Context{Ctx: ctx}, doc.ID)
	if err != nil {
		t.Fatalf("ListByDocument: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("chunk rows changed: %d -> %d", len(before), len(after))
	}
	for _, c := range after {
		if v, ok := vectors[c.ID]; ok && v != string(c.Embedding) {
			t.Fatalf("chunk %d vector was rewritten", c.Ordinal)
		}
	}
}

func TestEmbeddingFailsWhenEveryChunkFails(t *testing.T) {
	h := newHarness(t, fakeGen{summary: "s"})
	ctx := context.Background()
	owner := uuid.New()
	doc := h.upload(t, owner, sampleText(2))
	if _, err := h.p.Extract(ctx, doc.ID); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	h.embed.failAll = true

	res, err := h.p.ChunkAndEmbed(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ChunkAndEmbed: %v", err)
	}
	if res.Status != types.StatusFailed {
		t.Fatalf("status: got %q want failed", res.Status)
	}

	got, err := h.p.Retry(ctx, owner, doc.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got.ProcessingStatus != types.StatusExtracted || got.ErrorMessage != "" {
		t.Fatalf("retry should return to extracted: %+v", got)
	}
}

func TestEmbeddingRejectsWrongDimension(t *testing.T) {
	h := newHarness(t, fakeGen{summary: "s"})
	ctx := context.Background()
	doc := h.upload(t, uuid.New(), sampleText(2))
	if _, err := h.p.Extract(ctx, doc.ID); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	h.embed.dims = 2

	res, err := h.p.ChunkAndEmbed(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ChunkAndEmbed: %v", err)
	}
	if res.Status != types.StatusFailed || res.FailedCount != res.TotalChunks {
		t.Fatalf("wrong-dimension vectors must not be stored: %+v", res)
	}
}

func TestEmbeddingLeaseBlocksSecondWorker(t *testing.T) {
	h := newHarness(t, fakeGen{summary: "s"})
	ctx := context.Background()
	doc := h.upload(t, uuid.New(), sampleText(2))
	if _, err := h.p.Extract(ctx, doc.ID); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	now := time.Now().UTC()
	ok, err := h.docs.Claim(dbctx.Context{Ctx: ctx}, doc.ID, types.StatusExtracted, types.StatusEmbedding, now, now.Add(time.Hour), uuid.NewString())
	if err != nil || !ok {
		t.Fatalf("Claim: ok=%v err=%v", ok, err)
	}
	if _, err := h.p.ChunkAndEmbed(ctx, doc.ID); !apierr.IsKind(err, apierr.KindPipelineState) {
		t.Fatalf("expected pipeline state error, got %v", err)
	}
	if len(h.embed.calls()) != 0 {
		t.Fatalf("blocked worker called the embedder")
	}
}

func TestEmbeddingLeaseRenewedDuringSlowRun(t *testing.T) {
	h := newHarness(t, fakeGen{summary: "s"})
	ctx := context.Background()
	doc := h.upload(t, uuid.New(), sampleText(12))
	if _, err := h.p.Extract(ctx, doc.ID); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	h.p.cfg.StageLease = 250 * time.Millisecond
	h.p.cfg.EmbedConcurrency = 1
	h.embed.delay = 100 * time.Millisecond

	type outcome struct {
		res *EmbedResult
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := h.p.ChunkAndEmbed(ctx, doc.ID)
		first <- outcome{res, err}
	}()

	time.Sleep(400 * time.Millisecond)
	if _, err := h.p.ChunkAndEmbed(ctx, doc.ID); !apierr.IsKind(err, apierr.KindPipelineState) {
		t.Fatalf("second worker: expected pipeline state error, got %v", err)
	}

	got := <-first
	if got.err != nil {
		t.Fatalf("first worker: %v", got.err)
	}
	if got.res.Status != types.StatusCompleted {
		t.Fatalf("first worker: %+v", got.res)
	}
	if n := len(h.embed.calls()); n != got.res.TotalChunks {
		t.Fatalf("each chunk should be embedded once: %d inputs for %d chunks", n, got.res.TotalChunks)
	}
}

func TestEmbeddingRunStopsWhenLeaseIsTaken(t *testing.T) {
	h := newHarness(t, fakeGen{summary: "s"})
	ctx := context.Background()
	doc := h.upload(t, uuid.New(), sampleText(12))
	if _, err := h.p.Extract(ctx, doc.ID); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	h.p.cfg.EmbedConcurrency = 1

	thief := uuid.NewString()
	var once sync.Once
	h.embed.onCall = func() {
		once.Do(func() {
			later := time.Now().UTC().Add(time.Hour)
			ok, err := h.docs.Claim(dbctx.Context{Ctx: ctx}, doc.ID, types.StatusExtracted, types.StatusEmbedding, later, later.Add(time.Hour), thief)
			if err != nil || !ok {
				t.Errorf("reclaim: ok=%v err=%v", ok, err)
			}
		})
	}

	if _, err := h.p.ChunkAndEmbed(ctx, doc.ID); !apierr.IsKind(err, apierr.KindPipelineState) {
		t.Fatalf("expected pipeline state error, got %v", err)
	}
	if n := len(h.embed.calls()); n != h.p.cfg.EmbedBatchSize {
		t.Fatalf("run should stop after the first batch, embedded %d inputs", n)
	}
	cur, err := h.docs.GetByID(dbctx.Context{Ctx: ctx}, doc.ID)
	if err != nil || cur == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if cur.ProcessingStatus != types.StatusEmbedding || cur.StageLeaseToken != thief {
		t.Fatalf("lease should stay with the new holder: status=%q token=%q", cur.ProcessingStatus, cur.StageLeaseToken)
	}
}

func TestEmbedBeforeExtractIsPipelineError(t *testing.T) {
	h := newHarness(t, fakeGen{summary: "s"})
	doc := h.upload(t, uuid.New(), sampleText(1))
	if _, err := h.p.ChunkAndEmbed(context.Background(), doc.ID); !apierr.IsKind(err, apierr.KindPipelineState) {
		t.Fatalf("expected pipeline state error, got %v", err)
	}
}

func TestExtractUnreadableMarksFailed(t *testing.T) {
	h := newHarness(t, fakeGen{summary: "s"})
	ctx := context.Background()
	owner := uuid.New()
	doc := h.upload(t, owner, "   \n\n\t  ")

	got, err := h.p.Extract(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.ProcessingStatus != types.StatusFailed || !strings.Contains(got.ErrorMessage, "no readable text") {
		t.Fatalf("unexpected document: status=%q err=%q", got.ProcessingStatus, got.ErrorMessage)
	}

	again, err := h.p.Retry(ctx, owner, doc.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if again.ProcessingStatus != types.StatusRegistered {
		t.Fatalf("retry without text should return to registered, got %q", again.ProcessingStatus)
	}
}

func TestSummaryFallsBackWhenModelFails(t *testing.T) {
	h := newHarness(t, fakeGen{err: errors.New("model down")})
	ctx := context.Background()
	doc := h.upload(t, uuid.New(), "First sentence here. Second sentence follows. "+sampleText(20))

	got, err := h.p.Extract(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.HasPrefix(got.Summary, "First sentence here. Second sentence follows.") {
		t.Fatalf("summary: %q", got.Summary)
	}
	if len([]rune(got.Summary)) > DefaultConfig().SummaryMaxChars {
		t.Fatalf("summary too long: %d", len([]rune(got.Summary)))
	}
}

func TestDeleteScopesAndCascades(t *testing.T) {
	h := newHarness(t, fakeGen{summary: "s"})
	ctx := context.Background()
	owner := uuid.New()
	doc := h.upload(t, owner, sampleText(3))
	if _, err := h.p.Extract(ctx, doc.ID); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, err := h.p.ChunkAndEmbed(ctx, doc.ID); err != nil {
		t.Fatalf("ChunkAndEmbed: %v", err)
	}

	if err := h.p.Delete(ctx, uuid.New(), doc.ID); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("foreign delete: expected not found, got %v", err)
	}
	if err := h.p.Delete(ctx, owner, doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	total, _, err := h.chunks.Counts(dbctx.Context{Ctx: ctx}, doc.ID)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if total != 0 {
		t.Fatalf("chunks left behind: %d", total)
	}
	if len(h.storage.removed) != 1 || h.storage.removed[0] != doc.StorageKey {
		t.Fatalf("stored object not removed: %v", h.storage.removed)
	}
}
