package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/lumen-backend/internal/data/db"
	learningrepo "github.com/yungbote/lumen-backend/internal/data/repos/learning"
	materialsrepo "github.com/yungbote/lumen-backend/internal/data/repos/materials"
	types "github.com/yungbote/lumen-backend/internal/domain/materials"
	"github.com/yungbote/lumen-backend/internal/observability"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/gcp"
	"github.com/yungbote/lumen-backend/internal/platform/llm"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
	"github.com/yungbote/lumen-backend/internal/realtime"
)

// Scheduler runs extract then chunk+embed for a document in the background.
type Scheduler interface {
	ScheduleIngest(ctx context.Context, documentID uuid.UUID) error
}

type Deps struct {
	DB        *gorm.DB
	Log       *logger.Logger
	Documents materialsrepo.DocumentRepo
	Chunks    materialsrepo.ChunkRepo
	Courses   learningrepo.CourseRepo
	Storage   gcp.BucketService
	Extractor Extractor
	Models    *llm.Router
	Notify    realtime.Notifier
	Metrics   *observability.Metrics
}

type Pipeline struct {
	deps      Deps
	cfg       Config
	log       *logger.Logger
	validate  *validator.Validate
	scheduler Scheduler
}

func New(deps Deps, cfg Config) *Pipeline {
	if deps.Notify == nil {
		deps.Notify = realtime.NopNotifier()
	}
	cfg, notes := cfg.normalized()
	log := deps.Log.With("service", "IngestionPipeline")
	for _, n := range notes {
		log.Warn("Ingestion config value replaced", "detail", n)
	}
	return &Pipeline{
		deps:     deps,
		cfg:      cfg,
		log:      log,
		validate: validator.New(),
	}
}

// MaxBytes is the upload size ceiling in effect.
func (p *Pipeline) MaxBytes() int64 { return p.cfg.MaxBytes }

// SetScheduler wires the background runner. Without one, stages only run
// when called explicitly.
func (p *Pipeline) SetScheduler(s Scheduler) { p.scheduler = s }

type RegisterInput struct {
	Filename     string             `json:"filename" validate:"required,max=255"`
	DeclaredType types.DeclaredType `json:"declared_type" validate:"required"`
	SizeBytes    int64              `json:"size_bytes" validate:"gt=0"`
	StorageKey   string             `json:"storage_key" validate:"required,max=1024"`
}

// Register records a document whose bytes already sit at in.StorageKey.
func (p *Pipeline) Register(ctx context.Context, ownerID uuid.UUID, in RegisterInput) (*types.SourceDocument, error) {
	doc, err := p.register(ctx, ownerID, uuid.Nil, in)
	if err != nil {
		return nil, err
	}
	p.schedule(ctx, doc.ID)
	return doc, nil
}

func (p *Pipeline) register(ctx context.Context, ownerID uuid.UUID, id uuid.UUID, in RegisterInput) (*types.SourceDocument, error) {
	if ownerID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	if err := p.validateRegister(in); err != nil {
		return nil, err
	}
	if !LocatorOwnedBy(in.StorageKey, ownerID) {
		return nil, apierr.Forbidden("locator_forbidden", "storage locator is outside the caller's namespace")
	}

	doc := &types.SourceDocument{
		ID:               id,
		OwnerID:          ownerID,
		Filename:         strings.TrimSpace(in.Filename),
		DeclaredType:     in.DeclaredType,
		SizeBytes:        in.SizeBytes,
		StorageKey:       in.StorageKey,
		ProcessingStatus: types.StatusRegistered,
	}
	if err := p.deps.Documents.Create(dbctx.Context{Ctx: ctx}, doc); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apierr.Conflict("document_exists", "a document is already registered at this locator")
		}
		return nil, fmt.Errorf("create document: %w", err)
	}
	p.deps.Metrics.ObserveStageTransition("", string(types.StatusRegistered))
	p.notifyStatus(ctx, doc)
	p.log.Info("document registered", "document_id", doc.ID, "owner_id", ownerID, "declared_type", doc.DeclaredType, "size_bytes", doc.SizeBytes)
	return doc, nil
}

func (p *Pipeline) validateRegister(in RegisterInput) error {
	if err := p.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apierr.Validation("invalid_document", "%s failed %q", strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return apierr.Validation("invalid_document", "%v", err)
	}
	if !in.DeclaredType.Valid() {
		return apierr.Validation("invalid_declared_type", "declared type %q is not one of pdf, docx, plain-text", in.DeclaredType)
	}
	if in.SizeBytes > p.cfg.MaxBytes {
		return apierr.Validation("document_too_large", "document is %d bytes; the limit is %d", in.SizeBytes, p.cfg.MaxBytes)
	}
	return nil
}

// LocatorOwnedBy reports whether key lives under "<ownerID>/".
func LocatorOwnedBy(key string, ownerID uuid.UUID) bool {
	if ownerID == uuid.Nil || key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	segs := strings.Split(key, "/")
	if len(segs) < 2 || segs[0] != ownerID.String() {
		return false
	}
	for _, s := range segs[1:] {
		if s == "" || s == "." || s == ".." {
			return false
		}
	}
	return true
}

// DocumentKey is the canonical locator for an uploaded document.
func DocumentKey(ownerID, documentID uuid.UUID, filename string) string {
	return fmt.Sprintf("%s/documents/%s/%s", ownerID, documentID, sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		case r == ' ':
			sb.WriteByte('_')
		}
	}
	out := strings.Trim(sb.String(), ".")
	if out == "" {
		return "document"
	}
	return out
}

type UploadInput struct {
	Filename     string
	DeclaredType types.DeclaredType
	SizeBytes    int64
	Body         io.Reader
}

// Upload stores bytes under the owner namespace, registers the document and
// schedules the pipeline.
func (p *Pipeline) Upload(ctx context.Context, ownerID uuid.UUID, in UploadInput) (*types.SourceDocument, error) {
	if ownerID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	if in.Body == nil {
		return nil, apierr.Validation("invalid_document", "file body is required")
	}
	id := uuid.New()
	reg := RegisterInput{
		Filename:     in.Filename,
		DeclaredType: in.DeclaredType,
		SizeBytes:    in.SizeBytes,
		StorageKey:   DocumentKey(ownerID, id, in.Filename),
	}
	if err := p.validateRegister(reg); err != nil {
		return nil, err
	}
	if p.deps.Storage == nil {
		return nil, apierr.Upstream("storage_unavailable", errors.New("object storage is not configured"))
	}

	upCtx, cancel := context.WithTimeout(ctx, p.cfg.ExtractTimeout)
	defer cancel()
	body := io.LimitReader(in.Body, p.cfg.MaxBytes+1)
	if err := p.deps.Storage.Upload(upCtx, reg.StorageKey, body, in.DeclaredType.MimeType()); err != nil {
		return nil, apierr.Upstream("storage_failed", fmt.Errorf("upload document: %w", err))
	}

	doc, err := p.register(ctx, ownerID, id, reg)
	if err != nil {
		p.removeObject(ctx, reg.StorageKey)
		return nil, err
	}
	p.schedule(ctx, doc.ID)
	return doc, nil
}

func (p *Pipeline) Get(ctx context.Context, ownerID, id uuid.UUID) (*types.SourceDocument, error) {
	if ownerID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	doc, err := p.deps.Documents.GetByOwnerAndID(dbctx.Context{Ctx: ctx}, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return nil, apierr.NotFound("document_not_found", "document not found")
	}
	return doc, nil
}

func (p *Pipeline) List(ctx context.Context, ownerID uuid.UUID) ([]*types.SourceDocument, error) {
	if ownerID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	return p.deps.Documents.ListByOwner(dbctx.Context{Ctx: ctx}, ownerID, 0)
}

func (p *Pipeline) SignedURL(ctx context.Context, ownerID, id uuid.UUID) (string, error) {
	doc, err := p.Get(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	if p.deps.Storage == nil {
		return "", apierr.Upstream("storage_unavailable", errors.New("object storage is not configured"))
	}
	url, err := p.deps.Storage.SignedURL(ctx, doc.StorageKey, p.cfg.SignedURLTTL)
	if err != nil {
		return "", apierr.Upstream("storage_failed", err)
	}
	return url, nil
}

// Delete removes the document, its chunks and course links in one
// transaction, then the stored object on a best-effort basis.
func (p *Pipeline) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	doc, err := p.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := p.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if p.deps.Courses != nil {
			if err := p.deps.Courses.DetachDocument(dbc, doc.ID); err != nil {
				return err
			}
		}
		return p.deps.Documents.Delete(dbc, doc.ID)
	}); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	p.removeObject(ctx, doc.StorageKey)
	p.log.Info("document deleted", "document_id", doc.ID, "owner_id", ownerID)
	return nil
}

// Retry puts a failed document back at the last stage that completed.
func (p *Pipeline) Retry(ctx context.Context, ownerID, id uuid.UUID) (*types.SourceDocument, error) {
	doc, err := p.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if doc.ProcessingStatus != types.StatusFailed {
		return nil, apierr.PipelineState("document_not_failed", "document is %s; only failed documents can be retried", doc.ProcessingStatus)
	}
	to := types.StatusRegistered
	if strings.TrimSpace(doc.ExtractedText) != "" {
		to = types.StatusExtracted
	}
	ok, err := p.deps.Documents.Transition(dbctx.Context{Ctx: ctx}, doc.ID, []types.DocumentStatus{types.StatusFailed}, to, map[string]interface{}{
		"error_message":     "",
		"stage_lease_until": nil,
	})
	if err != nil {
		return nil, fmt.Errorf("retry document: %w", err)
	}
	if !ok {
		return nil, apierr.PipelineState("document_not_failed", "document changed state concurrently")
	}
	p.deps.Metrics.ObserveStageTransition(string(types.StatusFailed), string(to))
	doc, err = p.reload(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	p.notifyStatus(ctx, doc)
	p.schedule(ctx, doc.ID)
	return doc, nil
}

// RequestExtract runs extraction for a caller-owned document.
func (p *Pipeline) RequestExtract(ctx context.Context, ownerID, id uuid.UUID) (*types.SourceDocument, error) {
	if _, err := p.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return p.Extract(ctx, id)
}

// Extract moves registered -> extracting -> extracted. Unreadable content ends
// in failed; storage or provider errors revert to registered so the stage can
// be retried.
func (p *Pipeline) Extract(ctx context.Context, id uuid.UUID) (*types.SourceDocument, error) {
	doc, err := p.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	switch doc.ProcessingStatus {
	case types.StatusExtracted, types.StatusEmbedding, types.StatusCompleted:
		return doc, nil
	case types.StatusFailed:
		return nil, apierr.PipelineState("document_failed", "document failed: %s", doc.ErrorMessage)
	}

	now := time.Now().UTC()
	ok, err := p.deps.Documents.Claim(dbctx.Context{Ctx: ctx}, doc.ID, types.StatusRegistered, types.StatusExtracting, now, now.Add(p.cfg.ExtractTimeout+time.Minute), uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("claim extraction: %w", err)
	}
	if !ok {
		cur, err := p.reload(ctx, id)
		if err != nil {
			return nil, err
		}
		switch cur.ProcessingStatus {
		case types.StatusExtracted, types.StatusEmbedding, types.StatusCompleted:
			return cur, nil
		}
		return nil, apierr.PipelineState("document_stage_busy", "document is %s", cur.ProcessingStatus)
	}
	p.deps.Metrics.ObserveStageTransition(string(doc.ProcessingStatus), string(types.StatusExtracting))
	doc.ProcessingStatus = types.StatusExtracting
	p.notifyStatus(ctx, doc)

	text, err := p.readAndExtract(ctx, doc)
	if err != nil {
		if errors.Is(err, ErrUnreadable) {
			return p.failFrom(ctx, doc.ID, types.StatusExtracting, err.Error())
		}
		p.log.Warn("extraction failed, document returned to registered", "document_id", doc.ID, "error", err)
		if _, terr := p.deps.Documents.Transition(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, doc.ID,
			[]types.DocumentStatus{types.StatusExtracting}, types.StatusRegistered,
			map[string]interface{}{"error_message": "extraction failed: " + err.Error(), "stage_lease_until": nil},
		); terr != nil {
			p.log.Error("revert extraction state failed", "document_id", doc.ID, "error", terr)
		}
		p.deps.Metrics.ObserveStageTransition(string(types.StatusExtracting), string(types.StatusRegistered))
		return nil, apierr.Upstream("extract_failed", err)
	}

	summary := p.summarize(ctx, text)
	at := time.Now().UTC()
	ok, err = p.deps.Documents.Transition(dbctx.Context{Ctx: ctx}, doc.ID, []types.DocumentStatus{types.StatusExtracting}, types.StatusExtracted, map[string]interface{}{
		"extracted_text":    text,
		"summary":           summary,
		"extracted_at":      at,
		"error_message":     "",
		"stage_lease_until": nil,
	})
	if err != nil {
		return nil, fmt.Errorf("finish extraction: %w", err)
	}
	if !ok {
		return nil, apierr.PipelineState("document_stage_busy", "document left extracting while text was being extracted")
	}
	p.deps.Metrics.ObserveStageTransition(string(types.StatusExtracting), string(types.StatusExtracted))

	doc, err = p.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	p.notifyStatus(ctx, doc)
	p.log.Info("document extracted", "document_id", doc.ID, "chars", len([]rune(text)))
	return doc, nil
}

func (p *Pipeline) readAndExtract(ctx context.Context, doc *types.SourceDocument) (string, error) {
	if p.deps.Storage == nil {
		return "", errors.New("object storage is not configured")
	}
	if p.deps.Extractor == nil {
		return "", errors.New("text extractor is not configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.ExtractTimeout)
	defer cancel()

	rc, err := p.deps.Storage.Download(callCtx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, gcp.ErrObjectNotFound) {
			return "", fmt.Errorf("%w: stored object is missing", ErrUnreadable)
		}
		return "", fmt.Errorf("download: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, p.cfg.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	if int64(len(data)) > p.cfg.MaxBytes {
		return "", fmt.Errorf("%w: stored object exceeds %d bytes", ErrUnreadable, p.cfg.MaxBytes)
	}
	return p.deps.Extractor.Extract(callCtx, doc.DeclaredType, data)
}

func (p *Pipeline) failFrom(ctx context.Context, id uuid.UUID, from types.DocumentStatus, reason string) (*types.SourceDocument, error) {
	ok, err := p.deps.Documents.Transition(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, id, []types.DocumentStatus{from}, types.StatusFailed, map[string]interface{}{
		"error_message":     reason,
		"stage_lease_until": nil,
	})
	if err != nil {
		return nil, fmt.Errorf("mark document failed: %w", err)
	}
	if ok {
		p.deps.Metrics.ObserveStageTransition(string(from), string(types.StatusFailed))
		p.log.Warn("document failed", "document_id", id, "stage", from, "reason", reason)
	}
	doc, err := p.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	p.notifyStatus(ctx, doc)
	return doc, nil
}

func (p *Pipeline) reload(ctx context.Context, id uuid.UUID) (*types.SourceDocument, error) {
	doc, err := p.deps.Documents.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return nil, apierr.NotFound("document_not_found", "document not found")
	}
	return doc, nil
}

func (p *Pipeline) schedule(ctx context.Context, id uuid.UUID) {
	if p.scheduler == nil {
		return
	}
	if err := p.scheduler.ScheduleIngest(ctx, id); err != nil {
		p.log.Warn("schedule ingest failed", "document_id", id, "error", err)
	}
}

func (p *Pipeline) removeObject(ctx context.Context, key string) {
	if p.deps.Storage == nil || key == "" {
		return
	}
	rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := p.deps.Storage.Remove(rmCtx, key); err != nil {
		p.log.Warn("remove stored object failed", "key", key, "error", err)
	}
}

func (p *Pipeline) notifyStatus(ctx context.Context, doc *types.SourceDocument) {
	if doc == nil {
		return
	}
	p.deps.Notify.Notify(ctx, doc.OwnerID, realtime.SSEEventDocumentStatusChanged, map[string]any{
		"document_id":   doc.ID,
		"status":        doc.ProcessingStatus,
		"chunk_count":   doc.ChunkCount,
		"error_message": doc.ErrorMessage,
	})
}
