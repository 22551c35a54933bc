package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	materialsrepo "github.com/yungbote/lumen-backend/internal/data/repos/materials"
	types "github.com/yungbote/lumen-backend/internal/domain/materials"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/httpx"
	"github.com/yungbote/lumen-backend/internal/platform/llm"
)

type EmbedResult struct {
	DocumentID     uuid.UUID            `json:"document_id"`
	Status         types.DocumentStatus `json:"status"`
	EmbeddedCount  int                  `json:"embedded_count"`
	FailedCount    int                  `json:"failed_count"`
	RemainingCount int                  `json:"remaining_count"`
	TotalChunks    int                  `json:"total_chunks"`
}

// EmbedForOwner runs the chunk+embed stage for a caller-owned document.
func (p *Pipeline) EmbedForOwner(ctx context.Context, ownerID, id uuid.UUID) (*EmbedResult, error) {
	if _, err := p.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return p.ChunkAndEmbed(ctx, id)
}

// ChunkAndEmbed chunks the extracted text once, then embeds every chunk that
// still lacks a vector. Chunks embedded on an earlier run are left alone, so
// the stage can be re-run until the document completes.
func (p *Pipeline) ChunkAndEmbed(ctx context.Context, id uuid.UUID) (*EmbedResult, error) {
	doc, err := p.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	switch doc.ProcessingStatus {
	case types.StatusRegistered, types.StatusExtracting:
		return nil, apierr.PipelineState("document_not_extracted", "document is %s; extract it first", doc.ProcessingStatus)
	case types.StatusFailed:
		return nil, apierr.PipelineState("document_failed", "document failed: %s", doc.ErrorMessage)
	case types.StatusCompleted:
		return p.result(ctx, doc, 0, 0)
	}

	embedder, err := p.deps.Models.Embedder()
	if err != nil {
		return nil, apierr.Upstream("embedding_unavailable", err)
	}

	now := time.Now().UTC()
	token := uuid.NewString()
	ok, err := p.deps.Documents.Claim(dbctx.Context{Ctx: ctx}, doc.ID, types.StatusExtracted, types.StatusEmbedding, now, now.Add(p.cfg.StageLease), token)
	if err != nil {
		return nil, fmt.Errorf("claim embedding: %w", err)
	}
	if !ok {
		return nil, apierr.PipelineState("document_stage_busy", "another worker holds the embedding stage for this document")
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	lease := &stageLease{docs: p.deps.Documents, id: doc.ID, token: token, ttl: p.cfg.StageLease, cancel: cancel}

	if doc.ProcessingStatus != types.StatusEmbedding {
		p.deps.Metrics.ObserveStageTransition(string(doc.ProcessingStatus), string(types.StatusEmbedding))
		doc.ProcessingStatus = types.StatusEmbedding
		p.notifyStatus(ctx, doc)
	}

	total, _, err := p.deps.Chunks.Counts(dbctx.Context{Ctx: ctx}, doc.ID)
	if err != nil {
		p.releaseLease(ctx, lease, "")
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	if total == 0 {
		n, err := p.persistChunks(ctx, doc)
		if err != nil {
			p.releaseLease(ctx, lease, "")
			return nil, err
		}
		if n == 0 {
			failed, err := p.failFrom(ctx, doc.ID, types.StatusEmbedding, ErrUnreadable.Error())
			if err != nil {
				return nil, err
			}
			return p.result(ctx, failed, 0, 0)
		}
	}

	missing, err := p.deps.Chunks.ListMissingEmbedding(dbctx.Context{Ctx: ctx}, doc.ID, 0)
	if err != nil {
		p.releaseLease(ctx, lease, "")
		return nil, fmt.Errorf("list pending chunks: %w", err)
	}
	run, err := p.embedMissing(runCtx, lease, embedder, missing)
	if errors.Is(err, errLeaseLost) {
		p.log.Warn("embedding lease lost, stopping run", "document_id", doc.ID, "embedded", run.embedded)
		return nil, apierr.PipelineState("document_stage_busy", "another worker took over the embedding stage for this document")
	}
	if err != nil {
		p.releaseLease(ctx, lease, "")
		return nil, err
	}

	total, embedded, err := p.deps.Chunks.Counts(dbctx.Context{Ctx: ctx}, doc.ID)
	if err != nil {
		p.releaseLease(ctx, lease, "")
		return nil, fmt.Errorf("count chunks: %w", err)
	}

	bg := dbctx.Context{Ctx: context.WithoutCancel(ctx)}
	switch {
	case embedded == total:
		ok, err := p.deps.Documents.Transition(bg, doc.ID, []types.DocumentStatus{types.StatusEmbedding}, types.StatusCompleted, map[string]interface{}{
			"chunk_count":       int(total),
			"completed_at":      time.Now().UTC(),
			"error_message":     "",
			"stage_lease_until": nil,
			"stage_lease_token": "",
		})
		if err != nil {
			return nil, fmt.Errorf("complete document: %w", err)
		}
		if ok {
			p.deps.Metrics.ObserveStageTransition(string(types.StatusEmbedding), string(types.StatusCompleted))
			p.log.Info("document completed", "document_id", doc.ID, "chunks", total)
		}
	case run.attempted > 0 && run.failed == run.attempted && run.timeouts == 0:
		reason := fmt.Sprintf("embedding failed for all %d pending chunks: %s", run.failed, run.lastErr)
		failed, err := p.failFrom(ctx, doc.ID, types.StatusEmbedding, reason)
		if err != nil {
			return nil, err
		}
		return p.result(ctx, failed, run.embedded, run.failed)
	default:
		reason := ""
		if run.failed > 0 {
			reason = fmt.Sprintf("%d of %d chunks still need embeddings: %s", total-embedded, total, run.lastErr)
		}
		p.releaseLease(ctx, lease, reason)
		p.log.Warn("document partially embedded", "document_id", doc.ID, "embedded", embedded, "total", total, "failed", run.failed)
	}

	doc, err = p.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	p.notifyStatus(ctx, doc)
	return p.result(ctx, doc, run.embedded, run.failed)
}

// persistChunks fixes ordinals 0..N-1 before any embedding starts.
func (p *Pipeline) persistChunks(ctx context.Context, doc *types.SourceDocument) (int, error) {
	parts, err := BuildChunks(doc.ExtractedText, p.cfg)
	if err != nil {
		return 0, fmt.Errorf("split text: %w", err)
	}
	if len(parts) == 0 {
		return 0, nil
	}
	rows := make([]*types.DocumentChunk, 0, len(parts))
	for _, c := range parts {
		rows = append(rows, &types.DocumentChunk{
			DocumentID:    doc.ID,
			OwnerID:       doc.OwnerID,
			Ordinal:       c.Ordinal,
			Text:          c.Text,
			CharCount:     len([]rune(c.Text)),
			TokenEstimate: EstimateTokens(c.Text),
		})
	}
	err = p.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := p.deps.Chunks.CreateBatch(dbc, rows); err != nil {
			return err
		}
		return p.deps.Documents.UpdateFields(dbc, doc.ID, map[string]interface{}{"chunk_count": len(rows)})
	})
	if err != nil {
		return 0, fmt.Errorf("persist chunks: %w", err)
	}
	p.log.Info("document chunked", "document_id", doc.ID, "chunks", len(rows), "strategy", p.cfg.ChunkStrategy)
	return len(rows), nil
}

type embedRun struct {
	attempted int
	embedded  int
	failed    int
	timeouts  int
	lastErr   string
}

var errLeaseLost = errors.New("embedding lease lost")

// stageLease is the embedding-stage lease held by one ChunkAndEmbed run.
type stageLease struct {
	docs   materialsrepo.DocumentRepo
	id     uuid.UUID
	token  string
	ttl    time.Duration
	cancel context.CancelFunc
	lost   atomic.Bool
}

// renew pushes the lease out by ttl. Once renewal fails the run's context is
// cancelled and every later call reports errLeaseLost.
func (l *stageLease) renew(ctx context.Context) error {
	if l.lost.Load() {
		return errLeaseLost
	}
	now := time.Now().UTC()
	ok, err := l.docs.RenewLease(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, l.id, types.StatusEmbedding, l.token, now, now.Add(l.ttl))
	if err != nil {
		return fmt.Errorf("renew embedding lease: %w", err)
	}
	if !ok {
		l.lost.Store(true)
		l.cancel()
		return errLeaseLost
	}
	return nil
}

// embedMissing embeds pending chunks in bounded parallel batches. A failed
// batch is retried one chunk at a time so one bad chunk only fails itself.
// The lease is renewed after every provider call; the run stops as soon as
// renewal fails. The returned error is reserved for database failures and
// errLeaseLost.
func (p *Pipeline) embedMissing(ctx context.Context, lease *stageLease, embedder llm.Embedder, pending []*types.DocumentChunk) (embedRun, error) {
	run := embedRun{attempted: len(pending)}
	if len(pending) == 0 {
		return run, nil
	}

	var (
		embedded int32
		failed   int32
		timeouts int32
		lastErr  atomic.Value
	)
	recordErr := func(err error) {
		atomic.AddInt32(&failed, 1)
		if isTimeout(err) {
			atomic.AddInt32(&timeouts, 1)
		}
		lastErr.Store(err.Error())
	}

	batchSize := p.cfg.EmbedBatchSize
	var g errgroup.Group
	g.SetLimit(p.cfg.EmbedConcurrency)

	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		g.Go(func() error {
			if lease.lost.Load() {
				return errLeaseLost
			}
			texts := make([]string, 0, len(batch))
			for _, ch := range batch {
				texts = append(texts, ch.Text)
			}
			vecs, err := p.embedCall(ctx, embedder, texts)
			if rerr := lease.renew(ctx); rerr != nil {
				return rerr
			}
			if err == nil && len(vecs) == len(batch) {
				for i, ch := range batch {
					if werr := p.checkVector(vecs[i]); werr != nil {
						recordErr(werr)
						if err := p.deps.Chunks.RecordEmbedFailure(dbctx.Context{Ctx: ctx}, ch.ID, werr.Error()); err != nil {
							return err
						}
						continue
					}
					if err := p.storeVector(ctx, ch, vecs[i]); err != nil {
						return err
					}
					atomic.AddInt32(&embedded, 1)
				}
				return nil
			}
			if err == nil {
				err = fmt.Errorf("embedding count mismatch (got %d want %d)", len(vecs), len(batch))
			}
			if len(batch) > 1 {
				p.log.Warn("embedding batch failed, isolating chunks", "size", len(batch), "error", err)
			}

			for _, ch := range batch {
				var (
					vec  []float32
					werr = err
				)
				if len(batch) > 1 {
					v, cerr := p.embedCall(ctx, embedder, []string{ch.Text})
					if rerr := lease.renew(ctx); rerr != nil {
						return rerr
					}
					switch {
					case cerr != nil:
						werr = cerr
					case len(v) != 1:
						werr = fmt.Errorf("embedding count mismatch (got %d want 1)", len(v))
					default:
						vec, werr = v[0], p.checkVector(v[0])
					}
				}
				if werr != nil {
					recordErr(werr)
					if err := p.deps.Chunks.RecordEmbedFailure(dbctx.Context{Ctx: ctx}, ch.ID, werr.Error()); err != nil {
						return err
					}
					continue
				}
				if err := p.storeVector(ctx, ch, vec); err != nil {
					return err
				}
				atomic.AddInt32(&embedded, 1)
			}
			return nil
		})
	}
	err := g.Wait()
	run.embedded = int(atomic.LoadInt32(&embedded))
	if lease.lost.Load() {
		return run, errLeaseLost
	}
	if err != nil {
		return run, fmt.Errorf("store embeddings: %w", err)
	}

	run.failed = int(atomic.LoadInt32(&failed))
	run.timeouts = int(atomic.LoadInt32(&timeouts))
	if s, ok := lastErr.Load().(string); ok {
		run.lastErr = s
	}
	return run, nil
}

func (p *Pipeline) embedCall(ctx context.Context, embedder llm.Embedder, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
	defer cancel()
	start := time.Now()
	vecs, err := embedder.Embed(callCtx, texts)
	embedded := 0
	if err == nil {
		embedded = len(vecs)
	}
	p.deps.Metrics.ObserveEmbedCall(err, time.Since(start), embedded)
	return vecs, err
}

// checkVector rejects vectors that are empty or of the wrong dimension.
func (p *Pipeline) checkVector(vec []float32) error {
	if len(vec) == 0 {
		return errors.New("empty embedding")
	}
	if p.cfg.EmbedDimensions > 0 && len(vec) != p.cfg.EmbedDimensions {
		return fmt.Errorf("embedding has %d dimensions, want %d", len(vec), p.cfg.EmbedDimensions)
	}
	return nil
}

func (p *Pipeline) storeVector(ctx context.Context, ch *types.DocumentChunk, vec []float32) error {
	raw, err := types.EncodeVector(vec)
	if err != nil {
		return err
	}
	_, err = p.deps.Chunks.SetEmbedding(dbctx.Context{Ctx: ctx}, ch.ID, raw, time.Now().UTC())
	return err
}

func (p *Pipeline) releaseLease(ctx context.Context, lease *stageLease, reason string) {
	updates := map[string]interface{}{"error_message": reason}
	if _, err := p.deps.Documents.ReleaseLease(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, lease.id,
		types.StatusEmbedding, lease.token, updates); err != nil {
		p.log.Error("release embedding lease failed", "document_id", lease.id, "error", err)
	}
}

func (p *Pipeline) result(ctx context.Context, doc *types.SourceDocument, embeddedNow, failedNow int) (*EmbedResult, error) {
	total, embedded, err := p.deps.Chunks.Counts(dbctx.Context{Ctx: ctx}, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	return &EmbedResult{
		DocumentID:     doc.ID,
		Status:         doc.ProcessingStatus,
		EmbeddedCount:  embeddedNow,
		FailedCount:    failedNow,
		RemainingCount: int(total - embedded),
		TotalChunks:    int(total),
	}, nil
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || httpx.IsTimeout(err)
}
