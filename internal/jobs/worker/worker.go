package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/lumen-backend/internal/domain/materials"
	"github.com/yungbote/lumen-backend/internal/modules/ingestion"
	"github.com/yungbote/lumen-backend/internal/observability"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/envutil"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

var ErrQueueFull = errors.New("ingest queue is full")

// Pipeline is the part of the ingestion pipeline the worker drives.
type Pipeline interface {
	Extract(ctx context.Context, id uuid.UUID) (*types.SourceDocument, error)
	ChunkAndEmbed(ctx context.Context, id uuid.UUID) (*ingestion.EmbedResult, error)
}

// Backlog lists documents whose pipeline work was interrupted.
type Backlog interface {
	ListResumable(dbc dbctx.Context, before time.Time, limit int) ([]*types.SourceDocument, error)
}

type Config struct {
	Concurrency   int
	QueueSize     int
	MaxRounds     int
	RoundDelay    time.Duration
	SweepInterval time.Duration
	StaleAfter    time.Duration
	SweepBatch    int
}

func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		QueueSize:     256,
		MaxRounds:     5,
		RoundDelay:    30 * time.Second,
		SweepInterval: time.Minute,
		StaleAfter:    10 * time.Minute,
		SweepBatch:    50,
	}
}

func ConfigFromEnv() Config {
	d := DefaultConfig()
	return Config{
		Concurrency:   envutil.Int("WORKER_CONCURRENCY", d.Concurrency),
		QueueSize:     envutil.Int("INGEST_QUEUE_SIZE", d.QueueSize),
		MaxRounds:     envutil.Int("INGEST_MAX_ROUNDS", d.MaxRounds),
		RoundDelay:    envutil.Seconds("INGEST_ROUND_DELAY_SECONDS", int(d.RoundDelay/time.Second)),
		SweepInterval: envutil.Seconds("INGEST_SWEEP_INTERVAL_SECONDS", int(d.SweepInterval/time.Second)),
		StaleAfter:    envutil.Seconds("INGEST_STALE_AFTER_SECONDS", int(d.StaleAfter/time.Second)),
		SweepBatch:    envutil.Int("INGEST_SWEEP_BATCH", d.SweepBatch),
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.QueueSize < 1 {
		c.QueueSize = d.QueueSize
	}
	if c.MaxRounds < 1 {
		c.MaxRounds = 1
	}
	if c.RoundDelay < 0 {
		c.RoundDelay = 0
	}
	if c.SweepBatch < 1 {
		c.SweepBatch = d.SweepBatch
	}
	return c
}

// Worker runs document ingestion in-process. It implements
// ingestion.Scheduler; each document is held by at most one worker loop.
type Worker struct {
	log      *logger.Logger
	pipeline Pipeline
	sweeper  *Sweeper
	metrics  *observability.Metrics
	cfg      Config

	queue chan uuid.UUID

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
	wg       sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, pipeline Pipeline, backlog Backlog, metrics *observability.Metrics, cfg Config) *Worker {
	cfg = cfg.normalized()
	w := &Worker{
		log:      baseLog.With("component", "IngestWorker"),
		pipeline: pipeline,
		metrics:  metrics,
		cfg:      cfg,
		queue:    make(chan uuid.UUID, cfg.QueueSize),
		inflight: map[uuid.UUID]struct{}{},
	}
	if backlog != nil {
		w.sweeper = NewSweeper(baseLog, backlog, w, cfg)
	}
	return w
}

// ScheduleIngest queues id without blocking. A document already queued or
// running is not queued twice.
func (w *Worker) ScheduleIngest(_ context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.inflight[id]; ok {
		return nil
	}
	select {
	case w.queue <- id:
		w.inflight[id] = struct{}{}
		return nil
	default:
		return fmt.Errorf("%w: document %s", ErrQueueFull, id)
	}
}

// Start launches the worker pool and, when a backlog is set, the sweeper.
// The loops stop when ctx is cancelled; Wait blocks until they have.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting ingest worker pool", "concurrency", w.cfg.Concurrency)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go w.runLoop(ctx, workerID)
	}
	w.sweeper.Start(ctx)
}

func (w *Worker) Wait() {
	w.wg.Wait()
	w.sweeper.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case id := <-w.queue:
			func() {
				defer w.release(id)
				defer func() {
					if r := recover(); r != nil {
						w.log.Error("Ingest panic", "worker_id", workerID, "document_id", id, "panic", r)
						w.metrics.ObserveIngestJob("error")
					}
				}()
				w.metrics.ObserveIngestJob(w.process(ctx, id))
			}()
		}
	}
}

func (w *Worker) release(id uuid.UUID) {
	w.mu.Lock()
	delete(w.inflight, id)
	w.mu.Unlock()
}

// process runs extract then chunk+embed, re-running the embed stage while
// chunks remain, up to MaxRounds.
func (w *Worker) process(ctx context.Context, id uuid.UUID) string {
	log := w.log.With("document_id", id)
	doc, err := w.pipeline.Extract(ctx, id)
	if err != nil {
		if apierr.IsKind(err, apierr.KindPipelineState) || apierr.IsKind(err, apierr.KindNotFound) {
			log.Info("Ingest skipped", "reason", err)
			return "skipped"
		}
		log.Warn("Extract failed", "error", err)
		return "error"
	}
	if doc.ProcessingStatus == types.StatusFailed {
		return "failed"
	}

	for round := 1; round <= w.cfg.MaxRounds; round++ {
		res, err := w.pipeline.ChunkAndEmbed(ctx, id)
		if err != nil {
			if apierr.IsKind(err, apierr.KindPipelineState) || apierr.IsKind(err, apierr.KindNotFound) {
				log.Info("Embed skipped", "reason", err)
				return "skipped"
			}
			log.Warn("Embed failed", "round", round, "error", err)
			return "error"
		}
		switch {
		case res.Status == types.StatusCompleted:
			log.Info("Document ingested", "chunks", res.TotalChunks, "rounds", round)
			return "completed"
		case res.Status == types.StatusFailed:
			return "failed"
		case res.RemainingCount == 0:
			return "completed"
		}
		if round == w.cfg.MaxRounds {
			break
		}
		log.Info("Chunks remain, retrying embed", "remaining", res.RemainingCount, "round", round)
		select {
		case <-ctx.Done():
			return "partial"
		case <-time.After(w.cfg.RoundDelay):
		}
	}
	log.Warn("Embed rounds exhausted", "max_rounds", w.cfg.MaxRounds)
	return "partial"
}

// Sweep queues documents left unfinished for longer than StaleAfter. It
// returns how many were queued.
func (w *Worker) Sweep(ctx context.Context) int {
	return w.sweeper.Sweep(ctx)
}
