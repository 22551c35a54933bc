package worker

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/lumen-backend/internal/modules/ingestion"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

// Sweeper hands documents whose pipeline work stalled back to a scheduler.
// It backs the in-process Worker and also runs alongside the Temporal
// scheduler, where it resumes documents whose workflow gave up.
type Sweeper struct {
	log       *logger.Logger
	backlog   Backlog
	scheduler ingestion.Scheduler
	cfg       Config
	wg        sync.WaitGroup
}

func NewSweeper(baseLog *logger.Logger, backlog Backlog, scheduler ingestion.Scheduler, cfg Config) *Sweeper {
	return &Sweeper{
		log:       baseLog.With("component", "IngestSweeper"),
		backlog:   backlog,
		scheduler: scheduler,
		cfg:       cfg.normalized(),
	}
}

// Start sweeps every SweepInterval until ctx is cancelled. A zero interval
// disables the loop.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil || s.backlog == nil || s.scheduler == nil || s.cfg.SweepInterval <= 0 {
		return
	}
	s.log.Info("Starting ingest sweeper", "interval", s.cfg.SweepInterval, "stale_after", s.cfg.StaleAfter)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

func (s *Sweeper) Wait() {
	if s != nil {
		s.wg.Wait()
	}
}

// Sweep schedules documents left unfinished for longer than StaleAfter. It
// returns how many were scheduled.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if s == nil || s.backlog == nil || s.scheduler == nil {
		return 0
	}
	before := time.Now().UTC().Add(-s.cfg.StaleAfter)
	docs, err := s.backlog.ListResumable(dbctx.Context{Ctx: ctx}, before, s.cfg.SweepBatch)
	if err != nil {
		s.log.Warn("ListResumable failed", "error", err)
		return 0
	}
	scheduled := 0
	for _, d := range docs {
		if err := s.scheduler.ScheduleIngest(ctx, d.ID); err != nil {
			s.log.Warn("Sweep could not schedule document", "document_id", d.ID, "error", err)
			break
		}
		scheduled++
	}
	if scheduled > 0 {
		s.log.Info("Resumed stale documents", "count", scheduled)
	}
	return scheduled
}
