package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/lumen-backend/internal/platform/logger"
	"github.com/yungbote/lumen-backend/internal/temporalx"
	"github.com/yungbote/lumen-backend/internal/temporalx/ingestrun"
)

// Runner polls the ingest task queue.
type Runner struct {
	log      *logger.Logger
	cfg      temporalx.Config
	tc       temporalsdkclient.Client
	pipeline ingestrun.Pipeline
}

func NewRunner(log *logger.Logger, cfg temporalx.Config, tc temporalsdkclient.Client, pipeline ingestrun.Pipeline) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("temporal worker missing pipeline")
	}
	return &Runner{
		log:      log.With("component", "TemporalWorker"),
		cfg:      cfg,
		tc:       tc,
		pipeline: pipeline,
	}, nil
}

// Start starts the worker, retrying until WorkerMaxWait. The worker stops
// when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("Starting Temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)

	deadline := time.Now().Add(r.cfg.WorkerMaxWait)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		notFound := errors.As(startErr, &nfe)
		if notFound && r.cfg.AutoRegisterNamespace {
			if err := temporalx.EnsureNamespace(ctx, r.cfg, r.log); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}

		if r.cfg.WorkerMaxWait <= 0 || time.Now().After(deadline) {
			if notFound {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
			}
			return startErr
		}
		r.log.Warn("Temporal worker failed to start; retrying", "task_queue", r.cfg.TaskQueue, "attempt", attempt, "error", startErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(temporalx.Backoff(r.cfg.Backoff, r.cfg.BackoffMax, attempt)):
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	concurrency := r.cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})

	acts := &ingestrun.Activities{Log: r.log, Pipeline: r.pipeline}
	w.RegisterWorkflowWithOptions(ingestrun.Workflow, workflow.RegisterOptions{Name: ingestrun.WorkflowName})
	w.RegisterActivityWithOptions(acts.Extract, activity.RegisterOptions{Name: ingestrun.ActivityExtract})
	w.RegisterActivityWithOptions(acts.ChunkAndEmbed, activity.RegisterOptions{Name: ingestrun.ActivityChunkAndEmbed})
	return w
}
