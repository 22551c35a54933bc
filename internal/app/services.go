package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/lumen-backend/internal/data/db"
	"github.com/yungbote/lumen-backend/internal/jobs/worker"
	"github.com/yungbote/lumen-backend/internal/modules/courses"
	"github.com/yungbote/lumen-backend/internal/modules/gamification"
	"github.com/yungbote/lumen-backend/internal/modules/ingestion"
	"github.com/yungbote/lumen-backend/internal/modules/progression"
	"github.com/yungbote/lumen-backend/internal/modules/quiz"
	"github.com/yungbote/lumen-backend/internal/modules/retrieval"
	"github.com/yungbote/lumen-backend/internal/observability"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
	"github.com/yungbote/lumen-backend/internal/realtime"
	"github.com/yungbote/lumen-backend/internal/services"
	"github.com/yungbote/lumen-backend/internal/temporalx/ingestrun"
	"github.com/yungbote/lumen-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Auth services.AuthService

	Notify       realtime.Notifier
	Ingestion    *ingestion.Pipeline
	Retrieval    *retrieval.Retriever
	Courses      *courses.Service
	Quiz         *quiz.Engine
	Progression  *progression.Service
	Gamification *gamification.Service

	// Exactly one of these drives ingestion in the background.
	IngestWorker   *worker.Worker
	TemporalWorker *temporalworker.Runner
	// Resumes stalled documents through the Temporal scheduler.
	TemporalSweeper *worker.Sweeper
}

func wireServices(theDB *gorm.DB, log *logger.Logger, cfg Config, repos Repos, sseHub *realtime.SSEHub, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	// Publishing through the bus lets every replica's forwarder deliver.
	var pub realtime.Publisher
	if clients.SSEBus != nil {
		pub = clients.SSEBus
	}
	notify := realtime.NewNotifier(log, sseHub, pub)
	tx := db.NewTxRunner(theDB)

	gamificationService := gamification.New(gamification.Deps{
		Log:          log,
		Ledger:       repos.Ledger,
		Achievements: repos.Achievements,
		Sessions:     repos.Sessions,
		Notify:       notify,
		Metrics:      metrics,
	}, gamification.ConfigFromEnv())

	progressionService := progression.New(progression.Deps{
		Log:          log,
		Courses:      repos.Courses,
		Unlocks:      repos.Unlocks,
		Quizzes:      repos.Quizzes,
		Attempts:     repos.Attempts,
		Gamification: gamificationService,
		Notify:       notify,
	})

	courseService := courses.New(courses.Deps{
		Tx:          tx,
		Log:         log,
		Courses:     repos.Courses,
		Documents:   repos.Documents,
		Progression: progressionService,
	})

	retriever := retrieval.New(retrieval.Deps{
		Log:       log,
		Documents: repos.Documents,
		Chunks:    repos.Chunks,
		Courses:   repos.Courses,
		Models:    clients.Models,
	}, retrieval.ConfigFromEnv())

	quizEngine := quiz.New(quiz.Deps{
		Tx:           tx,
		Log:          log,
		Courses:      repos.Courses,
		Quizzes:      repos.Quizzes,
		Attempts:     repos.Attempts,
		Progression:  progressionService,
		Gamification: gamificationService,
		Passages:     retriever,
		Models:       clients.Models,
		Notify:       notify,
		Metrics:      metrics,
	}, quiz.ConfigFromEnv())

	pipeline := ingestion.New(ingestion.Deps{
		DB:        theDB,
		Log:       log,
		Documents: repos.Documents,
		Chunks:    repos.Chunks,
		Courses:   repos.Courses,
		Storage:   clients.GcpBucket,
		Extractor: ingestion.NewExtractor(log, clients.GcpDocument),
		Models:    clients.Models,
		Notify:    notify,
		Metrics:   metrics,
	}, ingestion.ConfigFromEnv())

	out := Services{
		Auth:         services.NewAuthService(log, cfg.JWTSecretKey, cfg.JWTIssuer),
		Notify:       notify,
		Ingestion:    pipeline,
		Retrieval:    retriever,
		Courses:      courseService,
		Quiz:         quizEngine,
		Progression:  progressionService,
		Gamification: gamificationService,
	}

	workerCfg := worker.ConfigFromEnv()
	if clients.Temporal != nil {
		runner, err := temporalworker.NewRunner(log, clients.TemporalCfg, clients.Temporal, pipeline)
		if err != nil {
			return Services{}, fmt.Errorf("init temporal worker: %w", err)
		}
		out.TemporalWorker = runner
		scheduler := ingestrun.NewScheduler(clients.Temporal, clients.TemporalCfg.TaskQueue, workerCfg.MaxRounds, workerCfg.RoundDelay)
		pipeline.SetScheduler(scheduler)
		out.TemporalSweeper = worker.NewSweeper(log, repos.Documents, scheduler, workerCfg)
		log.Info("Ingestion scheduled through Temporal", "task_queue", clients.TemporalCfg.TaskQueue)
	} else {
		out.IngestWorker = worker.NewWorker(log, pipeline, repos.Documents, metrics, workerCfg)
		pipeline.SetScheduler(out.IngestWorker)
		log.Info("Ingestion scheduled in process", "concurrency", workerCfg.Concurrency)
	}

	return out, nil
}

func (s *Services) start(ctx context.Context) error {
	if s.IngestWorker != nil {
		s.IngestWorker.Start(ctx)
	}
	if s.TemporalWorker != nil {
		if err := s.TemporalWorker.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
		s.TemporalSweeper.Start(ctx)
	}
	return nil
}
