package app

import (
	"database/sql"

	"github.com/yungbote/lumen-backend/internal/http"
	httpH "github.com/yungbote/lumen-backend/internal/http/handlers"
	httpMW "github.com/yungbote/lumen-backend/internal/http/middleware"
	"github.com/yungbote/lumen-backend/internal/observability"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
	"github.com/yungbote/lumen-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health       *httpH.HealthHandler
	Realtime     *httpH.RealtimeHandler
	Document     *httpH.DocumentHandler
	Search       *httpH.SearchHandler
	Course       *httpH.CourseHandler
	Quiz         *httpH.QuizHandler
	Progression  *httpH.ProgressionHandler
	Gamification *httpH.GamificationHandler
}

func wireHandlers(log *logger.Logger, services Services, sseHub *realtime.SSEHub, sqlDB *sql.DB) Handlers {
	log.Info("Wiring handlers...")
	var pinger httpH.Pinger
	if sqlDB != nil {
		pinger = sqlDB
	}
	return Handlers{
		Health:       httpH.NewHealthHandler(pinger),
		Realtime:     httpH.NewRealtimeHandler(log, sseHub),
		Document:     httpH.NewDocumentHandler(log, services.Ingestion, services.Ingestion.MaxBytes()),
		Search:       httpH.NewSearchHandler(log, services.Retrieval),
		Course:       httpH.NewCourseHandler(log, services.Courses),
		Quiz:         httpH.NewQuizHandler(log, services.Quiz),
		Progression:  httpH.NewProgressionHandler(log, services.Progression),
		Gamification: httpH.NewGamificationHandler(log, services.Gamification),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:                 log,
		Metrics:             metrics,
		ServiceName:         cfg.ServiceName,
		TracingEnabled:      cfg.TracingEnabled,
		AuthMiddleware:      middleware.Auth,
		HealthHandler:       handlers.Health,
		RealtimeHandler:     handlers.Realtime,
		DocumentHandler:     handlers.Document,
		SearchHandler:       handlers.Search,
		CourseHandler:       handlers.Course,
		QuizHandler:         handlers.Quiz,
		ProgressionHandler:  handlers.Progression,
		GamificationHandler: handlers.Gamification,
	})
}
