package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/lumen-backend/internal/http/handlers"
	httpMW "github.com/yungbote/lumen-backend/internal/http/middleware"
	"github.com/yungbote/lumen-backend/internal/observability"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	TracingEnabled bool

	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler       *httpH.HealthHandler
	RealtimeHandler     *httpH.RealtimeHandler
	DocumentHandler     *httpH.DocumentHandler
	SearchHandler       *httpH.SearchHandler
	CourseHandler       *httpH.CourseHandler
	QuizHandler         *httpH.QuizHandler
	ProgressionHandler  *httpH.ProgressionHandler
	GamificationHandler *httpH.GamificationHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.Metrics(cfg.Metrics))
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	protected := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}

		// Documents
		if cfg.DocumentHandler != nil {
			protected.POST("/documents/upload", cfg.DocumentHandler.Upload)
			protected.POST("/documents", cfg.DocumentHandler.Register)
			protected.GET("/documents", cfg.DocumentHandler.List)
			protected.GET("/documents/:id", cfg.DocumentHandler.Get)
			protected.GET("/documents/:id/url", cfg.DocumentHandler.SignedURL)
			protected.DELETE("/documents/:id", cfg.DocumentHandler.Delete)
			protected.POST("/documents/:id/extract", cfg.DocumentHandler.Extract)
			protected.POST("/documents/:id/retry", cfg.DocumentHandler.Retry)
			protected.POST("/embed-chunks", cfg.DocumentHandler.EmbedChunks)
		}

		// Retrieval
		if cfg.SearchHandler != nil {
			protected.POST("/search", cfg.SearchHandler.Search)
		}

		// Courses
		if cfg.CourseHandler != nil {
			protected.POST("/courses", cfg.CourseHandler.CreateCourse)
			protected.GET("/courses", cfg.CourseHandler.ListUserCourses)
			protected.GET("/courses/:id", cfg.CourseHandler.GetCourse)
			protected.DELETE("/courses/:id", cfg.CourseHandler.DeleteCourse)
			protected.POST("/courses/:id/documents", cfg.CourseHandler.AttachDocuments)
			protected.GET("/chapters/:id", cfg.CourseHandler.GetChapter)
		}

		// Quizzes
		if cfg.QuizHandler != nil {
			protected.POST("/chapters/:id/quiz/generate", cfg.QuizHandler.GenerateForChapter)
			protected.POST("/quizzes", cfg.QuizHandler.CreateQuiz)
			protected.GET("/quizzes/:id", cfg.QuizHandler.GetQuiz)
			protected.GET("/quizzes/:id/attempts", cfg.QuizHandler.ListAttempts)
			protected.POST("/quizzes/:id/attempts", cfg.QuizHandler.CreateAttempt)
			protected.GET("/quiz-attempts", cfg.QuizHandler.RecentAttempts)
			protected.POST("/quiz-attempts/:id/submit", cfg.QuizHandler.SubmitAttempt)
			protected.GET("/quiz-attempts/:id/remediation", cfg.QuizHandler.Remediation)
			protected.POST("/submit-quiz", cfg.QuizHandler.SubmitQuiz)
		}

		// Progression
		if cfg.ProgressionHandler != nil {
			protected.POST("/unlock-level", cfg.ProgressionHandler.UnlockLevel)
			protected.POST("/skip-level", cfg.ProgressionHandler.SkipLevel)
			protected.GET("/levels/:id/reachable", cfg.ProgressionHandler.Reachable)
		}

		// Gamification
		if cfg.GamificationHandler != nil {
			protected.GET("/points", cfg.GamificationHandler.Points)
			protected.GET("/achievements", cfg.GamificationHandler.Achievements)
			protected.POST("/sessions", cfg.GamificationHandler.StartSession)
			protected.POST("/sessions/:id/complete", cfg.GamificationHandler.CompleteSession)
		}
	}

	return r
}
