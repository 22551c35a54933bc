package http

import (
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	httpH "github.com/yungbote/lumen-backend/internal/http/handlers"
	httpMW "github.com/yungbote/lumen-backend/internal/http/middleware"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
	"github.com/yungbote/lumen-backend/internal/realtime"
	"github.com/yungbote/lumen-backend/internal/services"
)

func TestRouterGuardsAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()
	auth := services.NewAuthService(log, "secret", "")
	r := NewRouter(RouterConfig{
		Log:             log,
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, auth),
		HealthHandler:   httpH.NewHealthHandler(nil),
		RealtimeHandler: httpH.NewRealtimeHandler(log, realtime.NewSSEHub(log)),
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/healthcheck", nil))
	if rec.Code != nethttp.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/api/sse/stream", nil))
	if rec.Code != nethttp.StatusUnauthorized {
		t.Fatalf("unauthenticated sse: status got=%d", rec.Code)
	}

	tok, err := auth.IssueToken(uuid.New(), -time.Second)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	req := httptest.NewRequest(nethttp.MethodGet, "/api/sse/stream", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != nethttp.StatusUnauthorized {
		t.Fatalf("expired token: status got=%d", rec.Code)
	}
}

func TestRouterWithoutMetricsHasNoEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(RouterConfig{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/metrics", nil))
	if rec.Code != nethttp.StatusNotFound {
		t.Fatalf("metrics: status got=%d", rec.Code)
	}
}
