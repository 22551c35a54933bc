package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yungbote/lumen-backend/internal/platform/llm"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", "")
	t.Setenv("HTTP_SHUTDOWN_TIMEOUT_SECONDS", "")
	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("OTEL_ENABLED", "")

	cfg := LoadConfig(logger.NewNop())
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("HTTPAddress: got %q", cfg.HTTPAddress)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout: got %s", cfg.ShutdownTimeout)
	}
	if cfg.JWTSecretKey != "s3cret" || cfg.TracingEnabled {
		t.Fatalf("unexpected config: %#v", cfg)
	}
}

func TestWireModelsWithoutProviders(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	router, err := wireModels(logger.NewNop(), Config{})
	if err != nil {
		t.Fatalf("wireModels: %v", err)
	}
	if _, err := router.Embedder(); !errors.Is(err, llm.ErrNoRoute) {
		t.Fatalf("Embedder: want ErrNoRoute, got %v", err)
	}
	if _, err := router.Generator(llm.TaskQuizGeneration); !errors.Is(err, llm.ErrNoRoute) {
		t.Fatalf("Generator: want ErrNoRoute, got %v", err)
	}
}

func TestWireModelsRoutesFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	path := filepath.Join(t.TempDir(), "routes.yaml")
	raw := "routes:\n  " + llm.TaskQuizGeneration + ":\n    provider: anthropic\n    model: claude-test\n  " + llm.TaskRemediation + ":\n    provider: none\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write routes: %v", err)
	}

	router, err := wireModels(logger.NewNop(), Config{ModelRoutesPath: path})
	if err != nil {
		t.Fatalf("wireModels: %v", err)
	}
	if route, ok := router.Route(llm.TaskQuizGeneration); !ok || route.Provider != "anthropic" || route.Model != "claude-test" {
		t.Fatalf("quiz route: got %#v ok=%v", route, ok)
	}
	if _, ok := router.Route(llm.TaskRemediation); ok {
		t.Fatalf("remediation route should be disabled")
	}
	if _, err := router.Embedder(); err != nil {
		t.Fatalf("Embedder: %v", err)
	}
}

func TestWireModelsMissingRoutesFile(t *testing.T) {
	_, err := wireModels(logger.NewNop(), Config{ModelRoutesPath: filepath.Join(t.TempDir(), "absent.yaml")})
	if err == nil {
		t.Fatalf("expected error for missing routes file")
	}
}
