package temporalx

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	base := 250 * time.Millisecond
	limit := time.Second
	want := []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := Backoff(base, limit, i+1); got != w {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, w)
		}
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "")
	cfg := LoadConfig()
	if cfg.Enabled() {
		t.Fatalf("expected Temporal disabled")
	}
	c, err := NewClient(context.Background(), cfg, logger.NewNop())
	if err != nil || c != nil {
		t.Fatalf("expected nil client and no error, got %v %v", c, err)
	}
	if cfg.TaskQueue != "lumen-ingest" || cfg.Namespace != "lumen" {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
}

func TestRetentionIsClamped(t *testing.T) {
	if got := (Config{RetentionDays: 0}).retention(); got != 7*24*time.Hour {
		t.Fatalf("default retention: got %v", got)
	}
	if got := (Config{RetentionDays: 1000}).retention(); got != 365*24*time.Hour {
		t.Fatalf("max retention: got %v", got)
	}
}
