package quiz

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestZeroPassThresholdIsKept(t *testing.T) {
	t.Setenv("QUIZ_PASS_THRESHOLD", "0")
	log, logs := observedLogger()

	engine := New(Deps{Log: log}, ConfigFromEnv())
	if got := engine.PassThreshold(); got != 0 {
		t.Fatalf("PassThreshold: got %v want 0", got)
	}
	if logs.Len() != 0 {
		t.Fatalf("unexpected warnings: %v", logs.All())
	}
}

func TestOutOfRangePassThresholdWarns(t *testing.T) {
	for _, threshold := range []float64{-5, 150} {
		log, logs := observedLogger()
		cfg := DefaultConfig()
		cfg.PassThreshold = threshold

		engine := New(Deps{Log: log}, cfg)
		if got := engine.PassThreshold(); got != 70 {
			t.Fatalf("threshold %v: got %v want 70", threshold, got)
		}
		if n := logs.FilterMessage("Quiz config value replaced").Len(); n != 1 {
			t.Fatalf("threshold %v: want one warning, got %d", threshold, n)
		}
	}
}
