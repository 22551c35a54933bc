package gamification

import (
	"strings"
	"time"

	types "github.com/yungbote/lumen-backend/internal/domain/gamification"
	"github.com/yungbote/lumen-backend/internal/platform/envutil"
)

type Config struct {
	// Points per event type. Missing entries award zero.
	Points map[types.EventType]int
	// Timeout bounds one fire-and-forget award pass.
	Timeout time.Duration
	// StreakWindow is how far back activity is read for streaks.
	StreakWindow time.Duration
}

func DefaultPoints() map[types.EventType]int {
	return map[types.EventType]int{
		types.EventQuizPassed:       50,
		types.EventQuizPerfect:      25,
		types.EventChapterCompleted: 20,
		types.EventLevelCompleted:   100,
		types.EventCourseCompleted:  250,
		types.EventSessionCompleted: 10,
		types.EventLevelSkipped:     0,
	}
}

func DefaultConfig() Config {
	return Config{
		Points:       DefaultPoints(),
		Timeout:      5 * time.Second,
		StreakWindow: 45 * 24 * time.Hour,
	}
}

// ConfigFromEnv reads POINTS_<EVENT_TYPE> overrides, e.g. POINTS_QUIZ_PASSED.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	for ev, def := range cfg.Points {
		cfg.Points[ev] = envutil.Int("POINTS_"+strings.ToUpper(string(ev)), def)
	}
	cfg.Timeout = envutil.Seconds("GAMIFICATION_TIMEOUT_SECONDS", 5)
	return cfg
}

func (c Config) normalized() Config {
	if c.Points == nil {
		c.Points = DefaultPoints()
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.StreakWindow <= 0 {
		c.StreakWindow = 45 * 24 * time.Hour
	}
	return c
}
