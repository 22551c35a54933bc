package quiz

import (
	"fmt"
	"time"

	"github.com/yungbote/lumen-backend/internal/platform/envutil"
)

type Config struct {
	// PassThreshold is the minimum score (0-100) that passes a quiz. Zero
	// passes every submitted attempt.
	PassThreshold      float64
	GenerateTimeout    time.Duration
	DefaultGenerated   int
	MaxGenerated       int
	ContextPassages    int
	ContextMaxChars    int
	RemediationMaxMiss int
}

func DefaultConfig() Config {
	return Config{
		PassThreshold:      70,
		GenerateTimeout:    60 * time.Second,
		DefaultGenerated:   5,
		MaxGenerated:       20,
		ContextPassages:    4,
		ContextMaxChars:    12000,
		RemediationMaxMiss: 20,
	}
}

func ConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		PassThreshold:      envutil.Float("QUIZ_PASS_THRESHOLD", def.PassThreshold),
		GenerateTimeout:    envutil.Seconds("GENERATE_TIMEOUT_SECONDS", 60),
		DefaultGenerated:   envutil.Int("QUIZ_GENERATE_DEFAULT_COUNT", def.DefaultGenerated),
		MaxGenerated:       envutil.Int("QUIZ_GENERATE_MAX_COUNT", def.MaxGenerated),
		ContextPassages:    envutil.Int("QUIZ_CONTEXT_PASSAGES", def.ContextPassages),
		ContextMaxChars:    envutil.Int("QUIZ_CONTEXT_MAX_CHARS", def.ContextMaxChars),
		RemediationMaxMiss: def.RemediationMaxMiss,
	}
}

// normalized fills unset fields from the defaults. notes lists every
// configured value that had to be replaced.
func (c Config) normalized() (Config, []string) {
	def := DefaultConfig()
	var notes []string
	if c.PassThreshold < 0 || c.PassThreshold > 100 {
		notes = append(notes, fmt.Sprintf("pass threshold %g is outside 0-100, using %g", c.PassThreshold, def.PassThreshold))
		c.PassThreshold = def.PassThreshold
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = def.GenerateTimeout
	}
	if c.DefaultGenerated <= 0 {
		c.DefaultGenerated = def.DefaultGenerated
	}
	if c.MaxGenerated <= 0 {
		c.MaxGenerated = def.MaxGenerated
	}
	if c.ContextMaxChars <= 0 {
		c.ContextMaxChars = def.ContextMaxChars
	}
	if c.RemediationMaxMiss <= 0 {
		c.RemediationMaxMiss = def.RemediationMaxMiss
	}
	return c, notes
}
