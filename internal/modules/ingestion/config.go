package ingestion

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/lumen-backend/internal/platform/envutil"
)

// MinChunkSize is the smallest chunk window the splitter will cut.
const MinChunkSize = 64

type Config struct {
	MaxBytes int64

	ChunkSize     int
	ChunkOverlap  int
	ChunkStrategy string

	EmbedDimensions  int
	EmbedBatchSize   int
	EmbedConcurrency int

	ExtractTimeout  time.Duration
	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration
	StageLease      time.Duration

	SummaryMaxChars int
	SignedURLTTL    time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxBytes:         25 << 20,
		ChunkSize:        1200,
		ChunkOverlap:     200,
		ChunkStrategy:    ChunkStrategyWindow,
		EmbedDimensions:  1536,
		EmbedBatchSize:   64,
		EmbedConcurrency: 4,
		ExtractTimeout:   3 * time.Minute,
		EmbedTimeout:     60 * time.Second,
		GenerateTimeout:  60 * time.Second,
		StageLease:       10 * time.Minute,
		SummaryMaxChars:  400,
		SignedURLTTL:     15 * time.Minute,
	}
}

func ConfigFromEnv() Config {
	d := DefaultConfig()
	cfg := Config{
		MaxBytes:         envutil.Int64("DOCUMENT_MAX_BYTES", d.MaxBytes),
		ChunkSize:        envutil.Int("CHUNK_SIZE_CHARS", d.ChunkSize),
		ChunkOverlap:     envutil.Int("CHUNK_OVERLAP_CHARS", d.ChunkOverlap),
		ChunkStrategy:    strings.ToLower(envutil.String("CHUNK_STRATEGY", d.ChunkStrategy)),
		EmbedDimensions:  envutil.Int("EMBEDDING_DIMENSIONS", d.EmbedDimensions),
		EmbedBatchSize:   envutil.Int("EMBED_BATCH_SIZE", d.EmbedBatchSize),
		EmbedConcurrency: envutil.Int("EMBED_CONCURRENCY", d.EmbedConcurrency),
		ExtractTimeout:   envutil.Seconds("EXTRACT_TIMEOUT_SECONDS", int(d.ExtractTimeout/time.Second)),
		EmbedTimeout:     envutil.Seconds("EMBED_TIMEOUT_SECONDS", int(d.EmbedTimeout/time.Second)),
		GenerateTimeout:  envutil.Seconds("GENERATE_TIMEOUT_SECONDS", int(d.GenerateTimeout/time.Second)),
		StageLease:       envutil.Seconds("EMBED_LEASE_SECONDS", int(d.StageLease/time.Second)),
		SummaryMaxChars:  envutil.Int("SUMMARY_MAX_CHARS", d.SummaryMaxChars),
		SignedURLTTL:     envutil.Seconds("SIGNED_URL_TTL_SECONDS", int(d.SignedURLTTL/time.Second)),
	}
	return cfg
}

// normalized fills unset fields from the defaults. notes lists every
// configured value that had to be replaced.
func (c Config) normalized() (Config, []string) {
	d := DefaultConfig()
	var notes []string
	if c.MaxBytes <= 0 {
		c.MaxBytes = d.MaxBytes
	}
	switch {
	case c.ChunkSize <= 0:
		c.ChunkSize = d.ChunkSize
	case c.ChunkSize < MinChunkSize:
		notes = append(notes, fmt.Sprintf("chunk size %d is below the minimum, using %d", c.ChunkSize, MinChunkSize))
		c.ChunkSize = MinChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		notes = append(notes, fmt.Sprintf("chunk overlap %d does not fit chunk size %d, using %d", c.ChunkOverlap, c.ChunkSize, c.ChunkSize/6))
		c.ChunkOverlap = c.ChunkSize / 6
	}
	if c.ChunkStrategy != ChunkStrategyRecursive {
		c.ChunkStrategy = ChunkStrategyWindow
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = d.EmbedBatchSize
	}
	if c.EmbedConcurrency <= 0 {
		c.EmbedConcurrency = 1
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = d.ExtractTimeout
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = d.EmbedTimeout
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = d.GenerateTimeout
	}
	if c.StageLease <= 0 {
		c.StageLease = d.StageLease
	}
	if c.SummaryMaxChars <= 0 {
		c.SummaryMaxChars = d.SummaryMaxChars
	}
	if c.SignedURLTTL <= 0 {
		c.SignedURLTTL = d.SignedURLTTL
	}
	return c, notes
}
