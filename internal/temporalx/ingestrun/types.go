package ingestrun

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	WorkflowName          = "document_ingest"
	ActivityExtract       = "document_ingest_extract"
	ActivityChunkAndEmbed = "document_ingest_chunk_embed"

	// ErrTypeState marks activity failures that retrying cannot fix.
	ErrTypeState = "pipeline_state"
)

type Input struct {
	DocumentID string        `json:"document_id"`
	MaxRounds  int           `json:"max_rounds,omitempty"`
	RoundDelay time.Duration `json:"round_delay,omitempty"`
}

type StageResult struct {
	DocumentID     string `json:"document_id"`
	Status         string `json:"status"`
	RemainingCount int    `json:"remaining_count,omitempty"`
	TotalChunks    int    `json:"total_chunks,omitempty"`
}

type Result struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	Rounds     int    `json:"rounds"`
	Remaining  int    `json:"remaining"`
}

const (
	defaultMaxRounds  = 5
	defaultRoundDelay = 30 * time.Second
)

func (in Input) normalized() Input {
	if in.MaxRounds < 1 {
		in.MaxRounds = defaultMaxRounds
	}
	if in.RoundDelay <= 0 {
		in.RoundDelay = defaultRoundDelay
	}
	return in
}

func WorkflowID(documentID uuid.UUID) string {
	return WorkflowName + ":" + documentID.String()
}

// finished reports whether the embed stage needs no further rounds.
func finished(r StageResult) bool {
	switch strings.ToLower(r.Status) {
	case "completed", "failed":
		return true
	}
	return r.RemainingCount <= 0
}
