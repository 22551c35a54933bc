package ingestrun

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	types "github.com/yungbote/lumen-backend/internal/domain/materials"
	"github.com/yungbote/lumen-backend/internal/modules/ingestion"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

// Pipeline is the part of the ingestion pipeline the activities drive.
type Pipeline interface {
	Extract(ctx context.Context, id uuid.UUID) (*types.SourceDocument, error)
	ChunkAndEmbed(ctx context.Context, id uuid.UUID) (*ingestion.EmbedResult, error)
}

type Activities struct {
	Log      *logger.Logger
	Pipeline Pipeline
}

func (a *Activities) Extract(ctx context.Context, documentID string) (StageResult, error) {
	res := StageResult{DocumentID: strings.TrimSpace(documentID)}
	id, err := a.parse(res.DocumentID)
	if err != nil {
		return res, err
	}
	heartbeat(ctx, "extract")

	doc, err := a.Pipeline.Extract(ctx, id)
	if err != nil {
		return res, classify(err)
	}
	res.Status = string(doc.ProcessingStatus)
	return res, nil
}

func (a *Activities) ChunkAndEmbed(ctx context.Context, documentID string) (StageResult, error) {
	res := StageResult{DocumentID: strings.TrimSpace(documentID)}
	id, err := a.parse(res.DocumentID)
	if err != nil {
		return res, err
	}
	heartbeat(ctx, "chunk_embed")

	out, err := a.Pipeline.ChunkAndEmbed(ctx, id)
	if err != nil {
		return res, classify(err)
	}
	res.Status = string(out.Status)
	res.RemainingCount = out.RemainingCount
	res.TotalChunks = out.TotalChunks
	if a.Log != nil {
		a.Log.Info("Embed round finished", "document_id", id, "embedded", out.EmbeddedCount, "failed", out.FailedCount, "remaining", out.RemainingCount)
	}
	return res, nil
}

func (a *Activities) parse(documentID string) (uuid.UUID, error) {
	if a == nil || a.Pipeline == nil {
		return uuid.Nil, fmt.Errorf("ingestrun: activity not configured")
	}
	id, err := uuid.Parse(documentID)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, temporal.NewNonRetryableApplicationError("invalid document_id", ErrTypeState, err)
	}
	return id, nil
}

// classify marks state and not-found errors non-retryable; everything else
// is left to the activity retry policy.
func classify(err error) error {
	if apierr.IsKind(err, apierr.KindPipelineState) || apierr.IsKind(err, apierr.KindNotFound) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeState, err)
	}
	return err
}

func heartbeat(ctx context.Context, stage string) {
	if activity.IsActivity(ctx) {
		activity.RecordHeartbeat(ctx, stage)
	}
}
