package ingestrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow extracts a document, then runs chunk+embed rounds until no chunk
// is left without a vector or MaxRounds is reached.
func Workflow(ctx workflow.Context, in Input) (Result, error) {
	in = in.normalized()
	out := Result{DocumentID: strings.TrimSpace(in.DocumentID)}
	if out.DocumentID == "" {
		return out, fmt.Errorf("ingestrun: missing document_id")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        5 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        2 * time.Minute,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{ErrTypeState},
		},
	})
	log := workflow.GetLogger(ctx)

	var extracted StageResult
	if err := workflow.ExecuteActivity(ctx, ActivityExtract, out.DocumentID).Get(ctx, &extracted); err != nil {
		return out, err
	}
	out.Status = extracted.Status
	if strings.EqualFold(extracted.Status, "failed") {
		return out, nil
	}

	for round := 1; round <= in.MaxRounds; round++ {
		var embedded StageResult
		if err := workflow.ExecuteActivity(ctx, ActivityChunkAndEmbed, out.DocumentID).Get(ctx, &embedded); err != nil {
			return out, err
		}
		out.Rounds = round
		out.Status = embedded.Status
		out.Remaining = embedded.RemainingCount
		if finished(embedded) {
			return out, nil
		}
		if round < in.MaxRounds {
			log.Info("Chunks remain, sleeping before next embed round", "document_id", out.DocumentID, "remaining", embedded.RemainingCount, "round", round)
			if err := workflow.Sleep(ctx, in.RoundDelay); err != nil {
				return out, err
			}
		}
	}
	log.Warn("Embed rounds exhausted", "document_id", out.DocumentID, "remaining", out.Remaining)
	return out, nil
}
