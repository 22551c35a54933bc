package ingestrun

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
)

// Starter is the slice of the Temporal client the scheduler needs.
type Starter interface {
	ExecuteWorkflow(ctx context.Context, options temporalsdkclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (temporalsdkclient.WorkflowRun, error)
}

// Scheduler starts one ingest workflow per document. It implements
// ingestion.Scheduler.
type Scheduler struct {
	client     Starter
	taskQueue  string
	maxRounds  int
	roundDelay time.Duration
}

func NewScheduler(client Starter, taskQueue string, maxRounds int, roundDelay time.Duration) *Scheduler {
	return &Scheduler{client: client, taskQueue: taskQueue, maxRounds: maxRounds, roundDelay: roundDelay}
}

// ScheduleIngest is a no-op when a workflow for the document is already
// running.
func (s *Scheduler) ScheduleIngest(ctx context.Context, documentID uuid.UUID) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("temporal not configured")
	}
	if documentID == uuid.Nil {
		return nil
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                       WorkflowID(documentID),
		TaskQueue:                s.taskQueue,
		WorkflowIDReusePolicy:    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy: enums.WORKFLOW_ID_CONFLICT_POLICY_FAIL,
		WorkflowExecutionTimeout: 6 * time.Hour,
	}
	in := Input{DocumentID: documentID.String(), MaxRounds: s.maxRounds, RoundDelay: s.roundDelay}
	_, err := s.client.ExecuteWorkflow(ctx, opts, WorkflowName, in)
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		return nil
	}
	return err
}
