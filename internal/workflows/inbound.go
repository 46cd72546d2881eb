package workflows

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/ledgerd/internal/orchestrator"
)

// InboundMessageWorkflow processes one inbound channel job.
func InboundMessageWorkflow(ctx workflow.Context, in InboundInput) (*InboundResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Processing inbound message", "job_id", in.Job.ID, "channel", in.Job.Message.Channel)

	attempts := in.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = DefaultActivityTimeout
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        attempts,
			NonRetryableErrorTypes: []string{errTypeInvalidJob, errTypeNotConfigured},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *Activities
	if err := workflow.ExecuteActivity(ctx, a.ProcessInbound, in.Job).Get(ctx, nil); err != nil {
		logger.Error("Inbound message failed", "job_id", in.Job.ID, "error", err)
		return nil, err
	}

	return &InboundResult{JobID: in.Job.ID, CompletedAt: workflow.Now(ctx)}, nil
}

// Activities holds the activity implementations. Register a non-nil value
// with the worker.
type Activities struct {
	Processor Processor
}

// ProcessInbound hands the job to the orchestrator.
func (a *Activities) ProcessInbound(ctx context.Context, job orchestrator.Job) error {
	start := time.Now()
	info := activity.GetInfo(ctx)
	err := a.Processor.ProcessAsync(ctx, job)
	recordActivity(ctx, info.Attempt, time.Since(start), err)
	return classifyActivityError(err)
}
