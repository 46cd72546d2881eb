package workflows

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/ledgerd/internal/orchestrator"
)

// DefaultTaskQueue is used when no task queue is configured.
const DefaultTaskQueue = "ledgerd-inbound"

// Defaults for the inbound activity.
const (
	DefaultMaxAttempts     = 5
	DefaultActivityTimeout = 2 * time.Minute
)

// Processor handles a queued channel message. *orchestrator.Pipeline
// satisfies it.
type Processor interface {
	ProcessAsync(ctx context.Context, job orchestrator.Job) error
}

// InboundInput is the workflow argument.
type InboundInput struct {
	Job         orchestrator.Job
	MaxAttempts int32
	Timeout     time.Duration
}

// InboundResult is the workflow result.
type InboundResult struct {
	JobID       string
	CompletedAt time.Time
}

// WorkflowID returns the workflow ID used for a job.
func WorkflowID(jobID string) string {
	return "inbound-" + jobID
}
