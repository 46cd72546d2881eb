package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/orchestrator"
)

// Starter starts an InboundMessageWorkflow per job. It satisfies
// messaging.Handler so the NATS subscriber can hand jobs to Temporal instead
// of processing them in-process.
type Starter struct {
	client      client.Client
	taskQueue   string
	maxAttempts int32
	timeout     time.Duration
	logger      *zap.Logger
}

// StarterConfig configures a Starter.
type StarterConfig struct {
	TaskQueue   string
	MaxAttempts int
	JobTimeout  time.Duration
}

// NewStarter creates a Starter.
func NewStarter(c client.Client, cfg StarterConfig, logger *zap.Logger) *Starter {
	if cfg.TaskQueue == "" {
		cfg.TaskQueue = DefaultTaskQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Starter{
		client:      c,
		taskQueue:   cfg.TaskQueue,
		maxAttempts: int32(cfg.MaxAttempts),
		timeout:     cfg.JobTimeout,
		logger:      logger,
	}
}

// Handle starts the workflow for job. A job whose workflow is already
// running is not started again.
func (s *Starter) Handle(ctx context.Context, job orchestrator.Job) error {
	options := client.StartWorkflowOptions{
		ID:        WorkflowID(job.ID),
		TaskQueue: s.taskQueue,

		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	in := InboundInput{Job: job, MaxAttempts: s.maxAttempts, Timeout: s.timeout}

	we, err := s.client.ExecuteWorkflow(ctx, options, InboundMessageWorkflow, in)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			recordStart(ctx, "duplicate")
			s.logger.Debug("inbound workflow already started", zap.String("workflow_id", options.ID))
			return nil
		}
		recordStart(ctx, "error")
		return fmt.Errorf("failed to start workflow: %w", err)
	}

	recordStart(ctx, "started")
	s.logger.Info("workflow started",
		zap.String("workflow_id", we.GetID()),
		zap.String("run_id", we.GetRunID()))
	return nil
}

// NewWorker creates a worker for taskQueue with the inbound workflow and its
// activity registered.
func NewWorker(c client.Client, taskQueue string, p Processor) worker.Worker {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(InboundMessageWorkflow)
	w.RegisterActivity(&Activities{Processor: p})
	return w
}
