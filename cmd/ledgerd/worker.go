package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/messaging"
	"github.com/fyrsmithlabs/ledgerd/internal/workflows"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume inbound channel messages",
	Long: `Consume inbound channel jobs from NATS and answer them on the sender's channel.

With temporal.enabled each job is started as a durable workflow and this
process also runs the Temporal worker that executes it. Otherwise jobs are
processed in-process with a bounded goroutine pool.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		deps, err := initDependencies(ctx)
		if err != nil {
			return err
		}
		defer deps.Close(context.Background())

		return runChannelWorker(ctx, deps)
	},
}

// runChannelWorker blocks until ctx is done, then drains the subscriber
// before stopping the Temporal worker.
func runChannelWorker(ctx context.Context, deps *dependencies) error {
	cfg := deps.cfg
	zl := deps.logger.Underlying()

	var handler messaging.Handler = messaging.HandlerFunc(deps.pipeline.ProcessAsync)

	if cfg.Temporal.Enabled {
		c, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			return fmt.Errorf("unable to create Temporal client: %w", err)
		}
		defer c.Close()
		deps.logger.Info(ctx, "temporal client connected", zap.String("host", cfg.Temporal.HostPort))

		w := workflows.NewWorker(c, cfg.Temporal.TaskQueue, deps.pipeline)
		if err := w.Start(); err != nil {
			return fmt.Errorf("starting temporal worker: %w", err)
		}
		defer w.Stop()
		deps.logger.Info(ctx, "temporal worker started", zap.String("task_queue", cfg.Temporal.TaskQueue))

		handler = workflows.NewStarter(c, workflows.StarterConfig{
			TaskQueue:   cfg.Temporal.TaskQueue,
			MaxAttempts: cfg.Temporal.MaxAttempts,
			JobTimeout:  cfg.Worker.JobTimeout,
		}, zl.Named("workflows"))
	}

	sub := messaging.NewSubscriber(deps.nc, handler,
		messaging.WithSubject(cfg.NATS.InboundSubject),
		messaging.WithQueueGroup(cfg.NATS.QueueGroup),
		messaging.WithConcurrency(cfg.Worker.Concurrency),
		messaging.WithJobTimeout(cfg.Worker.JobTimeout),
		messaging.WithLogger(zl.Named("subscriber")),
	)
	if err := sub.Start(ctx); err != nil {
		return fmt.Errorf("starting subscriber: %w", err)
	}
	defer func() {
		if err := sub.Stop(); err != nil {
			deps.logger.Warn(context.Background(), "subscriber drain failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	return nil
}

