package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/http"
	"github.com/fyrsmithlabs/ledgerd/internal/messaging"
)

// withWorker runs the channel worker inside the serve process
var withWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API for synchronous messages, function discovery, decision
history and inbound channel webhooks.

Examples:
  # API only, channel jobs handled by a separate "ledgerd worker"
  ledgerd serve

  # Single node: API plus the channel worker
  ledgerd serve --with-worker`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&withWorker, "with-worker", false, "also consume inbound channel jobs in this process")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, err := initDependencies(ctx)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	deps.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cfg := deps.cfg
	server, err := http.NewServer(http.Deps{
		Processor: deps.pipeline,
		Registry:  deps.registry,
		Decisions: deps.decisions,
		Jobs:      messaging.NewPublisher(deps.nc, cfg.NATS.InboundSubject),
		Gatherer:  deps.metrics,
	}, deps.logger.Underlying().Named("http"), &http.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errs := make(chan error, 2)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()

	workerDone := make(chan struct{})
	if withWorker {
		go func() {
			defer close(workerDone)
			if err := runChannelWorker(ctx, deps); err != nil {
				errs <- err
			}
		}()
	} else {
		close(workerDone)
	}

	select {
	case err = <-errs:
		deps.logger.Error(ctx, "component failed", zap.Error(err))
		cancel()
	case <-ctx.Done():
		deps.logger.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		deps.logger.Warn(shutdownCtx, "http shutdown failed", zap.Error(serr))
	}
	<-workerDone
	return err
}
