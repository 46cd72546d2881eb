package workflows

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/ledgerd/internal/workflows"

var (
	workflowStartCounter metric.Int64Counter
	activityDuration     metric.Float64Histogram
	activityErrorCounter metric.Int64Counter
)

// initMetrics initializes OpenTelemetry metrics for workflows.
func initMetrics() {
	meter := otel.Meter(instrumentationName)

	var err error

	workflowStartCounter, err = meter.Int64Counter(
		"ledgerd.workflows.inbound.starts",
		metric.WithDescription("Inbound message workflows started, by result"),
		metric.WithUnit("{workflow}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create workflow start counter: %v", err))
	}

	activityDuration, err = meter.Float64Histogram(
		"ledgerd.workflows.activity.duration",
		metric.WithDescription("Duration of inbound activity executions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity duration: %v", err))
	}

	activityErrorCounter, err = meter.Int64Counter(
		"ledgerd.workflows.activity.errors",
		metric.WithDescription("Number of inbound activity errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity error counter: %v", err))
	}
}

func init() {
	initMetrics()
}

func recordStart(ctx context.Context, result string) {
	workflowStartCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func recordActivity(ctx context.Context, attempt int32, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.Int("attempt", int(attempt)))
	activityDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		activityErrorCounter.Add(ctx, 1, attrs)
	}
}
