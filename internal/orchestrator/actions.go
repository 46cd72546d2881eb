package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/decision"
	"github.com/fyrsmithlabs/ledgerd/internal/logging"
	"github.com/fyrsmithlabs/ledgerd/internal/registry"
)

// Action result labels.
const (
	actionSucceeded = "success"
	actionDenied    = "denied"
	actionNotFound  = "not_found"
	actionInvalid   = "invalid_parameters"
	actionPanicked  = "panic"
	actionFailed    = "error"
)

const unknownFunction = "unknown"

// executeActions runs every proposed call in order and returns exactly one
// result per call. No failure stops the calls after it.
func (p *Pipeline) executeActions(ctx context.Context, calls []decision.FunctionCall, principal registry.Principal) []decision.ActionResult {
	start := time.Now()
	defer p.metrics.observeStage(StageExecute, start)

	results := make([]decision.ActionResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, p.executeAction(ctx, call, principal))
	}
	return results
}

func (p *Pipeline) executeAction(ctx context.Context, call decision.FunctionCall, principal registry.Principal) decision.ActionResult {
	ctx, span := p.tracer.Start(ctx, "orchestrator.action")
	span.SetAttributes(attribute.String("function.name", call.Name))
	defer span.End()

	start := time.Now()
	out, err := p.registry.Execute(ctx, call.Name, call.Parameters, principal)
	res := decision.ActionResult{
		FunctionName:  call.Name,
		ExecutionTime: time.Since(start),
	}

	if err == nil {
		res.Success = true
		res.Result = out
		p.metrics.recordAction(call.Name, actionSucceeded)
		return res
	}

	label := actionLabel(err)
	res.Error = firstLine(err.Error())
	span.RecordError(err)
	span.SetStatus(codes.Error, res.Error)
	p.metrics.recordAction(functionLabel(call.Name, err), label)

	fields := append(logging.ContextFields(ctx),
		zap.String("function", call.Name),
		zap.String("result", label),
		zap.Duration("duration", res.ExecutionTime),
		zap.Error(err),
	)
	if label == actionDenied {
		p.logger.Warn("function call denied", fields...)
	} else {
		p.logger.Warn("function call failed", fields...)
	}
	return res
}

// functionLabel keeps names the decision model invented out of metric labels.
func functionLabel(name string, err error) string {
	if errors.Is(err, registry.ErrFunctionNotFound) {
		return unknownFunction
	}
	return name
}

func actionLabel(err error) string {
	switch {
	case errors.Is(err, registry.ErrPermissionDenied):
		return actionDenied
	case errors.Is(err, registry.ErrFunctionNotFound):
		return actionNotFound
	case errors.Is(err, registry.ErrInvalidParameters):
		return actionInvalid
	case errors.Is(err, registry.ErrHandlerPanic):
		return actionPanicked
	default:
		return actionFailed
	}
}

// firstLine drops stack traces from recovered panics.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
