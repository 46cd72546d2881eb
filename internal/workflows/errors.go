package workflows

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/ledgerd/internal/orchestrator"
)

// Error type names reported to Temporal for non-retryable failures.
const (
	errTypeInvalidJob    = "InvalidJob"
	errTypeNotConfigured = "NotConfigured"
)

// classifyActivityError marks failures that a retry cannot fix as
// non-retryable. Everything else is returned unchanged and retried.
func classifyActivityError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidJob, err)
	case errors.Is(err, orchestrator.ErrNotConfigured):
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeNotConfigured, err)
	default:
		return err
	}
}
