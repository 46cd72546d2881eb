// Package workflows runs inbound channel messages as Temporal workflows.
//
// Each inbound job becomes one InboundMessageWorkflow, keyed by the job ID so
// redelivered jobs do not start twice. The workflow executes a single
// activity that hands the job to the orchestrator; failed deliveries are
// retried under the workflow's retry policy while validation failures are
// not retried at all.
package workflows
