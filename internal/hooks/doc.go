// Package hooks runs deferred side effects after the main path of a message
// has completed.
//
// A PostCommit is created per message run. Callbacks are queued with Schedule
// and executed by Run one after another in registration order. A failing or
// panicking callback is logged and reported in its Outcome but never stops the
// callbacks after it, and never reaches the caller as an error.
package hooks
