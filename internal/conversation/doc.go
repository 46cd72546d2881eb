// Package conversation holds the per-conversation orchestration context: the
// bounded window of recent messages, the last classified intent, pending
// actions and free-form session data, together with the stores that persist
// it under optimistic concurrency.
//
// A Context is created with version 1 by Store.Create. Every Store.Save must
// carry the version it was read at; the store increments it on success and
// rejects a stale write with ErrVersionConflict. Last-writer-wins is never
// applied.
package conversation
