// Package orchestrator turns one inbound conversational message into a reply.
//
// For every message the Pipeline:
//
//  1. resolves or creates the conversation's orchestration context
//  2. appends the inbound message to the bounded window
//  3. classifies the intent
//  4. resolves the principal's permissions and the functions they unlock
//  5. asks the decision maker what to do, offering allowed functions only
//  6. executes every proposed function through the registry, fail-soft
//  7. asks the responder for the reply text
//  8. appends the outbound message
//  9. saves the context under optimistic concurrency
//  10. records an audit decision as a post-commit side effect
//
// Steps run strictly one after another. A failure in classification,
// permission lookup, decision, response or context save aborts the run and
// is returned as a *StageError. A failing function only marks its own
// ActionResult as failed, and a failing audit write is logged and counted.
//
// ProcessSync wraps ProcessMessage for callers that wait on the answer and
// writes both messages to conversation history. ProcessAsync serves channel
// jobs: it resolves the sender, delivers the reply through a Messenger and
// returns delivery errors so the job system can retry.
package orchestrator
