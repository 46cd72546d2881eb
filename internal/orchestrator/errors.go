package orchestrator

import (
	"errors"
	"fmt"
)

// Stage sentinels. Every error returned by the pipeline matches exactly one
// of them with errors.Is, as well as its underlying cause.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrClassification = errors.New("intent classification failed")
	ErrPermissions    = errors.New("permission lookup failed")
	ErrDecision       = errors.New("decision failed")
	ErrResponse       = errors.New("response generation failed")
	ErrPersistence    = errors.New("context persistence failed")
	ErrChannelLookup  = errors.New("channel lookup failed")
	ErrConversation   = errors.New("conversation resolution failed")
	ErrDelivery       = errors.New("message delivery failed")
	ErrHistory        = errors.New("conversation history write failed")
	ErrNotConfigured  = errors.New("pipeline collaborator not configured")
)

// ErrContextOwnership is the cause of an ErrInvalidRequest when the
// conversation's context belongs to another user or tenant.
var ErrContextOwnership = errors.New("conversation belongs to another user or tenant")

// Stage names a pipeline step.
type Stage string

const (
	StageValidate     Stage = "validate"
	StageContext      Stage = "resolve_context"
	StageClassify     Stage = "classify"
	StagePermissions  Stage = "permissions"
	StageDecide       Stage = "decide"
	StageExecute      Stage = "execute"
	StageRespond      Stage = "respond"
	StageSave         Stage = "save_context"
	StageChannel      Stage = "resolve_channel"
	StageConversation Stage = "resolve_conversation"
	StageDeliver      Stage = "deliver"
	StageHistory      Stage = "history"
)

// StageError is returned when a pipeline step aborts the run.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes both the stage sentinel and the cause.
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func stageErr(stage Stage, kind, err error) error {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// StageOf returns the stage of a pipeline error, or "" for other errors.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
