package box

import (
	"errors"
	"fmt"
)

// Failure kinds. Every pipeline failure matches exactly one of these via errors.Is.
var (
	ErrValidation  = errors.New("invalid submission")
	ErrPersistence = errors.New("persistence failed")
	ErrArchive     = errors.New("archive failed")
	ErrDispatch    = errors.New("dispatch failed")
)

// PipelineError is the terminal Failed(stage, cause) outcome of a run.
// Stage is the state the run was trying to enter when it failed.
type PipelineError struct {
	Stage State
	Kind  error
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap exposes both the kind and the cause so errors.Is matches either.
func (e *PipelineError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Prefix returns the caller-facing label for the failure kind.
func (e *PipelineError) Prefix() string {
	switch e.Kind {
	case ErrValidation:
		return "Invalid submission"
	case ErrPersistence:
		return "Database error"
	case ErrArchive:
		return "Failed to create zip file"
	case ErrDispatch:
		return "Failed to send zip file via email"
	default:
		return "Internal error"
	}
}

// Message is the caller-facing text: the stage label followed by the cause.
func (e *PipelineError) Message() string {
	if e.Err == nil {
		return e.Prefix()
	}
	return e.Prefix() + ": " + e.Err.Error()
}
