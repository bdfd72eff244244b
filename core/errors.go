package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidState    = errors.New("invalid state")
	ErrSequenceEdit    = errors.New("invalid sequence edit")
	ErrCyclicWorkflow  = errors.New("cyclic workflow")
	ErrBackendFailure  = errors.New("backend failure")
	ErrAlreadyAttached = errors.New("task is already part of a collection")
)

// InvalidStateError is returned when an operation is not valid for the current state of a task.
type InvalidStateError struct {
	TaskID string
	Op     string
	State  State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s task %s in state %s", e.Op, e.TaskID, e.State)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// SequenceEditError is returned for illegal mutations of a sequential collection.
type SequenceEditError struct {
	TaskID string
	Index  int
	Cursor int
	Reason string
}

func (e *SequenceEditError) Error() string {
	return fmt.Sprintf("cannot edit entry %d of sequence %s (cursor at %d): %s", e.Index, e.TaskID, e.Cursor, e.Reason)
}

func (e *SequenceEditError) Is(target error) bool {
	return target == ErrSequenceEdit
}

// CyclicWorkflowError is returned when adding a task would make a collection its own descendant.
type CyclicWorkflowError struct {
	Path []string
}

func (e *CyclicWorkflowError) Error() string {
	return "cycle: " + strings.Join(e.Path, " -> ")
}

func (e *CyclicWorkflowError) Is(target error) bool {
	return target == ErrCyclicWorkflow
}

// BackendFailure describes a failure of the resource manager while operating on a job. It is
// never returned from task operations, it is recorded in the exit status of the task instead.
type BackendFailure struct {
	Op  string
	Err error
}

func (e *BackendFailure) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendFailure) Unwrap() error {
	return e.Err
}

func (e *BackendFailure) Is(target error) bool {
	return target == ErrBackendFailure
}
