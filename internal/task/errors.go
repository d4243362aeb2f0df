package task

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyName = errors.New("task name is required")
	ErrNilBody   = errors.New("task body is required")
	ErrSealed    = errors.New("task registry is sealed")
	// ErrAborted is reported for tasks that were not started because the
	// execution request had already failed.
	ErrAborted = errors.New("task not started: run already failed")
)

// UnknownTaskError is returned when a name is referenced but never registered.
type UnknownTaskError struct {
	Name string
	// From is the task that referenced Name, empty for a top-level request.
	From string
}

func (e *UnknownTaskError) Error() string {
	if e.From != "" {
		return fmt.Sprintf("task %q (referenced by %q) is not registered", e.Name, e.From)
	}
	return fmt.Sprintf("task %q is not registered", e.Name)
}

// DuplicateTaskError is returned when a name is registered twice.
type DuplicateTaskError struct {
	Name string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task %q is already registered", e.Name)
}

// CycleError reports a dependency cycle. Path starts and ends with the same name.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// Error is the failure of a single task body.
type Error struct {
	Task string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("task %q failed: %v", e.Task, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
