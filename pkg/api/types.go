package api

import "time"

// Public types describing build runs, shared by the history store and the CLI.

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// Done reports whether s is a terminal status.
func (s RunStatus) Done() bool {
	return s == RunSucceeded || s == RunFailed || s == RunSkipped
}

type TaskRecord struct {
	Name      string        `json:"name" yaml:"name"`
	Kind      string        `json:"kind" yaml:"kind"`
	Status    RunStatus     `json:"status" yaml:"status"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

type RunRecord struct {
	ID         string       `json:"id" yaml:"id"`
	Task       string       `json:"task" yaml:"task"`
	Status     RunStatus    `json:"status" yaml:"status"`
	Error      string       `json:"error,omitempty" yaml:"error,omitempty"`
	FailedTask string       `json:"failed_task,omitempty" yaml:"failed_task,omitempty"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time    `json:"finished_at" yaml:"finished_at"`
	Tasks      []TaskRecord `json:"tasks,omitempty" yaml:"tasks,omitempty"`
}

// Duration is the wall time of the run, zero while it is still running.
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
