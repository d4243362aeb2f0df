package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/3cpo-dev/conveyor/internal/task"
	"github.com/3cpo-dev/conveyor/pkg/api"
)

// RunRecorder collects task events for one run and persists them when the
// run ends. It implements task.Observer.
type RunRecorder struct {
	store *Store

	mu      sync.Mutex
	run     api.RunRecord
	pending map[string]int
}

// Begin records the start of a run of name.
func (s *Store) Begin(ctx context.Context, name string) (*RunRecorder, error) {
	run, err := s.StartRun(ctx, name)
	if err != nil {
		return nil, err
	}
	return &RunRecorder{store: s, run: run, pending: map[string]int{}}, nil
}

// ID is the id of the recorded run.
func (r *RunRecorder) ID() string { return r.run.ID }

func (r *RunRecorder) TaskStarted(info task.Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[info.Name] = len(r.run.Tasks)
	r.run.Tasks = append(r.run.Tasks, api.TaskRecord{
		Name:      info.Name,
		Kind:      info.Kind.String(),
		Status:    api.RunRunning,
		StartedAt: time.Now().UTC(),
	})
}

func (r *RunRecorder) TaskFinished(info task.Info, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.pending[info.Name]
	if !ok {
		return
	}
	delete(r.pending, info.Name)
	t := &r.run.Tasks[i]
	t.Duration = d
	t.Status = api.RunSucceeded
	if err != nil {
		t.Status = api.RunFailed
		t.Error = err.Error()
	}
}

func (r *RunRecorder) TaskSkipped(info task.Info, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := api.TaskRecord{Name: info.Name, Kind: info.Kind.String(), Status: api.RunSkipped}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if i, ok := r.pending[info.Name]; ok {
		delete(r.pending, info.Name)
		rec.StartedAt = r.run.Tasks[i].StartedAt
		r.run.Tasks[i] = rec
		return
	}
	r.run.Tasks = append(r.run.Tasks, rec)
}

// Finish stores the outcome of the run. runErr is the error returned by the
// executor; a *task.Error names the failing task.
func (r *RunRecorder) Finish(ctx context.Context, runErr error) (api.RunRecord, error) {
	r.mu.Lock()
	run := r.run
	run.Tasks = append([]api.TaskRecord(nil), r.run.Tasks...)
	r.mu.Unlock()

	run.FinishedAt = time.Now().UTC()
	run.Status = api.RunSucceeded
	if runErr != nil {
		run.Status = api.RunFailed
		run.Error = runErr.Error()
		var te *task.Error
		if errors.As(runErr, &te) {
			run.FailedTask = te.Task
			run.Error = te.Err.Error()
		}
	}
	if err := r.store.FinishRun(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}
