package telemetry

import (
	"time"

	"github.com/3cpo-dev/conveyor/internal/task"
	"github.com/3cpo-dev/conveyor/pkg/api"
)

// TaskObserver feeds task lifecycle events into a Collector. Only named tasks
// are recorded; inline steps would give every label an unbounded suffix.
type TaskObserver struct {
	c *Collector
}

// Observer returns a task.Observer bound to c.
func (c *Collector) Observer() *TaskObserver {
	return &TaskObserver{c: c}
}

func (o *TaskObserver) TaskStarted(task.Info) {}

func (o *TaskObserver) TaskFinished(info task.Info, d time.Duration, err error) {
	if !info.Named {
		return
	}
	status := api.RunSucceeded
	if err != nil {
		status = api.RunFailed
	}
	o.c.RecordTask(info.Name, status, d)
}

func (o *TaskObserver) TaskSkipped(info task.Info, _ error) {
	if !info.Named {
		return
	}
	o.c.RecordTask(info.Name, api.RunSkipped, 0)
}

// TimerScope represents a scoped timer for measuring durations
type TimerScope struct {
	startTime time.Time
	phase     string
	collector *Collector
}

// NewTimerScope starts timing phase.
func (c *Collector) NewTimerScope(phase string) *TimerScope {
	return &TimerScope{startTime: time.Now(), phase: phase, collector: c}
}

// End completes the timer and records the duration
func (ts *TimerScope) End() time.Duration {
	duration := time.Since(ts.startTime)
	ts.collector.Timer(ts.phase, duration)
	return duration
}

// WithTimerScope executes fn and records how long it took.
func (c *Collector) WithTimerScope(phase string, fn func() error) (time.Duration, error) {
	ts := c.NewTimerScope(phase)
	err := fn()
	return ts.End(), err
}
