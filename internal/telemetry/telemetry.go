package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/conveyor/pkg/api"
)

const namespace = "conveyor"

// Collector holds the metrics of one conveyor invocation. It owns a private
// registry so that tests and repeated runs never collide on registration.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	processDuration *prometheus.HistogramVec
	processes       *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	tasks           *prometheus.CounterVec
	phaseDuration   *prometheus.HistogramVec
}

// NewCollector creates a new telemetry collector. A disabled collector
// accepts every call and records nothing.
func NewCollector(enabled bool) *Collector {
	c := &Collector{enabled: enabled, registry: prometheus.NewRegistry()}
	c.processDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "process_duration_seconds",
		Help:      "Wall time of external processes.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"command", "outcome"})
	c.processes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "processes_total",
		Help:      "External processes run, by outcome.",
	}, []string{"command", "outcome"})
	c.taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Wall time of tasks.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"task"})
	c.tasks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_total",
		Help:      "Tasks by final status.",
	}, []string{"task", "status"})
	c.phaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "phase_duration_seconds",
		Help:      "Wall time of CLI phases such as compile and execute.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"phase"})
	c.registry.MustRegister(c.processDuration, c.processes, c.taskDuration, c.tasks, c.phaseDuration)
	return c
}

// Enabled reports whether metrics are recorded.
func (c *Collector) Enabled() bool { return c.enabled }

// Registry exposes the underlying registry for gathering.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RecordProcess records one external process invocation.
func (c *Collector) RecordProcess(command, outcome string, duration time.Duration) {
	if !c.enabled {
		return
	}
	c.processDuration.WithLabelValues(command, outcome).Observe(duration.Seconds())
	c.processes.WithLabelValues(command, outcome).Inc()
}

// RecordTask records the final status of a task.
func (c *Collector) RecordTask(name string, status api.RunStatus, duration time.Duration) {
	if !c.enabled {
		return
	}
	if status != api.RunSkipped {
		c.taskDuration.WithLabelValues(name).Observe(duration.Seconds())
	}
	c.tasks.WithLabelValues(name, string(status)).Inc()
}

// Timer records a duration measurement for a named phase
func (c *Collector) Timer(phase string, duration time.Duration) {
	if !c.enabled {
		return
	}
	c.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// WriteTextfile writes every metric in the Prometheus text format, for the
// node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if !c.enabled || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	log.Debug().Str("path", path).Msg("Wrote metrics textfile")
	return nil
}
