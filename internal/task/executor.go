package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Info identifies a task in observer callbacks.
type Info struct {
	Name  string
	Kind  Kind
	Named bool
}

// Observer receives lifecycle events for named tasks and leaf tasks.
// Callbacks may arrive concurrently.
type Observer interface {
	TaskStarted(info Info)
	TaskFinished(info Info, duration time.Duration, err error)
	TaskSkipped(info Info, cause error)
}

// Executor runs compiled plans. It holds no per-request state, so one
// Executor can serve several sequential or concurrent requests.
type Executor struct {
	reg       *Registry
	logger    zerolog.Logger
	observers []Observer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

func WithLogger(l zerolog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) { e.observers = append(e.observers, o) }
}

// NewExecutor seals reg: the task set is fixed from here on.
func NewExecutor(reg *Registry, opts ...ExecutorOption) *Executor {
	reg.Seal()
	e := &Executor{reg: reg, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan compiles the graph for name without running anything.
func (e *Executor) Plan(name string) (*Plan, error) {
	return Compile(e.reg, name)
}

// Execute runs the task registered under name and everything it references.
// It returns nil when every reachable task succeeded, or the first observed
// failure as an *Error naming the failing task.
func (e *Executor) Execute(ctx context.Context, name string) error {
	plan, err := Compile(e.reg, name)
	if err != nil {
		return err
	}
	return e.Run(ctx, plan)
}

// Run executes an already compiled plan.
func (e *Executor) Run(ctx context.Context, plan *Plan) error {
	r := &run{e: e, plan: plan, slots: make([]slot, plan.Len())}
	err := r.exec(ctx, plan.Root)
	if cause := r.cause(); cause != nil {
		return cause
	}
	return err
}

type slot struct {
	once sync.Once
	err  error
}

// run is the state of one execution request. Each node has one slot so that
// a node reached through several parents executes once and every caller
// observes the same result.
type run struct {
	e     *Executor
	plan  *Plan
	slots []slot

	mu    sync.Mutex
	first error
}

func (r *run) exec(ctx context.Context, id int) error {
	s := &r.slots[id]
	s.once.Do(func() { s.err = r.execNode(ctx, id) })
	return s.err
}

func (r *run) execNode(ctx context.Context, id int) error {
	n := &r.plan.nodes[id]
	if err := r.admit(ctx, n); err != nil {
		return err
	}
	switch n.Kind {
	case KindFunc:
		return r.execFunc(ctx, n)
	case KindSeries:
		return r.composite(n, func() error {
			for _, c := range n.Children {
				if err := r.exec(ctx, c); err != nil {
					return err
				}
			}
			return nil
		})
	case KindParallel:
		return r.composite(n, func() error {
			var g errgroup.Group
			for _, c := range n.Children {
				c := c
				g.Go(func() error { return r.exec(ctx, c) })
			}
			err := g.Wait()
			if errors.Is(err, ErrAborted) {
				if cause := r.cause(); cause != nil {
					return cause
				}
			}
			return err
		})
	default:
		return fmt.Errorf("task %q: unexpected kind %s", n.Name, n.Kind)
	}
}

// admit refuses to start new work once the request has failed or ctx is done.
func (r *run) admit(ctx context.Context, n *Node) error {
	if r.cause() != nil {
		r.skipped(n, ErrAborted)
		return ErrAborted
	}
	if err := ctx.Err(); err != nil {
		failure := &Error{Task: n.Name, Err: err}
		r.fail(failure)
		r.skipped(n, err)
		return failure
	}
	return nil
}

func (r *run) execFunc(ctx context.Context, n *Node) error {
	info := n.info()
	r.started(info)
	start := time.Now()
	err := call(ctx, n.body)
	d := time.Since(start)
	if err != nil {
		failure := &Error{Task: n.Name, Err: err}
		r.fail(failure)
		r.finished(info, d, failure)
		return failure
	}
	r.finished(info, d, nil)
	return nil
}

func (r *run) composite(n *Node, body func() error) error {
	if !n.Named {
		return body()
	}
	info := n.info()
	r.started(info)
	start := time.Now()
	err := body()
	// admitted composites always finish, even when a failure elsewhere
	// aborted their remaining children
	r.finished(info, time.Since(start), err)
	return err
}

func call(ctx context.Context, body Body) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return body(ctx)
}

func (r *run) fail(err error) {
	r.mu.Lock()
	if r.first == nil {
		r.first = err
	}
	r.mu.Unlock()
}

func (r *run) cause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.first
}

func (n *Node) info() Info {
	return Info{Name: n.Name, Kind: n.Kind, Named: n.Named}
}

func (r *run) started(info Info) {
	if info.Named {
		r.e.logger.Info().Str("task", info.Name).Msg("Starting")
	} else {
		r.e.logger.Debug().Str("task", info.Name).Msg("Starting")
	}
	for _, o := range r.e.observers {
		o.TaskStarted(info)
	}
}

func (r *run) finished(info Info, d time.Duration, err error) {
	if err != nil {
		r.e.logger.Error().Str("task", info.Name).Dur("duration", d).Err(err).Msg("Errored")
	} else if info.Named {
		r.e.logger.Info().Str("task", info.Name).Dur("duration", d).Msg("Finished")
	} else {
		r.e.logger.Debug().Str("task", info.Name).Dur("duration", d).Msg("Finished")
	}
	for _, o := range r.e.observers {
		o.TaskFinished(info, d, err)
	}
}

func (r *run) skipped(n *Node, cause error) {
	if !n.Named && n.Kind != KindFunc {
		return
	}
	info := n.info()
	r.e.logger.Debug().Str("task", info.Name).Msg("Skipped")
	for _, o := range r.e.observers {
		o.TaskSkipped(info, cause)
	}
}
