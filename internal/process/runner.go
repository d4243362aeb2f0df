// Package process spawns external commands for task bodies and maps their
// termination to Go errors.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// StreamMode selects what happens to a child's standard streams.
type StreamMode int

const (
	// StreamDefault forwards output when the runner is in debug mode and
	// suppresses it otherwise.
	StreamDefault StreamMode = iota
	StreamSuppress
	StreamInherit
	StreamCapture
)

func (m StreamMode) String() string {
	switch m {
	case StreamSuppress:
		return "suppress"
	case StreamInherit:
		return "inherit"
	case StreamCapture:
		return "capture"
	default:
		return "default"
	}
}

// Recorder observes finished process invocations.
type Recorder interface {
	RecordProcess(command, outcome string, duration time.Duration)
}

// Config is fixed for the lifetime of a Runner.
type Config struct {
	// Debug makes StreamDefault forward child output.
	Debug bool
	// Dir is the working directory used when a call does not set one.
	Dir string
	// Timeout applies to every call that does not set its own. Zero disables it.
	Timeout  time.Duration
	Stdout   io.Writer
	Stderr   io.Writer
	Logger   zerolog.Logger
	Recorder Recorder
}

// Runner starts one OS process per call and blocks the caller until it exits.
// It is safe for concurrent use.
type Runner struct {
	cfg Config
}

// New creates a runner. Nil writers default to the controlling process streams.
func New(cfg Config) *Runner {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	return &Runner{cfg: cfg}
}

type options struct {
	dir     string
	stream  StreamMode
	env     []string
	timeout time.Duration
	output  io.Writer
}

// Option adjusts a single invocation.
type Option func(*options)

// WithDir sets the working directory of the child.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithStream overrides the stream disposition.
func WithStream(mode StreamMode) Option {
	return func(o *options) { o.stream = mode }
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(kv ...string) Option {
	return func(o *options) { o.env = append(o.env, kv...) }
}

// WithTimeout kills the child once d has elapsed.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithOutput sets the destination of stdout in StreamCapture mode.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

func (r *Runner) resolve(opts []Option) options {
	o := options{dir: r.cfg.Dir, timeout: r.cfg.Timeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.stream == StreamDefault {
		o.stream = StreamSuppress
		if r.cfg.Debug {
			o.stream = StreamInherit
		}
	}
	return o
}

// Run executes command with args and returns nil on exit status 0.
//
// The child is not tied to ctx: once started it runs to completion (or until
// its timeout). ctx only prevents the spawn when it is already done.
func (r *Runner) Run(ctx context.Context, command string, args []string, opts ...Option) error {
	if command == "" {
		return ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	o := r.resolve(opts)

	procCtx := context.Background()
	cancel := context.CancelFunc(func() {})
	if o.timeout > 0 {
		procCtx, cancel = context.WithTimeout(procCtx, o.timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(procCtx, command, args...)
	cmd.Dir = o.dir
	if len(o.env) > 0 {
		cmd.Env = append(os.Environ(), o.env...)
	}
	switch o.stream {
	case StreamInherit:
		cmd.Stdout = r.cfg.Stdout
		cmd.Stderr = r.cfg.Stderr
	case StreamCapture:
		cmd.Stdout = o.output
		if r.cfg.Debug {
			cmd.Stderr = r.cfg.Stderr
		}
	}

	logger := r.cfg.Logger.With().Str("command", command).Strs("args", args).Str("dir", o.dir).Logger()
	logger.Debug().Str("stream", o.stream.String()).Msg("Starting process")

	start := time.Now()
	if err := cmd.Start(); err != nil {
		r.record(command, "spawn_error", time.Since(start))
		logger.Debug().Err(err).Msg("Process failed to start")
		return &SpawnError{Command: command, Err: err}
	}
	err := cmd.Wait()
	duration := time.Since(start)
	if err == nil {
		r.record(command, "success", duration)
		logger.Debug().Dur("duration", duration).Msg("Process exited")
		return nil
	}

	if o.timeout > 0 && errors.Is(procCtx.Err(), context.DeadlineExceeded) {
		r.record(command, "timeout", duration)
		logger.Debug().Dur("timeout", o.timeout).Msg("Process timed out")
		return &TimeoutError{Command: command, Timeout: o.timeout}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res := &ExitError{Command: command, Args: append([]string(nil), args...), Code: exitErr.ExitCode()}
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			res.Signal = ws.Signal().String()
		}
		r.record(command, "exit_error", duration)
		logger.Debug().Int("code", res.Code).Dur("duration", duration).Msg("Process exited with error")
		return res
	}
	r.record(command, "wait_error", duration)
	return fmt.Errorf("wait %s: %w", command, err)
}

// Output runs command in capture mode and returns what it wrote to stdout.
func (r *Runner) Output(ctx context.Context, command string, args []string, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	opts = append(opts, WithStream(StreamCapture), WithOutput(&buf))
	if err := r.Run(ctx, command, args, opts...); err != nil {
		return buf.Bytes(), err
	}
	return buf.Bytes(), nil
}

func (r *Runner) record(command, outcome string, d time.Duration) {
	if r.cfg.Recorder != nil {
		r.cfg.Recorder.RecordProcess(command, outcome, d)
	}
}
