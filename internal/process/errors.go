package process

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyCommand is returned when Run is called without a command.
var ErrEmptyCommand = errors.New("process: command is required")

// SpawnError means the OS could not start the command at all
// (binary not found, permission denied, bad working directory).
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError means the command ran but did not exit with status 0.
// Code is -1 when the process was terminated by a signal.
type ExitError struct {
	Command string
	Args    []string
	Code    int
	Signal  string
}

func (e *ExitError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("%s terminated by signal %s (args: %s)", e.Command, e.Signal, strings.Join(e.Args, " "))
	}
	return fmt.Sprintf("%s exited with exit code %d (args: %s)", e.Command, e.Code, strings.Join(e.Args, " "))
}

// TimeoutError means the command was killed after exceeding its timeout.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Command, e.Timeout)
}
