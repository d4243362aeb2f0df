// Package steps holds the leaf actions of the build: filesystem setup,
// source checkouts, archive downloads, project scripts, bundling and README
// maintenance. Each step is idempotent where the underlying tool allows it.
package steps

import (
	"context"

	"github.com/3cpo-dev/conveyor/internal/process"
)

// Runner is the subset of *process.Runner the steps need.
type Runner interface {
	Run(ctx context.Context, command string, args []string, opts ...process.Option) error
}
