package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/shlex"

	"github.com/3cpo-dev/conveyor/internal/process"
)

// RunScript runs a project script such as "./build.sh --release" from dir.
// The script is opaque: only its exit status matters.
func RunScript(ctx context.Context, r Runner, dir, commandLine string) error {
	parts, err := shlex.Split(commandLine)
	if err != nil {
		return fmt.Errorf("parse command %q: %w", commandLine, err)
	}
	if len(parts) == 0 {
		return errors.New("script command is empty")
	}
	if err := r.Run(ctx, parts[0], parts[1:], process.WithDir(dir)); err != nil {
		return fmt.Errorf("run %s: %w", parts[0], err)
	}
	return nil
}
