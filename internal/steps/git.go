package steps

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/3cpo-dev/conveyor/internal/process"
)

// GitClone makes a shallow clone of url into dir/name, checking out branch
// when it is not empty. An existing checkout is left untouched.
func GitClone(ctx context.Context, r Runner, fs afero.Fs, dir, url, name, branch string) error {
	if ok, _ := afero.DirExists(fs, filepath.Join(dir, name, ".git")); ok {
		log.Info().Str("repo", name).Msg("Checkout exists, skipping clone")
		return nil
	}
	args := []string{"clone", "--depth=1"}
	if branch != "" {
		args = append(args, "--branch="+branch)
	}
	args = append(args, url, name)
	if err := r.Run(ctx, "git", args, process.WithDir(dir)); err != nil {
		return fmt.Errorf("clone %s: %w", name, err)
	}
	return nil
}
