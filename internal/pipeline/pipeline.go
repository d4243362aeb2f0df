// Package pipeline defines the libphonenumber build graph on top of the task
// engine and the leaf steps.
package pipeline

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/3cpo-dev/conveyor/internal/core"
	"github.com/3cpo-dev/conveyor/internal/steps"
	"github.com/3cpo-dev/conveyor/internal/task"
)

// DefaultTask runs when no task name is given.
const DefaultTask = "default"

// Deps are the collaborators task bodies close over.
type Deps struct {
	Config core.Config
	Runner steps.Runner
	FS     afero.Fs
}

type definition struct {
	name        string
	description string
	body        task.Ref
}

// Register adds every build task to reg.
func Register(reg *task.Registry, d Deps) error {
	if d.FS == nil {
		d.FS = afero.NewOsFs()
	}
	b := builder{Deps: d}
	for _, def := range b.definitions() {
		if err := reg.Register(def.name, def.body, task.Describe(def.description)); err != nil {
			return fmt.Errorf("register %s: %w", def.name, err)
		}
	}
	return nil
}

type builder struct {
	Deps
}

func (b builder) definitions() []definition {
	cfg := b.Config
	return []definition{
		{"clean", "Remove the build directory", task.Func(b.clean)},
		{"make-build-dir", "Create the build directory", task.Func(b.makeBuildDir)},
		{"clone-libphonenumber", "Clone libphonenumber at the pinned version", task.Series(
			task.Name("make-build-dir"),
			task.Func(b.cloneLibphonenumber),
		)},
		{"checkout-closure-linter", "Clone the Closure linter", task.Series(
			task.Name("make-build-dir"),
			task.Func(b.clone(cfg.ClosureLinter.URL, "closure-linter")),
		)},
		{"checkout-python-gflags", "Clone python-gflags", task.Series(
			task.Name("make-build-dir"),
			task.Func(b.clone(cfg.PythonGflags.URL, "python-gflags")),
		)},
		{"download-ant", "Download and unpack Apache Ant", task.Series(
			task.Name("make-build-dir"),
			task.Func(b.fetchAnt),
			task.Func(b.extractAnt),
		)},
		{"download-deps", "Fetch every build dependency", task.Parallel(task.Names(
			"clone-libphonenumber",
			"checkout-closure-linter",
			"checkout-python-gflags",
			"download-ant",
		)...)},
		{"build-deps", "Prepare build dependencies", task.Series(task.Name("download-deps"))},
		{"build-libphonenumber", "Run the project build script", task.Func(b.buildLibphonenumber)},
		{"build-esm-version", "Bundle the ES module version", task.Func(b.buildESM)},
		{"build", "Build everything", task.Series(task.Names(
			"build-deps",
			"build-libphonenumber",
			"build-esm-version",
		)...)},
		{"update-readme", "Write the libphonenumber version into the README", task.Func(b.updateReadme)},
		{DefaultTask, "Clean, build and update the README", task.Series(task.Names(
			"clean",
			"build",
			"update-readme",
		)...)},
	}
}

func (b builder) clean(context.Context) error {
	return steps.RemoveDir(b.FS, b.Config.BuildPath())
}

func (b builder) makeBuildDir(context.Context) error {
	return steps.MakeDir(b.FS, b.Config.BuildPath())
}

func (b builder) cloneLibphonenumber(ctx context.Context) error {
	version, err := steps.ReadVersion(b.FS, b.Config.VersionPath())
	if err != nil {
		return err
	}
	return steps.GitClone(ctx, b.Runner, b.FS, b.Config.BuildPath(), b.Config.Libphonenumber.URL, "libphonenumber", version)
}

func (b builder) clone(url, name string) task.Body {
	return func(ctx context.Context) error {
		return steps.GitClone(ctx, b.Runner, b.FS, b.Config.BuildPath(), url, name, "")
	}
}

func (b builder) fetchAnt(ctx context.Context) error {
	rc := steps.DefaultRetryConfig()
	rc.MaxRetries = b.Config.Ant.Retries
	if b.Config.Ant.Backoff > 0 {
		rc.InitialDelay = b.Config.Ant.Backoff
	}
	return steps.FetchArchive(ctx, b.Runner, b.Config.BuildPath(), b.Config.Ant.URL, b.Config.AntArchive(), rc)
}

func (b builder) extractAnt(ctx context.Context) error {
	return steps.ExtractArchive(ctx, b.Runner, b.Config.BuildPath(), b.Config.AntArchive())
}

func (b builder) buildLibphonenumber(ctx context.Context) error {
	return steps.RunScript(ctx, b.Runner, b.Config.RootDir, b.Config.Build.Command)
}

func (b builder) buildESM(context.Context) error {
	_, err := steps.Bundle(b.Config.RootDir, b.Config.Bundle.Entry, b.Config.Bundle.Output)
	return err
}

func (b builder) updateReadme(context.Context) error {
	version, err := steps.ReadVersion(b.FS, b.Config.VersionPath())
	if err != nil {
		return err
	}
	_, err = steps.UpdateReadme(b.FS, b.Config.RootDir, b.Config.Readme.Paths, version)
	return err
}
