package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3cpo-dev/conveyor/internal/core"
	"github.com/3cpo-dev/conveyor/internal/process"
	"github.com/3cpo-dev/conveyor/internal/task"
)

const fakeGit = `#!/bin/sh
echo "git $*" >> "$CONVEYOR_CALLS"
for last; do :; done
mkdir -p "$last/.git"
`

const fakeCurl = `#!/bin/sh
echo "curl $*" >> "$CONVEYOR_CALLS"
exit ${FAKE_CURL_EXIT:-0}
`

const fakeTar = `#!/bin/sh
echo "tar $*" >> "$CONVEYOR_CALLS"
`

// setup installs fake git, curl and tar on PATH and returns a config rooted
// in a temp dir plus the file the fakes log their arguments to.
func setup(t *testing.T) (core.Config, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake executables are shell scripts")
	}
	bin := t.TempDir()
	for name, script := range map[string]string{"git": fakeGit, "curl": fakeCurl, "tar": fakeTar} {
		require.NoError(t, os.WriteFile(filepath.Join(bin, name), []byte(script), 0o755))
	}
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	calls := filepath.Join(t.TempDir(), "calls.log")
	t.Setenv("CONVEYOR_CALLS", calls)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "libphonenumber.version"), []byte("v8.12.39\n"), 0o644))
	cfg := core.DefaultConfig()
	cfg.RootDir = root
	cfg.Ant.Retries = 0
	cfg.Ant.Backoff = time.Millisecond
	return cfg, calls
}

func readCalls(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	sort.Strings(lines)
	return lines
}

type starts struct {
	mu    sync.Mutex
	count map[string]int
}

func (s *starts) TaskStarted(info task.Info) {
	s.mu.Lock()
	s.count[info.Name]++
	s.mu.Unlock()
}

func (s *starts) TaskFinished(task.Info, time.Duration, error) {}

func (s *starts) TaskSkipped(task.Info, error) {}

func newExecutor(t *testing.T, cfg core.Config, obs task.Observer) *task.Executor {
	t.Helper()
	reg := task.NewRegistry()
	runner := process.New(process.Config{Dir: cfg.BuildPath()})
	require.NoError(t, Register(reg, Deps{Config: cfg, Runner: runner, FS: afero.NewOsFs()}))
	return task.NewExecutor(reg, task.WithObserver(obs))
}

func TestRegisterGraph(t *testing.T) {
	reg := task.NewRegistry()
	require.NoError(t, Register(reg, Deps{Config: core.DefaultConfig()}))
	assert.Equal(t, []string{
		"build", "build-deps", "build-esm-version", "build-libphonenumber",
		"checkout-closure-linter", "checkout-python-gflags", "clean", "clone-libphonenumber",
		"default", "download-ant", "download-deps", "make-build-dir", "update-readme",
	}, reg.Names())

	plan, err := task.Compile(reg, DefaultTask)
	require.NoError(t, err)
	rendered := plan.String()
	assert.True(t, strings.HasPrefix(rendered, "default (series)\n  clean\n  build (series)\n"))
	assert.Contains(t, rendered, "make-build-dir [shared]")

	t.Run("Should reject registering twice", func(t *testing.T) {
		var dup *task.DuplicateTaskError
		require.ErrorAs(t, Register(reg, Deps{Config: core.DefaultConfig()}), &dup)
	})
}

func TestDownloadDeps(t *testing.T) {
	cfg, calls := setup(t)
	obs := &starts{count: map[string]int{}}

	require.NoError(t, newExecutor(t, cfg, obs).Execute(context.Background(), "download-deps"))

	assert.Equal(t, 1, obs.count["make-build-dir"])
	assert.Equal(t, []string{
		"curl -fL -o apache-ant-1.10.11.tar.gz " + cfg.Ant.URL,
		"git clone --depth=1 --branch=v8.12.39 https://github.com/google/libphonenumber/ libphonenumber",
		"git clone --depth=1 https://github.com/google/closure-linter closure-linter",
		"git clone --depth=1 https://github.com/google/python-gflags.git python-gflags",
		"tar zxf apache-ant-1.10.11.tar.gz",
	}, readCalls(t, calls))
	for _, repo := range []string{"libphonenumber", "closure-linter", "python-gflags"} {
		assert.DirExists(t, filepath.Join(cfg.BuildPath(), repo, ".git"))
	}

	t.Run("Should skip existing checkouts on the next run", func(t *testing.T) {
		require.NoError(t, os.Remove(calls))
		require.NoError(t, newExecutor(t, cfg, obs).Execute(context.Background(), "download-deps"))
		for _, line := range readCalls(t, calls) {
			assert.False(t, strings.HasPrefix(line, "git "), line)
		}
	})
}

func TestDownloadAntFailure(t *testing.T) {
	cfg, calls := setup(t)
	t.Setenv("FAKE_CURL_EXIT", "7")
	obs := &starts{count: map[string]int{}}

	err := newExecutor(t, cfg, obs).Execute(context.Background(), "download-ant")
	require.Error(t, err)

	var failure *task.Error
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "download-ant[1]", failure.Task)
	var exitErr *process.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, "curl", exitErr.Command)
	assert.Equal(t, 7, exitErr.Code)

	for _, line := range readCalls(t, calls) {
		assert.False(t, strings.HasPrefix(line, "tar "), "tar must not run after a failed download")
	}
}

func TestUpdateReadmeTask(t *testing.T) {
	cfg, _ := setup(t)
	readme := filepath.Join(cfg.RootDir, "README.md")
	require.NoError(t, os.WriteFile(readme, []byte("Uses libphonenumber 8.0.0\n"), 0o644))

	require.NoError(t, newExecutor(t, cfg, &starts{count: map[string]int{}}).Execute(context.Background(), "update-readme"))
	data, err := os.ReadFile(readme)
	require.NoError(t, err)
	assert.Equal(t, "Uses libphonenumber v8.12.39\n", string(data))
}
