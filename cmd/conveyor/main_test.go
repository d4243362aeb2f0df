package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3cpo-dev/conveyor/internal/core"
	"github.com/3cpo-dev/conveyor/internal/process"
	"github.com/3cpo-dev/conveyor/internal/task"
	"github.com/3cpo-dev/conveyor/pkg/api"
)

// project creates a root dir with a config file pointing at it.
func project(t *testing.T) (root, config string) {
	t.Helper()
	root = t.TempDir()
	config = filepath.Join(root, "conveyor.yaml")
	content := fmt.Sprintf("root_dir: %q\nbuild:\n  command: ./missing-build.sh\n", root)
	require.NoError(t, os.WriteFile(config, []byte(content), 0o644))
	return root, config
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "conveyor "+version)
}

func TestTasksAndPlan(t *testing.T) {
	_, config := project(t)

	out, err := execute(t, "tasks", "--config", config)
	require.NoError(t, err)
	assert.Contains(t, out, "make-build-dir")
	assert.Contains(t, out, "Download and unpack Apache Ant")

	out, err = execute(t, "plan", "download-ant", "--config", config)
	require.NoError(t, err)
	assert.Equal(t, "download-ant (series)\n  make-build-dir\n  download-ant[1]\n  download-ant[2]\n", out)

	_, err = execute(t, "plan", "no-such-task", "--config", config)
	var unknown *task.UnknownTaskError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "no-such-task", unknown.Name)
}

func TestRunAndHistory(t *testing.T) {
	root, config := project(t)
	metrics := filepath.Join(root, "conveyor.prom")

	_, err := execute(t, "make-build-dir", "--config", config, "--metrics-file", metrics)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(root, "build"))
	assert.FileExists(t, metrics)

	_, err = execute(t, "build-libphonenumber", "--config", config)
	require.Error(t, err)
	var failure *task.Error
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "build-libphonenumber", failure.Task)
	var spawn *process.SpawnError
	assert.ErrorAs(t, err, &spawn)

	out, err := execute(t, "history", "--json", "--config", config)
	require.NoError(t, err)
	var runs []api.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "build-libphonenumber", runs[0].Task)
	assert.Equal(t, api.RunFailed, runs[0].Status)
	assert.Equal(t, "build-libphonenumber", runs[0].FailedTask)
	assert.Equal(t, "make-build-dir", runs[1].Task)
	assert.Equal(t, api.RunSucceeded, runs[1].Status)

	out, err = execute(t, "history", "--limit", "1", "--config", config)
	require.NoError(t, err)
	assert.Contains(t, out, "build-libphonenumber")
	assert.NotContains(t, out, "make-build-dir")

	t.Run("Should not record with --no-history", func(t *testing.T) {
		_, err := execute(t, "make-build-dir", "--no-history", "--config", config)
		require.NoError(t, err)
		out, err := execute(t, "history", "--json", "--config", config)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal([]byte(out), &runs))
		assert.Len(t, runs, 2)
	})
}

func TestRunRefusesConcurrentBuild(t *testing.T) {
	root, config := project(t)
	lock, err := core.AcquireLock(context.Background(), root, 0)
	require.NoError(t, err)
	defer lock.Release()

	_, err = execute(t, "make-build-dir", "--config", config)
	require.ErrorIs(t, err, core.ErrLocked)
	assert.NoDirExists(t, filepath.Join(root, "build"))
}

func TestRunRejectsUnknownTaskBeforeLocking(t *testing.T) {
	root, config := project(t)
	_, err := execute(t, "nope", "--config", config)
	var unknown *task.UnknownTaskError
	require.ErrorAs(t, err, &unknown)
	assert.NoFileExists(t, filepath.Join(root, core.LockFile))
}

func TestRunReleasesLock(t *testing.T) {
	root, config := project(t)
	_, err := execute(t, "make-build-dir", "--config", config)
	require.NoError(t, err)

	lock, err := core.AcquireLock(context.Background(), root, 0)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestHistoryFlagsUnfinishedRuns(t *testing.T) {
	root, config := project(t)
	store, err := core.NewStore(filepath.Join(root, ".conveyor", "history.db"))
	require.NoError(t, err)
	_, err = store.Begin(context.Background(), "build")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err := execute(t, "history", "--config", config)
	require.NoError(t, err)
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "unfinished")
}
