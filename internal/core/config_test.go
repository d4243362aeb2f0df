package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Should fall back to defaults when the default file is missing", func(t *testing.T) {
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(t.TempDir()))
		t.Cleanup(func() { _ = os.Chdir(wd) })
		t.Setenv("CONVEYOR_CONFIG", "")
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
		require.NoError(t, cfg.Validate())
	})

	t.Run("Should fail when an explicit file is missing", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open config")
	})

	t.Run("Should overlay file values on defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conveyor.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
build_dir: out
debug: true
process:
  timeout: 90s
ant:
  name: apache-ant-1.10.14
  retries: 5
readme:
  paths: ["README.md", "docs/**/*.md"]
history:
  enabled: false
`), 0o644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "out", cfg.BuildDir)
		assert.True(t, cfg.Debug)
		assert.Equal(t, 90*time.Second, cfg.Process.Timeout)
		assert.Equal(t, "apache-ant-1.10.14.tar.gz", cfg.AntArchive())
		assert.EqualValues(t, 5, cfg.Ant.Retries)
		assert.Equal(t, []string{"README.md", "docs/**/*.md"}, cfg.Readme.Paths)
		assert.False(t, cfg.History.Enabled)
		// untouched keys keep their defaults
		assert.Equal(t, "https://github.com/google/closure-linter", cfg.ClosureLinter.URL)
	})

	t.Run("Should honor CONVEYOR_CONFIG", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))
		t.Setenv("CONVEYOR_CONFIG", path)
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("Should report malformed YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("build_dir: [unclosed"), 0o644))
		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config")
	})
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ant.URL = ""
	cfg.Build.Command = ""
	cfg.Process.Timeout = -time.Second

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ant.url is required")
	assert.Contains(t, err.Error(), "build.command is required")
	assert.Contains(t, err.Error(), "process.timeout")
}

func TestConfigPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RootDir = "/work"
	assert.Equal(t, "/work/build", cfg.BuildPath())
	assert.Equal(t, "/work/.conveyor/history.db", cfg.HistoryPath())
	assert.Equal(t, "/work/libphonenumber.version", cfg.VersionPath())

	cfg.BuildDir = "/tmp/b"
	assert.Equal(t, "/tmp/b", cfg.BuildPath())
}

func TestEnv(t *testing.T) {
	t.Run("Should treat DEBUG as truthy unless empty or zero", func(t *testing.T) {
		for value, want := range map[string]bool{"": false, "0": false, "1": true, "true": true, "yes": true} {
			t.Setenv("DEBUG", value)
			assert.Equal(t, want, DebugEnabled(), "DEBUG=%q", value)
		}
	})

	t.Run("Should apply overrides", func(t *testing.T) {
		t.Setenv("DEBUG", "1")
		t.Setenv("CONVEYOR_LOG_LEVEL", "warn")
		cfg := DefaultConfig()
		ApplyEnv(&cfg)
		assert.True(t, cfg.Debug)
		assert.Equal(t, "warn", cfg.LogLevel)
	})

	t.Run("Should load .env without overriding the environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("CONVEYOR_TEST_A=from-file\nCONVEYOR_TEST_B=from-file\n"), 0o644))
		t.Setenv("CONVEYOR_TEST_A", "from-env")
		t.Setenv("CONVEYOR_TEST_B", "")
		os.Unsetenv("CONVEYOR_TEST_B")

		require.NoError(t, LoadDotEnv(path))
		assert.Equal(t, "from-env", os.Getenv("CONVEYOR_TEST_A"))
		assert.Equal(t, "from-file", os.Getenv("CONVEYOR_TEST_B"))
	})

	t.Run("Should ignore a missing .env", func(t *testing.T) {
		assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
	})
}
