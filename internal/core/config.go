package core

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no path is given.
const DefaultConfigFile = "conveyor.yaml"

// Config describes one project build. Relative paths are resolved against RootDir.
type Config struct {
	RootDir  string `yaml:"root_dir"`
	BuildDir string `yaml:"build_dir"`
	LogLevel string `yaml:"log_level"`
	Debug    bool   `yaml:"debug"`

	Process struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"process"`

	Libphonenumber struct {
		URL         string `yaml:"url"`
		VersionFile string `yaml:"version_file"`
	} `yaml:"libphonenumber"`
	ClosureLinter struct {
		URL string `yaml:"url"`
	} `yaml:"closure_linter"`
	PythonGflags struct {
		URL string `yaml:"url"`
	} `yaml:"python_gflags"`
	Ant struct {
		Name    string        `yaml:"name"`
		URL     string        `yaml:"url"`
		Retries uint64        `yaml:"retries"`
		Backoff time.Duration `yaml:"backoff"`
	} `yaml:"ant"`

	Build struct {
		Command string `yaml:"command"`
	} `yaml:"build"`
	Bundle struct {
		Entry  string `yaml:"entry"`
		Output string `yaml:"output"`
	} `yaml:"bundle"`
	Readme struct {
		Paths []string `yaml:"paths"`
	} `yaml:"readme"`

	History struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"history"`
	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
}

// DefaultConfig returns the settings used for the libphonenumber build when
// no configuration file is present.
func DefaultConfig() Config {
	var cfg Config
	cfg.RootDir = "."
	cfg.BuildDir = "build"
	cfg.LogLevel = "info"
	cfg.Libphonenumber.URL = "https://github.com/google/libphonenumber/"
	cfg.Libphonenumber.VersionFile = "libphonenumber.version"
	cfg.ClosureLinter.URL = "https://github.com/google/closure-linter"
	cfg.PythonGflags.URL = "https://github.com/google/python-gflags.git"
	cfg.Ant.Name = "apache-ant-1.10.11"
	cfg.Ant.URL = "http://apache.mirrors.spacedump.net/ant/binaries/apache-ant-1.10.11-bin.tar.gz"
	cfg.Ant.Retries = 3
	cfg.Ant.Backoff = time.Second
	cfg.Build.Command = "./build.sh"
	cfg.Bundle.Entry = "./index.js"
	cfg.Bundle.Output = "./index-esm.js"
	cfg.Readme.Paths = []string{"README.md"}
	cfg.History.Enabled = true
	cfg.History.Path = filepath.Join(".conveyor", "history.db")
	return cfg
}

// LoadConfig reads YAML configuration from a path on top of DefaultConfig.
// If path is empty, it tries $CONVEYOR_CONFIG and then ./conveyor.yaml; a
// missing default file is not an error, a missing explicit one is.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		if v := os.Getenv("CONVEYOR_CONFIG"); v != "" {
			path, explicit = v, true
		} else {
			path = DefaultConfigFile
		}
	}
	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks that every field the build graph needs is set.
func (c Config) Validate() error {
	var errs []error
	required := []struct{ key, value string }{
		{"root_dir", c.RootDir},
		{"build_dir", c.BuildDir},
		{"libphonenumber.url", c.Libphonenumber.URL},
		{"libphonenumber.version_file", c.Libphonenumber.VersionFile},
		{"closure_linter.url", c.ClosureLinter.URL},
		{"python_gflags.url", c.PythonGflags.URL},
		{"ant.name", c.Ant.Name},
		{"ant.url", c.Ant.URL},
		{"build.command", c.Build.Command},
		{"bundle.entry", c.Bundle.Entry},
		{"bundle.output", c.Bundle.Output},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}
	if c.Process.Timeout < 0 {
		errs = append(errs, errors.New("process.timeout must not be negative"))
	}
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, errors.New("history.path is required when history is enabled"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// BuildPath is the build directory resolved against the root.
func (c Config) BuildPath() string {
	return c.resolve(c.BuildDir)
}

// HistoryPath is the history database resolved against the root.
func (c Config) HistoryPath() string {
	return c.resolve(c.History.Path)
}

// VersionPath is the version file resolved against the root.
func (c Config) VersionPath() string {
	return c.resolve(c.Libphonenumber.VersionFile)
}

// AntArchive is the file name the Ant download is saved under.
func (c Config) AntArchive() string {
	return c.Ant.Name + ".tar.gz"
}

func (c Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.RootDir, p)
}
