package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from path (".env" when empty) into the
// process environment. Variables already set win; a missing file is ignored.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// DebugEnabled reports whether DEBUG is set to anything but "" or "0".
func DebugEnabled() bool {
	v := os.Getenv("DEBUG")
	return v != "" && v != "0"
}

// ApplyEnv overlays environment overrides on cfg.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("CONVEYOR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if DebugEnabled() {
		cfg.Debug = true
	}
}
