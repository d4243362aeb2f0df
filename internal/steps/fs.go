package steps

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// RemoveDir deletes path and everything below it. A missing path is not an error.
func RemoveDir(fs afero.Fs, path string) error {
	if err := fs.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("Removed directory")
	return nil
}

// MakeDir creates path with any missing parents. An existing directory is not an error.
func MakeDir(fs afero.Fs, path string) error {
	if err := fs.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return nil
}
