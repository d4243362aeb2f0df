package steps

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/afero"
)

// ReadVersion returns the trimmed contents of the version file. Release tags
// like "v8.12.39" are accepted as they are; anything that does not parse as
// a version is rejected so a stray file never becomes a branch name.
func ReadVersion(fs afero.Fs, path string) (string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("read version: %w", err)
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", fmt.Errorf("read version: %s is empty", path)
	}
	if _, err := semver.NewVersion(v); err != nil {
		return "", fmt.Errorf("read version %q: %w", v, err)
	}
	return v, nil
}
