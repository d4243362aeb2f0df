package steps

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

var versionMention = regexp.MustCompile(`Uses libphonenumber ([A-Za-z.0-9]+)`)

// UpdateReadme rewrites every "Uses libphonenumber <version>" mention in the
// files under root matching patterns. Patterns use doublestar syntax and are
// relative to root. It returns the files that changed.
func UpdateReadme(fs afero.Fs, root string, patterns []string, version string) ([]string, error) {
	base := fs
	if root != "" && path.Clean(root) != "." {
		base = afero.NewBasePathFs(fs, root)
	}
	fsys := afero.NewIOFS(base)
	replacement := "Uses libphonenumber " + version

	seen := map[string]bool{}
	for _, p := range patterns {
		p = strings.TrimPrefix(path.Clean(strings.TrimPrefix(p, "/")), "./")
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", p, err)
		}
		for _, m := range matches {
			seen[m] = true
		}
	}
	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)

	var changed []string
	for _, name := range files {
		data, err := afero.ReadFile(base, name)
		if err != nil {
			return changed, fmt.Errorf("read %s: %w", name, err)
		}
		updated := versionMention.ReplaceAllString(string(data), replacement)
		if updated == string(data) {
			continue
		}
		info, err := base.Stat(name)
		if err != nil {
			return changed, fmt.Errorf("stat %s: %w", name, err)
		}
		if err := afero.WriteFile(base, name, []byte(updated), info.Mode().Perm()); err != nil {
			return changed, fmt.Errorf("write %s: %w", name, err)
		}
		log.Info().Str("file", name).Str("version", version).Msg("Updated version mention")
		changed = append(changed, name)
	}
	return changed, nil
}
