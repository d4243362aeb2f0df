package steps

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

// Bundle converts the CommonJS entry module and everything it requires into
// a single ES module at output. Relative paths are resolved against root.
// It returns the size of the written file.
func Bundle(root, entry, output string) (int64, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", root, err)
	}
	result := api.Build(api.BuildOptions{
		AbsWorkingDir: abs,
		EntryPoints:   []string{entry},
		Outfile:       output,
		Bundle:        true,
		Format:        api.FormatESModule,
		Platform:      api.PlatformNeutral,
		MainFields:    []string{"module", "main"},
		Write:         true,
		LogLevel:      api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return 0, fmt.Errorf("bundle %s: %w", entry, errors.New(strings.TrimSpace(strings.Join(msgs, "\n"))))
	}
	for _, w := range result.Warnings {
		log.Warn().Str("entry", entry).Msg(w.Text)
	}

	out := output
	if !filepath.IsAbs(out) {
		out = filepath.Join(abs, out)
	}
	info, err := os.Stat(out)
	if err != nil {
		return 0, fmt.Errorf("stat bundle: %w", err)
	}
	log.Info().Str("output", output).Str("size", humanize.Bytes(uint64(info.Size()))).Msg("Bundled ES module")
	return info.Size(), nil
}
