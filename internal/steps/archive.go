package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"

	"github.com/3cpo-dev/conveyor/internal/process"
)

// RetryConfig defines retry behavior for downloads
type RetryConfig struct {
	MaxRetries   uint64
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig returns sensible retry defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

func (c RetryConfig) backoff() retry.Backoff {
	initial := c.InitialDelay
	if initial <= 0 {
		initial = time.Millisecond
	}
	b := retry.NewExponential(initial)
	if c.MaxDelay > 0 {
		b = retry.WithCappedDuration(c.MaxDelay, b)
	}
	return retry.WithMaxRetries(c.MaxRetries, b)
}

// FetchArchive downloads url to dir/file with curl. Non-zero curl exits are
// retried with exponential backoff; a curl that cannot be started is not.
func FetchArchive(ctx context.Context, r Runner, dir, url, file string, cfg RetryConfig) error {
	attempt := 0
	err := retry.Do(ctx, cfg.backoff(), func(ctx context.Context) error {
		attempt++
		err := r.Run(ctx, "curl", []string{"-fL", "-o", file, url}, process.WithDir(dir))
		var exitErr *process.ExitError
		if errors.As(err, &exitErr) {
			log.Warn().Str("url", url).Int("attempt", attempt).Int("code", exitErr.Code).Msg("Download failed")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch %s: %w", file, err)
	}
	return nil
}

// ExtractArchive unpacks a gzipped tarball inside dir.
func ExtractArchive(ctx context.Context, r Runner, dir, file string) error {
	if err := r.Run(ctx, "tar", []string{"zxf", file}, process.WithDir(dir)); err != nil {
		return fmt.Errorf("extract %s: %w", file, err)
	}
	return nil
}
