package download

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/lrstanley/go-ytdlp"

	"github.com/desertthunder/mbx/internal/shared"
)

// YTDLP is an [Engine] backed by the yt-dlp binary via go-ytdlp.
type YTDLP struct {
	logger *log.Logger
}

// NewYTDLP creates a yt-dlp backed engine.
func NewYTDLP(logger *log.Logger) *YTDLP {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &YTDLP{logger: logger}
}

// Install ensures the yt-dlp binary is available, downloading it if needed.
func Install(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("failed to install yt-dlp: %w", err)
	}
	return nil
}

// Fetch runs yt-dlp for a single URL and reports the terminal outcome.
func (e *YTDLP) Fetch(ctx context.Context, url string, opts Options) (*Result, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", shared.ErrInvalidArgument)
	}

	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	dl := ytdlp.New().
		RestrictFilenames().
		Output(opts.OutputTemplate())
	if opts.Format != "" {
		dl = dl.Format(opts.Format)
	}

	e.logger.Debug("starting download", "url", url, "template", opts.OutputTemplate())

	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, classifyEngineError(url, err)
	}

	info, err := result.GetExtractedInfo()
	if err != nil || len(info) == 0 {
		return nil, fmt.Errorf("%w: download finished but produced no file info for %s",
			shared.ErrValidation, url)
	}

	res := &Result{URL: url, SourceID: info[0].ID}
	if info[0].Filename != nil {
		res.LocalPath = *info[0].Filename
	}
	if info[0].Title != nil {
		res.Title = *info[0].Title
	}

	if res.LocalPath == "" {
		return nil, fmt.Errorf("%w: extractor reported no filename for %s",
			shared.ErrValidation, url)
	}
	if _, err := os.Stat(res.LocalPath); err != nil {
		return nil, fmt.Errorf("%w: downloaded file missing at %s", shared.ErrValidation, res.LocalPath)
	}

	e.logger.Info("download finished", "url", url, "path", res.LocalPath)
	return res, nil
}

// classifyEngineError maps yt-dlp failures onto the shared taxonomy.
// yt-dlp surfaces extractor failures as process exit errors, so stderr text
// is the only classification signal available.
func classifyEngineError(url string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "private video"),
		strings.Contains(msg, "sign in"),
		strings.Contains(msg, "members-only"):
		return fmt.Errorf("%w: %s: %v", shared.ErrPermissionDenied, url, err)
	case strings.Contains(msg, "video unavailable"),
		strings.Contains(msg, "404"),
		strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "removed"):
		return fmt.Errorf("%w: %s: %v", shared.ErrNotFound, url, err)
	case strings.Contains(msg, "unsupported url"),
		strings.Contains(msg, "no video formats"),
		strings.Contains(msg, "requested format is not available"):
		return fmt.Errorf("%w: %s: %v", shared.ErrUnsupportedFormat, url, err)
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "rate limit"):
		return fmt.Errorf("%w: %s: %v", shared.ErrRateLimited, url, err)
	case strings.Contains(msg, "timed out"),
		strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %s: %v", shared.ErrTimeout, url, err)
	case strings.Contains(msg, "connection"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "temporary failure"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "502"):
		return fmt.Errorf("%w: %s: %v", shared.ErrNetwork, url, err)
	}

	return fmt.Errorf("download failed for %s: %w", url, err)
}
