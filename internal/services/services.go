// package services defines interface Target for destination storage services
//
// Google Drive, Google Photos
package services

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/mbx/internal/shared"
)

// Target is a destination service a downloaded artifact is replicated to.
//
// Upload must be safe to call at least once per attempt: a failed attempt
// must never leave remote state that blocks a clean retry. The id returned
// on success is opaque to the pipeline.
type Target interface {
	// ID returns the stable identifier the state store keys upload
	// records by (e.g. "google_drive").
	ID() string

	// Name returns the human-readable service name.
	Name() string

	// DestinationHint returns the configured target location (folder id,
	// album id), or "" when the service default location applies.
	DestinationHint() string

	// Upload replicates the file at localPath under desiredFilename to
	// the location identified by hint. Failures are classified into the
	// shared error taxonomy.
	Upload(ctx context.Context, localPath, desiredFilename, hint string) (string, error)
}

// NewTargets builds the enabled targets in configuration order.
// A target that is enabled but missing credentials is an error rather than
// a silent skip.
func NewTargets(cfg shared.StorageConfig, client *http.Client, logger *log.Logger) ([]Target, error) {
	var targets []Target

	if cfg.GoogleDrive.Enabled {
		drive, err := NewDriveTarget(cfg.GoogleDrive, client, logger)
		if err != nil {
			return nil, fmt.Errorf("google drive: %w", err)
		}
		targets = append(targets, drive)
	}

	if cfg.GooglePhotos.Enabled {
		photos, err := NewPhotosTarget(cfg.GooglePhotos, client, logger)
		if err != nil {
			return nil, fmt.Errorf("google photos: %w", err)
		}
		targets = append(targets, photos)
	}

	return targets, nil
}

// TargetIDs extracts the store keys for a target list, preserving order.
func TargetIDs(targets []Target) []string {
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.ID())
	}
	return ids
}

// videoExtensions are the upload formats the targets accept.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".webm": true,
	".mov":  true,
	".avi":  true,
	".m4v":  true,
	".flv":  true,
	".3gp":  true,
}

// validateFile checks that the local file exists, is non-empty, is a
// supported video format, and does not exceed maxSize bytes.
func validateFile(localPath string, maxSize int64) (int64, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return 0, fmt.Errorf("%w: local file %s: %v", shared.ErrValidation, localPath, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", shared.ErrValidation, localPath)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%w: %s is empty", shared.ErrValidation, localPath)
	}

	ext := strings.ToLower(filepath.Ext(localPath))
	if !videoExtensions[ext] {
		return 0, fmt.Errorf("%w: %s", shared.ErrUnsupportedFormat, ext)
	}

	if maxSize > 0 && info.Size() > maxSize {
		return 0, fmt.Errorf("%w: %d bytes exceeds %d", shared.ErrFileTooLarge, info.Size(), maxSize)
	}

	return info.Size(), nil
}

// statusError maps an API response status onto the shared error taxonomy.
// The 2xx range never reaches here.
func statusError(service string, status int, body string) error {
	detail := strings.TrimSpace(body)
	if len(detail) > 200 {
		detail = detail[:200]
	}

	var sentinel error
	switch {
	case status == http.StatusUnauthorized:
		sentinel = shared.ErrAuthFailed
	case status == http.StatusForbidden:
		lower := strings.ToLower(detail)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "storage") {
			sentinel = shared.ErrQuotaExceeded
		} else {
			sentinel = shared.ErrPermissionDenied
		}
	case status == http.StatusNotFound:
		sentinel = shared.ErrNotFound
	case status == http.StatusRequestEntityTooLarge:
		sentinel = shared.ErrFileTooLarge
	case status == http.StatusUnsupportedMediaType:
		sentinel = shared.ErrUnsupportedFormat
	case status == http.StatusTooManyRequests:
		sentinel = shared.ErrRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		sentinel = shared.ErrTimeout
	case status >= 500:
		sentinel = shared.ErrServiceUnavailable
	case status >= 400:
		sentinel = shared.ErrValidation
	default:
		return fmt.Errorf("%s API error: status %d: %s", service, status, detail)
	}

	return fmt.Errorf("%w: %s API status %d: %s", sentinel, service, status, detail)
}
