package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/mbx/internal/models"
	"github.com/desertthunder/mbx/internal/shared"
)

// Get retrieves a media item together with all of its upload records keyed
// by target id. Returns [shared.ErrItemNotFound] for an unseen URL.
func (s *Store) Get(url string) (*models.MediaItem, map[string]models.UploadRecord, error) {
	item, err := s.Media.Get(url)
	if err != nil {
		return nil, nil, err
	}

	uploads, err := s.Uploads.ListForItem(url)
	if err != nil {
		return nil, nil, err
	}

	return item, uploads, nil
}

// AllSucceeded reports whether every one of the given targets has a SUCCESS
// upload record for the URL. Zero targets yields false; completion policy
// for that case belongs to Reconcile.
func (s *Store) AllSucceeded(url string, targetIDs []string) (bool, error) {
	if len(targetIDs) == 0 {
		return false, nil
	}

	uploads, err := s.Uploads.ListForItem(url)
	if err != nil {
		return false, err
	}

	for _, id := range targetIDs {
		record, ok := uploads[id]
		if !ok || !record.Succeeded() {
			return false, nil
		}
	}

	return true, nil
}

// PendingUploads returns the subset of the given targets whose upload for
// the URL is not yet SUCCESS, preserving input order. A target with no
// record at all is pending.
func (s *Store) PendingUploads(url string, targetIDs []string) ([]string, error) {
	uploads, err := s.Uploads.ListForItem(url)
	if err != nil {
		return nil, err
	}

	var pending []string
	for _, id := range targetIDs {
		if record, ok := uploads[id]; !ok || !record.Succeeded() {
			pending = append(pending, id)
		}
	}

	return pending, nil
}

// LocalPath returns the recorded local path for the URL, or the empty
// string when none was recorded.
func (s *Store) LocalPath(url string) (string, error) {
	item, err := s.Media.Get(url)
	if err != nil {
		if errors.Is(err, shared.ErrItemNotFound) {
			return "", nil
		}
		return "", err
	}
	return item.LocalPath, nil
}

// Reconcile recomputes and persists the aggregate status of a media item
// from its upload records.
//
// With zero enabled targets, a downloaded item completes iff
// completeWithoutTargets is set. Otherwise the item completes when every
// enabled target shows SUCCESS; a downloaded item with any enabled target
// pending, failed, or unattempted becomes UPLOAD_PENDING. Items that never
// reached a downloaded state keep their status. The persisted status is
// returned.
func (s *Store) Reconcile(url string, targetIDs []string, completeWithoutTargets bool) (models.MediaStatus, error) {
	item, uploads, err := s.Get(url)
	if err != nil {
		return models.StatusUnknown, err
	}

	downloaded := item.Status == models.StatusDownloaded ||
		item.Status == models.StatusUploadPending ||
		item.Status == models.StatusFailedUpload ||
		item.Status == models.StatusCompleted

	next := item.Status
	switch {
	case !downloaded:
		// Nothing to derive before a successful download.
	case len(targetIDs) == 0:
		if completeWithoutTargets {
			next = models.StatusCompleted
		}
	default:
		complete := true
		for _, id := range targetIDs {
			if record, ok := uploads[id]; !ok || !record.Succeeded() {
				complete = false
				break
			}
		}
		if complete {
			next = models.StatusCompleted
		} else {
			next = models.StatusUploadPending
		}
	}

	if next == item.Status {
		return next, nil
	}

	if err := s.Media.Upsert(url, next, MediaItemParams{}); err != nil {
		return models.StatusUnknown, fmt.Errorf("failed to reconcile %s: %w", url, err)
	}

	return next, nil
}

// CleanupOlderThan removes terminal items created more than the given age
// ago, cascading to their upload records. Returns the number of media
// items removed.
func (s *Store) CleanupOlderThan(age time.Duration) (int64, error) {
	return s.Media.DeleteTerminalOlderThan(time.Now().Add(-age))
}
