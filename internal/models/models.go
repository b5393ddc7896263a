package models

import (
	"fmt"
	"time"
)

// MediaStatus is the aggregate state of a media item.
type MediaStatus int

const (
	StatusUnknown MediaStatus = iota
	StatusPendingDownload
	StatusDownloading
	StatusDownloaded
	StatusUploadPending
	StatusCompleted
	StatusFailedDownload
	StatusFailedUpload
)

// mediaStatusNames holds the stored encoding for each status.
var mediaStatusNames = map[MediaStatus]string{
	StatusPendingDownload: "PENDING_DOWNLOAD",
	StatusDownloading:     "DOWNLOADING",
	StatusDownloaded:      "DOWNLOADED",
	StatusUploadPending:   "UPLOAD_PENDING",
	StatusCompleted:       "COMPLETED",
	StatusFailedDownload:  "FAILED_DOWNLOAD",
	StatusFailedUpload:    "FAILED_UPLOAD",
}

// String returns the stored encoding of the status. Unknown renders as "UNKNOWN".
func (s MediaStatus) String() string {
	if name, ok := mediaStatusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseMediaStatus converts a stored status string back to a MediaStatus.
// Unrecognized values map to StatusUnknown.
func ParseMediaStatus(raw string) MediaStatus {
	for status, name := range mediaStatusNames {
		if name == raw {
			return status
		}
	}
	return StatusUnknown
}

// Terminal reports whether the status is an end state for retention purposes.
func (s MediaStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailedDownload
}

// Failed reports whether the status records a failure eligible for re-attempt.
func (s MediaStatus) Failed() bool {
	return s == StatusFailedDownload || s == StatusFailedUpload
}

// Validate returns an error for statuses that must never be persisted.
func (s MediaStatus) Validate() error {
	if _, ok := mediaStatusNames[s]; !ok {
		return fmt.Errorf("invalid media status %d", int(s))
	}
	return nil
}

// UploadStatus is the state of one upload record.
type UploadStatus int

const (
	UploadUnknown UploadStatus = iota
	UploadPending
	UploadSuccess
	UploadFailed
)

var uploadStatusNames = map[UploadStatus]string{
	UploadPending: "PENDING",
	UploadSuccess: "SUCCESS",
	UploadFailed:  "FAILED",
}

// String returns the stored encoding of the status. Unknown renders as "UNKNOWN".
func (s UploadStatus) String() string {
	if name, ok := uploadStatusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseUploadStatus converts a stored status string back to an UploadStatus.
// Unrecognized values map to UploadUnknown.
func ParseUploadStatus(raw string) UploadStatus {
	for status, name := range uploadStatusNames {
		if name == raw {
			return status
		}
	}
	return UploadUnknown
}

// Validate returns an error for statuses that must never be persisted.
func (s UploadStatus) Validate() error {
	if _, ok := uploadStatusNames[s]; !ok {
		return fmt.Errorf("invalid upload status %d", int(s))
	}
	return nil
}

// MediaItem is the unit of work keyed by its source URL.
type MediaItem struct {
	URL           string
	Title         string
	LocalPath     string
	Status        MediaStatus
	SourceID      string // id reported by the fetch engine
	ErrorMessage  string
	RetryCount    int
	Metadata      map[string]any
	DownloadedAt  *time.Time
	LastAttemptAt *time.Time
	LastErrorAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UploadRecord is the persisted progress of one (media item, destination) pair.
type UploadRecord struct {
	URL         string
	TargetID    string
	UploadedID  string
	Status      UploadStatus
	RetryCount  int
	Metadata    map[string]any
	UploadedAt  *time.Time
	LastErrorAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Succeeded reports whether the record reached its terminal success state.
func (r UploadRecord) Succeeded() bool {
	return r.Status == UploadSuccess
}
