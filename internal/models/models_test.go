package models

import (
	"testing"
	"time"
)

func TestMediaStatus(t *testing.T) {
	t.Run("StringRoundTrip", func(t *testing.T) {
		statuses := []MediaStatus{
			StatusPendingDownload, StatusDownloading, StatusDownloaded,
			StatusUploadPending, StatusCompleted, StatusFailedDownload, StatusFailedUpload,
		}
		for _, status := range statuses {
			if got := ParseMediaStatus(status.String()); got != status {
				t.Errorf("ParseMediaStatus(%q) = %v, want %v", status.String(), got, status)
			}
		}
	})

	t.Run("UnrecognizedEncodingMapsToUnknown", func(t *testing.T) {
		if got := ParseMediaStatus("SOMETHING_NEW"); got != StatusUnknown {
			t.Errorf("expected StatusUnknown, got %v", got)
		}
		if StatusUnknown.String() != "UNKNOWN" {
			t.Errorf("expected UNKNOWN rendering, got %s", StatusUnknown.String())
		}
	})

	t.Run("Terminal", func(t *testing.T) {
		if !StatusCompleted.Terminal() || !StatusFailedDownload.Terminal() {
			t.Error("expected COMPLETED and FAILED_DOWNLOAD to be terminal for retention")
		}
		for _, status := range []MediaStatus{StatusPendingDownload, StatusDownloading, StatusDownloaded, StatusUploadPending, StatusFailedUpload} {
			if status.Terminal() {
				t.Errorf("expected %s to be non-terminal", status)
			}
		}
	})

	t.Run("Failed", func(t *testing.T) {
		if !StatusFailedDownload.Failed() || !StatusFailedUpload.Failed() {
			t.Error("expected failure states to report Failed")
		}
		if StatusCompleted.Failed() {
			t.Error("expected COMPLETED to not report Failed")
		}
	})

	t.Run("ValidateRejectsUnknown", func(t *testing.T) {
		if err := StatusUnknown.Validate(); err == nil {
			t.Error("expected StatusUnknown to fail validation")
		}
		if err := MediaStatus(99).Validate(); err == nil {
			t.Error("expected out-of-range status to fail validation")
		}
		if err := StatusCompleted.Validate(); err != nil {
			t.Errorf("expected COMPLETED to validate, got %v", err)
		}
	})
}

func TestUploadStatus(t *testing.T) {
	t.Run("StringRoundTrip", func(t *testing.T) {
		for _, status := range []UploadStatus{UploadPending, UploadSuccess, UploadFailed} {
			if got := ParseUploadStatus(status.String()); got != status {
				t.Errorf("ParseUploadStatus(%q) = %v, want %v", status.String(), got, status)
			}
		}
		if got := ParseUploadStatus("bogus"); got != UploadUnknown {
			t.Errorf("expected UploadUnknown, got %v", got)
		}
	})

	t.Run("ValidateRejectsUnknown", func(t *testing.T) {
		if err := UploadUnknown.Validate(); err == nil {
			t.Error("expected UploadUnknown to fail validation")
		}
	})
}

func TestUploadRecordSucceeded(t *testing.T) {
	now := time.Now()
	record := UploadRecord{Status: UploadSuccess, UploadedAt: &now}
	if !record.Succeeded() {
		t.Error("expected SUCCESS record to report Succeeded")
	}

	for _, status := range []UploadStatus{UploadPending, UploadFailed, UploadUnknown} {
		if (UploadRecord{Status: status}).Succeeded() {
			t.Errorf("expected %s record to not report Succeeded", status)
		}
	}
}
