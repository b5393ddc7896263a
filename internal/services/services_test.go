package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/desertthunder/mbx/internal/shared"
	mbxtest "github.com/desertthunder/mbx/internal/testing"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func textResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestStatusError(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, "", shared.ErrAuthFailed},
		{"forbidden quota", http.StatusForbidden, "storage quota exceeded", shared.ErrQuotaExceeded},
		{"forbidden other", http.StatusForbidden, "insufficient permissions", shared.ErrPermissionDenied},
		{"not found", http.StatusNotFound, "", shared.ErrNotFound},
		{"too large", http.StatusRequestEntityTooLarge, "", shared.ErrFileTooLarge},
		{"unsupported media", http.StatusUnsupportedMediaType, "", shared.ErrUnsupportedFormat},
		{"rate limited", http.StatusTooManyRequests, "", shared.ErrRateLimited},
		{"request timeout", http.StatusRequestTimeout, "", shared.ErrTimeout},
		{"gateway timeout", http.StatusGatewayTimeout, "", shared.ErrTimeout},
		{"server error", http.StatusInternalServerError, "", shared.ErrServiceUnavailable},
		{"bad request", http.StatusBadRequest, "", shared.ErrValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := statusError("Test", tc.status, tc.body)
			if !errors.Is(err, tc.want) {
				t.Errorf("statusError(%d) = %v, want sentinel %v", tc.status, err, tc.want)
			}
		})
	}

	t.Run("truncates long bodies", func(t *testing.T) {
		err := statusError("Test", http.StatusBadRequest, strings.Repeat("x", 1000))
		if len(err.Error()) > 400 {
			t.Errorf("expected truncated detail, got %d chars", len(err.Error()))
		}
	})
}

func TestValidateFile(t *testing.T) {
	t.Run("AcceptsVideoFile", func(t *testing.T) {
		path := mbxtest.WriteTempMedia(t, "video.mp4")
		size, err := validateFile(path, 0)
		if err != nil {
			t.Fatalf("expected valid file, got %v", err)
		}
		if size == 0 {
			t.Error("expected non-zero size")
		}
	})

	t.Run("RejectsMissingFile", func(t *testing.T) {
		if _, err := validateFile("/nonexistent/video.mp4", 0); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("RejectsEmptyFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.mp4")
		if err := os.WriteFile(path, nil, 0644); err != nil {
			t.Fatalf("failed to write: %v", err)
		}
		if _, err := validateFile(path, 0); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("RejectsUnsupportedExtension", func(t *testing.T) {
		path := mbxtest.WriteTempMedia(t, "notes.txt")
		if _, err := validateFile(path, 0); !errors.Is(err, shared.ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}
	})

	t.Run("RejectsOversizedFile", func(t *testing.T) {
		path := mbxtest.WriteTempMedia(t, "video.mp4")
		if _, err := validateFile(path, 1); !errors.Is(err, shared.ErrFileTooLarge) {
			t.Errorf("expected ErrFileTooLarge, got %v", err)
		}
	})
}

func TestNewTargets(t *testing.T) {
	t.Run("DisabledTargetsAreSkipped", func(t *testing.T) {
		targets, err := NewTargets(shared.StorageConfig{}, nil, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(targets) != 0 {
			t.Errorf("expected no targets, got %d", len(targets))
		}
	})

	t.Run("EnabledWithoutCredentialsFails", func(t *testing.T) {
		cfg := shared.StorageConfig{
			GoogleDrive: shared.DriveConfig{Enabled: true},
		}
		if _, err := NewTargets(cfg, nil, nil); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("BuildsEnabledTargetsInOrder", func(t *testing.T) {
		cfg := shared.StorageConfig{
			GoogleDrive:  shared.DriveConfig{Enabled: true, ClientID: "id", ClientSecret: "secret"},
			GooglePhotos: shared.PhotosConfig{Enabled: true, ClientID: "id", ClientSecret: "secret"},
		}
		targets, err := NewTargets(cfg, nil, nil)
		if err != nil {
			t.Fatalf("expected targets, got %v", err)
		}
		ids := TargetIDs(targets)
		if len(ids) != 2 || ids[0] != "google_drive" || ids[1] != "google_photos" {
			t.Errorf("expected [google_drive google_photos], got %v", ids)
		}
	})
}

func TestDriveUpload(t *testing.T) {
	newDrive := func(t *testing.T, rt *mbxtest.MockRoundTripper) *DriveTarget {
		t.Helper()
		target, err := NewDriveTarget(shared.DriveConfig{
			ClientID:     "id",
			ClientSecret: "secret",
		}, &http.Client{Transport: rt}, nil)
		if err != nil {
			t.Fatalf("failed to build target: %v", err)
		}
		return target
	}

	t.Run("UploadsWithFolderHint", func(t *testing.T) {
		rt := &mbxtest.MockRoundTripper{Responses: []*http.Response{
			jsonResponse(200, `{"storageQuota":{}}`),
			jsonResponse(200, `{"id":"drive-file-1"}`),
		}}
		target := newDrive(t, rt)

		path := mbxtest.WriteTempMedia(t, "video.mp4")
		id, err := target.Upload(context.Background(), path, "My Video", "folder-123")
		if err != nil {
			t.Fatalf("upload failed: %v", err)
		}
		if id != "drive-file-1" {
			t.Errorf("expected drive-file-1, got %s", id)
		}

		if len(rt.Requests) != 2 {
			t.Fatalf("expected 2 requests, got %d", len(rt.Requests))
		}
		upload := rt.Requests[1]
		if !strings.Contains(upload.URL.String(), "uploadType=multipart") {
			t.Errorf("expected multipart upload, got %s", upload.URL)
		}
		if !strings.HasPrefix(upload.Header.Get("Content-Type"), "multipart/related") {
			t.Errorf("expected multipart/related content type, got %s", upload.Header.Get("Content-Type"))
		}
	})

	t.Run("QuotaExceededBeforeUpload", func(t *testing.T) {
		rt := &mbxtest.MockRoundTripper{Responses: []*http.Response{
			jsonResponse(200, `{"storageQuota":{"limit":"100","usage":"99"}}`),
		}}
		target := newDrive(t, rt)

		path := mbxtest.WriteTempMedia(t, "video.mp4")
		if _, err := target.Upload(context.Background(), path, "", "folder-123"); !errors.Is(err, shared.ErrQuotaExceeded) {
			t.Errorf("expected ErrQuotaExceeded, got %v", err)
		}
		if len(rt.Requests) != 1 {
			t.Errorf("expected upload to be skipped, got %d requests", len(rt.Requests))
		}
	})

	t.Run("ClassifiesAPIFailure", func(t *testing.T) {
		rt := &mbxtest.MockRoundTripper{Responses: []*http.Response{
			jsonResponse(200, `{"storageQuota":{}}`),
			textResponse(401, "invalid token"),
		}}
		target := newDrive(t, rt)

		path := mbxtest.WriteTempMedia(t, "video.mp4")
		if _, err := target.Upload(context.Background(), path, "", "folder-123"); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("RejectsInvalidFileBeforeAnyRequest", func(t *testing.T) {
		rt := &mbxtest.MockRoundTripper{}
		target := newDrive(t, rt)

		if _, err := target.Upload(context.Background(), "/nonexistent.mp4", "", ""); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
		if len(rt.Requests) != 0 {
			t.Errorf("expected no requests, got %d", len(rt.Requests))
		}
	})
}

func TestPhotosUpload(t *testing.T) {
	newPhotos := func(t *testing.T, rt *mbxtest.MockRoundTripper) *PhotosTarget {
		t.Helper()
		target, err := NewPhotosTarget(shared.PhotosConfig{
			ClientID:      "id",
			ClientSecret:  "secret",
			TargetAlbumID: "album-1",
		}, &http.Client{Transport: rt}, nil)
		if err != nil {
			t.Fatalf("failed to build target: %v", err)
		}
		return target
	}

	t.Run("TwoPhaseUpload", func(t *testing.T) {
		rt := &mbxtest.MockRoundTripper{Responses: []*http.Response{
			textResponse(200, "upload-token-xyz"),
			jsonResponse(200, `{"newMediaItemResults":[{"status":{"message":"Success"},"mediaItem":{"id":"photos-item-1"}}]}`),
		}}
		target := newPhotos(t, rt)

		path := mbxtest.WriteTempMedia(t, "video.mp4")
		id, err := target.Upload(context.Background(), path, "My Video", "")
		if err != nil {
			t.Fatalf("upload failed: %v", err)
		}
		if id != "photos-item-1" {
			t.Errorf("expected photos-item-1, got %s", id)
		}

		if len(rt.Requests) != 2 {
			t.Fatalf("expected 2 requests, got %d", len(rt.Requests))
		}
		if got := rt.Requests[0].Header.Get("X-Goog-Upload-Protocol"); got != "raw" {
			t.Errorf("expected raw upload protocol, got %q", got)
		}
		if !strings.HasSuffix(rt.Requests[1].URL.Path, "mediaItems:batchCreate") {
			t.Errorf("expected batchCreate call, got %s", rt.Requests[1].URL.Path)
		}
	})

	t.Run("EmptyUploadTokenFails", func(t *testing.T) {
		rt := &mbxtest.MockRoundTripper{Responses: []*http.Response{
			textResponse(200, "  "),
		}}
		target := newPhotos(t, rt)

		path := mbxtest.WriteTempMedia(t, "video.mp4")
		if _, err := target.Upload(context.Background(), path, "", ""); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("BatchCreateFailureSurfaces", func(t *testing.T) {
		rt := &mbxtest.MockRoundTripper{Responses: []*http.Response{
			textResponse(200, "upload-token-xyz"),
			jsonResponse(200, `{"newMediaItemResults":[{"status":{"message":"Internal error","code":13}}]}`),
		}}
		target := newPhotos(t, rt)

		path := mbxtest.WriteTempMedia(t, "video.mp4")
		_, err := target.Upload(context.Background(), path, "", "")
		if !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
		if err == nil || !strings.Contains(err.Error(), "Internal error") {
			t.Errorf("expected status message in error, got %v", err)
		}
	})

	t.Run("RateLimitClassified", func(t *testing.T) {
		rt := &mbxtest.MockRoundTripper{Responses: []*http.Response{
			textResponse(429, "quota"),
		}}
		target := newPhotos(t, rt)

		path := mbxtest.WriteTempMedia(t, "video.mp4")
		if _, err := target.Upload(context.Background(), path, "", ""); !errors.Is(err, shared.ErrRateLimited) {
			t.Errorf("expected ErrRateLimited, got %v", err)
		}
	})
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens", "drive.json")

	if _, err := LoadToken(path); err == nil {
		t.Error("expected error for missing token file")
	}

	token := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
	}
	if err := SaveToken(path, token); err != nil {
		t.Fatalf("failed to save token: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("token file missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got %o", info.Mode().Perm())
	}

	loaded, err := LoadToken(path)
	if err != nil {
		t.Fatalf("failed to load token: %v", err)
	}
	if loaded.AccessToken != token.AccessToken || loaded.RefreshToken != token.RefreshToken {
		t.Errorf("expected token round-trip, got %+v", loaded)
	}
}
