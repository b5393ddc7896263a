package formatter

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/mbx/internal/models"
	"github.com/desertthunder/mbx/internal/repositories"
	"github.com/desertthunder/mbx/internal/shared"
	"github.com/desertthunder/mbx/internal/tasks"
)

func seedStore(t *testing.T) *repositories.Store {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	store := repositories.NewStore(db)

	err = store.Media.Upsert("https://example.com/v/1", models.StatusCompleted, repositories.MediaItemParams{
		Title:     "First Clip",
		LocalPath: "/tmp/first.mp4",
	})
	if err != nil {
		t.Fatalf("failed to seed first item: %v", err)
	}
	err = store.Uploads.Upsert("https://example.com/v/1", "google_drive", models.UploadSuccess, repositories.UploadRecordParams{
		UploadedID: "drive-file-1",
	})
	if err != nil {
		t.Fatalf("failed to seed upload record: %v", err)
	}

	err = store.Media.Upsert("https://example.com/v/2", models.StatusFailedDownload, repositories.MediaItemParams{
		ErrorMessage: "connection reset",
	})
	if err != nil {
		t.Fatalf("failed to seed second item: %v", err)
	}

	return store
}

func TestStatusReport(t *testing.T) {
	t.Run("BuildStatusReport", func(t *testing.T) {
		store := seedStore(t)

		report, err := BuildStatusReport(store)
		if err != nil {
			t.Fatalf("BuildStatusReport failed: %v", err)
		}

		if len(report.Items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(report.Items))
		}
		if len(report.Uploads["https://example.com/v/1"]) != 1 {
			t.Errorf("expected 1 upload record for first item")
		}
		if report.GeneratedAt.IsZero() {
			t.Error("expected generated_at to be set")
		}

		counts := report.Counts()
		if counts["COMPLETED"] != 1 || counts["FAILED_DOWNLOAD"] != 1 {
			t.Errorf("unexpected counts: %v", counts)
		}
	})

	t.Run("Filters", func(t *testing.T) {
		store := seedStore(t)

		report, err := BuildStatusReport(store)
		if err != nil {
			t.Fatalf("BuildStatusReport failed: %v", err)
		}
		report.FilterStatus(models.StatusFailedDownload)
		if len(report.Items) != 1 || report.Items[0].URL != "https://example.com/v/2" {
			t.Errorf("expected only the failed item, got %d items", len(report.Items))
		}

		report, err = BuildStatusReport(store)
		if err != nil {
			t.Fatalf("BuildStatusReport failed: %v", err)
		}
		report.FilterURL("https://example.com/v/1")
		if len(report.Items) != 1 || report.Items[0].Title != "First Clip" {
			t.Errorf("expected only the first item, got %d items", len(report.Items))
		}
		report.FilterURL("https://example.com/v/none")
		if len(report.Items) != 0 {
			t.Errorf("expected no items for unknown url, got %d", len(report.Items))
		}
	})

	t.Run("ToText", func(t *testing.T) {
		store := seedStore(t)
		report, err := BuildStatusReport(store)
		if err != nil {
			t.Fatalf("BuildStatusReport failed: %v", err)
		}

		output := string(ToText(report))

		if !strings.Contains(output, "Tracked items: 2") {
			t.Errorf("text output missing item count, got: %s", output)
		}
		if !strings.Contains(output, "COMPLETED: 1") {
			t.Errorf("text output missing status summary")
		}
		if !strings.Contains(output, "URL") || !strings.Contains(output, "LAST ERROR") {
			t.Errorf("text output missing table header")
		}
		if !strings.Contains(output, "google_drive:SUCCESS") {
			t.Errorf("text output missing upload summary, got: %s", output)
		}
		if !strings.Contains(output, "connection reset") {
			t.Errorf("text output missing error message")
		}
	})

	t.Run("ToCSV", func(t *testing.T) {
		store := seedStore(t)
		report, err := BuildStatusReport(store)
		if err != nil {
			t.Fatalf("BuildStatusReport failed: %v", err)
		}

		data, err := ToCSV(report)
		if err != nil {
			t.Fatalf("ToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "URL,Title,Status,Retries,LocalPath,Error") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "First Clip") {
			t.Errorf("CSV missing first item title")
		}
		if !strings.Contains(output, "FAILED_DOWNLOAD") {
			t.Errorf("CSV missing failed item status")
		}

		lines := strings.Split(strings.TrimSpace(output), "\n")
		if len(lines) != 3 {
			t.Errorf("expected header plus 2 rows, got %d lines", len(lines))
		}
	})

	t.Run("ToJSON", func(t *testing.T) {
		store := seedStore(t)
		report, err := BuildStatusReport(store)
		if err != nil {
			t.Fatalf("BuildStatusReport failed: %v", err)
		}

		data, err := ToJSON(report)
		if err != nil {
			t.Fatalf("ToJSON failed: %v", err)
		}

		var payload struct {
			Counts map[string]int `json:"counts"`
			Items  []struct {
				URL     string            `json:"url"`
				Status  string            `json:"status"`
				Uploads map[string]string `json:"uploads"`
			} `json:"items"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}

		if len(payload.Items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(payload.Items))
		}
		if payload.Counts["COMPLETED"] != 1 {
			t.Errorf("unexpected counts: %v", payload.Counts)
		}

		var found bool
		for _, item := range payload.Items {
			if item.URL == "https://example.com/v/1" {
				found = true
				if item.Uploads["google_drive"] != "SUCCESS" {
					t.Errorf("expected drive upload SUCCESS, got %v", item.Uploads)
				}
			}
		}
		if !found {
			t.Error("first item missing from JSON output")
		}
	})
}

func TestRunManifest(t *testing.T) {
	result := &tasks.RunResult{
		RunID: "run-abc",
		Items: []tasks.ItemResult{
			{
				URL:       "https://example.com/v/1",
				Status:    models.StatusCompleted,
				LocalPath: "/tmp/first.mp4",
				Uploads: map[string]error{
					"google_photos": errors.New("quota exceeded"),
					"google_drive":  nil,
				},
			},
			{
				URL:     "https://example.com/v/2",
				Status:  models.StatusCompleted,
				Skipped: true,
			},
		},
		Completed: 1,
		Failed:    0,
		Skipped:   1,
		Elapsed:   1500 * time.Millisecond,
	}

	t.Run("RunManifest", func(t *testing.T) {
		data, err := RunManifest(result)
		if err != nil {
			t.Fatalf("RunManifest failed: %v", err)
		}

		var payload struct {
			RunID     string `json:"run_id"`
			Completed int    `json:"completed"`
			Skipped   int    `json:"skipped"`
			ElapsedMS int64  `json:"elapsed_ms"`
			Items     []struct {
				URL     string `json:"url"`
				Skipped bool   `json:"skipped"`
				Uploads []struct {
					Target string `json:"target"`
					Error  string `json:"error"`
				} `json:"uploads"`
			} `json:"items"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("manifest is not valid JSON: %v", err)
		}

		if payload.RunID != "run-abc" {
			t.Errorf("expected run id run-abc, got %s", payload.RunID)
		}
		if payload.ElapsedMS != 1500 {
			t.Errorf("expected 1500ms elapsed, got %d", payload.ElapsedMS)
		}
		if len(payload.Items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(payload.Items))
		}

		uploads := payload.Items[0].Uploads
		if len(uploads) != 2 {
			t.Fatalf("expected 2 upload entries, got %d", len(uploads))
		}
		if uploads[0].Target != "google_drive" || uploads[1].Target != "google_photos" {
			t.Errorf("expected uploads sorted by target, got %v", uploads)
		}
		if uploads[0].Error != "" {
			t.Errorf("drive upload should carry no error, got %q", uploads[0].Error)
		}
		if uploads[1].Error != "quota exceeded" {
			t.Errorf("expected photos upload error, got %q", uploads[1].Error)
		}

		if !payload.Items[1].Skipped {
			t.Error("second item should be marked skipped")
		}
	})

	t.Run("WriteRunManifest", func(t *testing.T) {
		tmpDir := t.TempDir()
		dir := filepath.Join(tmpDir, "manifests")

		path, err := WriteRunManifest(result, dir)
		if err != nil {
			t.Fatalf("WriteRunManifest failed: %v", err)
		}

		if filepath.Base(path) != "run_run-abc.json" {
			t.Errorf("unexpected manifest filename: %s", path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("manifest file should exist: %v", err)
		}
		if !strings.Contains(string(data), "run-abc") {
			t.Error("manifest file missing run id")
		}
	})
}

func TestHelpers(t *testing.T) {
	t.Run("uploadSummary", func(t *testing.T) {
		if got := uploadSummary(nil); got != "-" {
			t.Errorf("expected - for no records, got %q", got)
		}

		records := []models.UploadRecord{
			{TargetID: "google_photos", Status: models.UploadFailed},
			{TargetID: "google_drive", Status: models.UploadSuccess},
		}
		want := "google_drive:SUCCESS google_photos:FAILED"
		if got := uploadSummary(records); got != want {
			t.Errorf("uploadSummary() = %q, want %q", got, want)
		}
	})

	t.Run("truncate", func(t *testing.T) {
		if got := truncate("short", 10); got != "short" {
			t.Errorf("short strings should pass through, got %q", got)
		}
		if got := truncate("abcdefghij", 5); got != "abcd…" {
			t.Errorf("truncate() = %q, want %q", got, "abcd…")
		}
		if got := truncate("anything", 0); got != "anything" {
			t.Errorf("zero width should pass through, got %q", got)
		}
	})
}
