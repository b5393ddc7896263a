// package formatter renders pipeline state and run reports to various
// formats (plain text, CSV, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/mbx/internal/models"
	"github.com/desertthunder/mbx/internal/repositories"
	"github.com/desertthunder/mbx/internal/tasks"
)

// StatusReport is a point-in-time snapshot of the state store.
type StatusReport struct {
	Items       []*models.MediaItem              // All tracked media items
	Uploads     map[string][]models.UploadRecord // Upload records keyed by URL
	GeneratedAt time.Time                        // Snapshot time
}

// BuildStatusReport snapshots the state store into a renderable report.
func BuildStatusReport(store *repositories.Store) (*StatusReport, error) {
	items, err := store.Media.ListAll()
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		Items:       items,
		Uploads:     make(map[string][]models.UploadRecord, len(items)),
		GeneratedAt: time.Now(),
	}

	for _, item := range items {
		records, err := store.Uploads.ListForItem(item.URL)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			report.Uploads[item.URL] = append(report.Uploads[item.URL], record)
		}
	}

	return report, nil
}

// FilterURL narrows the report to a single item.
func (r *StatusReport) FilterURL(url string) {
	filtered := r.Items[:0]
	for _, item := range r.Items {
		if item.URL == url {
			filtered = append(filtered, item)
		}
	}
	r.Items = filtered
}

// FilterStatus narrows the report to items in the given status.
func (r *StatusReport) FilterStatus(status models.MediaStatus) {
	filtered := r.Items[:0]
	for _, item := range r.Items {
		if item.Status == status {
			filtered = append(filtered, item)
		}
	}
	r.Items = filtered
}

// Counts tallies items per status.
func (r *StatusReport) Counts() map[string]int {
	counts := make(map[string]int)
	for _, item := range r.Items {
		counts[item.Status.String()]++
	}
	return counts
}

// ToText renders the report as an aligned table with a per-status summary.
func ToText(report *StatusReport) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Tracked items: %d\n", len(report.Items))

	counts := report.Counts()
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Fprintf(&buf, "  %s: %d\n", status, counts[status])
	}
	buf.WriteString("\n")

	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tTITLE\tSTATUS\tRETRIES\tUPLOADS\tLAST ERROR")
	for _, item := range report.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			item.URL,
			truncate(item.Title, 40),
			item.Status,
			item.RetryCount,
			uploadSummary(report.Uploads[item.URL]),
			truncate(item.ErrorMessage, 60),
		)
	}
	w.Flush()

	return buf.Bytes()
}

// ToCSV renders the report with columns: URL, Title, Status, Retries,
// LocalPath, Error.
func ToCSV(report *StatusReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"URL", "Title", "Status", "Retries", "LocalPath", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range report.Items {
		record := []string{
			item.URL,
			item.Title,
			item.Status.String(),
			strconv.Itoa(item.RetryCount),
			item.LocalPath,
			item.ErrorMessage,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// statusItemJSON is the JSON shape of one report row.
type statusItemJSON struct {
	URL        string            `json:"url"`
	Title      string            `json:"title,omitempty"`
	Status     string            `json:"status"`
	LocalPath  string            `json:"local_path,omitempty"`
	RetryCount int               `json:"retry_count"`
	Error      string            `json:"error,omitempty"`
	Uploads    map[string]string `json:"uploads,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// ToJSON renders the report as indented JSON.
func ToJSON(report *StatusReport) ([]byte, error) {
	items := make([]statusItemJSON, 0, len(report.Items))
	for _, item := range report.Items {
		row := statusItemJSON{
			URL:        item.URL,
			Title:      item.Title,
			Status:     item.Status.String(),
			LocalPath:  item.LocalPath,
			RetryCount: item.RetryCount,
			Error:      item.ErrorMessage,
			UpdatedAt:  item.UpdatedAt,
		}
		if records := report.Uploads[item.URL]; len(records) > 0 {
			row.Uploads = make(map[string]string, len(records))
			for _, record := range records {
				row.Uploads[record.TargetID] = record.Status.String()
			}
		}
		items = append(items, row)
	}

	payload := map[string]any{
		"generated_at": report.GeneratedAt,
		"counts":       report.Counts(),
		"items":        items,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status report: %w", err)
	}
	return data, nil
}

// RunManifest renders a run result as indented JSON suitable for archival.
func RunManifest(result *tasks.RunResult) ([]byte, error) {
	type uploadJSON struct {
		Target string `json:"target"`
		Error  string `json:"error,omitempty"`
	}
	type itemJSON struct {
		URL       string       `json:"url"`
		Status    string       `json:"status"`
		LocalPath string       `json:"local_path,omitempty"`
		Skipped   bool         `json:"skipped,omitempty"`
		Error     string       `json:"error,omitempty"`
		Uploads   []uploadJSON `json:"uploads,omitempty"`
	}

	items := make([]itemJSON, 0, len(result.Items))
	for _, item := range result.Items {
		row := itemJSON{
			URL:       item.URL,
			Status:    item.Status.String(),
			LocalPath: item.LocalPath,
			Skipped:   item.Skipped,
		}
		if item.Err != nil {
			row.Error = item.Err.Error()
		}

		targets := make([]string, 0, len(item.Uploads))
		for target := range item.Uploads {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			upload := uploadJSON{Target: target}
			if err := item.Uploads[target]; err != nil {
				upload.Error = err.Error()
			}
			row.Uploads = append(row.Uploads, upload)
		}

		items = append(items, row)
	}

	payload := map[string]any{
		"run_id":     result.RunID,
		"completed":  result.Completed,
		"failed":     result.Failed,
		"skipped":    result.Skipped,
		"elapsed_ms": result.Elapsed.Milliseconds(),
		"items":      items,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run manifest: %w", err)
	}
	return data, nil
}

// WriteRunManifest writes a run manifest to {dir}/run_{id}.json and returns
// the path.
func WriteRunManifest(result *tasks.RunResult, dir string) (string, error) {
	data, err := RunManifest(result)
	if err != nil {
		return "", err
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create manifest directory: %w", err)
		}
	} else {
		dir = "."
	}

	path := fmt.Sprintf("%s/run_%s.json", dir, result.RunID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write run manifest: %w", err)
	}

	return path, nil
}

// uploadSummary compresses upload records into "target:STATUS" pairs.
func uploadSummary(records []models.UploadRecord) string {
	if len(records) == 0 {
		return "-"
	}

	sorted := make([]models.UploadRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TargetID < sorted[j].TargetID })

	var buf bytes.Buffer
	for i, record := range sorted {
		if i > 0 {
			buf.WriteString(" ")
		}
		fmt.Fprintf(&buf, "%s:%s", record.TargetID, record.Status)
	}
	return buf.String()
}

// truncate shortens s to at most n runes with an ellipsis.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
