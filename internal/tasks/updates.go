package tasks

import "fmt"

// ProgressUpdate represents a progress event during a pipeline run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Pipeline phase
	Step    int    // Current item number within the run
	Total   int    // Total items in the run
	URL     string // Source URL the event concerns
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Pipeline phase enumeration
type Phase int

const (
	PhaseSkip Phase = iota
	PhaseResume
	PhaseDownload
	PhaseUpload
	PhaseReconcile
	PhaseRetryWait
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseSkip:
		return "skip"
	case PhaseResume:
		return "resume"
	case PhaseDownload:
		return "download"
	case PhaseUpload:
		return "upload"
	case PhaseReconcile:
		return "reconcile"
	case PhaseRetryWait:
		return "retry_wait"
	case PhaseFailed:
		return "failed"
	default:
		return ""
	}
}

func skipUpdate(step, total int, url string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseSkip,
		Step:    step,
		Total:   total,
		URL:     url,
		Message: "Already completed, skipping...",
	}
}

func resumeUpdate(step, total int, url, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseResume,
		Step:    step,
		Total:   total,
		URL:     url,
		Message: fmt.Sprintf("Found existing download (%s), resuming...", path),
	}
}

func downloadUpdate(step, total int, url string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseDownload,
		Step:    step,
		Total:   total,
		URL:     url,
		Message: "Downloading...",
	}
}

func uploadUpdate(step, total int, url, target string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseUpload,
		Step:    step,
		Total:   total,
		URL:     url,
		Message: fmt.Sprintf("Uploading to %s...", target),
	}
}

func retryWaitUpdate(step, total int, url string, attempt int, cause error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseRetryWait,
		Step:    step,
		Total:   total,
		URL:     url,
		Message: fmt.Sprintf("Attempt %d failed (%v), retrying...", attempt, cause),
		Data:    cause,
	}
}

func reconcileUpdate(step, total int, url, status string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseReconcile,
		Step:    step,
		Total:   total,
		URL:     url,
		Message: fmt.Sprintf("Final status: %s", status),
	}
}

func failedUpdate(step, total int, url string, cause error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseFailed,
		Step:    step,
		Total:   total,
		URL:     url,
		Message: fmt.Sprintf("Failed: %v", cause),
		Data:    cause,
	}
}
