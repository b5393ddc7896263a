// package tasks implements the fetch-and-replicate pipeline.
//
// The core abstraction is BridgeEngine, which coordinates downloads, uploads,
// and state reconciliation for a batch of source URLs. Operations emit
// progress updates via channels for non-blocking status reporting to CLI/UI
// layers. All durable state lives in the repositories layer, so a run that
// dies mid-batch picks up where it left off on the next invocation.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/mbx/internal/download"
	"github.com/desertthunder/mbx/internal/models"
	"github.com/desertthunder/mbx/internal/repositories"
	"github.com/desertthunder/mbx/internal/retry"
	"github.com/desertthunder/mbx/internal/services"
	"github.com/desertthunder/mbx/internal/shared"
)

// ItemResult represents the outcome of processing a single source URL.
type ItemResult struct {
	URL       string             // Source URL
	Status    models.MediaStatus // Final persisted status
	LocalPath string             // Local file path, if a download exists
	Uploads   map[string]error   // Per-target outcome, nil value on success
	Skipped   bool               // True when the item was already complete
	Err       error              // Step error that halted the item, if any
}

// RunResult contains all data from a pipeline run.
type RunResult struct {
	RunID     string        // Unique identifier for this run
	Items     []ItemResult  // Per-URL outcomes in input order
	Completed int           // Items that reached COMPLETED
	Failed    int           // Items that ended in a failed state
	Skipped   int           // Items skipped as already complete
	Elapsed   time.Duration // Wall time for the whole run
}

// RunOpts carries per-invocation pipeline settings.
type RunOpts struct {
	OutputDir              string // Download destination directory
	Format                 string // Format selector passed to the fetch engine
	Filename               string // Custom filename, single-URL runs only
	MaxAttempts            int    // Per-step attempt bound; 0 uses the engine policy
	CompleteWithoutTargets bool   // Whether zero enabled targets completes items
}

// BridgeEngine defines the pipeline operations.
type BridgeEngine interface {
	// Run processes a batch of source URLs end to end: download, replicate
	// to every enabled target, reconcile. Already-completed URLs are
	// skipped; a failure on one URL never halts the rest of the batch.
	Run(ctx context.Context, progress chan<- ProgressUpdate, urls []string, opts RunOpts) (*RunResult, error)

	// Retry re-processes every item stuck in a failed or partially
	// uploaded state, subject to the per-item retry budget.
	Retry(ctx context.Context, progress chan<- ProgressUpdate, opts RunOpts) (*RunResult, error)
}

// PipelineEngine implements BridgeEngine against the SQLite-backed store,
// a fetch engine, and the configured destination targets.
type PipelineEngine struct {
	store   *repositories.Store
	engine  download.Engine
	targets []services.Target
	policy  retry.Policy
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewPipelineEngine creates a pipeline engine. ratePerSecond bounds how
// often a new download may start; zero or negative disables pacing.
func NewPipelineEngine(store *repositories.Store, engine download.Engine, targets []services.Target, policy retry.Policy, ratePerSecond float64, logger *log.Logger) *PipelineEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}

	return &PipelineEngine{
		store:   store,
		engine:  engine,
		targets: targets,
		policy:  policy,
		limiter: limiter,
		logger:  logger,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *PipelineEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run processes the given URLs through the full pipeline.
func (e *PipelineEngine) Run(ctx context.Context, progress chan<- ProgressUpdate, urls []string, opts RunOpts) (*RunResult, error) {
	if e.store == nil {
		return nil, fmt.Errorf("%w: state store not initialized", shared.ErrStoreUnavailable)
	}
	if e.engine == nil {
		return nil, fmt.Errorf("%w: fetch engine not initialized", shared.ErrServiceUnavailable)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: at least one url is required", shared.ErrMissingArgument)
	}
	if opts.Filename != "" && len(urls) > 1 {
		return nil, fmt.Errorf("%w: --filename applies to a single url", shared.ErrInvalidFlag)
	}

	urls = dedupe(urls)

	policy := e.policy
	if opts.MaxAttempts > 0 {
		policy = policy.WithMaxAttempts(opts.MaxAttempts)
	}

	start := time.Now()
	result := &RunResult{
		RunID: shared.GenerateID(),
		Items: make([]ItemResult, 0, len(urls)),
	}

	e.logger.Info("starting run", "id", result.RunID, "items", len(urls), "targets", len(e.targets))

	for i, url := range urls {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		item := e.processItem(ctx, progress, i+1, len(urls), url, opts, policy)
		result.Items = append(result.Items, item)

		switch {
		case item.Skipped:
			result.Skipped++
		case item.Status == models.StatusCompleted:
			result.Completed++
		case item.Status.Failed() || item.Err != nil:
			result.Failed++
		}
	}

	result.Elapsed = time.Since(start)
	e.logger.Info("run finished", "id", result.RunID,
		"completed", result.Completed, "failed", result.Failed, "skipped", result.Skipped,
		"elapsed", result.Elapsed)

	return result, nil
}

// Retry re-runs the pipeline over every item in a failed or partially
// uploaded state.
func (e *PipelineEngine) Retry(ctx context.Context, progress chan<- ProgressUpdate, opts RunOpts) (*RunResult, error) {
	if e.store == nil {
		return nil, fmt.Errorf("%w: state store not initialized", shared.ErrStoreUnavailable)
	}

	budget := opts.MaxAttempts
	if budget <= 0 {
		budget = e.policy.MaxAttempts
	}

	failed, err := e.store.Media.ListFailed(budget)
	if err != nil {
		return nil, err
	}
	pending, err := e.store.Media.ListByStatus(models.StatusUploadPending, budget)
	if err != nil {
		return nil, err
	}

	var urls []string
	for _, item := range append(failed, pending...) {
		urls = append(urls, item.URL)
	}
	urls = dedupe(urls)

	if len(urls) == 0 {
		e.logger.Info("nothing to retry")
		return &RunResult{RunID: shared.GenerateID()}, nil
	}

	return e.Run(ctx, progress, urls, opts)
}

// processItem drives one URL through download, uploads, and reconciliation.
// Every state transition is persisted before the next step begins.
func (e *PipelineEngine) processItem(ctx context.Context, progress chan<- ProgressUpdate, step, total int, url string, opts RunOpts, policy retry.Policy) ItemResult {
	result := ItemResult{URL: url, Uploads: make(map[string]error)}

	item, _, err := e.store.Get(url)
	if err != nil && !errors.Is(err, shared.ErrItemNotFound) {
		result.Err = err
		return result
	}

	targetIDs := services.TargetIDs(e.targets)

	// Completed only skips when every currently enabled destination already
	// holds a SUCCESS record; enabling a new destination re-drives the item
	// through its upload.
	if item != nil && item.Status == models.StatusCompleted {
		done := len(targetIDs) == 0
		if !done {
			if done, err = e.store.AllSucceeded(url, targetIDs); err != nil {
				result.Err = err
				return result
			}
		}
		if done {
			e.sendProgress(progress, skipUpdate(step, total, url))
			e.logger.Debug("already completed", "url", url)
			result.Status = models.StatusCompleted
			result.LocalPath = item.LocalPath
			result.Skipped = true
			return result
		}
	}

	localPath, title := e.resumablePath(item)
	if localPath != "" {
		e.sendProgress(progress, resumeUpdate(step, total, url, localPath))
		e.logger.Info("resuming from existing download", "url", url, "path", localPath)
	} else {
		e.sendProgress(progress, downloadUpdate(step, total, url))

		localPath, title, err = e.downloadItem(ctx, progress, step, total, url, opts, policy)
		if err != nil {
			e.sendProgress(progress, failedUpdate(step, total, url, err))
			result.Status = models.StatusFailedDownload
			result.Err = err
			return result
		}
	}
	result.LocalPath = localPath

	if len(e.targets) > 0 {
		if err := e.store.Media.Upsert(url, models.StatusUploadPending, repositories.MediaItemParams{}); err != nil {
			result.Err = err
			return result
		}

		for _, target := range e.targets {
			pending, err := e.store.PendingUploads(url, []string{target.ID()})
			if err != nil {
				result.Err = err
				return result
			}
			if len(pending) == 0 {
				e.logger.Debug("upload already succeeded", "url", url, "target", target.ID())
				continue
			}

			e.sendProgress(progress, uploadUpdate(step, total, url, target.Name()))
			result.Uploads[target.ID()] = e.uploadItem(ctx, progress, step, total, url, localPath, title, target, policy)
		}
	}

	status, err := e.store.Reconcile(url, targetIDs, opts.CompleteWithoutTargets)
	if err != nil {
		result.Err = err
		return result
	}

	e.sendProgress(progress, reconcileUpdate(step, total, url, status.String()))
	result.Status = status
	return result
}

// resumablePath returns the recorded local path and title when the item
// already holds a usable download on disk.
func (e *PipelineEngine) resumablePath(item *models.MediaItem) (string, string) {
	if item == nil || item.LocalPath == "" {
		return "", ""
	}

	switch item.Status {
	case models.StatusDownloaded, models.StatusUploadPending, models.StatusFailedUpload, models.StatusCompleted:
	default:
		return "", ""
	}

	if _, err := os.Stat(item.LocalPath); err != nil {
		return "", ""
	}

	return item.LocalPath, item.Title
}

// downloadItem runs the retry-wrapped download step and persists its
// outcome. Returns the local path and title on success.
func (e *PipelineEngine) downloadItem(ctx context.Context, progress chan<- ProgressUpdate, step, total int, url string, opts RunOpts, policy retry.Policy) (string, string, error) {
	if err := e.store.Media.Upsert(url, models.StatusDownloading, repositories.MediaItemParams{}); err != nil {
		return "", "", err
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", "", err
		}
	}

	var fetched *download.Result
	err := policy.Do(ctx, func(ctx context.Context) error {
		res, err := e.engine.Fetch(ctx, url, download.Options{
			OutputDir: opts.OutputDir,
			Filename:  opts.Filename,
			Format:    opts.Format,
		})
		if err != nil {
			return err
		}
		fetched = res
		return nil
	}, func(cause error, attempt int) {
		// Each failed attempt is an error-carrying write, so retry_count
		// tracks attempts across process restarts.
		if upsertErr := e.store.Media.Upsert(url, models.StatusDownloading, repositories.MediaItemParams{
			ErrorMessage: cause.Error(),
		}); upsertErr != nil {
			e.logger.Error("failed to record download attempt", "url", url, "error", upsertErr)
		}
		e.sendProgress(progress, retryWaitUpdate(step, total, url, attempt, cause))
		e.logger.Warn("download attempt failed", "url", url, "attempt", attempt, "error", cause)
	})
	if err != nil {
		if upsertErr := e.store.Media.Upsert(url, models.StatusFailedDownload, repositories.MediaItemParams{
			ErrorMessage: err.Error(),
		}); upsertErr != nil {
			e.logger.Error("failed to record download failure", "url", url, "error", upsertErr)
		}
		return "", "", err
	}

	if err := e.store.Media.Upsert(url, models.StatusDownloaded, repositories.MediaItemParams{
		Title:     fetched.Title,
		LocalPath: fetched.LocalPath,
		SourceID:  fetched.SourceID,
	}); err != nil {
		return "", "", err
	}

	return fetched.LocalPath, fetched.Title, nil
}

// uploadItem runs the retry-wrapped upload step for one target and persists
// its outcome. A failure marks the upload record FAILED and the media item
// FAILED_UPLOAD; the error is returned for the run report but does not
// halt the remaining targets.
func (e *PipelineEngine) uploadItem(ctx context.Context, progress chan<- ProgressUpdate, step, total int, url, localPath, title string, target services.Target, policy retry.Policy) error {
	if err := e.store.Uploads.Upsert(url, target.ID(), models.UploadPending, repositories.UploadRecordParams{}); err != nil {
		return err
	}

	var uploadedID string
	err := policy.Do(ctx, func(ctx context.Context) error {
		id, err := target.Upload(ctx, localPath, title, target.DestinationHint())
		if err != nil {
			return err
		}
		uploadedID = id
		return nil
	}, func(cause error, attempt int) {
		if upsertErr := e.store.Uploads.Upsert(url, target.ID(), models.UploadPending, repositories.UploadRecordParams{
			ErrorMessage: cause.Error(),
		}); upsertErr != nil {
			e.logger.Error("failed to record upload attempt", "url", url, "target", target.ID(), "error", upsertErr)
		}
		e.sendProgress(progress, retryWaitUpdate(step, total, url, attempt, cause))
		e.logger.Warn("upload attempt failed", "url", url, "target", target.ID(), "attempt", attempt, "error", cause)
	})
	if err != nil {
		if upsertErr := e.store.Uploads.Upsert(url, target.ID(), models.UploadFailed, repositories.UploadRecordParams{
			ErrorMessage: err.Error(),
		}); upsertErr != nil {
			e.logger.Error("failed to record upload failure", "url", url, "target", target.ID(), "error", upsertErr)
		}
		if upsertErr := e.store.Media.Upsert(url, models.StatusFailedUpload, repositories.MediaItemParams{
			ErrorMessage: err.Error(),
		}); upsertErr != nil {
			e.logger.Error("failed to record upload failure", "url", url, "error", upsertErr)
		}
		e.sendProgress(progress, failedUpdate(step, total, url, err))
		return err
	}

	if err := e.store.Uploads.Upsert(url, target.ID(), models.UploadSuccess, repositories.UploadRecordParams{
		UploadedID: uploadedID,
	}); err != nil {
		return err
	}

	e.logger.Info("upload succeeded", "url", url, "target", target.ID(), "id", uploadedID)
	return nil
}

// dedupe drops repeated URLs, preserving first-seen order.
func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := urls[:0:0]
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
