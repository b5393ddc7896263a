package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/mbx/internal/download"
	"github.com/desertthunder/mbx/internal/formatter"
	"github.com/desertthunder/mbx/internal/shared"
	"github.com/desertthunder/mbx/internal/tasks"
)

// Run downloads the given URLs and replicates them to every enabled
// destination.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	urls := cmd.Args().Slice()
	if len(urls) == 0 {
		return fmt.Errorf("%w: at least one url is required", shared.ErrMissingArgument)
	}

	return r.executePipeline(ctx, cmd, urls)
}

// Retry re-processes every item in a failed or partially uploaded state.
func (r *Runner) Retry(ctx context.Context, cmd *cli.Command) error {
	return r.executePipeline(ctx, cmd, nil)
}

// executePipeline wires the store, engine, and targets together and drives
// one pipeline invocation. A nil urls slice retries stored failures instead.
func (r *Runner) executePipeline(ctx context.Context, cmd *cli.Command, urls []string) error {
	config := r.loadConfig(cmd)

	store, db, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer db.Close()

	targets, err := r.buildTargets(ctx, config)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		r.logger.Warn("no destinations enabled, items will only be downloaded")
	}

	engine := tasks.NewPipelineEngine(
		store,
		download.NewYTDLP(r.logger),
		targets,
		r.retryPolicy(config),
		config.Downloads.RatePerSecond,
		r.logger,
	)

	opts := tasks.RunOpts{
		OutputDir:              config.Downloads.OutputDir,
		Format:                 config.Downloads.Format,
		Filename:               cmd.String("filename"),
		MaxAttempts:            int(cmd.Int("max-attempts")),
		CompleteWithoutTargets: config.Pipeline.CompleteWithoutTargets,
	}
	if dir := cmd.String("output-dir"); dir != "" {
		opts.OutputDir = dir
	}
	if format := cmd.String("format"); format != "" {
		opts.Format = format
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			r.logger.Info(update.Message, "url", update.URL, "item", fmt.Sprintf("%d/%d", update.Step, update.Total))
		}
	}()

	var result *tasks.RunResult
	var runErr error
	if urls == nil {
		result, runErr = engine.Retry(ctx, progress, opts)
	} else {
		result, runErr = engine.Run(ctx, progress, urls, opts)
	}
	close(progress)
	wg.Wait()

	if runErr != nil {
		return runErr
	}

	if dir := cmd.String("manifest-dir"); dir != "" && len(result.Items) > 0 {
		path, err := formatter.WriteRunManifest(result, dir)
		if err != nil {
			return err
		}
		r.logger.Info("run manifest written", "path", path)
	}

	return r.reportRun(cmd, result)
}

// reportRun prints the run outcome as text or JSON.
func (r *Runner) reportRun(cmd *cli.Command, result *tasks.RunResult) error {
	if cmd.Bool("json") {
		data, err := formatter.RunManifest(result)
		if err != nil {
			return err
		}
		return r.writePlain("%s\n", data)
	}

	r.writePlain("Run %s: %d completed, %d failed, %d skipped (%s)\n",
		result.RunID, result.Completed, result.Failed, result.Skipped, result.Elapsed.Round(time.Millisecond))

	for _, item := range result.Items {
		marker := "✓"
		if item.Err != nil || item.Status.Failed() {
			marker = "✗"
		}
		r.writePlain("  %s %s → %s\n", marker, item.URL, item.Status)
		if item.Err != nil {
			r.writePlain("      %v\n", item.Err)
		}
		for target, uploadErr := range item.Uploads {
			if uploadErr != nil {
				r.writePlain("      %s: %v\n", target, uploadErr)
			}
		}
	}

	if result.Failed > 0 {
		r.writePlain("Run 'mbx retry' to re-process failed items\n")
	}

	return nil
}
