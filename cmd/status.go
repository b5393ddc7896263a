package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/mbx/internal/formatter"
	"github.com/desertthunder/mbx/internal/models"
)

// Status renders the state store as a table, JSON, or CSV.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	store, db, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := formatter.BuildStatusReport(store)
	if err != nil {
		return err
	}

	if url := cmd.String("url"); url != "" {
		report.FilterURL(url)
	}
	if raw := cmd.String("status"); raw != "" {
		status := models.ParseMediaStatus(raw)
		if err := status.Validate(); err != nil {
			return fmt.Errorf("unrecognized status %q", raw)
		}
		report.FilterStatus(status)
	}

	var data []byte
	switch {
	case cmd.Bool("json"):
		if data, err = formatter.ToJSON(report); err != nil {
			return err
		}
	case cmd.Bool("csv"):
		if data, err = formatter.ToCSV(report); err != nil {
			return err
		}
	default:
		data = formatter.ToText(report)
	}

	if path := cmd.String("output"); path != "" {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		r.logger.Info("status written", "path", path)
		return nil
	}

	return r.writePlain("%s", data)
}

// Cleanup removes terminal records older than the retention window.
func (r *Runner) Cleanup(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	days := int(cmd.Int("days"))
	if days <= 0 {
		days = config.Pipeline.RetentionDays
	}
	if days <= 0 {
		return fmt.Errorf("retention window not configured, pass --days or set pipeline.retention_days")
	}

	store, db, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := store.CleanupOlderThan(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		return err
	}

	r.logger.Info("cleanup finished", "removed", removed, "days", days)
	return r.writePlain("Removed %d records older than %d days\n", removed, days)
}
