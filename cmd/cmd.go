// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand initializes the database and configuration
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration, database, and the download engine",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "skip-engine",
				Usage: "Skip downloading the yt-dlp binary",
			},
		},
		Action: r.Setup,
	}
}

// runCommand drives the full pipeline for a batch of URLs
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Download URLs and replicate them to the enabled destinations",
		ArgsUsage: "URL [URL...]",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Directory downloads are written to",
			},
			&cli.StringFlag{
				Name:  "filename",
				Usage: "Custom filename without extension (single URL only)",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Format selector passed to the download engine",
			},
			&cli.IntFlag{
				Name:  "max-attempts",
				Usage: "Per-step attempt bound, overrides configuration",
			},
			&cli.StringFlag{
				Name:  "manifest-dir",
				Usage: "Write a JSON run manifest into this directory",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the run result as JSON",
			},
		},
		Action: r.Run,
	}
}

// retryCommand re-processes failed and partially uploaded items
func retryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "retry",
		Usage: "Re-process items stuck in failed or partially uploaded states",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Directory downloads are written to",
			},
			&cli.IntFlag{
				Name:  "max-attempts",
				Usage: "Per-step attempt bound, overrides configuration",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the run result as JSON",
			},
		},
		Action: r.Retry,
	}
}

// statusCommand renders the state store
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show every tracked item and its pipeline state",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "url",
				Usage: "Show a single item by URL",
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Only show items with this status, e.g. FAILED_DOWNLOAD",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output JSON",
			},
			&cli.BoolFlag{
				Name:  "csv",
				Usage: "Output CSV",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to a file instead of stdout",
			},
		},
		Action: r.Status,
	}
}

// cleanupCommand sweeps old terminal records
func cleanupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Remove terminal records older than the retention window",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:  "days",
				Usage: "Retention window in days, overrides configuration",
			},
		},
		Action: r.Cleanup,
	}
}

// authCommand runs the OAuth flow for a destination
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize access to a destination service",
		Commands: []*cli.Command{
			{
				Name:   "drive",
				Usage:  "Authorize Google Drive and cache the token",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthDrive,
			},
			{
				Name:   "photos",
				Usage:  "Authorize Google Photos and cache the token",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthPhotos,
			},
		},
	}
}

// tuiCommand launches the interactive dashboard
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Browse pipeline state in an interactive dashboard",
		Flags:  []cli.Flag{configFlag()},
		Action: r.TUI,
	}
}
