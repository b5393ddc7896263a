package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/mbx/internal/repositories"
	"github.com/desertthunder/mbx/internal/retry"
	"github.com/desertthunder/mbx/internal/services"
	"github.com/desertthunder/mbx/internal/shared"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, runCommand, retryCommand, statusCommand, cleanupCommand, authCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger swaps the runner's logger, e.g. to redirect logs away from a TUI.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// loadConfig reloads configuration from the command's --config flag when the
// file exists, falling back to the runner's current config.
func (r *Runner) loadConfig(cmd *cli.Command) *shared.Config {
	configPath := cmd.String("config")
	if configPath == "" {
		return r.config
	}

	if _, err := os.Stat(configPath); err == nil {
		if config, err := shared.LoadConfig(configPath); err == nil {
			r.config = config
		} else {
			r.logger.Warn("failed to load config, using defaults", "error", err)
		}
	}

	return r.config
}

// openStore opens the state database and wraps it in a repository store.
// The caller owns the returned handle.
func (r *Runner) openStore(config *shared.Config) (*repositories.Store, *sql.DB, error) {
	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repositories.NewStore(db), db, nil
}

// buildTargets constructs and authenticates the enabled destination targets.
func (r *Runner) buildTargets(ctx context.Context, config *shared.Config) ([]services.Target, error) {
	targets, err := services.NewTargets(config.Storage, r.httpClient, r.logger)
	if err != nil {
		return nil, err
	}

	for _, target := range targets {
		auth, ok := target.(interface{ Authenticate(context.Context) error })
		if !ok {
			continue
		}
		if err := auth.Authenticate(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", target.Name(), err)
		}
	}

	return targets, nil
}

// retryPolicy builds the retry policy from pipeline configuration,
// falling back to defaults for unset knobs.
func (r *Runner) retryPolicy(config *shared.Config) retry.Policy {
	policy := retry.DefaultPolicy

	if config.Pipeline.MaxAttempts > 0 {
		policy.MaxAttempts = config.Pipeline.MaxAttempts
	}
	if config.Pipeline.InitialDelaySecs > 0 {
		policy.InitialDelay = time.Duration(config.Pipeline.InitialDelaySecs * float64(time.Second))
	}
	if config.Pipeline.MaxDelaySecs > 0 {
		policy.MaxDelay = time.Duration(config.Pipeline.MaxDelaySecs * float64(time.Second))
	}
	if config.Pipeline.BackoffFactor > 0 {
		policy.BackoffFactor = config.Pipeline.BackoffFactor
	}

	return policy
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
