package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/mbx/internal/models"
	"github.com/desertthunder/mbx/internal/repositories"
	"github.com/desertthunder/mbx/internal/shared"
)

// failingWriter always errors so write paths can be exercised.
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("write failed")
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		want := []string{"setup", "run", "retry", "status", "cleanup", "auth", "tui"}
		if len(commands) != len(want) {
			t.Fatalf("expected %d commands, got %d", len(want), len(commands))
		}
		for i, name := range want {
			if commands[i].Name != name {
				t.Errorf("expected command %d to be %s, got %s", i, name, commands[i].Name)
			}
		}
	})

	t.Run("retryPolicy", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})

		config := shared.DefaultConfig()
		config.Pipeline.MaxAttempts = 7
		config.Pipeline.InitialDelaySecs = 0.5
		config.Pipeline.MaxDelaySecs = 12
		config.Pipeline.BackoffFactor = 3

		policy := runner.retryPolicy(config)
		if policy.MaxAttempts != 7 {
			t.Errorf("expected 7 max attempts, got %d", policy.MaxAttempts)
		}
		if policy.InitialDelay != 500*time.Millisecond {
			t.Errorf("expected 500ms initial delay, got %v", policy.InitialDelay)
		}
		if policy.MaxDelay != 12*time.Second {
			t.Errorf("expected 12s max delay, got %v", policy.MaxDelay)
		}
		if policy.BackoffFactor != 3 {
			t.Errorf("expected backoff factor 3, got %f", policy.BackoffFactor)
		}

		t.Run("unset knobs fall back to defaults", func(t *testing.T) {
			empty := &shared.Config{}
			policy := runner.retryPolicy(empty)
			if policy.MaxAttempts == 0 {
				t.Error("expected default max attempts for empty config")
			}
			if policy.InitialDelay == 0 {
				t.Error("expected default initial delay for empty config")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("writeJSON failed: %v", err)
			}

			var decoded map[string]string
			if err := json.Unmarshal(output.Bytes(), &decoded); err != nil {
				t.Fatalf("output is not valid JSON: %v", err)
			}
			if decoded["key"] != "value" {
				t.Errorf("expected key=value, got %v", decoded)
			}
			if !strings.Contains(output.String(), "\n") {
				t.Error("expected trailing newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("writeJSON failed: %v", err)
			}
			if strings.Contains(strings.TrimSpace(output.String()), "\n") {
				t.Error("compact output should be a single line")
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
			if err := runner.writeJSON(make(chan int), true); err == nil {
				t.Error("expected marshal error for channel value")
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: failingWriter{}})
			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err == nil {
				t.Error("expected error from failing writer")
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes formatted text", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s\n", "world"); err != nil {
				t.Fatalf("writePlain failed: %v", err)
			}
			if output.String() != "hello world\n" {
				t.Errorf("unexpected output: %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: failingWriter{}})
			if err := runner.writePlain("hello"); err == nil {
				t.Error("expected error from failing writer")
			}
		})
	})

	t.Run("loadConfig", func(t *testing.T) {
		t.Run("missing file keeps current config", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			original := runner.config

			var loaded *shared.Config
			cmd := &cli.Command{
				Flags: []cli.Flag{configFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					loaded = runner.loadConfig(cmd)
					return nil
				},
			}
			if err := cmd.Run(context.Background(), []string{"test", "--config", "/nonexistent/config.toml"}); err != nil {
				t.Fatalf("command run failed: %v", err)
			}

			if loaded != original {
				t.Error("expected original config when file is missing")
			}
		})

		t.Run("existing file replaces config", func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.toml")
			if err := shared.CreateConfigFile(configPath); err != nil {
				t.Fatalf("failed to create config: %v", err)
			}

			runner := NewRunner(RunnerOpts{})
			var loaded *shared.Config
			cmd := &cli.Command{
				Flags: []cli.Flag{configFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					loaded = runner.loadConfig(cmd)
					return nil
				},
			}
			if err := cmd.Run(context.Background(), []string{"test", "--config", configPath}); err != nil {
				t.Fatalf("command run failed: %v", err)
			}

			if loaded == nil || loaded.Database.Path != "mbx.db" {
				t.Errorf("expected config loaded from file, got %+v", loaded)
			}
		})
	})
}

func TestStatusCommand(t *testing.T) {
	tmpDir := t.TempDir()

	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(tmpDir, "mbx.db")

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Config: config, Output: output})

	store, db, err := runner.openStore(config)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	err = store.Media.Upsert("https://example.com/v/1", models.StatusCompleted, repositories.MediaItemParams{
		Title: "Seeded Clip",
	})
	db.Close()
	if err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}

	root := &cli.Command{Name: "mbx", Commands: runner.register()}

	t.Run("renders text table", func(t *testing.T) {
		output.Reset()
		if err := root.Run(context.Background(), []string{"mbx", "status"}); err != nil {
			t.Fatalf("status command failed: %v", err)
		}
		if !strings.Contains(output.String(), "Seeded Clip") {
			t.Errorf("expected seeded item in output, got: %s", output.String())
		}
		if !strings.Contains(output.String(), "COMPLETED") {
			t.Error("expected status column in output")
		}
	})

	t.Run("renders JSON", func(t *testing.T) {
		output.Reset()
		if err := root.Run(context.Background(), []string{"mbx", "status", "--json"}); err != nil {
			t.Fatalf("status command failed: %v", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(output.Bytes(), &payload); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if _, ok := payload["items"]; !ok {
			t.Error("expected items key in JSON output")
		}
	})

	t.Run("writes to file", func(t *testing.T) {
		output.Reset()
		outPath := filepath.Join(tmpDir, "status.csv")
		if err := root.Run(context.Background(), []string{"mbx", "status", "--csv", "--output", outPath}); err != nil {
			t.Fatalf("status command failed: %v", err)
		}
		data, err := os.ReadFile(outPath)
		if err != nil {
			t.Fatalf("output file should exist: %v", err)
		}
		if !strings.Contains(string(data), "Seeded Clip") {
			t.Error("expected seeded item in CSV file")
		}
	})
}

func TestCleanupCommand(t *testing.T) {
	tmpDir := t.TempDir()

	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(tmpDir, "mbx.db")
	config.Pipeline.RetentionDays = 0

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Config: config, Output: output})
	root := &cli.Command{Name: "mbx", Commands: runner.register()}

	t.Run("requires a retention window", func(t *testing.T) {
		if err := root.Run(context.Background(), []string{"mbx", "cleanup"}); err == nil {
			t.Error("expected error when no retention window is configured")
		}
	})

	t.Run("removes old terminal records", func(t *testing.T) {
		store, db, err := runner.openStore(config)
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		err = store.Media.Upsert("https://example.com/v/old", models.StatusCompleted, repositories.MediaItemParams{})
		if err == nil {
			_, err = db.Exec("UPDATE media_items SET created_at = datetime('now', '-90 days')")
		}
		db.Close()
		if err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}

		output.Reset()
		if err := root.Run(context.Background(), []string{"mbx", "cleanup", "--days", "30"}); err != nil {
			t.Fatalf("cleanup command failed: %v", err)
		}
		if !strings.Contains(output.String(), "Removed 1 records") {
			t.Errorf("expected removal summary, got: %s", output.String())
		}
	})
}
