package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database  DatabaseConfig `toml:"database"`
	Downloads DownloadConfig `toml:"downloads"`
	Pipeline  PipelineConfig `toml:"pipeline"`
	Storage   StorageConfig  `toml:"storage"`
}

// DatabaseConfig contains state database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// DownloadConfig contains fetch engine settings.
type DownloadConfig struct {
	OutputDir     string  `toml:"output_dir"`
	Format        string  `toml:"format"`
	RatePerSecond float64 `toml:"rate_per_second"`
}

// PipelineConfig contains retry and reconciliation policy settings.
type PipelineConfig struct {
	MaxAttempts            int     `toml:"max_attempts"`
	InitialDelaySecs       float64 `toml:"initial_delay_secs"`
	MaxDelaySecs           float64 `toml:"max_delay_secs"`
	BackoffFactor          float64 `toml:"backoff_factor"`
	CompleteWithoutTargets bool    `toml:"complete_without_targets"`
	RetentionDays          int     `toml:"retention_days"`
}

// StorageConfig contains per-destination upload settings.
type StorageConfig struct {
	GoogleDrive  DriveConfig  `toml:"google_drive"`
	GooglePhotos PhotosConfig `toml:"google_photos"`
}

// DriveConfig contains Google Drive destination settings.
type DriveConfig struct {
	Enabled        bool   `toml:"enabled"`
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	TokenFile      string `toml:"token_file"`
	TargetFolderID string `toml:"target_folder_id"`
}

// PhotosConfig contains Google Photos destination settings.
type PhotosConfig struct {
	Enabled       bool   `toml:"enabled"`
	ClientID      string `toml:"client_id"`
	ClientSecret  string `toml:"client_secret"`
	TokenFile     string `toml:"token_file"`
	TargetAlbumID string `toml:"target_album_id"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
