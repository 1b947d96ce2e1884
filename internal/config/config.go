package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Telegram contains Bot API connection settings.
type Telegram struct {
	BotToken              string  `toml:"bot_token"`
	APIBaseURL            string  `toml:"api_base_url"`
	PollTimeoutSeconds    int     `toml:"poll_timeout_seconds"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
	AllowedChatIDs        []int64 `toml:"allowed_chat_ids"`
	WorkerQueueSize       int     `toml:"worker_queue_size"`
	WorkerIdleSeconds     int     `toml:"worker_idle_seconds"`
}

// Conversion selects which catalog pairs are offered and how uploads are matched.
type Conversion struct {
	EnabledPairs      []string `toml:"enabled_pairs"`
	FoldExtensionCase bool     `toml:"fold_extension_case"`
}

// Transcoder contains ffmpeg invocation settings.
type Transcoder struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	VerifyOutput   bool   `toml:"verify_output"`
}

// Staging contains workspace housekeeping settings.
type Staging struct {
	StaleAfterMinutes int `toml:"stale_after_minutes"`
	MinFreeMiB        int `toml:"min_free_mib"`
}

// Metrics controls the Prometheus endpoint. An empty bind disables it.
type Metrics struct {
	Bind string `toml:"bind"`
}

// History controls the optional SQLite ledger of conversion attempts.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for convertbot.
//
// Configuration sections by subsystem:
//   - Paths: staging and log directories
//   - Telegram: Bot API token, polling, and per-chat worker sizing
//   - Conversion: enabled catalog pairs and extension matching
//   - Transcoder: ffmpeg/ffprobe binaries and the per-run timeout
//   - Staging: stale workspace sweeping and free-space floor
//   - Metrics: Prometheus endpoint bind address
//   - History: conversion attempt ledger
//   - Logging: log format, level, and retention
type Config struct {
	Paths      Paths      `toml:"paths"`
	Telegram   Telegram   `toml:"telegram"`
	Conversion Conversion `toml:"conversion"`
	Transcoder Transcoder `toml:"transcoder"`
	Staging    Staging    `toml:"staging"`
	Metrics    Metrics    `toml:"metrics"`
	History    History    `toml:"history"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("convertbot.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for bot operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.History.Enabled && strings.TrimSpace(c.History.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(c.History.Path), 0o755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}
	return nil
}

// TranscodeTimeout returns the per-run ffmpeg bound.
func (c *Config) TranscodeTimeout() time.Duration {
	return time.Duration(c.Transcoder.TimeoutSeconds) * time.Second
}

// PollTimeout returns the long-poll window passed to getUpdates.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Telegram.PollTimeoutSeconds) * time.Second
}

// RequestTimeout returns the HTTP timeout for non-polling Bot API calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Telegram.RequestTimeoutSeconds) * time.Second
}

// WorkerIdle returns how long a per-chat worker lingers without events.
func (c *Config) WorkerIdle() time.Duration {
	return time.Duration(c.Telegram.WorkerIdleSeconds) * time.Second
}

// StaleAfter returns the age after which a leftover workspace is swept.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Staging.StaleAfterMinutes) * time.Minute
}

// MinFreeBytes returns the free-space floor for opening a workspace.
func (c *Config) MinFreeBytes() uint64 {
	if c.Staging.MinFreeMiB <= 0 {
		return 0
	}
	return uint64(c.Staging.MinFreeMiB) << 20
}

// LockPath returns the single-instance lock file guarding the poller.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "convertbot.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
