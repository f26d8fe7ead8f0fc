// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for modelrace.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, and validation.
//
// Configuration file location:
//   - ~/.modelrace/config.toml
//   - Built-in defaults
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/modelrace/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete modelrace configuration.
type Config struct {
	// Version of the config schema.
	Version string `toml:"version"`

	// Models are the default model set raced when none are given on the
	// command line.
	Models []string `toml:"models"`

	// SystemPrompt is prepended to every comparison when set.
	SystemPrompt string `toml:"system_prompt"`

	Server  ServerConfig  `toml:"server"`
	Compare CompareConfig `toml:"compare"`
	Export  ExportConfig  `toml:"export"`
	History HistoryConfig `toml:"history"`
}

// ServerConfig contains Ollama server configuration.
type ServerConfig struct {
	// OllamaURL is the URL of the Ollama server
	OllamaURL string `toml:"ollama_url"`
	// TimeoutSecs is the timeout for non-streaming requests
	TimeoutSecs int `toml:"timeout_secs"`
}

// CompareConfig contains comparison orchestration configuration.
type CompareConfig struct {
	// FlushIntervalMs bounds how often streamed output is flushed to the
	// display. 0 uses the built-in default; negative disables throttling.
	FlushIntervalMs int `toml:"flush_interval_ms"`
}

// ExportConfig contains export configuration.
type ExportConfig struct {
	// OutputDir is where export artifacts are written (empty = OS temp dir)
	OutputDir string `toml:"output_dir"`
}

// HistoryConfig contains session history configuration.
type HistoryConfig struct {
	// Enabled controls whether finished sessions are persisted
	Enabled bool `toml:"enabled"`
	// DatabasePath overrides the default ~/.modelrace/history.db
	DatabasePath string `toml:"database_path"`
	// ListLimit is the default number of rows shown by the history command
	ListLimit int `toml:"list_limit"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Models:  []string{"llama3.2:3b", "qwen2.5-coder:7b"},

		Server: ServerConfig{
			OllamaURL:   "http://127.0.0.1:11434",
			TimeoutSecs: 30,
		},

		Compare: CompareConfig{
			FlushIntervalMs: 100,
		},

		Export: ExportConfig{
			OutputDir: "",
		},

		History: HistoryConfig{
			Enabled:   true,
			ListLimit: 20,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the modelrace configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".modelrace"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back to
// defaults when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if _, statErr := os.Stat(path); statErr == nil {
		if err := loadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := loadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if len(cfg.Models) == 0 {
		cfg.Models = defaults.Models
	}
	if cfg.Server.OllamaURL == "" {
		cfg.Server.OllamaURL = defaults.Server.OllamaURL
	}
	if cfg.Server.TimeoutSecs == 0 {
		cfg.Server.TimeoutSecs = defaults.Server.TimeoutSecs
	}
	if cfg.Compare.FlushIntervalMs == 0 {
		cfg.Compare.FlushIntervalMs = defaults.Compare.FlushIntervalMs
	}
	if cfg.History.ListLimit == 0 {
		cfg.History.ListLimit = defaults.History.ListLimit
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies MODELRACE_* environment variables on top of the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MODELRACE_OLLAMA_URL"); v != "" {
		c.Server.OllamaURL = v
	}
	if v := os.Getenv("MODELRACE_MODELS"); v != "" {
		var models []string
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				models = append(models, m)
			}
		}
		if len(models) > 0 {
			c.Models = models
		}
	}
	if v := os.Getenv("MODELRACE_SYSTEM_PROMPT"); v != "" {
		c.SystemPrompt = v
	}
	if v := os.Getenv("MODELRACE_FLUSH_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Compare.FlushIntervalMs = n
		}
	}
	if v := os.Getenv("MODELRACE_OUTPUT_DIR"); v != "" {
		c.Export.OutputDir = v
	}
	if v := os.Getenv("MODELRACE_HISTORY_DB"); v != "" {
		c.History.DatabasePath = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, ve := range e {
		msgs = append(msgs, ve.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for invalid values. Returns a
// ValidateErrors listing every problem found, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors

	u, err := url.Parse(c.Server.OllamaURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "server.ollama_url",
			Message: fmt.Sprintf("invalid URL %q", c.Server.OllamaURL),
		})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{
			Field:   "server.ollama_url",
			Message: fmt.Sprintf("unsupported scheme %q", u.Scheme),
		})
	}

	if c.Server.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.timeout_secs",
			Message: "must not be negative",
		})
	}

	if c.Compare.FlushIntervalMs > 10000 {
		errs = append(errs, ValidationError{
			Field:   "compare.flush_interval_ms",
			Message: "must be at most 10000 (10s)",
		})
	}

	if c.History.ListLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "history.list_limit",
			Message: "must not be negative",
		})
	}

	for _, m := range c.Models {
		if strings.TrimSpace(m) == "" {
			errs = append(errs, ValidationError{
				Field:   "models",
				Message: "model names must not be blank",
			})
			break
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file. Files are written
// atomically with owner-only permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# modelrace configuration file\n")
	buf.WriteString("# Generated by modelrace - edit with care\n\n")

	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0755); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
