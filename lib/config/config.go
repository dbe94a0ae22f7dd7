// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable [Load] reads the config path
// from.
const EnvironmentVariable = "LMSESSION_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Backend names the executor backend sessions run on.
type Backend string

const (
	BackendRemote   Backend = "remote"
	BackendOnDevice Backend = "ondevice"
)

// Config is the configuration of an lmsession process.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment" json:"environment"`

	// Root is the base directory for local state. Other paths may
	// refer to it as ${LMSESSION_ROOT}.
	Root string `yaml:"root" json:"root"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Model configures the session manager's view of the model.
	Model ModelConfig `yaml:"model" json:"model"`

	// Backend selects which executor backend is used.
	Backend Backend `yaml:"backend" json:"backend"`

	Remote   RemoteConfig   `yaml:"remote" json:"remote"`
	OnDevice OnDeviceConfig `yaml:"ondevice" json:"ondevice"`

	// Snapshots configures where saved sessions are kept.
	Snapshots SnapshotsConfig `yaml:"snapshots" json:"snapshots"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty" json:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty" json:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty" json:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Logging   *LoggingConfig   `yaml:"logging,omitempty" json:"logging,omitempty"`
	Snapshots *SnapshotsConfig `yaml:"snapshots,omitempty" json:"snapshots,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level" json:"level"`

	// Format is text, json, or auto (text on a terminal, json
	// otherwise).
	// Default: auto
	Format string `yaml:"format" json:"format"`
}

// ModelConfig configures sampling limits and the model the manager
// serves.
type ModelConfig struct {
	// Capability is the default capability sessions are created for.
	// Default: prompt-api
	Capability string `yaml:"capability" json:"capability"`

	// MaxTopK caps the top-k any session may request. Zero keeps the
	// model's own maximum.
	MaxTopK int `yaml:"max_top_k" json:"max_top_k"`

	// ModelPathOverride points at a model file to use instead of the
	// installed one. Only checked and logged by availability queries.
	ModelPathOverride string `yaml:"model_path_override" json:"model_path_override"`

	// DefaultTopK, ModelMaxTopK, and DefaultTemperature describe the
	// model's sampling defaults and limits.
	// Default: 3, 8, 0.8
	DefaultTopK        int     `yaml:"default_top_k" json:"default_top_k"`
	ModelMaxTopK       int     `yaml:"model_max_top_k" json:"model_max_top_k"`
	DefaultTemperature float64 `yaml:"default_temperature" json:"default_temperature"`

	// MaxTokens is the context window size; MaxOutputTokens bounds one
	// response.
	// Default: 4096, 1024
	MaxTokens       int `yaml:"max_tokens" json:"max_tokens"`
	MaxOutputTokens int `yaml:"max_output_tokens" json:"max_output_tokens"`
}

// RemoteConfig configures the hosted model API backend.
type RemoteConfig struct {
	// Provider is anthropic or openai.
	Provider string `yaml:"provider" json:"provider"`

	// BaseURL is the API root, for example https://api.anthropic.com.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never appears in the config file.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`

	// Model is the model name sent with every request.
	Model string `yaml:"model" json:"model"`
}

// OnDeviceConfig configures the locally installed model backend.
type OnDeviceConfig struct {
	// ModelDir holds the installed model.
	// Default: ${LMSESSION_ROOT}/models
	ModelDir string `yaml:"model_dir" json:"model_dir"`

	// ModelFile is the model's file name inside ModelDir.
	ModelFile string `yaml:"model_file" json:"model_file"`

	// DownloadURL is where the model is installed from.
	DownloadURL string `yaml:"download_url" json:"download_url"`

	// Digest is the hex BLAKE3 digest of the installed model.
	Digest string `yaml:"digest" json:"digest"`

	// ServerURL is the local OpenAI-compatible runtime.
	// Default: http://127.0.0.1:8080
	ServerURL string `yaml:"server_url" json:"server_url"`

	// Model is the model name the runtime expects, if any.
	Model string `yaml:"model" json:"model"`

	// RequiredDiskBytes is the free space the model directory needs.
	RequiredDiskBytes uint64 `yaml:"required_disk_bytes" json:"required_disk_bytes"`

	// PromptFormat is text or structured.
	// Default: structured
	PromptFormat string `yaml:"prompt_format" json:"prompt_format"`

	// StreamingMode is chunk or full.
	// Default: chunk
	StreamingMode string `yaml:"streaming_mode" json:"streaming_mode"`

	// CrashLimit and TimeoutLimit within FailureWindow make the model
	// ineligible.
	// Default: 3, 3, 1h
	CrashLimit    int    `yaml:"crash_limit" json:"crash_limit"`
	TimeoutLimit  int    `yaml:"timeout_limit" json:"timeout_limit"`
	FailureWindow string `yaml:"failure_window" json:"failure_window"`

	// EnabledCapabilities lists the capabilities the model serves.
	// Default: [prompt-api]
	EnabledCapabilities []string `yaml:"enabled_capabilities" json:"enabled_capabilities"`
}

// SnapshotsConfig configures session snapshot storage.
type SnapshotsConfig struct {
	// Driver is memory, file, or redis. Empty disables snapshots.
	Driver string `yaml:"driver" json:"driver"`

	// Dir is the file driver's directory.
	// Default: ${LMSESSION_ROOT}/snapshots
	Dir string `yaml:"dir" json:"dir"`

	// RedisAddr and RedisPrefix configure the redis driver.
	RedisAddr   string `yaml:"redis_addr" json:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix" json:"redis_prefix"`

	// TTL is how long the redis driver keeps an unread snapshot.
	// Default: 168h
	TTL string `yaml:"ttl" json:"ttl"`

	// Compression is none, lz4, or zstd.
	// Default: zstd
	Compression string `yaml:"compression" json:"compression"`

	// IdentityFile is an age identity file. When set, snapshots are
	// encrypted to it.
	IdentityFile string `yaml:"identity_file" json:"identity_file"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment: Development,
		Root:        filepath.Join(homeDir, ".cache", "lmsession"),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Model: ModelConfig{
			Capability:         "prompt-api",
			DefaultTopK:        3,
			ModelMaxTopK:       8,
			DefaultTemperature: 0.8,
			MaxTokens:          4096,
			MaxOutputTokens:    1024,
		},
		Backend: BackendOnDevice,
		OnDevice: OnDeviceConfig{
			ModelDir:            "${LMSESSION_ROOT}/models",
			ServerURL:           "http://127.0.0.1:8080",
			PromptFormat:        "structured",
			StreamingMode:       "chunk",
			CrashLimit:          3,
			TimeoutLimit:        3,
			FailureWindow:       "1h",
			EnabledCapabilities: []string{"prompt-api"},
		},
		Snapshots: SnapshotsConfig{
			Dir:         "${LMSESSION_ROOT}/snapshots",
			TTL:         "168h",
			Compression: "zstd",
		},
	}
}

// Load loads configuration from the LMSESSION_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if LMSESSION_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your lmsession config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Files ending
// in .json or .jsonc are JSON with comments; anything else is YAML.
//
// The config file is the single source of truth. Environment variables do not
// override config values. The only expansion performed is ${HOME},
// ${LMSESSION_ROOT}, and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		// An empty file leaves the defaults.
		if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: machine-readable logs.
		if overrides == nil {
			overrides = &ConfigOverrides{Logging: &LoggingConfig{Format: "json"}}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
	}

	if overrides.Snapshots != nil {
		if overrides.Snapshots.Driver != "" {
			c.Snapshots.Driver = overrides.Snapshots.Driver
		}
		if overrides.Snapshots.Dir != "" {
			c.Snapshots.Dir = overrides.Snapshots.Dir
		}
		if overrides.Snapshots.RedisAddr != "" {
			c.Snapshots.RedisAddr = overrides.Snapshots.RedisAddr
		}
		if overrides.Snapshots.RedisPrefix != "" {
			c.Snapshots.RedisPrefix = overrides.Snapshots.RedisPrefix
		}
		if overrides.Snapshots.TTL != "" {
			c.Snapshots.TTL = overrides.Snapshots.TTL
		}
		if overrides.Snapshots.Compression != "" {
			c.Snapshots.Compression = overrides.Snapshots.Compression
		}
		if overrides.Snapshots.IdentityFile != "" {
			c.Snapshots.IdentityFile = overrides.Snapshots.IdentityFile
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"LMSESSION_ROOT": c.Root,
		"HOME":           os.Getenv("HOME"),
	}

	c.Root = expandVars(c.Root, vars)
	vars["LMSESSION_ROOT"] = c.Root // Update for dependent paths.

	c.Model.ModelPathOverride = expandVars(c.Model.ModelPathOverride, vars)
	c.OnDevice.ModelDir = expandVars(c.OnDevice.ModelDir, vars)
	c.Snapshots.Dir = expandVars(c.Snapshots.Dir, vars)
	c.Snapshots.IdentityFile = expandVars(c.Snapshots.IdentityFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var capabilities = []string{"prompt-api", "summarize", "write", "rewrite"}

// Validate checks the configuration for errors. Every problem is
// reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if formats := []string{"auto", "text", "json"}; !slices.Contains(formats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", formats))
	}

	if !slices.Contains(capabilities, c.Model.Capability) {
		errs = append(errs, fmt.Errorf("model.capability must be one of: %v", capabilities))
	}
	if c.Model.MaxTopK < 0 {
		errs = append(errs, fmt.Errorf("model.max_top_k must not be negative"))
	}
	if c.Model.DefaultTopK < 1 || c.Model.ModelMaxTopK < c.Model.DefaultTopK {
		errs = append(errs, fmt.Errorf("model.default_top_k must be between 1 and model.model_max_top_k"))
	}
	if c.Model.DefaultTemperature < 0 {
		errs = append(errs, fmt.Errorf("model.default_temperature must not be negative"))
	}
	if c.Model.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("model.max_tokens must be positive"))
	}
	if c.Model.MaxOutputTokens <= 0 {
		errs = append(errs, fmt.Errorf("model.max_output_tokens must be positive"))
	}

	switch c.Backend {
	case BackendRemote:
		errs = append(errs, c.Remote.validate()...)
	case BackendOnDevice:
		errs = append(errs, c.OnDevice.validate()...)
	default:
		errs = append(errs, fmt.Errorf("backend must be one of: %v", []Backend{BackendRemote, BackendOnDevice}))
	}

	errs = append(errs, c.Snapshots.validate()...)

	return errors.Join(errs...)
}

func (r RemoteConfig) validate() []error {
	var errs []error
	if providers := []string{"anthropic", "openai"}; !slices.Contains(providers, r.Provider) {
		errs = append(errs, fmt.Errorf("remote.provider must be one of: %v", providers))
	}
	if r.BaseURL == "" {
		errs = append(errs, fmt.Errorf("remote.base_url is required"))
	}
	if r.Model == "" {
		errs = append(errs, fmt.Errorf("remote.model is required"))
	}
	return errs
}

func (o OnDeviceConfig) validate() []error {
	var errs []error
	if o.ModelDir == "" {
		errs = append(errs, fmt.Errorf("ondevice.model_dir is required"))
	}
	if o.ModelFile == "" || filepath.Base(o.ModelFile) != o.ModelFile {
		errs = append(errs, fmt.Errorf("ondevice.model_file must be a bare file name"))
	}
	if o.ServerURL == "" {
		errs = append(errs, fmt.Errorf("ondevice.server_url is required"))
	}
	if formats := []string{"text", "structured"}; !slices.Contains(formats, o.PromptFormat) {
		errs = append(errs, fmt.Errorf("ondevice.prompt_format must be one of: %v", formats))
	}
	if modes := []string{"chunk", "full"}; !slices.Contains(modes, o.StreamingMode) {
		errs = append(errs, fmt.Errorf("ondevice.streaming_mode must be one of: %v", modes))
	}
	if o.CrashLimit < 0 || o.TimeoutLimit < 0 {
		errs = append(errs, fmt.Errorf("ondevice.crash_limit and ondevice.timeout_limit must not be negative"))
	}
	if _, err := ParseDuration("ondevice.failure_window", o.FailureWindow); err != nil {
		errs = append(errs, err)
	}
	if len(o.EnabledCapabilities) == 0 {
		errs = append(errs, fmt.Errorf("ondevice.enabled_capabilities must not be empty"))
	}
	for _, capability := range o.EnabledCapabilities {
		if !slices.Contains(capabilities, capability) {
			errs = append(errs, fmt.Errorf("ondevice.enabled_capabilities: unknown capability %q", capability))
		}
	}
	return errs
}

func (s SnapshotsConfig) validate() []error {
	var errs []error
	switch s.Driver {
	case "", "memory":
	case "file":
		if s.Dir == "" {
			errs = append(errs, fmt.Errorf("snapshots.dir is required for the file driver"))
		}
	case "redis":
		if s.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("snapshots.redis_addr is required for the redis driver"))
		}
		if _, err := ParseDuration("snapshots.ttl", s.TTL); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("snapshots.driver must be one of: %v", []string{"memory", "file", "redis"}))
	}
	if compressions := []string{"none", "lz4", "zstd"}; !slices.Contains(compressions, s.Compression) {
		errs = append(errs, fmt.Errorf("snapshots.compression must be one of: %v", compressions))
	}
	return errs
}

// SlogLevel parses Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// APIKey returns the key from the variable APIKeyEnv names. An empty
// APIKeyEnv means the endpoint takes no key.
func (r RemoteConfig) APIKey() (string, error) {
	if r.APIKeyEnv == "" {
		return "", nil
	}
	key := os.Getenv(r.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("remote.api_key_env names %s, which is not set", r.APIKeyEnv)
	}
	return key, nil
}

// ParseDuration parses a positive duration field, naming field in the
// error.
func ParseDuration(field, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return duration, nil
}

// EnsurePaths creates the configured local directories if they don't
// exist.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Root}
	if c.Backend == BackendOnDevice {
		paths = append(paths, c.OnDevice.ModelDir)
	}
	if c.Snapshots.Driver == "file" {
		paths = append(paths, c.Snapshots.Dir)
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
