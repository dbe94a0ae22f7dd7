// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/languagemodel/cmd/lmsession/cli"
	"github.com/bureau-foundation/languagemodel/lib/clock"
	"github.com/bureau-foundation/languagemodel/lib/config"
	"github.com/bureau-foundation/languagemodel/lib/executor"
	"github.com/bureau-foundation/languagemodel/lib/executor/ondevice"
	"github.com/bureau-foundation/languagemodel/lib/executor/remote"
	"github.com/bureau-foundation/languagemodel/lib/languagemodel"
	"github.com/bureau-foundation/languagemodel/lib/llm"
	"github.com/bureau-foundation/languagemodel/lib/snapshot"
)

// globalOptions are the flags every command that touches a model or a
// snapshot store accepts.
type globalOptions struct {
	ConfigPath string
	Verbose    bool

	// StreamingMode overrides ondevice.streaming_mode when set.
	StreamingMode string
}

func (options *globalOptions) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&options.ConfigPath, "config", "c", "", "config file (default $"+config.EnvironmentVariable+")")
	flagSet.BoolVarP(&options.Verbose, "verbose", "v", false, "log at debug level")
}

// installer is implemented by backends that can download their model.
type installer interface {
	Install(ctx context.Context) error
}

// environment is everything a command needs to talk to the model.
type environment struct {
	Config    *config.Config
	Logger    *slog.Logger
	Backend   executor.Backend
	Snapshots snapshot.Store
	Manager   *languagemodel.Manager

	// Installer is nil when the backend has no model to install.
	Installer installer
}

// Close shuts the manager down and releases the snapshot store.
func (env *environment) Close() error {
	err := env.Manager.Close()
	if env.Snapshots != nil {
		err = errors.Join(err, env.Snapshots.Close())
	}
	return err
}

// openEnvironment loads and validates the configuration, then builds
// the backend, snapshot store, and session manager it describes.
func openEnvironment(_ context.Context, options globalOptions) (*environment, error) {
	cfg, err := loadConfig(options)
	if err != nil {
		return nil, err
	}

	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return nil, err
	}
	if options.Verbose {
		level = slog.LevelDebug
	}
	logger := cli.NewLogger(level, cfg.Logging.Format).With("backend", string(cfg.Backend))

	env := &environment{Config: cfg, Logger: logger}
	switch cfg.Backend {
	case config.BackendRemote:
		env.Backend, err = newRemoteBackend(cfg, logger)
	case config.BackendOnDevice:
		var backend *ondevice.Backend
		backend, err = newOnDeviceBackend(cfg, logger)
		if err == nil {
			env.Backend, env.Installer = backend, backend
		}
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if env.Snapshots, err = openSnapshots(cfg.Snapshots); err != nil {
		return nil, err
	}

	capability, err := executor.ParseCapability(cfg.Model.Capability)
	if err != nil {
		return nil, fmt.Errorf("model.capability: %w", err)
	}
	env.Manager, err = languagemodel.NewManager(languagemodel.Config{
		Backend:           env.Backend,
		Logger:            logger,
		Clock:             clock.Real(),
		Capability:        capability,
		MaxTopK:           cfg.Model.MaxTopK,
		ModelPathOverride: cfg.Model.ModelPathOverride,
		Snapshots:         env.Snapshots,
	})
	if err != nil {
		if env.Snapshots != nil {
			env.Snapshots.Close()
		}
		return nil, err
	}
	return env, nil
}

func loadConfig(options globalOptions) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if options.ConfigPath != "" {
		cfg, err = config.LoadFile(options.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if options.StreamingMode != "" {
		cfg.OnDevice.StreamingMode = options.StreamingMode
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func tokenLimits(model config.ModelConfig) executor.TokenLimits {
	return executor.TokenLimits{
		MaxTokens:        model.MaxTokens,
		MaxContextTokens: model.MaxTokens,
		MaxExecuteTokens: model.MaxTokens,
		MaxOutputTokens:  model.MaxOutputTokens,
	}
}

func modelInfo(model config.ModelConfig) executor.ModelInfo {
	return executor.ModelInfo{
		DefaultTopK:        model.DefaultTopK,
		MaxTopK:            model.ModelMaxTopK,
		DefaultTemperature: model.DefaultTemperature,
	}
}

func newRemoteBackend(cfg *config.Config, logger *slog.Logger) (*remote.Backend, error) {
	apiKey, err := cfg.Remote.APIKey()
	if err != nil {
		return nil, err
	}
	endpoint := llm.Endpoint{BaseURL: cfg.Remote.BaseURL, APIKey: apiKey}

	var provider llm.Provider
	switch cfg.Remote.Provider {
	case "anthropic":
		provider = llm.NewAnthropic(nil, endpoint)
	case "openai":
		provider = llm.NewOpenAI(nil, endpoint)
	default:
		return nil, fmt.Errorf("remote.provider: unknown provider %q", cfg.Remote.Provider)
	}

	capability, err := executor.ParseCapability(cfg.Model.Capability)
	if err != nil {
		return nil, fmt.Errorf("model.capability: %w", err)
	}
	return remote.New(remote.Config{
		Provider:     provider,
		Model:        cfg.Remote.Model,
		Capabilities: []executor.Capability{capability},
		Limits:       tokenLimits(cfg.Model),
		Info:         modelInfo(cfg.Model),
		Logger:       logger,
	})
}

func newOnDeviceBackend(cfg *config.Config, logger *slog.Logger) (*ondevice.Backend, error) {
	settings := cfg.OnDevice
	format, err := ondevice.ParsePromptFormat(settings.PromptFormat)
	if err != nil {
		return nil, fmt.Errorf("ondevice.prompt_format: %w", err)
	}
	mode, err := executor.ParseStreamingMode(settings.StreamingMode)
	if err != nil {
		return nil, fmt.Errorf("ondevice.streaming_mode: %w", err)
	}
	window, err := config.ParseDuration("ondevice.failure_window", settings.FailureWindow)
	if err != nil {
		return nil, err
	}
	capabilities := make([]executor.Capability, 0, len(settings.EnabledCapabilities))
	for _, name := range settings.EnabledCapabilities {
		capability, err := executor.ParseCapability(name)
		if err != nil {
			return nil, fmt.Errorf("ondevice.enabled_capabilities: %w", err)
		}
		capabilities = append(capabilities, capability)
	}

	return ondevice.New(ondevice.Config{
		ModelDir:          settings.ModelDir,
		ModelFile:         settings.ModelFile,
		DownloadURL:       settings.DownloadURL,
		Digest:            settings.Digest,
		ServerURL:         settings.ServerURL,
		Model:             settings.Model,
		RequiredDiskBytes: settings.RequiredDiskBytes,
		PromptFormat:      format,
		StreamingMode:     mode,
		CrashLimit:        settings.CrashLimit,
		TimeoutLimit:      settings.TimeoutLimit,
		FailureWindow:     window,
		Capabilities:      capabilities,
		Limits:            tokenLimits(cfg.Model),
		Info:              modelInfo(cfg.Model),
		Clock:             clock.Real(),
		Logger:            logger,
	})
}

// openSnapshots opens the configured store, or returns nil when
// snapshots are disabled.
func openSnapshots(settings config.SnapshotsConfig) (snapshot.Store, error) {
	if settings.Driver == "" {
		return nil, nil
	}
	codec, err := snapshotCodec(settings)
	if err != nil {
		return nil, err
	}
	options := snapshot.Options{
		Driver:      settings.Driver,
		Codec:       codec,
		Dir:         settings.Dir,
		RedisAddr:   settings.RedisAddr,
		RedisPrefix: settings.RedisPrefix,
	}
	if settings.Driver == snapshot.DriverRedis {
		if options.TTL, err = config.ParseDuration("snapshots.ttl", settings.TTL); err != nil {
			return nil, err
		}
	}
	store, err := snapshot.Open(options)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}
	return store, nil
}

func snapshotCodec(settings config.SnapshotsConfig) (snapshot.Codec, error) {
	compression, err := snapshot.ParseCompressionTag(settings.Compression)
	if err != nil {
		return snapshot.Codec{}, fmt.Errorf("snapshots.compression: %w", err)
	}
	codec := snapshot.Codec{Compression: compression}
	if settings.IdentityFile == "" {
		return codec, nil
	}
	if codec.Identities, err = snapshot.LoadIdentities(settings.IdentityFile); err != nil {
		return snapshot.Codec{}, fmt.Errorf("snapshots.identity_file: %w", err)
	}
	if codec.Recipients, err = snapshot.RecipientsFor(codec.Identities); err != nil {
		return snapshot.Codec{}, fmt.Errorf("snapshots.identity_file: %w", err)
	}
	return codec, nil
}
