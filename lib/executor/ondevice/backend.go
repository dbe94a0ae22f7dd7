// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ondevice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/languagemodel/lib/clock"
	"github.com/bureau-foundation/languagemodel/lib/contextwindow"
	"github.com/bureau-foundation/languagemodel/lib/executor"
	"github.com/bureau-foundation/languagemodel/lib/llm"
)

// PromptFormat selects how a payload is sent to the local runtime.
type PromptFormat string

const (
	// PromptFormatText sends the rendered transcript as one user
	// message ending in "Model: ".
	PromptFormatText PromptFormat = "text"

	// PromptFormatStructured sends role messages.
	PromptFormatStructured PromptFormat = "structured"
)

// ParsePromptFormat validates a prompt format name.
func ParsePromptFormat(name string) (PromptFormat, error) {
	switch format := PromptFormat(name); format {
	case PromptFormatText, PromptFormatStructured:
		return format, nil
	}
	return "", fmt.Errorf("unknown prompt format %q", name)
}

// Config configures a [Backend].
type Config struct {
	// ModelDir holds the installed model. Created if absent.
	ModelDir string

	// ModelFile is the model's file name inside ModelDir.
	ModelFile string

	// DownloadURL is where [Backend.Install] fetches the model. Empty
	// means the model cannot be installed by this process.
	DownloadURL string

	// Digest is the hex BLAKE3 digest of the installed (decompressed)
	// model. Empty skips validation.
	Digest string

	// ServerURL is the local runtime's base URL.
	ServerURL string

	// Model is the model name sent to the runtime, if it needs one.
	Model string

	// RequiredDiskBytes is the free space the model directory's
	// filesystem must have. Zero skips the check.
	RequiredDiskBytes uint64

	PromptFormat  PromptFormat
	StreamingMode executor.StreamingMode

	// CrashLimit and TimeoutLimit are the failure counts within
	// FailureWindow that make the backend ineligible. Zero disables
	// the limit.
	CrashLimit    int
	TimeoutLimit  int
	FailureWindow time.Duration

	// Capabilities are the enabled capabilities. Empty means prompt-api
	// only.
	Capabilities []executor.Capability

	Limits executor.TokenLimits
	Info   executor.ModelInfo

	// HTTPClient is used for downloads and the runtime. Nil uses
	// [http.DefaultClient].
	HTTPClient *http.Client

	// Clock and Logger are required.
	Clock  clock.Clock
	Logger *slog.Logger
}

// Backend serves sessions from a locally installed model.
type Backend struct {
	config     Config
	modelPath  string
	httpClient *http.Client
	provider   llm.Provider
	estimator  *contextwindow.CharEstimator
	observers  executor.ObserverSet
	logger     *slog.Logger

	// diskFree reports the free bytes of the filesystem holding a
	// path. Replaced in tests.
	diskFree func(path string) (uint64, error)

	mu         sync.Mutex
	crashes    failureLog
	timeouts   failureLog
	validation validationState
	installing bool
}

// New returns a backend for config.
func New(config Config) (*Backend, error) {
	var problems []error
	if config.ModelDir == "" {
		problems = append(problems, errors.New("ModelDir is required"))
	}
	if config.ModelFile == "" || filepath.Base(config.ModelFile) != config.ModelFile {
		problems = append(problems, fmt.Errorf("ModelFile must be a bare file name, got %q", config.ModelFile))
	}
	if config.ServerURL == "" {
		problems = append(problems, errors.New("ServerURL is required"))
	}
	if config.Limits.MaxTokens <= 0 {
		problems = append(problems, fmt.Errorf("MaxTokens must be positive, got %d", config.Limits.MaxTokens))
	}
	if (config.CrashLimit > 0 || config.TimeoutLimit > 0) && config.FailureWindow <= 0 {
		problems = append(problems, errors.New("FailureWindow is required when a failure limit is set"))
	}
	if config.Clock == nil {
		problems = append(problems, errors.New("Clock is required"))
	}
	if config.Logger == nil {
		problems = append(problems, errors.New("Logger is required"))
	}
	if err := errors.Join(problems...); err != nil {
		return nil, fmt.Errorf("ondevice: %w", err)
	}

	if config.PromptFormat == "" {
		config.PromptFormat = PromptFormatStructured
	}
	if _, err := ParsePromptFormat(string(config.PromptFormat)); err != nil {
		return nil, fmt.Errorf("ondevice: %w", err)
	}
	if len(config.Capabilities) == 0 {
		config.Capabilities = []executor.Capability{executor.CapabilityPrompt}
	}
	if err := os.MkdirAll(config.ModelDir, 0o755); err != nil {
		return nil, fmt.Errorf("ondevice: creating model directory: %w", err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Backend{
		config:     config,
		modelPath:  filepath.Join(config.ModelDir, config.ModelFile),
		httpClient: httpClient,
		provider:   llm.NewOpenAI(httpClient, llm.Endpoint{BaseURL: config.ServerURL}),
		estimator:  contextwindow.NewCharEstimator(),
		logger:     config.Logger,
		diskFree:   freeDiskBytes,
	}, nil
}

// ModelPath returns where the model is installed.
func (backend *Backend) ModelPath() string { return backend.modelPath }

func (backend *Backend) Eligibility(_ context.Context, capability executor.Capability) (executor.Eligibility, error) {
	if !slices.Contains(backend.config.Capabilities, capability) {
		return executor.EligibilityFeatureNotEnabled, nil
	}

	now := backend.config.Clock.Now()
	backend.mu.Lock()
	tooManyCrashes := backend.crashes.reached(now, backend.config.FailureWindow, backend.config.CrashLimit)
	tooManyTimeouts := backend.timeouts.reached(now, backend.config.FailureWindow, backend.config.TimeoutLimit)
	backend.mu.Unlock()
	if tooManyCrashes {
		return executor.EligibilityTooManyRecentCrashes, nil
	}
	if tooManyTimeouts {
		return executor.EligibilityTooManyRecentTimeouts, nil
	}

	info, err := os.Stat(backend.modelPath)
	if errors.Is(err, os.ErrNotExist) {
		if backend.config.DownloadURL != "" {
			return executor.EligibilityModelToBeInstalled, nil
		}
		return executor.EligibilityModelNotEligible, nil
	}
	if err != nil {
		return executor.EligibilityUnknown, fmt.Errorf("ondevice: checking model: %w", err)
	}

	switch outcome, err := backend.validate(info); {
	case err != nil:
		return executor.EligibilityUnknown, err
	case outcome == validationPending:
		return executor.EligibilityValidationPending, nil
	case outcome == validationFailed:
		return executor.EligibilityValidationFailed, nil
	}

	if backend.config.RequiredDiskBytes > 0 {
		free, err := backend.diskFree(backend.config.ModelDir)
		if err != nil {
			return executor.EligibilityUnknown, fmt.Errorf("ondevice: checking free disk space: %w", err)
		}
		if free < backend.config.RequiredDiskBytes {
			return executor.EligibilityInsufficientDiskSpace, nil
		}
	}
	return executor.EligibilitySuccess, nil
}

func (backend *Backend) StartSession(ctx context.Context, capability executor.Capability, config executor.SessionConfig) (executor.Session, error) {
	eligibility, err := backend.Eligibility(ctx, capability)
	if err != nil {
		return nil, err
	}
	if eligibility != executor.EligibilitySuccess {
		return nil, fmt.Errorf("%w: %s is %s", executor.ErrNoSession, capability, eligibility)
	}
	return &session{
		backend:  backend,
		sampling: config.Sampling,
		logger:   backend.logger.With("capability", string(capability)),
	}, nil
}

func (backend *Backend) ModelInfo(executor.Capability) executor.ModelInfo { return backend.config.Info }

func (backend *Backend) Observe(observer executor.Observer) func() {
	return backend.observers.Add(observer)
}

func (backend *Backend) notifyAllCapabilities() {
	for _, capability := range backend.config.Capabilities {
		backend.observers.NotifyAvailabilityChanged(capability)
	}
}

// recordFailure classifies a failed execution. Failures caused by the
// caller cancelling are not the runtime's fault and are not counted.
func (backend *Backend) recordFailure(ctx context.Context, err error) {
	now := backend.config.Clock.Now()
	window := backend.config.FailureWindow

	var reachedLimit bool
	backend.mu.Lock()
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		backend.timeouts.add(now)
		reachedLimit = backend.timeouts.reached(now, window, backend.config.TimeoutLimit)
		backend.logger.Warn("model execution timed out", "error", err)
	case ctx.Err() != nil:
		backend.mu.Unlock()
		return
	default:
		backend.crashes.add(now)
		reachedLimit = backend.crashes.reached(now, window, backend.config.CrashLimit)
		backend.logger.Warn("model execution failed", "error", err)
	}
	backend.mu.Unlock()

	if reachedLimit {
		backend.notifyAllCapabilities()
	}
}

// failureLog holds the times of recent failures.
type failureLog struct {
	times []time.Time
}

func (log *failureLog) add(at time.Time) { log.times = append(log.times, at) }

// reached prunes failures older than window and reports whether limit
// remain. A zero limit is never reached.
func (log *failureLog) reached(now time.Time, window time.Duration, limit int) bool {
	cutoff := now.Add(-window)
	log.times = slices.DeleteFunc(log.times, func(at time.Time) bool { return !at.After(cutoff) })
	return limit > 0 && len(log.times) >= limit
}
