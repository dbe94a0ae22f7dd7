// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/bureau-foundation/languagemodel/lib/contextwindow"
	"github.com/bureau-foundation/languagemodel/lib/executor"
	"github.com/bureau-foundation/languagemodel/lib/llm"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("remote: session closed")

// Config configures a [Backend].
type Config struct {
	// Provider sends requests. Required.
	Provider llm.Provider

	// Model is the model name sent with every request. An empty model
	// makes every capability ineligible.
	Model string

	// Capabilities are the capabilities this backend serves. Empty
	// means prompt-api only.
	Capabilities []executor.Capability

	Limits executor.TokenLimits
	Info   executor.ModelInfo

	// Logger is required.
	Logger *slog.Logger
}

// Backend serves sessions from a hosted model API.
type Backend struct {
	provider     llm.Provider
	model        string
	capabilities []executor.Capability
	limits       executor.TokenLimits
	info         executor.ModelInfo
	logger       *slog.Logger
	estimator    *contextwindow.CharEstimator
	observers    executor.ObserverSet
}

// New returns a backend for config.
func New(config Config) (*Backend, error) {
	if config.Provider == nil {
		return nil, errors.New("remote: Provider is required")
	}
	if config.Logger == nil {
		return nil, errors.New("remote: Logger is required")
	}
	if config.Limits.MaxTokens <= 0 {
		return nil, fmt.Errorf("remote: MaxTokens must be positive, got %d", config.Limits.MaxTokens)
	}
	capabilities := config.Capabilities
	if len(capabilities) == 0 {
		capabilities = []executor.Capability{executor.CapabilityPrompt}
	}
	return &Backend{
		provider:     config.Provider,
		model:        config.Model,
		capabilities: slices.Clone(capabilities),
		limits:       config.Limits,
		info:         config.Info,
		logger:       config.Logger,
		estimator:    contextwindow.NewCharEstimator(),
	}, nil
}

func (backend *Backend) Eligibility(_ context.Context, capability executor.Capability) (executor.Eligibility, error) {
	if !slices.Contains(backend.capabilities, capability) {
		return executor.EligibilityFeatureNotEnabled, nil
	}
	if backend.model == "" {
		return executor.EligibilityConfigNotAvailableForFeature, nil
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
		logger:   backend.logger.With("capability", string(capability), "model", backend.model),
	}, nil
}

func (backend *Backend) ModelInfo(executor.Capability) executor.ModelInfo { return backend.info }

// Observe registers observer. A remote model never downloads, so the
// only events are those of callers of [Backend.NotifyAvailabilityChanged].
func (backend *Backend) Observe(observer executor.Observer) func() {
	return backend.observers.Add(observer)
}

// NotifyAvailabilityChanged tells observers that capability's
// eligibility may have changed, for example after the API key was
// rotated.
func (backend *Backend) NotifyAvailabilityChanged(capability executor.Capability) {
	backend.observers.NotifyAvailabilityChanged(capability)
}

// CharactersPerToken returns the estimator's calibrated ratio.
func (backend *Backend) CharactersPerToken() float64 { return backend.estimator.Ratio() }

type session struct {
	backend  *Backend
	sampling executor.SamplingParams
	logger   *slog.Logger

	mu      sync.Mutex
	context contextwindow.Payload
	closed  bool
}

func (session *session) TokenLimits() executor.TokenLimits { return session.backend.limits }
func (session *session) SamplingParams() executor.SamplingParams { return session.sampling }
func (session *session) StreamingMode() executor.StreamingMode { return executor.ChunkByChunk }

func (session *session) SizeInTokens(_ context.Context, text string) (int, error) {
	return session.backend.estimator.EstimateText(text), nil
}

func (session *session) ContextSizeInTokens(_ context.Context, payload contextwindow.Payload) (int, error) {
	return session.backend.estimator.EstimateTurns(payload.Turns()), nil
}

// AddContext keeps payload for the next execution's log line; the
// hosted APIs are stateless, so every execution carries its full
// payload.
func (session *session) AddContext(payload contextwindow.Payload) {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.context = payload
}

func (session *session) Execute(ctx context.Context, payload contextwindow.Payload) (executor.Stream, error) {
	session.mu.Lock()
	if session.closed {
		session.mu.Unlock()
		return nil, ErrSessionClosed
	}
	contextTurns := len(session.context.Turns())
	session.mu.Unlock()

	turns := payload.Turns()
	request := executor.ProviderRequest(session.backend.model, turns, session.sampling, session.backend.limits.MaxOutputTokens)
	session.logger.Debug("executing prompt",
		"turns", len(turns),
		"context_turns", contextTurns,
		"messages", len(request.Messages),
	)

	events, err := session.backend.provider.Stream(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("remote: starting stream: %w", err)
	}
	return executor.ProviderStream(events, executor.ChunkByChunk, func(response llm.Response) {
		session.backend.estimator.RecordUsage(turns, response.Usage.InputTokens)
		session.logger.Debug("prompt executed",
			"input_tokens", response.Usage.InputTokens,
			"output_tokens", response.Usage.OutputTokens,
			"stop_reason", string(response.StopReason),
		)
	}), nil
}

func (session *session) Close() error {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.closed = true
	return nil
}
