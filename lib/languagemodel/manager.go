// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package languagemodel

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/languagemodel/lib/clock"
	"github.com/bureau-foundation/languagemodel/lib/contextwindow"
	"github.com/bureau-foundation/languagemodel/lib/executor"
	"github.com/bureau-foundation/languagemodel/lib/snapshot"
)

// Config configures a [Manager].
type Config struct {
	// Backend serves sessions. A nil Backend makes every capability
	// unavailable with AvailabilityNoServiceNotRunning.
	Backend executor.Backend

	Logger *slog.Logger
	Clock  clock.Clock

	// Capability is used by CreateSession when CreateOptions names
	// none.
	Capability executor.Capability

	// MaxTopK caps top_k below the model's own maximum. Zero means no
	// additional cap.
	MaxTopK int

	// ModelPathOverride, when set, is checked by CanCreateSession and
	// a warning is logged if it does not exist. It never changes the
	// reported availability.
	ModelPathOverride string

	// Snapshots enables SaveSession and RestoreSession.
	Snapshots snapshot.Store
}

// CreateOptions describe a new session.
type CreateOptions struct {
	Capability executor.Capability

	// Sampling overrides the model defaults. TopK is capped at the
	// manager's maximum.
	Sampling *executor.SamplingParams

	// SystemPrompt becomes the first initial turn.
	SystemPrompt string

	// InitialPrompts follow the system prompt. Token counts are
	// ignored and recomputed by the executor.
	InitialPrompts []contextwindow.Turn
}

// PendingCreation is a creation waiting for its model to download.
type PendingCreation struct {
	ID         string
	Capability executor.Capability
	Since      time.Time
}

// Manager creates sessions and keeps the registry of live sessions and
// pending creations.
type Manager struct {
	backend           executor.Backend
	logger            *slog.Logger
	clock             clock.Clock
	capability        executor.Capability
	maxTopK           int
	modelPathOverride string
	snapshots         snapshot.Store

	progress       executor.ObserverSet
	removeObserver func()

	mu       sync.Mutex
	sessions map[string]*Session
	pending  map[string]PendingCreation

	// availabilityChanged is closed and replaced whenever the backend
	// reports an availability change.
	availabilityChanged chan struct{}

	closed  bool
	closing chan struct{}

	// pendingNotify, when set, receives every registered pending
	// creation.
	pendingNotify chan<- PendingCreation
}

// NewManager returns a manager for config.Backend. Logger and Clock
// are required.
func NewManager(config Config) (*Manager, error) {
	if config.Logger == nil {
		return nil, errors.New("languagemodel: Logger is required")
	}
	if config.Clock == nil {
		return nil, errors.New("languagemodel: Clock is required")
	}
	if config.MaxTopK < 0 {
		return nil, fmt.Errorf("languagemodel: MaxTopK must not be negative, got %d", config.MaxTopK)
	}
	capability := config.Capability
	if capability == "" {
		capability = executor.CapabilityPrompt
	}

	manager := &Manager{
		backend:             config.Backend,
		logger:              config.Logger,
		clock:               config.Clock,
		capability:          capability,
		maxTopK:             config.MaxTopK,
		modelPathOverride:   config.ModelPathOverride,
		snapshots:           config.Snapshots,
		sessions:            make(map[string]*Session),
		pending:             make(map[string]PendingCreation),
		availabilityChanged: make(chan struct{}),
		closing:             make(chan struct{}),
	}
	if manager.backend != nil {
		manager.removeObserver = manager.backend.Observe(executor.ObserverFuncs{
			OnAvailabilityChanged: manager.onAvailabilityChanged,
			OnDownloadProgress:    manager.progress.NotifyDownloadProgress,
		})
	}
	return manager, nil
}

func (manager *Manager) onAvailabilityChanged(capability executor.Capability) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	close(manager.availabilityChanged)
	manager.availabilityChanged = make(chan struct{})
	manager.logger.Debug("model availability changed", "capability", string(capability))
}

// CanCreateSession reports whether a session for capability could be
// created now. It has no effect on the manager.
func (manager *Manager) CanCreateSession(ctx context.Context, capability executor.Capability) Availability {
	manager.checkModelPathOverride()
	return manager.availability(ctx, capability)
}

func (manager *Manager) checkModelPathOverride() {
	if manager.modelPathOverride == "" {
		return
	}
	if _, err := os.Stat(manager.modelPathOverride); err != nil {
		manager.logger.Warn("model path override is not usable",
			"path", manager.modelPathOverride, "error", err)
	}
}

func (manager *Manager) availability(ctx context.Context, capability executor.Capability) Availability {
	if manager.backend == nil {
		return AvailabilityNoServiceNotRunning
	}
	eligibility, err := manager.backend.Eligibility(ctx, capability)
	if err != nil {
		manager.logger.Warn("checking eligibility", "capability", string(capability), "error", err)
		return AvailabilityNoUnknown
	}
	return AvailabilityFromEligibility(eligibility)
}

// ModelInfo returns the sampling defaults and limits for capability,
// with MaxTopK capped by the manager's configuration.
func (manager *Manager) ModelInfo(capability executor.Capability) executor.ModelInfo {
	if manager.backend == nil {
		return executor.ModelInfo{}
	}
	info := manager.backend.ModelInfo(capability)
	if manager.maxTopK > 0 {
		info.MaxTopK = min(info.MaxTopK, manager.maxTopK)
	}
	info.DefaultTopK = min(info.DefaultTopK, info.MaxTopK)
	return info
}

// resolveSampling applies the model defaults and caps.
func (manager *Manager) resolveSampling(capability executor.Capability, requested *executor.SamplingParams) executor.SamplingParams {
	info := manager.ModelInfo(capability)
	if requested == nil {
		return executor.SamplingParams{TopK: info.DefaultTopK, Temperature: info.DefaultTemperature}
	}
	return executor.SamplingParams{
		TopK:        max(min(requested.TopK, info.MaxTopK), 1),
		Temperature: max(requested.Temperature, 0),
	}
}

// CreateSession creates a session once the backend can serve it. When
// the model is still to be downloaded, the creation is registered as
// pending and waits for an availability change; cancelling ctx
// abandons it. Unavailability and initial prompt failures are returned
// as *CreationError.
func (manager *Manager) CreateSession(ctx context.Context, options CreateOptions) (*Session, Info, error) {
	capability := cmp.Or(options.Capability, manager.capability)
	sampling := manager.resolveSampling(capability, options.Sampling)
	return manager.create(ctx, "", capability, sampling, true, func(ctx context.Context, executorSession executor.Session) (*contextwindow.Window, error) {
		return initialWindow(ctx, executorSession, options)
	})
}

// createSessionForClone creates a fork's session around window. The
// model served the original moments ago, so waiting for a download
// here means the manager's own bookkeeping is wrong.
func (manager *Manager) createSessionForClone(ctx context.Context, capability executor.Capability, window *contextwindow.Window, sampling executor.SamplingParams) (*Session, Info, error) {
	return manager.create(ctx, "", capability, sampling, false, func(context.Context, executor.Session) (*contextwindow.Window, error) {
		return window, nil
	})
}

// buildWindow produces the new session's window once its executor
// session exists.
type buildWindow func(ctx context.Context, executorSession executor.Session) (*contextwindow.Window, error)

func (manager *Manager) create(ctx context.Context, id string, capability executor.Capability, sampling executor.SamplingParams, allowPending bool, build buildWindow) (*Session, Info, error) {
	if err := manager.waitUntilAvailable(ctx, capability, allowPending); err != nil {
		return nil, Info{}, err
	}

	executorSession, err := manager.backend.StartSession(ctx, capability, executor.SessionConfig{Sampling: sampling})
	if err == nil && executorSession == nil {
		err = executor.ErrNoSession
	}
	if err != nil {
		return nil, Info{}, &CreationError{Code: CreationUnableToCalculateTokenSize, Err: err}
	}

	window, err := build(ctx, executorSession)
	if err != nil {
		closeQuietly(executorSession, manager.logger)
		return nil, Info{}, err
	}
	if window.HasAnyTurn() {
		executorSession.AddContext(window.Materialize())
	}

	if id == "" {
		id = uuid.NewString()
	}
	session := newSession(id, capability, manager.clock.Now(), executorSession, window, manager, manager.logger)

	manager.mu.Lock()
	if manager.closed {
		manager.mu.Unlock()
		closeQuietly(executorSession, manager.logger)
		return nil, Info{}, ErrManagerClosed
	}
	if _, exists := manager.sessions[id]; exists {
		manager.mu.Unlock()
		closeQuietly(executorSession, manager.logger)
		return nil, Info{}, fmt.Errorf("languagemodel: session %s is already live", id)
	}
	manager.sessions[id] = session
	manager.mu.Unlock()

	info := session.Info()
	manager.logger.Info("session created",
		"session_id", id,
		"capability", string(capability),
		"top_k", sampling.TopK,
		"temperature", sampling.Temperature,
		"current_tokens", info.CurrentTokens,
		"max_tokens", info.MaxTokens,
	)
	return session, info, nil
}

func closeQuietly(executorSession executor.Session, logger *slog.Logger) {
	if err := executorSession.Close(); err != nil {
		logger.Warn("closing executor session", "error", err)
	}
}

// waitUntilAvailable returns nil once capability is Readily available.
func (manager *Manager) waitUntilAvailable(ctx context.Context, capability executor.Capability, allowPending bool) error {
	var pendingID string
	defer func() {
		if pendingID != "" {
			manager.removePending(pendingID)
		}
	}()

	for {
		manager.mu.Lock()
		if manager.closed {
			manager.mu.Unlock()
			return ErrManagerClosed
		}
		// Captured before the check so a change that lands between the
		// check and the wait is not missed.
		changed := manager.availabilityChanged
		manager.mu.Unlock()

		availability := manager.availability(ctx, capability)
		switch availability {
		case AvailabilityReadily:
			return nil
		case AvailabilityAfterDownload:
		default:
			return &CreationError{Code: CreationUnavailable, Availability: availability}
		}

		if !allowPending {
			manager.logger.Error("session clone is waiting for a model download",
				"capability", string(capability))
			return fmt.Errorf("%w: clone of a live %s session found the model not installed", ErrInternalFault, capability)
		}
		if pendingID == "" {
			pendingID = manager.addPending(capability)
		}

		select {
		case <-changed:
		case <-ctx.Done():
			manager.logger.Debug("pending session creation abandoned", "pending_id", pendingID)
			return ctx.Err()
		case <-manager.closing:
			return ErrManagerClosed
		}
	}
}

func (manager *Manager) addPending(capability executor.Capability) string {
	creation := PendingCreation{
		ID:         uuid.NewString(),
		Capability: capability,
		Since:      manager.clock.Now(),
	}
	manager.mu.Lock()
	manager.pending[creation.ID] = creation
	notify := manager.pendingNotify
	manager.mu.Unlock()

	manager.logger.Info("session creation waiting for model download",
		"pending_id", creation.ID, "capability", string(capability))
	if notify != nil {
		notify <- creation
	}
	return creation.ID
}

func (manager *Manager) removePending(id string) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	delete(manager.pending, id)
}

// initialWindow sizes the system prompt and initial prompts and builds
// the window around them.
func initialWindow(ctx context.Context, executorSession executor.Session, options CreateOptions) (*contextwindow.Window, error) {
	limits := executorSession.TokenLimits()
	maxTokens := limits.MaxContextTokens
	if maxTokens == 0 {
		maxTokens = limits.MaxTokens
	}

	var turns []contextwindow.Turn
	if options.SystemPrompt != "" {
		turns = append(turns, contextwindow.SystemTurn(options.SystemPrompt, 0))
	}
	for index, prompt := range options.InitialPrompts {
		if !prompt.Role.Valid() {
			return nil, &CreationError{
				Code: CreationInvalidInitialPrompt,
				Err:  fmt.Errorf("initial prompt %d has role %q", index, prompt.Role),
			}
		}
		turns = append(turns, contextwindow.Turn{Role: prompt.Role, Text: prompt.Text})
	}
	if len(turns) == 0 {
		return contextwindow.New(maxTokens), nil
	}

	total := 0
	for index := range turns {
		tokens, err := executorSession.ContextSizeInTokens(ctx, contextwindow.Payload{Initial: turns[index : index+1]})
		if err != nil {
			return nil, &CreationError{Code: CreationUnableToCalculateTokenSize, Err: err}
		}
		turns[index].Tokens = tokens
		total += tokens
	}
	if total > maxTokens {
		return nil, &CreationError{
			Code: CreationInitialPromptsTooLarge,
			Err:  fmt.Errorf("initial prompts cost %d tokens, exceeding max %d", total, maxTokens),
		}
	}
	return contextwindow.New(maxTokens, turns...), nil
}

// release is called by a destroyed session.
func (manager *Manager) release(id string) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	delete(manager.sessions, id)
}

// Session returns the live session with id.
func (manager *Manager) Session(id string) (*Session, bool) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	session, found := manager.sessions[id]
	return session, found
}

// Sessions returns the live sessions, oldest first.
func (manager *Manager) Sessions() []*Session {
	manager.mu.Lock()
	sessions := make([]*Session, 0, len(manager.sessions))
	for _, session := range manager.sessions {
		sessions = append(sessions, session)
	}
	manager.mu.Unlock()

	slices.SortFunc(sessions, func(a, b *Session) int {
		return cmp.Or(a.createdAt.Compare(b.createdAt), cmp.Compare(a.id, b.id))
	})
	return sessions
}

// PendingCreations returns the creations waiting for a download,
// oldest first.
func (manager *Manager) PendingCreations() []PendingCreation {
	manager.mu.Lock()
	pending := make([]PendingCreation, 0, len(manager.pending))
	for _, creation := range manager.pending {
		pending = append(pending, creation)
	}
	manager.mu.Unlock()

	slices.SortFunc(pending, func(a, b PendingCreation) int {
		return cmp.Or(a.Since.Compare(b.Since), cmp.Compare(a.ID, b.ID))
	})
	return pending
}

// AddDownloadProgressObserver registers observe for the backend's
// model download progress.
func (manager *Manager) AddDownloadProgressObserver(observe func(downloaded, total int64)) (remove func()) {
	return manager.progress.Add(executor.ObserverFuncs{OnDownloadProgress: observe})
}

// DownloadProgressObservers returns the number of registered download
// progress observers.
func (manager *Manager) DownloadProgressObservers() int { return manager.progress.Len() }

// SaveSession writes a snapshot of session to the configured store.
func (manager *Manager) SaveSession(ctx context.Context, session *Session) error {
	if manager.snapshots == nil {
		return ErrNoSnapshotStore
	}
	if session.Destroyed() {
		return ErrSessionDestroyed
	}
	saved := session.Snapshot()
	if err := manager.snapshots.Save(ctx, saved); err != nil {
		return fmt.Errorf("saving session %s: %w", session.id, err)
	}
	manager.logger.Info("session saved", "session_id", session.id, "turns", len(saved.Rolling)+len(saved.Initial))
	return nil
}

// RestoreSession creates a session from a saved snapshot. The session
// keeps the snapshot's ID unless a live session already has it. Its
// window is rebuilt under the new executor session's limits, evicting
// the oldest history if they are smaller.
func (manager *Manager) RestoreSession(ctx context.Context, id string) (*Session, Info, error) {
	if manager.snapshots == nil {
		return nil, Info{}, ErrNoSnapshotStore
	}
	saved, err := manager.snapshots.Load(ctx, id)
	if err != nil {
		return nil, Info{}, fmt.Errorf("restoring session %s: %w", id, err)
	}

	sessionID := saved.ID
	if _, live := manager.Session(sessionID); live {
		sessionID = ""
	}
	sampling := manager.resolveSampling(saved.Capability, &saved.Sampling)
	return manager.create(ctx, sessionID, saved.Capability, sampling, true, func(_ context.Context, executorSession executor.Session) (*contextwindow.Window, error) {
		limits := executorSession.TokenLimits()
		window, err := saved.Window(cmp.Or(limits.MaxContextTokens, limits.MaxTokens))
		if err != nil {
			return nil, &CreationError{Code: CreationInitialPromptsTooLarge, Err: err}
		}
		return window, nil
	})
}

// Close destroys every live session, abandons pending creations, and
// detaches from the backend.
func (manager *Manager) Close() error {
	manager.mu.Lock()
	if manager.closed {
		manager.mu.Unlock()
		return nil
	}
	manager.closed = true
	close(manager.closing)
	manager.mu.Unlock()

	for _, session := range manager.Sessions() {
		session.Destroy()
	}
	if manager.removeObserver != nil {
		manager.removeObserver()
	}
	return nil
}
