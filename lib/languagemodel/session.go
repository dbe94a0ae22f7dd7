// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package languagemodel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/languagemodel/lib/contextwindow"
	"github.com/bureau-foundation/languagemodel/lib/executor"
	"github.com/bureau-foundation/languagemodel/lib/snapshot"
)

// sessionOwner is the part of the manager a session may call: cloning
// a window into a new session, and releasing its own registry entry by
// ID.
type sessionOwner interface {
	createSessionForClone(ctx context.Context, capability executor.Capability, window *contextwindow.Window, sampling executor.SamplingParams) (*Session, Info, error)
	release(id string)
}

type sessionState int

const (
	stateIdle sessionState = iota
	stateExecuting
	stateDestroyed
)

// Session is one conversation bound to one executor session. All
// methods are safe for concurrent use, but only one Prompt or
// CountPromptTokens runs at a time.
type Session struct {
	id         string
	capability executor.Capability
	createdAt  time.Time
	executor   executor.Session
	owner      sessionOwner
	logger     *slog.Logger
	listeners  listenerSet

	mu     sync.Mutex
	state  sessionState
	window *contextwindow.Window
	cancel context.CancelFunc
}

func newSession(id string, capability executor.Capability, createdAt time.Time, executorSession executor.Session, window *contextwindow.Window, owner sessionOwner, logger *slog.Logger) *Session {
	return &Session{
		id:         id,
		capability: capability,
		createdAt:  createdAt,
		executor:   executorSession,
		owner:      owner,
		logger:     logger.With("session_id", id, "capability", string(capability)),
		window:     window,
	}
}

// ID returns the session's UUID.
func (session *Session) ID() string { return session.id }

func (session *Session) Capability() executor.Capability { return session.capability }

// CreatedAt is when the manager registered the session.
func (session *Session) CreatedAt() time.Time { return session.createdAt }

// SamplingParams returns the parameters the executor session runs
// with.
func (session *Session) SamplingParams() executor.SamplingParams {
	return session.executor.SamplingParams()
}

// Info returns the window's sizing.
func (session *Session) Info() Info {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.infoLocked()
}

func (session *Session) infoLocked() Info {
	return Info{
		MaxTokens:     session.window.MaxTokens(),
		CurrentTokens: session.window.CurrentTokens(),
	}
}

// AddListener registers a listener that receives the events of every
// subsequent Prompt, before the listener passed to Prompt itself.
func (session *Session) AddListener(listener Listener) (remove func()) {
	return session.listeners.add(listener)
}

// Destroyed reports whether Destroy has been called.
func (session *Session) Destroyed() bool {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.state == stateDestroyed
}

// begin claims the session's single execution slot and returns the
// context for the execution along with the committed conversation.
func (session *Session) begin(ctx context.Context) (context.Context, contextwindow.Payload, error) {
	session.mu.Lock()
	defer session.mu.Unlock()
	switch session.state {
	case stateDestroyed:
		return nil, contextwindow.Payload{}, ErrSessionDestroyed
	case stateExecuting:
		return nil, contextwindow.Payload{}, ErrExecutionInProgress
	}
	executionCtx, cancel := context.WithCancel(ctx)
	session.state = stateExecuting
	session.cancel = cancel
	return executionCtx, session.window.Materialize(), nil
}

// finish releases the execution slot unless the session was destroyed
// in the meantime.
func (session *Session) finish() {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.cancel != nil {
		session.cancel()
		session.cancel = nil
	}
	if session.state == stateExecuting {
		session.state = stateIdle
	}
}

// Prompt executes the conversation so far followed by input, streams
// the response to the session's listeners and then to listener (which
// may be nil), and on success commits input and the response to the
// context window.
//
// On failure the window is unchanged, listeners receive OnError, and
// the error is returned. If the session is destroyed while the prompt
// runs, no further events are delivered and ErrSessionDestroyed is
// returned.
func (session *Session) Prompt(ctx context.Context, input string, listener Listener) error {
	executionCtx, payload, err := session.begin(ctx)
	if err != nil {
		// Session-wide listeners follow the prompt holding the slot.
		if listener != nil {
			listener.OnError(err)
		}
		return err
	}
	defer session.finish()
	listeners := session.listeners.with(listener)

	stream, err := session.executor.Execute(executionCtx, payload.WithCurrent(contextwindow.UserTurn(input, 0)))
	if err != nil {
		return session.fail(listeners, fmt.Errorf("executing prompt: %w", err))
	}
	defer stream.Close()

	reader := deltaReader{mode: session.executor.StreamingMode()}
	for {
		chunk, err := stream.Next()
		if session.Destroyed() {
			return ErrSessionDestroyed
		}
		if errors.Is(err, io.EOF) {
			return session.fail(listeners, ErrIncompleteResponse)
		}
		if err != nil {
			return session.fail(listeners, fmt.Errorf("executing prompt: %w", err))
		}
		if delta := reader.delta(chunk); delta != "" {
			for _, each := range listeners {
				each.OnStreaming(delta)
			}
		}
		if chunk.Complete {
			break
		}
	}

	response := reader.text()
	inputTokens, err := session.executor.SizeInTokens(executionCtx, input)
	if err != nil {
		return session.fail(listeners, fmt.Errorf("sizing prompt: %w", err))
	}
	responseTokens, err := session.executor.SizeInTokens(executionCtx, response)
	if err != nil {
		return session.fail(listeners, fmt.Errorf("sizing response: %w", err))
	}

	session.mu.Lock()
	if session.state == stateDestroyed {
		session.mu.Unlock()
		return ErrSessionDestroyed
	}
	evictedForInput := session.window.AddTurn(contextwindow.UserTurn(input, inputTokens))
	evictedForResponse := session.window.AddTurn(contextwindow.AssistantTurn(response, responseTokens))
	info := session.infoLocked()
	session.mu.Unlock()

	session.logger.Debug("prompt completed",
		"input_tokens", inputTokens,
		"response_tokens", responseTokens,
		"current_tokens", info.CurrentTokens,
		"max_tokens", info.MaxTokens,
	)
	if evictedForInput || evictedForResponse {
		session.logger.Debug("context overflow evicted older turns")
		for _, each := range listeners {
			each.OnContextOverflow()
		}
	}
	completion := Completion{Response: response, Info: info}
	for _, each := range listeners {
		each.OnCompletion(completion)
	}
	return nil
}

// fail reports err to listeners unless the session has been destroyed,
// in which case the failure is the destruction and nothing is
// delivered.
func (session *Session) fail(listeners []Listener, err error) error {
	if session.Destroyed() {
		return ErrSessionDestroyed
	}
	session.logger.Debug("prompt failed", "error", err)
	notifyError(listeners, err)
	return err
}

func notifyError(listeners []Listener, err error) {
	for _, listener := range listeners {
		listener.OnError(err)
	}
}

// CountPromptTokens returns what the conversation so far plus input
// would cost the model, without executing or changing anything. It
// occupies the execution slot while it runs.
func (session *Session) CountPromptTokens(ctx context.Context, input string) (int, error) {
	countCtx, payload, err := session.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer session.finish()

	tokens, err := session.executor.ContextSizeInTokens(countCtx, payload.WithCurrent(contextwindow.UserTurn(input, 0)))
	if session.Destroyed() {
		return 0, ErrSessionDestroyed
	}
	if err != nil {
		return 0, fmt.Errorf("counting prompt tokens: %w", err)
	}
	return tokens, nil
}

// Fork creates a new session from a copy of this session's context
// window and sampling parameters. The copy evolves independently, and
// the new session has its own executor session.
func (session *Session) Fork(ctx context.Context) (*Session, Info, error) {
	session.mu.Lock()
	if session.state == stateDestroyed {
		session.mu.Unlock()
		return nil, Info{}, ErrSessionDestroyed
	}
	window := session.window.Clone()
	session.mu.Unlock()

	forked, info, err := session.owner.createSessionForClone(ctx, session.capability, window, session.SamplingParams())
	if err != nil {
		return nil, Info{}, fmt.Errorf("forking session %s: %w", session.id, err)
	}
	session.logger.Debug("session forked", "fork_id", forked.ID())
	return forked, info, nil
}

// Snapshot captures the session's committed conversation.
func (session *Session) Snapshot() snapshot.Snapshot {
	session.mu.Lock()
	defer session.mu.Unlock()
	return snapshot.Capture(session.id, session.capability, session.SamplingParams(), session.window, session.createdAt)
}

// Destroy cancels any in-flight execution, closes the executor
// session, and removes the session from its manager. Further calls
// fail with ErrSessionDestroyed. Destroy is idempotent.
func (session *Session) Destroy() {
	session.mu.Lock()
	if session.state == stateDestroyed {
		session.mu.Unlock()
		return
	}
	session.state = stateDestroyed
	if session.cancel != nil {
		session.cancel()
		session.cancel = nil
	}
	session.mu.Unlock()

	if err := session.executor.Close(); err != nil {
		session.logger.Warn("closing executor session", "error", err)
	}
	session.owner.release(session.id)
	session.logger.Debug("session destroyed")
}
