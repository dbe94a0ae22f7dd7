// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executortest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/bureau-foundation/languagemodel/lib/contextwindow"
	"github.com/bureau-foundation/languagemodel/lib/executor"
)

// Backend is a fake [executor.Backend]. All fields are guarded by an
// internal mutex; configure it through its methods.
type Backend struct {
	mu sync.Mutex

	eligibility    map[executor.Capability]executor.Eligibility
	eligibilityErr error
	limits         executor.TokenLimits
	info           executor.ModelInfo
	mode           executor.StreamingMode
	response       string
	executeErr     error
	sizeErr        error
	startErr       error
	countTokens    func(string) int

	gate    chan struct{}
	started chan struct{}

	sessions  []*Session
	observers executor.ObserverSet
}

// NewBackend returns a backend that is eligible for every capability,
// allows 100 context tokens, streams chunk by chunk, and answers every
// prompt with "Test response".
func NewBackend() *Backend {
	return &Backend{
		eligibility: make(map[executor.Capability]executor.Eligibility),
		limits: executor.TokenLimits{
			MaxTokens:        100,
			MaxContextTokens: 100,
			MaxExecuteTokens: 100,
			MaxOutputTokens:  100,
		},
		info:        executor.ModelInfo{DefaultTopK: 3, MaxTopK: 8, DefaultTemperature: 0.8},
		response:    "Test response",
		countTokens: func(text string) int { return len(strings.Fields(text)) },
	}
}

// SetEligibility sets the verdict for capability.
func (backend *Backend) SetEligibility(capability executor.Capability, eligibility executor.Eligibility) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.eligibility[capability] = eligibility
}

// SetEligibilityError makes Eligibility fail.
func (backend *Backend) SetEligibilityError(err error) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.eligibilityErr = err
}

// MakeAvailable sets capability eligible and notifies observers, the
// way a finished model download does.
func (backend *Backend) MakeAvailable(capability executor.Capability) {
	backend.SetEligibility(capability, executor.EligibilitySuccess)
	backend.observers.NotifyAvailabilityChanged(capability)
}

// ChangeEligibility sets capability's verdict and notifies observers.
func (backend *Backend) ChangeEligibility(capability executor.Capability, eligibility executor.Eligibility) {
	backend.SetEligibility(capability, eligibility)
	backend.observers.NotifyAvailabilityChanged(capability)
}

// ReportDownloadProgress notifies observers of download progress.
func (backend *Backend) ReportDownloadProgress(downloaded, total int64) {
	backend.observers.NotifyDownloadProgress(downloaded, total)
}

// SetTokenLimits sets the limits of sessions started afterwards.
func (backend *Backend) SetTokenLimits(limits executor.TokenLimits) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.limits = limits
}

// SetModelInfo sets what ModelInfo returns.
func (backend *Backend) SetModelInfo(info executor.ModelInfo) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.info = info
}

// SetStreamingMode sets the mode of sessions started afterwards.
func (backend *Backend) SetStreamingMode(mode executor.StreamingMode) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.mode = mode
}

// SetResponse sets the text every execution produces.
func (backend *Backend) SetResponse(text string) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.response = text
}

// SetExecuteError makes executions fail in place of their Complete
// chunk, after the partial chunks have streamed. Nil restores success.
func (backend *Backend) SetExecuteError(err error) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.executeErr = err
}

// SetSizeError makes token counting fail. Nil restores success.
func (backend *Backend) SetSizeError(err error) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.sizeErr = err
}

// SetStartError makes StartSession fail. Nil restores success.
func (backend *Backend) SetStartError(err error) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.startErr = err
}

// SetTokenCounter replaces the word counter.
func (backend *Backend) SetTokenCounter(count func(string) int) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.countTokens = count
}

// Hold makes executions started afterwards block before their first
// chunk until release is called or their context is cancelled.
// started receives once per execution that reaches the gate.
func (backend *Backend) Hold() (started <-chan struct{}, release func()) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	gate := make(chan struct{})
	startedChannel := make(chan struct{}, 16)
	backend.gate = gate
	backend.started = startedChannel
	var once sync.Once
	return startedChannel, func() {
		once.Do(func() {
			close(gate)
			backend.mu.Lock()
			backend.gate = nil
			backend.mu.Unlock()
		})
	}
}

// Sessions returns every session started so far, oldest first.
func (backend *Backend) Sessions() []*Session {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	return append([]*Session(nil), backend.sessions...)
}

// ObserverCount returns the number of registered observers.
func (backend *Backend) ObserverCount() int { return backend.observers.Len() }

func (backend *Backend) Eligibility(_ context.Context, capability executor.Capability) (executor.Eligibility, error) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.eligibilityErr != nil {
		return executor.EligibilityUnknown, backend.eligibilityErr
	}
	if eligibility, found := backend.eligibility[capability]; found {
		return eligibility, nil
	}
	return executor.EligibilitySuccess, nil
}

func (backend *Backend) StartSession(_ context.Context, capability executor.Capability, config executor.SessionConfig) (executor.Session, error) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.startErr != nil {
		return nil, backend.startErr
	}
	session := &Session{
		backend:    backend,
		Capability: capability,
		Config:     config,
		limits:     backend.limits,
		mode:       backend.mode,
	}
	backend.sessions = append(backend.sessions, session)
	return session, nil
}

func (backend *Backend) ModelInfo(executor.Capability) executor.ModelInfo {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	return backend.info
}

func (backend *Backend) Observe(observer executor.Observer) func() {
	return backend.observers.Add(observer)
}

// Session is a fake [executor.Session] that records what it is given.
type Session struct {
	backend *Backend

	Capability executor.Capability
	Config     executor.SessionConfig

	limits executor.TokenLimits
	mode   executor.StreamingMode

	mu       sync.Mutex
	contexts []contextwindow.Payload
	executed []contextwindow.Payload
	closed   bool
}

// Contexts returns every payload passed to AddContext.
func (session *Session) Contexts() []contextwindow.Payload {
	session.mu.Lock()
	defer session.mu.Unlock()
	return append([]contextwindow.Payload(nil), session.contexts...)
}

// Executed returns every payload passed to Execute.
func (session *Session) Executed() []contextwindow.Payload {
	session.mu.Lock()
	defer session.mu.Unlock()
	return append([]contextwindow.Payload(nil), session.executed...)
}

// Closed reports whether Close was called.
func (session *Session) Closed() bool {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.closed
}

func (session *Session) TokenLimits() executor.TokenLimits { return session.limits }

func (session *Session) SamplingParams() executor.SamplingParams { return session.Config.Sampling }

func (session *Session) StreamingMode() executor.StreamingMode { return session.mode }

func (session *Session) SizeInTokens(_ context.Context, text string) (int, error) {
	session.backend.mu.Lock()
	defer session.backend.mu.Unlock()
	if session.backend.sizeErr != nil {
		return 0, session.backend.sizeErr
	}
	return session.backend.countTokens(text), nil
}

func (session *Session) ContextSizeInTokens(_ context.Context, payload contextwindow.Payload) (int, error) {
	session.backend.mu.Lock()
	defer session.backend.mu.Unlock()
	if session.backend.sizeErr != nil {
		return 0, session.backend.sizeErr
	}
	total := 0
	for _, turn := range payload.Turns() {
		total += session.backend.countTokens(turn.Text)
	}
	return total, nil
}

func (session *Session) AddContext(payload contextwindow.Payload) {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.contexts = append(session.contexts, payload)
}

func (session *Session) Execute(ctx context.Context, payload contextwindow.Payload) (executor.Stream, error) {
	session.mu.Lock()
	if session.closed {
		session.mu.Unlock()
		return nil, errors.New("executortest: session closed")
	}
	session.executed = append(session.executed, payload)
	session.mu.Unlock()

	backend := session.backend
	backend.mu.Lock()
	defer backend.mu.Unlock()
	return &Stream{
		ctx:     ctx,
		chunks:  ScriptChunks(backend.response, session.mode),
		failure: backend.executeErr,
		gate:    backend.gate,
		started: backend.started,
	}, nil
}

func (session *Session) Close() error {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.closed = true
	return nil
}

// ScriptChunks splits response the way a streaming backend delivers
// it: the first character, then the rest, then the Complete chunk. In
// ChunkByChunk mode each chunk is a fragment and the Complete chunk is
// empty; in CurrentResponse mode each chunk is the response so far.
func ScriptChunks(response string, mode executor.StreamingMode) []executor.Chunk {
	if response == "" {
		return []executor.Chunk{{Complete: true}}
	}
	head, tail := response[:1], response[1:]
	if mode == executor.CurrentResponse {
		return []executor.Chunk{{Text: head}, {Text: response}, {Text: response, Complete: true}}
	}
	return []executor.Chunk{{Text: head}, {Text: tail}, {Complete: true}}
}

// Stream replays scripted chunks.
type Stream struct {
	ctx     context.Context
	chunks  []executor.Chunk
	failure error
	gate    chan struct{}
	started chan struct{}
	index   int
	closed  bool
}

func (stream *Stream) Next() (executor.Chunk, error) {
	if stream.index == 0 && stream.gate != nil {
		select {
		case stream.started <- struct{}{}:
		default:
		}
		select {
		case <-stream.gate:
		case <-stream.ctx.Done():
			return executor.Chunk{}, stream.ctx.Err()
		}
	}
	if err := stream.ctx.Err(); err != nil {
		return executor.Chunk{}, err
	}
	if stream.failure != nil && stream.index == len(stream.chunks)-1 {
		return executor.Chunk{}, stream.failure
	}
	if stream.index >= len(stream.chunks) {
		return executor.Chunk{}, io.EOF
	}
	chunk := stream.chunks[stream.index]
	stream.index++
	return chunk, nil
}

func (stream *Stream) Close() error {
	stream.closed = true
	return nil
}
