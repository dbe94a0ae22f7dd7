// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ondevice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/languagemodel/lib/contextwindow"
	"github.com/bureau-foundation/languagemodel/lib/executor"
	"github.com/bureau-foundation/languagemodel/lib/llm"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("ondevice: session closed")

type session struct {
	backend  *Backend
	sampling executor.SamplingParams
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (session *session) TokenLimits() executor.TokenLimits { return session.backend.config.Limits }

func (session *session) SamplingParams() executor.SamplingParams { return session.sampling }

func (session *session) StreamingMode() executor.StreamingMode {
	return session.backend.config.StreamingMode
}

func (session *session) SizeInTokens(_ context.Context, text string) (int, error) {
	return session.backend.estimator.EstimateText(text), nil
}

func (session *session) ContextSizeInTokens(_ context.Context, payload contextwindow.Payload) (int, error) {
	return session.backend.estimator.EstimateTurns(payload.Turns()), nil
}

// AddContext is a no-op: the local runtime keeps no conversation state,
// and every Execute sends its full payload.
func (session *session) AddContext(contextwindow.Payload) {}

func (session *session) Execute(ctx context.Context, payload contextwindow.Payload) (executor.Stream, error) {
	session.mu.Lock()
	closed := session.closed
	session.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}

	backend := session.backend
	request := buildRequest(backend.config, payload, session.sampling)
	turns := payload.Turns()
	session.logger.Debug("executing prompt", "turns", len(turns), "format", string(backend.config.PromptFormat))

	events, err := backend.provider.Stream(ctx, request)
	if err != nil {
		backend.recordFailure(ctx, err)
		return nil, fmt.Errorf("ondevice: starting execution: %w", err)
	}
	stream := executor.ProviderStream(events, backend.config.StreamingMode, func(response llm.Response) {
		backend.estimator.RecordUsage(turns, response.Usage.InputTokens)
	})
	return &failureStream{Stream: stream, ctx: ctx, backend: backend}, nil
}

func (session *session) Close() error {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.closed = true
	return nil
}

// buildRequest renders payload in the configured prompt format.
func buildRequest(config Config, payload contextwindow.Payload, sampling executor.SamplingParams) llm.Request {
	if config.PromptFormat == PromptFormatText {
		request := executor.ProviderRequest(config.Model, nil, sampling, config.Limits.MaxOutputTokens)
		request.Messages = []llm.Message{llm.UserMessage(payload.RenderText())}
		return request
	}
	return executor.ProviderRequest(config.Model, payload.Turns(), sampling, config.Limits.MaxOutputTokens)
}

// failureStream records a mid-stream failure against the backend.
type failureStream struct {
	executor.Stream
	ctx     context.Context
	backend *Backend
}

func (stream *failureStream) Next() (executor.Chunk, error) {
	chunk, err := stream.Stream.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		stream.backend.recordFailure(stream.ctx, err)
	}
	return chunk, err
}
