// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/languagemodel/lib/contextwindow"
)

// ErrNoSession is returned by [Backend.StartSession] when the backend
// is eligible but could not produce a session handle.
var ErrNoSession = errors.New("executor: no session available")

// Capability selects which model-backed feature a session serves.
type Capability string

const (
	CapabilityPrompt    Capability = "prompt-api"
	CapabilitySummarize Capability = "summarize"
	CapabilityWrite     Capability = "write"
	CapabilityRewrite   Capability = "rewrite"
)

// ParseCapability validates a capability key.
func ParseCapability(key string) (Capability, error) {
	switch capability := Capability(key); capability {
	case CapabilityPrompt, CapabilitySummarize, CapabilityWrite, CapabilityRewrite:
		return capability, nil
	}
	return "", fmt.Errorf("unknown capability %q", key)
}

// TokenLimits are the sizes a session enforces. MaxTokens bounds the
// conversation context; the others bound a single execution.
type TokenLimits struct {
	MaxTokens        int
	MaxContextTokens int
	MaxExecuteTokens int
	MaxOutputTokens  int
}

// SamplingParams control generation.
type SamplingParams struct {
	TopK        int     `json:"top_k"`
	Temperature float64 `json:"temperature"`
}

// SessionConfig is passed to [Backend.StartSession].
type SessionConfig struct {
	Sampling SamplingParams
}

// ModelInfo describes a capability's sampling defaults and limits.
type ModelInfo struct {
	DefaultTopK        int
	MaxTopK            int
	DefaultTemperature float64
}

// StreamingMode says what each streamed chunk contains.
type StreamingMode int

const (
	// ChunkByChunk chunks carry only text produced since the previous
	// chunk.
	ChunkByChunk StreamingMode = iota

	// CurrentResponse chunks carry the whole response so far.
	CurrentResponse
)

func (mode StreamingMode) String() string {
	switch mode {
	case ChunkByChunk:
		return "chunk"
	case CurrentResponse:
		return "full"
	default:
		return fmt.Sprintf("StreamingMode(%d)", int(mode))
	}
}

// ParseStreamingMode accepts "chunk" or "full".
func ParseStreamingMode(name string) (StreamingMode, error) {
	switch name {
	case "chunk", "":
		return ChunkByChunk, nil
	case "full":
		return CurrentResponse, nil
	}
	return 0, fmt.Errorf("unknown streaming mode %q", name)
}

// Chunk is one streamed execution result.
type Chunk struct {
	Text     string
	Complete bool
}

// Stream yields the chunks of one execution. Next returns io.EOF after
// the Complete chunk; any other error is a terminal execution failure.
// Close releases the execution and may be called at any time.
type Stream interface {
	Next() (Chunk, error)
	Close() error
}

// Session is a model handle bound to one conversation.
type Session interface {
	TokenLimits() TokenLimits
	SamplingParams() SamplingParams
	StreamingMode() StreamingMode

	// SizeInTokens counts the tokens of bare text.
	SizeInTokens(ctx context.Context, text string) (int, error)

	// ContextSizeInTokens counts the tokens of a payload as the model
	// would see it.
	ContextSizeInTokens(ctx context.Context, payload contextwindow.Payload) (int, error)

	// AddContext informs the session of the context that precedes the
	// next execution. Fire-and-forget.
	AddContext(payload contextwindow.Payload)

	// Execute runs payload. Cancelling ctx aborts the execution and
	// fails the stream.
	Execute(ctx context.Context, payload contextwindow.Payload) (Stream, error)

	Close() error
}

// Backend starts sessions for capabilities.
type Backend interface {
	// Eligibility reports whether capability can run now, and if not,
	// why.
	Eligibility(ctx context.Context, capability Capability) (Eligibility, error)

	// StartSession returns a new session. Returns ErrNoSession (or an
	// error wrapping it) when none can be created.
	StartSession(ctx context.Context, capability Capability, config SessionConfig) (Session, error)

	ModelInfo(capability Capability) ModelInfo

	// Observe registers observer and returns a function that removes it.
	Observe(observer Observer) (remove func())
}
