// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

// Role is the author of a message on the wire.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one text message in a conversation.
type Message struct {
	Role Role
	Text string
}

// UserMessage returns a user message.
func UserMessage(text string) Message { return Message{Role: RoleUser, Text: text} }

// AssistantMessage returns an assistant message.
func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Text: text} }

// Request is a provider-neutral completion request.
type Request struct {
	Model    string
	System   string
	Messages []Message

	// MaxTokens bounds the generated output.
	MaxTokens int

	// Temperature and TopK are sent only when non-nil. OpenAI's hosted
	// API rejects top_k; local OpenAI-compatible servers accept it.
	Temperature *float64
	TopK        *int

	StopSequences []string
}

// StopReason explains why generation ended.
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
)

// Usage is the token accounting a provider reports for one request.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is a complete model reply.
type Response struct {
	Text       string
	StopReason StopReason
	Model      string
	Usage      Usage
}

// EventType discriminates [StreamEvent] values.
type EventType int

const (
	// EventTextDelta carries the next fragment of generated text.
	EventTextDelta EventType = iota

	// EventDone marks the end of generation. The accumulated
	// [Response] is final once Next returns io.EOF after it.
	EventDone

	// EventPing is a keepalive with no payload.
	EventPing

	// EventError carries an error the provider sent mid-stream.
	EventError
)

// StreamEvent is one event from an [EventStream].
type StreamEvent struct {
	Type  EventType
	Text  string
	Error error
}
