// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	anthropicPrefix  = "llm/anthropic"
	anthropicVersion = "2023-06-01"
)

// Anthropic implements [Provider] for the Anthropic Messages API.
type Anthropic struct {
	httpClient *http.Client
	endpoint   Endpoint
}

// NewAnthropic returns an Anthropic provider. A nil httpClient uses
// [http.DefaultClient].
func NewAnthropic(httpClient *http.Client, endpoint Endpoint) *Anthropic {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Anthropic{httpClient: httpClient, endpoint: endpoint}
}

// Complete sends a non-streaming request.
func (provider *Anthropic) Complete(ctx context.Context, request Request) (*Response, error) {
	httpResponse, err := doProviderRequest(ctx, provider.httpClient, provider.endpoint.url("/v1/messages"),
		provider.headers(), provider.buildRequest(request, false), anthropicPrefix, false)
	if err != nil {
		return nil, err
	}
	return decodeResponse[anthropicResponse](httpResponse, anthropicPrefix)
}

// Stream sends a streaming request.
func (provider *Anthropic) Stream(ctx context.Context, request Request) (*EventStream, error) {
	httpResponse, err := doProviderRequest(ctx, provider.httpClient, provider.endpoint.url("/v1/messages"),
		provider.headers(), provider.buildRequest(request, true), anthropicPrefix, true)
	if err != nil {
		return nil, err
	}
	return newAnthropicEventStream(httpResponse.Body), nil
}

func (provider *Anthropic) headers() map[string]string {
	headers := map[string]string{"anthropic-version": anthropicVersion}
	if provider.endpoint.APIKey != "" {
		headers["x-api-key"] = provider.endpoint.APIKey
	}
	return headers
}

func (provider *Anthropic) buildRequest(request Request, stream bool) anthropicRequest {
	wire := anthropicRequest{
		Model:         request.Model,
		MaxTokens:     request.MaxTokens,
		System:        request.System,
		Stream:        stream,
		Temperature:   request.Temperature,
		TopK:          request.TopK,
		StopSequences: request.StopSequences,
	}
	for _, message := range request.Messages {
		wire.Messages = append(wire.Messages, anthropicMessage{
			Role:    string(message.Role),
			Content: []anthropicContentBlock{{Type: "text", Text: message.Text}},
		})
	}
	return wire
}

// newAnthropicEventStream parses the Messages API event sequence:
// message_start, then content_block_start/delta/stop per block, then
// message_delta carrying the stop reason and output usage, then
// message_stop. Only text deltas are surfaced.
func newAnthropicEventStream(body io.ReadCloser) *EventStream {
	scanner := NewSSEScanner(body)
	stream := NewEventStream(nil, body)

	stream.next = func() (StreamEvent, error) {
		for {
			if !scanner.Next() {
				if err := scanner.Err(); err != nil {
					return StreamEvent{}, fmt.Errorf("%s: reading SSE: %w", anthropicPrefix, err)
				}
				return StreamEvent{}, io.EOF
			}
			event := scanner.Event()

			switch event.Type {
			case "message_start":
				var envelope struct {
					Message struct {
						Model string         `json:"model"`
						Usage anthropicUsage `json:"usage"`
					} `json:"message"`
				}
				if err := json.Unmarshal([]byte(event.Data), &envelope); err != nil {
					return StreamEvent{}, fmt.Errorf("%s: parsing message_start: %w", anthropicPrefix, err)
				}
				stream.SetModel(envelope.Message.Model)
				stream.SetUsage(Usage{
					InputTokens:  envelope.Message.Usage.InputTokens,
					OutputTokens: envelope.Message.Usage.OutputTokens,
				})

			case "content_block_delta":
				var envelope struct {
					Delta struct {
						Type string `json:"type"`
						Text string `json:"text"`
					} `json:"delta"`
				}
				if err := json.Unmarshal([]byte(event.Data), &envelope); err != nil {
					return StreamEvent{}, fmt.Errorf("%s: parsing content_block_delta: %w", anthropicPrefix, err)
				}
				if envelope.Delta.Type == "text_delta" && envelope.Delta.Text != "" {
					return StreamEvent{Type: EventTextDelta, Text: envelope.Delta.Text}, nil
				}

			case "message_delta":
				var envelope struct {
					Delta struct {
						StopReason string `json:"stop_reason"`
					} `json:"delta"`
					Usage struct {
						OutputTokens int64 `json:"output_tokens"`
					} `json:"usage"`
				}
				if err := json.Unmarshal([]byte(event.Data), &envelope); err != nil {
					return StreamEvent{}, fmt.Errorf("%s: parsing message_delta: %w", anthropicPrefix, err)
				}
				stream.SetStopReason(mapAnthropicStopReason(envelope.Delta.StopReason))
				stream.AddOutputTokens(envelope.Usage.OutputTokens)

			case "message_stop":
				return StreamEvent{Type: EventDone}, nil

			case "ping":
				return StreamEvent{Type: EventPing}, nil

			case "error":
				return StreamEvent{Type: EventError, Error: streamErrorf(anthropicPrefix, event.Data)}, nil
			}
			// content_block_start, content_block_stop, and event types
			// added later carry nothing a text stream needs.
		}
	}
	return stream
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	Stream        bool               `json:"stream,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopK          *int               `json:"top_k,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

func (wire *anthropicResponse) toResponse() *Response {
	var text strings.Builder
	for _, block := range wire.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Response{
		Text:       text.String(),
		StopReason: mapAnthropicStopReason(wire.StopReason),
		Model:      wire.Model,
		Usage: Usage{
			InputTokens:  wire.Usage.InputTokens,
			OutputTokens: wire.Usage.OutputTokens,
		},
	}
}

func mapAnthropicStopReason(reason string) StopReason {
	switch reason {
	case "end_turn":
		return StopReasonEndTurn
	case "max_tokens":
		return StopReasonMaxTokens
	case "stop_sequence":
		return StopReasonStopSequence
	default:
		return StopReason(reason)
	}
}
