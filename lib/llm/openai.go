// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const openaiPrefix = "llm/openai"

// OpenAI implements [Provider] for the Chat Completions wire format,
// served by OpenAI itself and by most local inference servers.
type OpenAI struct {
	httpClient *http.Client
	endpoint   Endpoint
}

// NewOpenAI returns an OpenAI-compatible provider. A nil httpClient
// uses [http.DefaultClient].
func NewOpenAI(httpClient *http.Client, endpoint Endpoint) *OpenAI {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAI{httpClient: httpClient, endpoint: endpoint}
}

// Complete sends a non-streaming request.
func (provider *OpenAI) Complete(ctx context.Context, request Request) (*Response, error) {
	httpResponse, err := doProviderRequest(ctx, provider.httpClient, provider.endpoint.url("/v1/chat/completions"),
		provider.headers(), provider.buildRequest(request, false), openaiPrefix, false)
	if err != nil {
		return nil, err
	}
	return decodeResponse[openaiResponse](httpResponse, openaiPrefix)
}

// Stream sends a streaming request with usage reporting enabled.
func (provider *OpenAI) Stream(ctx context.Context, request Request) (*EventStream, error) {
	httpResponse, err := doProviderRequest(ctx, provider.httpClient, provider.endpoint.url("/v1/chat/completions"),
		provider.headers(), provider.buildRequest(request, true), openaiPrefix, true)
	if err != nil {
		return nil, err
	}
	return newOpenAIEventStream(httpResponse.Body), nil
}

func (provider *OpenAI) headers() map[string]string {
	if provider.endpoint.APIKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + provider.endpoint.APIKey}
}

func (provider *OpenAI) buildRequest(request Request, stream bool) openaiRequest {
	wire := openaiRequest{
		Model:       request.Model,
		MaxTokens:   request.MaxTokens,
		Temperature: request.Temperature,
		TopK:        request.TopK,
		Stop:        request.StopSequences,
	}
	if stream {
		wire.Stream = true
		wire.StreamOptions = &openaiStreamOptions{IncludeUsage: true}
	}
	if request.System != "" {
		wire.Messages = append(wire.Messages, openaiMessage{Role: "system", Content: request.System})
	}
	for _, message := range request.Messages {
		wire.Messages = append(wire.Messages, openaiMessage{Role: string(message.Role), Content: message.Text})
	}
	return wire
}

// newOpenAIEventStream parses streamed chat completion chunks. Text
// arrives as choices[0].delta.content; finish_reason arrives on the
// last content chunk; with include_usage a final chunk with empty
// choices carries usage; "data: [DONE]" terminates.
func newOpenAIEventStream(body io.ReadCloser) *EventStream {
	scanner := NewSSEScanner(body)
	stream := NewEventStream(nil, body)
	modelSet := false

	stream.next = func() (StreamEvent, error) {
		for {
			if !scanner.Next() {
				if err := scanner.Err(); err != nil {
					return StreamEvent{}, fmt.Errorf("%s: reading SSE: %w", openaiPrefix, err)
				}
				return StreamEvent{}, io.EOF
			}
			event := scanner.Event()
			if event.Data == "[DONE]" {
				return StreamEvent{Type: EventDone}, nil
			}

			var chunk openaiStreamChunk
			if err := json.Unmarshal([]byte(event.Data), &chunk); err != nil {
				return StreamEvent{}, fmt.Errorf("%s: parsing stream chunk: %w", openaiPrefix, err)
			}

			// Errors arrive as ordinary data lines with an "error"
			// object and none of the completion fields.
			if len(chunk.Choices) == 0 && chunk.Usage == nil && chunk.Model == "" {
				return StreamEvent{Type: EventError, Error: streamErrorf(openaiPrefix, event.Data)}, nil
			}

			if !modelSet && chunk.Model != "" {
				stream.SetModel(chunk.Model)
				modelSet = true
			}
			if chunk.Usage != nil {
				stream.SetUsage(Usage{
					InputTokens:  chunk.Usage.PromptTokens,
					OutputTokens: chunk.Usage.CompletionTokens,
				})
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.FinishReason != nil {
				stream.SetStopReason(mapOpenAIFinishReason(*choice.FinishReason))
			}
			if choice.Delta.Content != "" {
				return StreamEvent{Type: EventTextDelta, Text: choice.Delta.Content}, nil
			}
		}
	}
	return stream
}

type openaiRequest struct {
	Model         string               `json:"model"`
	Messages      []openaiMessage      `json:"messages"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Temperature   *float64             `json:"temperature,omitempty"`
	TopK          *int                 `json:"top_k,omitempty"`
	Stop          []string             `json:"stop,omitempty"`
	Stream        bool                 `json:"stream,omitempty"`
	StreamOptions *openaiStreamOptions `json:"stream_options,omitempty"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage openaiUsage `json:"usage"`
}

type openaiUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

type openaiStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openaiUsage `json:"usage,omitempty"`
}

func (wire *openaiResponse) toResponse() *Response {
	response := &Response{
		Model: wire.Model,
		Usage: Usage{
			InputTokens:  wire.Usage.PromptTokens,
			OutputTokens: wire.Usage.CompletionTokens,
		},
	}
	if len(wire.Choices) > 0 {
		response.Text = wire.Choices[0].Message.Content
		response.StopReason = mapOpenAIFinishReason(wire.Choices[0].FinishReason)
	}
	return response
}

func mapOpenAIFinishReason(reason string) StopReason {
	switch reason {
	case "stop":
		return StopReasonEndTurn
	case "length":
		return StopReasonMaxTokens
	default:
		return StopReason(reason)
	}
}
