// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Provider is implemented by each model API backend.
type Provider interface {
	// Complete sends a request and blocks until the full response is
	// available.
	Complete(ctx context.Context, request Request) (*Response, error)

	// Stream sends a request and returns an [EventStream]. The caller
	// must Close the stream, even if iteration ended early.
	Stream(ctx context.Context, request Request) (*EventStream, error)
}

// Endpoint locates a model API.
type Endpoint struct {
	// BaseURL is the API root without a trailing slash, for example
	// "https://api.anthropic.com" or "http://127.0.0.1:8080".
	BaseURL string

	// APIKey is attached in the provider's auth header. Empty for
	// local servers that take no credentials.
	APIKey string
}

func (endpoint Endpoint) url(path string) string {
	return strings.TrimRight(endpoint.BaseURL, "/") + path
}

type nextFunc func() (StreamEvent, error)

// EventStream yields events from a streaming response through [Next]
// while accumulating the complete [Response]. After Next returns
// [io.EOF], [Response] is final.
//
// Next is not safe for concurrent use. Response and Close may be
// called from another goroutine.
type EventStream struct {
	next     nextFunc
	closer   io.Closer
	mutex    sync.Mutex
	response Response
	text     strings.Builder
	done     bool
}

// NewEventStream wraps a provider-specific iteration function. next
// returns (event, nil) per event and (zero, io.EOF) at the end; closer
// releases the underlying body.
func NewEventStream(next nextFunc, closer io.Closer) *EventStream {
	return &EventStream{next: next, closer: closer}
}

// Next returns the next event, or io.EOF when the stream is complete.
func (stream *EventStream) Next() (StreamEvent, error) {
	if stream.done {
		return StreamEvent{}, io.EOF
	}

	event, err := stream.next()
	if err != nil {
		if err == io.EOF {
			stream.done = true
		}
		return event, err
	}

	if event.Type == EventTextDelta {
		stream.mutex.Lock()
		stream.text.WriteString(event.Text)
		stream.mutex.Unlock()
	}
	return event, nil
}

// Response returns the response accumulated so far.
func (stream *EventStream) Response() Response {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	response := stream.response
	response.Text = stream.text.String()
	return response
}

// Close releases the response body.
func (stream *EventStream) Close() error {
	if stream.closer != nil {
		return stream.closer.Close()
	}
	return nil
}

// SetStopReason records the stop reason parsed from the stream.
func (stream *EventStream) SetStopReason(reason StopReason) {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	stream.response.StopReason = reason
}

// SetUsage replaces the accumulated usage.
func (stream *EventStream) SetUsage(usage Usage) {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	stream.response.Usage = usage
}

// SetModel records the model that served the request.
func (stream *EventStream) SetModel(model string) {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	stream.response.Model = model
}

// AddOutputTokens increments the output count, for providers that
// report it incrementally.
func (stream *EventStream) AddOutputTokens(count int64) {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	stream.response.Usage.OutputTokens += count
}

// ProviderError is returned when a model API answers with a non-200
// status.
type ProviderError struct {
	StatusCode int

	// Type is the provider's error category, such as
	// "invalid_request_error" or "rate_limit_error".
	Type string

	Message string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited reports an HTTP 429.
func (err *ProviderError) IsRateLimited() bool { return err.StatusCode == http.StatusTooManyRequests }

// IsOverloaded reports Anthropic's HTTP 529 or a 503.
func (err *ProviderError) IsOverloaded() bool {
	return err.StatusCode == 529 || err.StatusCode == http.StatusServiceUnavailable
}

// doProviderRequest POSTs wireRequest as JSON with the given headers.
// Non-200 responses are returned as a *ProviderError with the body
// closed; on success the caller owns the body.
func doProviderRequest(ctx context.Context, httpClient *http.Client, endpoint string, headers map[string]string, wireRequest any, prefix string, streaming bool) (*http.Response, error) {
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: marshaling request: %w", prefix, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", prefix, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if streaming {
		httpRequest.Header.Set("Accept", "text/event-stream")
	}
	for name, value := range headers {
		httpRequest.Header.Set(name, value)
	}

	httpResponse, err := httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: sending request: %w", prefix, err)
	}
	if httpResponse.StatusCode != http.StatusOK {
		defer httpResponse.Body.Close()
		return nil, readProviderError(httpResponse)
	}
	return httpResponse, nil
}

type wireResponse[T any] interface {
	*T
	toResponse() *Response
}

// decodeResponse decodes a JSON body into the provider's wire type and
// converts it. The body is closed on return.
func decodeResponse[T any, P wireResponse[T]](httpResponse *http.Response, prefix string) (*Response, error) {
	defer httpResponse.Body.Close()

	wire := P(new(T))
	if err := json.NewDecoder(httpResponse.Body).Decode(wire); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", prefix, err)
	}
	return wire.toResponse(), nil
}

// readProviderError parses {"error":{"type":...,"message":...}}, the
// shape both Anthropic and OpenAI-compatible servers use, falling back
// to the raw body.
func readProviderError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: httpResponse.StatusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}
	return &ProviderError{StatusCode: httpResponse.StatusCode, Message: string(body)}
}

// streamErrorf builds the error for an "error" payload received
// mid-stream.
func streamErrorf(prefix, data string) error {
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(data), &envelope) == nil && envelope.Error.Message != "" {
		return fmt.Errorf("%s: stream error: %s: %s", prefix, envelope.Error.Type, envelope.Error.Message)
	}
	return fmt.Errorf("%s: stream error: %s", prefix, data)
}
