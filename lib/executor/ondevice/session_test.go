// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ondevice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bureau-foundation/languagemodel/lib/contextwindow"
	"github.com/bureau-foundation/languagemodel/lib/executor"
)

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// runtimeServer is a local OpenAI-compatible runtime answering every
// request with "Test response" in two deltas.
type runtimeServer struct {
	mu       sync.Mutex
	requests [][]wireMessage
	status   int
}

func (runtime *runtimeServer) start(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		var body struct {
			Messages []wireMessage `json:"messages"`
		}
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		runtime.mu.Lock()
		runtime.requests = append(runtime.requests, body.Messages)
		status := runtime.status
		runtime.mu.Unlock()
		if status != 0 {
			writer.WriteHeader(status)
			io.WriteString(writer, `{"error":{"type":"server_error","message":"model crashed"}}`)
			return
		}

		writer.Header().Set("Content-Type", "text/event-stream")
		for _, line := range []string{
			`data: {"model":"local","choices":[{"delta":{"content":"T"},"finish_reason":null}]}`,
			`data: {"model":"local","choices":[{"delta":{"content":"est response"},"finish_reason":"stop"}]}`,
			`data: {"model":"local","choices":[],"usage":{"prompt_tokens":9,"completion_tokens":2}}`,
			`data: [DONE]`,
		} {
			io.WriteString(writer, line+"\n\n")
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server.URL
}

func startSession(t *testing.T, backend *Backend) executor.Session {
	t.Helper()
	installModel(t, backend, modelBytes)
	session, err := backend.StartSession(context.Background(), executor.CapabilityPrompt,
		executor.SessionConfig{Sampling: executor.SamplingParams{TopK: 3, Temperature: 0.8}})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func collect(t *testing.T, stream executor.Stream) []executor.Chunk {
	t.Helper()
	defer stream.Close()
	var chunks []executor.Chunk
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return chunks
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		chunks = append(chunks, chunk)
	}
}

func testPayload() contextwindow.Payload {
	return contextwindow.Payload{
		Initial: []contextwindow.Turn{contextwindow.SystemTurn("Be brief", 2)},
		History: []contextwindow.Turn{
			contextwindow.UserTurn("Hello", 1),
			contextwindow.AssistantTurn("Hi", 1),
		},
	}.WithCurrent(contextwindow.UserTurn("How are you?", 3))
}

func TestExecutePromptFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format PromptFormat
		want   []wireMessage
	}{
		{
			format: PromptFormatText,
			want: []wireMessage{
				{Role: "user", Content: "Be brief\nUser: Hello\nModel: Hi\nUser: How are you?\nModel: "},
			},
		},
		{
			format: PromptFormatStructured,
			want: []wireMessage{
				{Role: "system", Content: "Be brief"},
				{Role: "user", Content: "Hello"},
				{Role: "assistant", Content: "Hi"},
				{Role: "user", Content: "How are you?"},
			},
		},
	}
	for _, test := range tests {
		t.Run(string(test.format), func(t *testing.T) {
			t.Parallel()
			runtime := &runtimeServer{}
			url := runtime.start(t)
			backend, _ := newTestBackend(t, func(config *Config) {
				config.ServerURL = url
				config.PromptFormat = test.format
			})
			session := startSession(t, backend)

			stream, err := session.Execute(context.Background(), testPayload())
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			collect(t, stream)

			runtime.mu.Lock()
			defer runtime.mu.Unlock()
			if len(runtime.requests) != 1 {
				t.Fatalf("runtime saw %d requests, want 1", len(runtime.requests))
			}
			got := runtime.requests[0]
			if len(got) != len(test.want) {
				t.Fatalf("messages = %+v, want %+v", got, test.want)
			}
			for index := range test.want {
				if got[index] != test.want[index] {
					t.Errorf("messages[%d] = %+v, want %+v", index, got[index], test.want[index])
				}
			}
		})
	}
}

func TestAddContextSendsNothing(t *testing.T) {
	t.Parallel()

	runtime := &runtimeServer{}
	url := runtime.start(t)
	backend, _ := newTestBackend(t, func(config *Config) {
		config.ServerURL = url
		config.PromptFormat = PromptFormatStructured
	})
	session := startSession(t, backend)

	session.AddContext(contextwindow.Payload{
		Initial: []contextwindow.Turn{contextwindow.SystemTurn("Seeded", 1)},
	})
	runtime.mu.Lock()
	seeded := len(runtime.requests)
	runtime.mu.Unlock()
	if seeded != 0 {
		t.Fatalf("AddContext sent %d requests, want 0", seeded)
	}

	stream, err := session.Execute(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	collect(t, stream)

	runtime.mu.Lock()
	defer runtime.mu.Unlock()
	if len(runtime.requests) != 1 {
		t.Fatalf("runtime saw %d requests, want 1", len(runtime.requests))
	}
	// Only the executed payload is sent; the seeded context is not replayed.
	got := runtime.requests[0]
	if len(got) != 4 || got[0] != (wireMessage{Role: "system", Content: "Be brief"}) {
		t.Errorf("messages = %+v, want the four turns of the executed payload", got)
	}
}

func TestExecuteStreamingModes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode executor.StreamingMode
		want []executor.Chunk
	}{
		{executor.ChunkByChunk, []executor.Chunk{{Text: "T"}, {Text: "est response"}, {Complete: true}}},
		{executor.CurrentResponse, []executor.Chunk{{Text: "T"}, {Text: "Test response"}, {Text: "Test response", Complete: true}}},
	}
	for _, test := range tests {
		t.Run(test.mode.String(), func(t *testing.T) {
			t.Parallel()
			runtime := &runtimeServer{}
			url := runtime.start(t)
			backend, _ := newTestBackend(t, func(config *Config) {
				config.ServerURL = url
				config.StreamingMode = test.mode
			})
			session := startSession(t, backend)
			if session.StreamingMode() != test.mode {
				t.Errorf("StreamingMode() = %v, want %v", session.StreamingMode(), test.mode)
			}

			stream, err := session.Execute(context.Background(), testPayload())
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			chunks := collect(t, stream)
			if len(chunks) != len(test.want) {
				t.Fatalf("chunks = %+v, want %+v", chunks, test.want)
			}
			for index := range test.want {
				if chunks[index] != test.want[index] {
					t.Errorf("chunks[%d] = %+v, want %+v", index, chunks[index], test.want[index])
				}
			}
		})
	}
}

func TestExecuteFailureCountsAsCrash(t *testing.T) {
	t.Parallel()

	runtime := &runtimeServer{status: http.StatusInternalServerError}
	url := runtime.start(t)
	backend, _ := newTestBackend(t, func(config *Config) {
		config.ServerURL = url
		config.CrashLimit = 1
	})
	session := startSession(t, backend)

	if _, err := session.Execute(context.Background(), testPayload()); err == nil {
		t.Fatal("Execute against a failing runtime succeeded")
	}
	requireEligibility(t, backend, executor.EligibilityTooManyRecentCrashes)
}

func TestExecuteAfterClose(t *testing.T) {
	t.Parallel()

	backend, _ := newTestBackend(t)
	session := startSession(t, backend)
	session.Close()
	if _, err := session.Execute(context.Background(), testPayload()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Execute after Close error = %v, want ErrSessionClosed", err)
	}
}

func TestParsePromptFormat(t *testing.T) {
	t.Parallel()

	if format, err := ParsePromptFormat("text"); err != nil || format != PromptFormatText {
		t.Errorf("ParsePromptFormat(text) = %q, %v", format, err)
	}
	if _, err := ParsePromptFormat("xml"); err == nil {
		t.Error("ParsePromptFormat(xml) succeeded")
	}
}
