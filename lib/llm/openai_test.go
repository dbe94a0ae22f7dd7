// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func openaiTestServer(t *testing.T, handler http.Handler, apiKey string) *OpenAI {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAI(server.Client(), Endpoint{BaseURL: server.URL + "/", APIKey: apiKey})
}

func TestOpenAIComplete(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want Bearer sk-test", got)
		}
		var wireRequest openaiRequest
		if err := json.NewDecoder(request.Body).Decode(&wireRequest); err != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(wireRequest.Messages) != 2 || wireRequest.Messages[0].Role != "system" {
			t.Errorf("messages = %+v, want system then user", wireRequest.Messages)
		}
		if wireRequest.Temperature == nil || *wireRequest.Temperature != 0.5 {
			t.Errorf("temperature = %v, want 0.5", wireRequest.Temperature)
		}

		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(map[string]any{
			"model": "gpt-test",
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "Hi there"},
				"finish_reason": "length",
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 3},
		})
	})

	provider := openaiTestServer(t, mux, "sk-test")
	temperature := 0.5
	response, err := provider.Complete(context.Background(), Request{
		Model:       "gpt-test",
		System:      "Be brief.",
		Temperature: &temperature,
		Messages:    []Message{UserMessage("Hello")},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if response.Text != "Hi there" {
		t.Errorf("Text = %q, want 'Hi there'", response.Text)
	}
	if response.StopReason != StopReasonMaxTokens {
		t.Errorf("StopReason = %q, want max_tokens", response.StopReason)
	}
	if response.Usage.InputTokens != 12 {
		t.Errorf("InputTokens = %d, want 12", response.Usage.InputTokens)
	}
}

func TestOpenAIStream(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want none for keyless endpoint", got)
		}
		body, _ := io.ReadAll(request.Body)
		if !strings.Contains(string(body), `"include_usage":true`) {
			t.Errorf("request body %s lacks include_usage", body)
		}
		writeSSE(t, writer,
			"data: {\"model\":\"local\",\"choices\":[{\"delta\":{\"role\":\"assistant\"},\"finish_reason\":null}]}\n\n",
			"data: {\"model\":\"local\",\"choices\":[{\"delta\":{\"content\":\"T\"},\"finish_reason\":null}]}\n\n",
			"data: {\"model\":\"local\",\"choices\":[{\"delta\":{\"content\":\"est response\"},\"finish_reason\":\"stop\"}]}\n\n",
			"data: {\"model\":\"local\",\"choices\":[],\"usage\":{\"prompt_tokens\":9,\"completion_tokens\":2}}\n\n",
			"data: [DONE]\n\n",
		)
	})

	provider := openaiTestServer(t, mux, "")
	stream, err := provider.Stream(context.Background(), Request{Model: "local", Messages: []Message{UserMessage("x")}})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	var deltas []string
	for {
		event, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if event.Type == EventTextDelta {
			deltas = append(deltas, event.Text)
		}
	}
	if strings.Join(deltas, "|") != "T|est response" {
		t.Errorf("deltas = %q, want [T, est response]", deltas)
	}
	response := stream.Response()
	if response.Text != "Test response" {
		t.Errorf("Text = %q, want 'Test response'", response.Text)
	}
	if response.StopReason != StopReasonEndTurn {
		t.Errorf("StopReason = %q, want end_turn", response.StopReason)
	}
	if response.Usage.InputTokens != 9 || response.Usage.OutputTokens != 2 {
		t.Errorf("Usage = %+v, want 9/2", response.Usage)
	}
}

func TestOpenAIStreamErrorChunk(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		writeSSE(t, writer, "data: {\"error\":{\"type\":\"server_error\",\"message\":\"model crashed\"}}\n\n")
	})

	provider := openaiTestServer(t, mux, "")
	stream, err := provider.Stream(context.Background(), Request{Model: "local"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	event, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if event.Type != EventError || !strings.Contains(event.Error.Error(), "model crashed") {
		t.Errorf("event = %+v, want EventError mentioning model crashed", event)
	}
}
