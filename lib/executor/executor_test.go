// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"io"
	"strings"
	"testing"

	"github.com/bureau-foundation/languagemodel/lib/llm"
)

func TestObserverSet(t *testing.T) {
	t.Parallel()

	var set ObserverSet
	var changed []Capability
	var progress [][2]int64

	removeFirst := set.Add(ObserverFuncs{
		OnAvailabilityChanged: func(capability Capability) { changed = append(changed, capability) },
	})
	set.Add(ObserverFuncs{
		OnDownloadProgress: func(downloaded, total int64) { progress = append(progress, [2]int64{downloaded, total}) },
	})

	set.NotifyAvailabilityChanged(CapabilityPrompt)
	set.NotifyDownloadProgress(5, 10)
	removeFirst()
	set.NotifyAvailabilityChanged(CapabilitySummarize)

	if len(changed) != 1 || changed[0] != CapabilityPrompt {
		t.Errorf("changed = %v, want [prompt-api]", changed)
	}
	if len(progress) != 1 || progress[0] != [2]int64{5, 10} {
		t.Errorf("progress = %v, want [[5 10]]", progress)
	}
	if set.Len() != 1 {
		t.Errorf("Len() = %d, want 1", set.Len())
	}
}

func TestEligibilityString(t *testing.T) {
	t.Parallel()

	if got := EligibilityModelToBeInstalled.String(); got != "model-to-be-installed" {
		t.Errorf("String() = %q, want model-to-be-installed", got)
	}
	if got := Eligibility(99).String(); got != "Eligibility(99)" {
		t.Errorf("String() = %q, want Eligibility(99)", got)
	}
}

func TestParseStreamingMode(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]StreamingMode{"chunk": ChunkByChunk, "full": CurrentResponse, "": ChunkByChunk} {
		got, err := ParseStreamingMode(name)
		if err != nil || got != want {
			t.Errorf("ParseStreamingMode(%q) = %v, %v, want %v", name, got, err, want)
		}
	}
	if _, err := ParseStreamingMode("words"); err == nil {
		t.Error("ParseStreamingMode(words) succeeded, want error")
	}
}

// scriptedEvents builds an llm.EventStream that yields the given
// deltas and then a done event.
func scriptedEvents(deltas ...string) *llm.EventStream {
	index := 0
	return llm.NewEventStream(func() (llm.StreamEvent, error) {
		switch {
		case index < len(deltas):
			index++
			return llm.StreamEvent{Type: llm.EventTextDelta, Text: deltas[index-1]}, nil
		case index == len(deltas):
			index++
			return llm.StreamEvent{Type: llm.EventDone}, nil
		default:
			return llm.StreamEvent{}, io.EOF
		}
	}, nil)
}

func collect(t *testing.T, stream Stream) []Chunk {
	t.Helper()
	var chunks []Chunk
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			return chunks
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		chunks = append(chunks, chunk)
	}
}

func TestProviderStream_ChunkByChunk(t *testing.T) {
	t.Parallel()

	var done llm.Response
	chunks := collect(t, ProviderStream(scriptedEvents("T", "est response"), ChunkByChunk,
		func(response llm.Response) { done = response }))

	want := []Chunk{{Text: "T"}, {Text: "est response"}, {Complete: true}}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %+v, want %+v", chunks, want)
	}
	for index := range want {
		if chunks[index] != want[index] {
			t.Errorf("chunks[%d] = %+v, want %+v", index, chunks[index], want[index])
		}
	}
	if done.Text != "Test response" {
		t.Errorf("onDone response text = %q, want Test response", done.Text)
	}
}

func TestProviderStream_CurrentResponse(t *testing.T) {
	t.Parallel()

	chunks := collect(t, ProviderStream(scriptedEvents("T", "est response"), CurrentResponse, nil))
	want := []Chunk{{Text: "T"}, {Text: "Test response"}, {Text: "Test response", Complete: true}}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %+v, want %+v", chunks, want)
	}
	for index := range want {
		if chunks[index] != want[index] {
			t.Errorf("chunks[%d] = %+v, want %+v", index, chunks[index], want[index])
		}
	}
}

func TestProviderStream_MidStreamError(t *testing.T) {
	t.Parallel()

	sent := false
	events := llm.NewEventStream(func() (llm.StreamEvent, error) {
		if !sent {
			sent = true
			return llm.StreamEvent{Type: llm.EventError, Error: io.ErrUnexpectedEOF}, nil
		}
		return llm.StreamEvent{}, io.EOF
	}, nil)

	_, err := ProviderStream(events, ChunkByChunk, nil).Next()
	if err == nil || !strings.Contains(err.Error(), "unexpected EOF") {
		t.Errorf("Next() error = %v, want unexpected EOF", err)
	}
}

func TestProviderStream_EndWithoutDoneIsIncomplete(t *testing.T) {
	t.Parallel()

	sent := false
	events := llm.NewEventStream(func() (llm.StreamEvent, error) {
		if !sent {
			sent = true
			return llm.StreamEvent{Type: llm.EventTextDelta, Text: "Test resp"}, nil
		}
		return llm.StreamEvent{}, io.EOF
	}, nil)

	doneCalled := false
	chunks := collect(t, ProviderStream(events, ChunkByChunk, func(llm.Response) { doneCalled = true }))
	if len(chunks) != 1 || chunks[0] != (Chunk{Text: "Test resp"}) {
		t.Errorf("chunks = %+v, want [{Text:Test resp}]", chunks)
	}
	if doneCalled {
		t.Error("onDone called for a stream that never finished")
	}
}
