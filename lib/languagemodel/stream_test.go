// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package languagemodel

import (
	"errors"
	"slices"
	"testing"

	"github.com/bureau-foundation/languagemodel/lib/executor"
)

func TestDeltaReader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mode   executor.StreamingMode
		chunks []string
		deltas []string
		text   string
	}{
		{
			name:   "chunk by chunk",
			mode:   executor.ChunkByChunk,
			chunks: []string{"T", "est response", ""},
			deltas: []string{"T", "est response", ""},
			text:   "Test response",
		},
		{
			name:   "current response",
			mode:   executor.CurrentResponse,
			chunks: []string{"T", "Test response", "Test response"},
			deltas: []string{"T", "est response", ""},
			text:   "Test response",
		},
		{
			name:   "current response rewrites",
			mode:   executor.CurrentResponse,
			chunks: []string{"Hel", "Help", "Hi there"},
			deltas: []string{"Hel", "p", "Hi there"},
			text:   "Hi there",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			reader := deltaReader{mode: test.mode}
			var deltas []string
			for _, text := range test.chunks {
				deltas = append(deltas, reader.delta(executor.Chunk{Text: text}))
			}
			if !slices.Equal(deltas, test.deltas) {
				t.Errorf("deltas = %q, want %q", deltas, test.deltas)
			}
			if got := reader.text(); got != test.text {
				t.Errorf("text() = %q, want %q", got, test.text)
			}
		})
	}
}

func TestAvailabilityString(t *testing.T) {
	t.Parallel()

	if got := AvailabilityAfterDownload.String(); got != "after-download" {
		t.Errorf("String() = %q, want after-download", got)
	}
	if got := Availability(-1).String(); got != "Availability(-1)" {
		t.Errorf("String() = %q, want Availability(-1)", got)
	}
}

func TestAvailabilityFromEligibilityCoversEveryReason(t *testing.T) {
	t.Parallel()

	seen := make(map[Availability]executor.Eligibility)
	for eligibility := executor.EligibilityUnknown; eligibility <= executor.EligibilityNoOnDeviceFeatureUsed; eligibility++ {
		availability := AvailabilityFromEligibility(eligibility)
		switch eligibility {
		case executor.EligibilityModelToBeInstalled, executor.EligibilityNoOnDeviceFeatureUsed, executor.EligibilityUnknown:
			continue
		}
		if availability == AvailabilityNoUnknown {
			t.Errorf("%v maps to %v", eligibility, availability)
		}
		if previous, duplicate := seen[availability]; duplicate {
			t.Errorf("%v and %v both map to %v", previous, eligibility, availability)
		}
		seen[availability] = eligibility
	}
}

func TestListenerFuncsSkipsNilFields(t *testing.T) {
	t.Parallel()

	var errs []error
	listener := ListenerFuncs{Error: func(err error) { errs = append(errs, err) }}
	listener.OnStreaming("ignored")
	listener.OnContextOverflow()
	listener.OnCompletion(Completion{})
	listener.OnError(ErrIncompleteResponse)
	if len(errs) != 1 || !errors.Is(errs[0], ErrIncompleteResponse) {
		t.Errorf("errors = %v, want [ErrIncompleteResponse]", errs)
	}
}

func TestFullResponseResetsBetweenPrompts(t *testing.T) {
	t.Parallel()

	var streamed []string
	listener := FullResponse(ListenerFuncs{Streaming: func(text string) { streamed = append(streamed, text) }})
	listener.OnStreaming("T")
	listener.OnStreaming("est")
	listener.OnCompletion(Completion{Response: "Test"})
	listener.OnStreaming("N")
	listener.OnError(errors.New("boom"))
	listener.OnStreaming("O")

	want := []string{"T", "Test", "N", "O"}
	if !slices.Equal(streamed, want) {
		t.Errorf("streamed = %q, want %q", streamed, want)
	}
}

func TestListenerSetOrder(t *testing.T) {
	t.Parallel()

	var set listenerSet
	var order []string
	named := func(name string) Listener {
		return ListenerFuncs{Completion: func(Completion) { order = append(order, name) }}
	}
	set.add(named("first"))
	removeSecond := set.add(named("second"))
	set.add(named("third"))
	removeSecond()

	for _, listener := range set.with(named("prompt")) {
		listener.OnCompletion(Completion{})
	}
	if want := []string{"first", "third", "prompt"}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if got := len(set.with(nil)); got != 2 {
		t.Errorf("len(with(nil)) = %d, want 2", got)
	}
}
