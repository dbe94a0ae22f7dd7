// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"errors"
	"io"
	"strings"

	"github.com/bureau-foundation/languagemodel/lib/contextwindow"
	"github.com/bureau-foundation/languagemodel/lib/llm"
)

// ProviderStream adapts an [llm.EventStream] to [Stream], emitting
// chunks in mode. onDone, if non-nil, receives the accumulated
// response once the provider signals the end of generation, before
// the Complete chunk is returned. A body that ends without the
// provider's done marker yields io.EOF with no Complete chunk, so the
// partial text is never mistaken for a finished response.
func ProviderStream(events *llm.EventStream, mode StreamingMode, onDone func(llm.Response)) Stream {
	return &providerStream{events: events, mode: mode, onDone: onDone}
}

type providerStream struct {
	events   *llm.EventStream
	mode     StreamingMode
	onDone   func(llm.Response)
	response strings.Builder
	finished bool
}

func (stream *providerStream) Next() (Chunk, error) {
	if stream.finished {
		return Chunk{}, io.EOF
	}
	for {
		event, err := stream.events.Next()
		if errors.Is(err, io.EOF) {
			stream.finished = true
			return Chunk{}, io.EOF
		}
		if err != nil {
			return Chunk{}, err
		}

		switch event.Type {
		case llm.EventTextDelta:
			stream.response.WriteString(event.Text)
			if stream.mode == CurrentResponse {
				return Chunk{Text: stream.response.String()}, nil
			}
			return Chunk{Text: event.Text}, nil
		case llm.EventDone:
			return stream.complete(), nil
		case llm.EventError:
			return Chunk{}, event.Error
		}
	}
}

func (stream *providerStream) complete() Chunk {
	stream.finished = true
	if stream.onDone != nil {
		stream.onDone(stream.events.Response())
	}
	if stream.mode == CurrentResponse {
		return Chunk{Text: stream.response.String(), Complete: true}
	}
	return Chunk{Complete: true}
}

func (stream *providerStream) Close() error { return stream.events.Close() }

// ProviderRequest maps turns onto a provider request. System turns join,
// in order, into the system string; consecutive user or assistant
// turns merge into one message separated by a blank line.
func ProviderRequest(model string, turns []contextwindow.Turn, sampling SamplingParams, maxOutputTokens int) llm.Request {
	request := llm.Request{Model: model, MaxTokens: maxOutputTokens}
	if sampling.TopK > 0 {
		topK := sampling.TopK
		request.TopK = &topK
	}
	temperature := sampling.Temperature
	request.Temperature = &temperature

	var system []string
	for _, turn := range turns {
		if turn.Role == contextwindow.RoleSystem {
			system = append(system, turn.Text)
			continue
		}
		role := llm.RoleUser
		if turn.Role == contextwindow.RoleAssistant {
			role = llm.RoleAssistant
		}
		if last := len(request.Messages) - 1; last >= 0 && request.Messages[last].Role == role {
			request.Messages[last].Text += "\n\n" + turn.Text
			continue
		}
		request.Messages = append(request.Messages, llm.Message{Role: role, Text: turn.Text})
	}
	request.System = strings.Join(system, "\n\n")
	return request
}
