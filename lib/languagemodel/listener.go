// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package languagemodel

import (
	"strings"
	"sync"
)

// Info is a session's context sizing.
type Info struct {
	MaxTokens     int
	CurrentTokens int
}

// Completion is delivered when a prompt finishes successfully.
type Completion struct {
	// Response is the full response text.
	Response string

	// Info is the sizing after the exchange was committed.
	Info Info
}

// Listener receives the events of a prompt. For each prompt, zero or
// more OnStreaming calls (and at most one OnContextOverflow) precede
// exactly one OnCompletion or OnError, unless the session is destroyed
// first, in which case nothing further is delivered.
//
// Methods are called on the goroutine running Prompt.
type Listener interface {
	// OnStreaming receives the next fragment of the response.
	OnStreaming(text string)

	OnCompletion(completion Completion)
	OnError(err error)

	// OnContextOverflow reports that committing the exchange evicted
	// older turns. It is called before OnCompletion.
	OnContextOverflow()
}

// ListenerFuncs adapts functions to [Listener]. Nil fields are
// skipped.
type ListenerFuncs struct {
	Streaming       func(text string)
	Completion      func(completion Completion)
	Error           func(err error)
	ContextOverflow func()
}

func (funcs ListenerFuncs) OnStreaming(text string) {
	if funcs.Streaming != nil {
		funcs.Streaming(text)
	}
}

func (funcs ListenerFuncs) OnCompletion(completion Completion) {
	if funcs.Completion != nil {
		funcs.Completion(completion)
	}
}

func (funcs ListenerFuncs) OnError(err error) {
	if funcs.Error != nil {
		funcs.Error(err)
	}
}

func (funcs ListenerFuncs) OnContextOverflow() {
	if funcs.ContextOverflow != nil {
		funcs.ContextOverflow()
	}
}

// FullResponse wraps listener so that each OnStreaming call receives
// the response so far rather than the latest fragment.
func FullResponse(listener Listener) Listener {
	return &fullResponseListener{inner: listener}
}

type fullResponseListener struct {
	inner    Listener
	response strings.Builder
}

func (listener *fullResponseListener) OnStreaming(text string) {
	listener.response.WriteString(text)
	listener.inner.OnStreaming(listener.response.String())
}

func (listener *fullResponseListener) OnCompletion(completion Completion) {
	listener.response.Reset()
	listener.inner.OnCompletion(completion)
}

func (listener *fullResponseListener) OnError(err error) {
	listener.response.Reset()
	listener.inner.OnError(err)
}

func (listener *fullResponseListener) OnContextOverflow() { listener.inner.OnContextOverflow() }

// listenerSet is a session's long-lived listeners.
type listenerSet struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

func (set *listenerSet) add(listener Listener) func() {
	set.mu.Lock()
	defer set.mu.Unlock()
	if set.listeners == nil {
		set.listeners = make(map[int]Listener)
	}
	id := set.nextID
	set.nextID++
	set.listeners[id] = listener
	return func() {
		set.mu.Lock()
		defer set.mu.Unlock()
		delete(set.listeners, id)
	}
}

// with returns the registered listeners followed by extra, if non-nil.
func (set *listenerSet) with(extra Listener) []Listener {
	set.mu.Lock()
	defer set.mu.Unlock()
	listeners := make([]Listener, 0, len(set.listeners)+1)
	for id := range set.nextID {
		if listener, found := set.listeners[id]; found {
			listeners = append(listeners, listener)
		}
	}
	if extra != nil {
		listeners = append(listeners, extra)
	}
	return listeners
}
