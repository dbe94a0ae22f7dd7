// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package languagemodel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/languagemodel/lib/clock"
	"github.com/bureau-foundation/languagemodel/lib/executor/executortest"
	"github.com/bureau-foundation/languagemodel/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const testTimeout = 5 * time.Second

func newTestManager(t *testing.T, backend *executortest.Backend, configure ...func(*Config)) *Manager {
	t.Helper()
	config := Config{
		Backend: backend,
		Logger:  testutil.Logger(t),
		Clock:   clock.NewFake(epoch),
	}
	for _, apply := range configure {
		apply(&config)
	}
	manager, err := NewManager(config)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return manager
}

func createSession(t *testing.T, manager *Manager, options CreateOptions) *Session {
	t.Helper()
	session, _, err := manager.CreateSession(context.Background(), options)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return session
}

func requireCreationError(t *testing.T, err error, code CreationErrorCode) *CreationError {
	t.Helper()
	var creationErr *CreationError
	if !errors.As(err, &creationErr) {
		t.Fatalf("error = %v, want *CreationError", err)
	}
	if creationErr.Code != code {
		t.Fatalf("CreationError.Code = %v, want %v (error: %v)", creationErr.Code, code, err)
	}
	return creationErr
}

// recorder is a Listener that records everything it receives.
type recorder struct {
	mu          sync.Mutex
	events      []string
	streamed    []string
	completions []Completion
	errs        []error
}

func (recorder *recorder) OnStreaming(text string) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.events = append(recorder.events, "streaming")
	recorder.streamed = append(recorder.streamed, text)
}

func (recorder *recorder) OnCompletion(completion Completion) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.events = append(recorder.events, "completion")
	recorder.completions = append(recorder.completions, completion)
}

func (recorder *recorder) OnError(err error) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.events = append(recorder.events, "error")
	recorder.errs = append(recorder.errs, err)
}

func (recorder *recorder) OnContextOverflow() {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.events = append(recorder.events, "overflow")
}

func (recorder *recorder) Events() []string {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	return append([]string(nil), recorder.events...)
}

func (recorder *recorder) Streamed() []string {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	return append([]string(nil), recorder.streamed...)
}

func (recorder *recorder) Completions() []Completion {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	return append([]Completion(nil), recorder.completions...)
}

func (recorder *recorder) Errors() []error {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	return append([]error(nil), recorder.errs...)
}
