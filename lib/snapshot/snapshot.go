// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/languagemodel/lib/contextwindow"
	"github.com/bureau-foundation/languagemodel/lib/executor"
)

// Snapshot is the persisted form of a session.
type Snapshot struct {
	ID         string                  `json:"id"`
	Capability executor.Capability     `json:"capability"`
	Sampling   executor.SamplingParams `json:"sampling"`
	MaxTokens  int                     `json:"max_tokens"`
	Initial    []contextwindow.Turn    `json:"initial,omitempty"`
	Rolling    []contextwindow.Turn    `json:"rolling,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

// Capture records window under id. The turns are copied.
func Capture(id string, capability executor.Capability, sampling executor.SamplingParams, window *contextwindow.Window, createdAt time.Time) Snapshot {
	return Snapshot{
		ID:         id,
		Capability: capability,
		Sampling:   sampling,
		MaxTokens:  window.MaxTokens(),
		Initial:    window.InitialTurns(),
		Rolling:    window.RollingTurns(),
		CreatedAt:  createdAt,
	}
}

// Window rebuilds the context window with maxTokens as its budget.
// A zero maxTokens keeps the recorded budget. Rolling turns are
// replayed oldest first, so a smaller budget evicts the oldest
// history; initial turns that no longer fit are an error.
func (snapshot Snapshot) Window(maxTokens int) (*contextwindow.Window, error) {
	if maxTokens == 0 {
		maxTokens = snapshot.MaxTokens
	}
	window, err := contextwindow.Restore(maxTokens, snapshot.Initial, snapshot.Rolling)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", snapshot.ID, err)
	}
	return window, nil
}

// Turns returns the initial turns followed by the rolling turns.
func (snapshot Snapshot) Turns() []contextwindow.Turn {
	turns := make([]contextwindow.Turn, 0, len(snapshot.Initial)+len(snapshot.Rolling))
	turns = append(turns, snapshot.Initial...)
	return append(turns, snapshot.Rolling...)
}
