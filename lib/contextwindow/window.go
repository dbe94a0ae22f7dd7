// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contextwindow

import (
	"fmt"
	"slices"
)

// Window is a token-bounded conversation history. See the package
// documentation for the eviction model.
//
// Window is not safe for concurrent use. It is owned by exactly one
// session, which serializes access.
type Window struct {
	maxTokens     int
	initial       []Turn
	initialTokens int
	rolling       []Turn
	rollingTokens int
}

// New creates a window with the given capacity and initial turns.
// Panics if the initial turns alone cost more than maxTokens.
func New(maxTokens int, initial ...Turn) *Window {
	initialTokens := TotalTokens(initial)
	if initialTokens > maxTokens {
		panic(fmt.Sprintf("contextwindow: initial turns cost %d tokens, exceeding max %d", initialTokens, maxTokens))
	}
	return &Window{
		maxTokens:     maxTokens,
		initial:       slices.Clone(initial),
		initialTokens: initialTokens,
	}
}

// Restore rebuilds a window from persisted parts. Unlike [New] it
// returns an error for an oversized initial region, since the parts
// come from storage rather than from code. Rolling turns are re-added
// in order through [Window.AddTurn], so a snapshot taken under a larger
// capacity is trimmed to fit this one.
func Restore(maxTokens int, initial, rolling []Turn) (*Window, error) {
	if initialTokens := TotalTokens(initial); initialTokens > maxTokens {
		return nil, fmt.Errorf("initial turns cost %d tokens, exceeding max %d", initialTokens, maxTokens)
	}
	window := New(maxTokens, initial...)
	for _, turn := range rolling {
		window.AddTurn(turn)
	}
	return window, nil
}

// AddTurn appends turn to the rolling region, evicting the oldest
// rolling turns until it fits within [Window.Budget]. A turn that
// cannot fit even in an empty rolling region clears the region and is
// not admitted. Returns whether any turn was evicted.
func (window *Window) AddTurn(turn Turn) bool {
	budget := window.Budget()

	if turn.Tokens > budget {
		evicted := len(window.rolling) > 0
		window.rolling = nil
		window.rollingTokens = 0
		return evicted
	}

	evictCount := 0
	remaining := window.rollingTokens
	for remaining+turn.Tokens > budget {
		remaining -= window.rolling[evictCount].Tokens
		evictCount++
	}
	if evictCount > 0 {
		window.rolling = slices.Delete(window.rolling, 0, evictCount)
	}

	window.rolling = append(window.rolling, turn)
	window.rollingTokens = remaining + turn.Tokens
	return evictCount > 0
}

// HasAnyTurn reports whether the window holds any initial or rolling
// turn.
func (window *Window) HasAnyTurn() bool {
	return len(window.initial) > 0 || len(window.rolling) > 0
}

// Materialize returns the window's contents as a request payload:
// initial turns then rolling turns, oldest first. The returned slices
// are copies.
func (window *Window) Materialize() Payload {
	return Payload{
		Initial: slices.Clone(window.initial),
		History: slices.Clone(window.rolling),
	}
}

// Clone returns a deep copy whose eviction state evolves independently
// of the original.
func (window *Window) Clone() *Window {
	return &Window{
		maxTokens:     window.maxTokens,
		initial:       slices.Clone(window.initial),
		initialTokens: window.initialTokens,
		rolling:       slices.Clone(window.rolling),
		rollingTokens: window.rollingTokens,
	}
}

// InitialTurns returns a copy of the initial region.
func (window *Window) InitialTurns() []Turn { return slices.Clone(window.initial) }

// RollingTurns returns a copy of the rolling region, oldest first.
func (window *Window) RollingTurns() []Turn { return slices.Clone(window.rolling) }

// MaxTokens returns the fixed capacity.
func (window *Window) MaxTokens() int { return window.maxTokens }

// InitialTokens returns the cost of the initial region.
func (window *Window) InitialTokens() int { return window.initialTokens }

// RollingTokens returns the cost of the rolling region.
func (window *Window) RollingTokens() int { return window.rollingTokens }

// CurrentTokens returns the cost of everything the window holds.
func (window *Window) CurrentTokens() int { return window.initialTokens + window.rollingTokens }

// Budget returns the capacity available to rolling turns.
func (window *Window) Budget() int { return window.maxTokens - window.initialTokens }
