// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contextwindow

import (
	"math"
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{"你好", 2},
		{"ab你", 2},
	}
	for _, test := range tests {
		if got := EstimateTokens(test.text); got != test.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", test.text, got, test.want)
		}
	}
}

func TestCharEstimator_FirstObservationReplacesDefault(t *testing.T) {
	t.Parallel()

	estimator := NewCharEstimator()
	turns := []Turn{UserTurn(strings.Repeat("a", 80), 0)}
	// 80 chars + 20 overhead = 100 characters over 50 tokens.
	estimator.RecordUsage(turns, 50)

	if ratio := estimator.Ratio(); math.Abs(ratio-2.0) > 1e-9 {
		t.Errorf("Ratio() = %v, want 2.0", ratio)
	}
}

func TestCharEstimator_SmoothsLaterObservations(t *testing.T) {
	t.Parallel()

	estimator := NewCharEstimator()
	turns := []Turn{UserTurn(strings.Repeat("a", 80), 0)}
	estimator.RecordUsage(turns, 50)  // ratio 2.0
	estimator.RecordUsage(turns, 100) // observed 1.0

	want := 0.3*1.0 + 0.7*2.0
	if ratio := estimator.Ratio(); math.Abs(ratio-want) > 1e-9 {
		t.Errorf("Ratio() = %v, want %v", ratio, want)
	}
}

func TestCharEstimator_IgnoresEmptyObservations(t *testing.T) {
	t.Parallel()

	estimator := NewCharEstimator()
	estimator.RecordUsage(nil, 10)
	estimator.RecordUsage([]Turn{UserTurn("abc", 0)}, 0)
	if estimator.Ratio() != defaultCharactersPerToken {
		t.Errorf("Ratio() = %v, want %v", estimator.Ratio(), defaultCharactersPerToken)
	}
}

func TestCharEstimator_NeverBelowUnicodeHeuristic(t *testing.T) {
	t.Parallel()

	estimator := NewCharEstimator()
	text := strings.Repeat("字", 40)
	if got, floor := estimator.EstimateText(text), EstimateTokens(text); got < floor {
		t.Errorf("EstimateText() = %d, below EstimateTokens() = %d", got, floor)
	}
}
