// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contextwindow

import (
	"sync"
	"unicode/utf8"
)

// defaultCharactersPerToken is the ratio before calibration. BPE
// tokenizers average 3.5-4.5 characters per token on English text;
// 4.0 errs toward overestimating.
const defaultCharactersPerToken = 4.0

// defaultSmoothingFactor is the weight of a new observation in the
// running ratio.
const defaultSmoothingFactor = 0.3

// perTurnOverheadCharacters approximates the role markers and
// separators a model API wraps around each turn.
const perTurnOverheadCharacters = 20

// CharEstimator estimates token counts from character counts with a
// ratio calibrated from real usage reports. The first observation
// replaces the default ratio outright; later observations are blended
// by exponential moving average.
//
// Each estimate is the larger of the calibrated character estimate and
// [EstimateTokens], so text in scripts the character ratio undercounts
// (CJK, emoji) is still sized conservatively.
//
// CharEstimator is safe for concurrent use.
type CharEstimator struct {
	mu                 sync.Mutex
	charactersPerToken float64
	smoothingFactor    float64
	observationCount   int
}

// NewCharEstimator returns an estimator with the default ratio.
func NewCharEstimator() *CharEstimator {
	return &CharEstimator{
		charactersPerToken: defaultCharactersPerToken,
		smoothingFactor:    defaultSmoothingFactor,
	}
}

// EstimateText returns the estimated token count of a bare string.
func (estimator *CharEstimator) EstimateText(text string) int {
	estimator.mu.Lock()
	ratio := estimator.charactersPerToken
	estimator.mu.Unlock()

	characterEstimate := int(float64(utf8.RuneCountInString(text))/ratio) + 1
	return max(characterEstimate, EstimateTokens(text))
}

// EstimateTurns returns the estimated token count of a sequence of
// turns, including per-turn overhead.
func (estimator *CharEstimator) EstimateTurns(turns []Turn) int {
	estimator.mu.Lock()
	ratio := estimator.charactersPerToken
	estimator.mu.Unlock()

	characters := turnsCharCount(turns)
	weighted := 0
	for _, turn := range turns {
		weighted += EstimateTokens(turn.Text)
	}
	return max(int(float64(characters)/ratio)+1, weighted)
}

// RecordUsage calibrates the ratio from the input token count a model
// reported for turns.
func (estimator *CharEstimator) RecordUsage(turns []Turn, actualInputTokens int64) {
	if actualInputTokens <= 0 {
		return
	}
	characters := turnsCharCount(turns)
	if characters == 0 {
		return
	}
	observedRatio := float64(characters) / float64(actualInputTokens)

	estimator.mu.Lock()
	defer estimator.mu.Unlock()

	estimator.observationCount++
	if estimator.observationCount == 1 {
		estimator.charactersPerToken = observedRatio
		return
	}
	estimator.charactersPerToken = estimator.smoothingFactor*observedRatio +
		(1.0-estimator.smoothingFactor)*estimator.charactersPerToken
}

// Ratio returns the current characters-per-token ratio.
func (estimator *CharEstimator) Ratio() float64 {
	estimator.mu.Lock()
	defer estimator.mu.Unlock()
	return estimator.charactersPerToken
}

func turnsCharCount(turns []Turn) int {
	total := 0
	for _, turn := range turns {
		total += utf8.RuneCountInString(turn.Text) + perTurnOverheadCharacters
	}
	return total
}

// EstimateTokens is a calibration-free estimate that weighs ASCII
// characters at a quarter token each and every other rune at a full
// token. It overcounts mixed text slightly and never undercounts CJK.
func EstimateTokens(text string) int {
	weight := 0
	for _, r := range text {
		if r < utf8.RuneSelf {
			weight++
		} else {
			weight += 4
		}
	}
	return (weight + 3) / 4
}
