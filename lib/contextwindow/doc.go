// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package contextwindow holds the bounded conversational history of a
// language-model session.
//
// A [Window] has two regions. The initial turns (a system prompt plus
// any seed conversation) are fixed at construction, always included in
// the materialized request, and never evicted. The rolling turns are a
// FIFO of exchanges appended after construction; when a new turn would
// push the rolling region past its budget, the oldest rolling turns are
// evicted until it fits.
//
// The rolling budget is MaxTokens minus the cost of the initial turns.
// Constructing a window whose initial turns alone exceed MaxTokens is a
// programming error and panics: callers that accept untrusted initial
// prompts must size them first and reject the overflow themselves.
//
// [Window.Materialize] produces a [Payload], the structured request an
// executor consumes. [Payload.RenderText] flattens it into the legacy
// "User: ...\nModel: ..." text form for executors that take a single
// prompt string.
//
// Token counts on a [Turn] are supplied by the caller (normally the
// executor's own tokenizer). [CharEstimator] and [EstimateTokens]
// provide heuristics for executors that have no tokenizer of their own.
package contextwindow
