// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package languagemodel manages conversational language-model
// sessions.
//
// A [Manager] creates sessions for a capability after checking that
// the executor backend can serve it. When the backend reports that the
// model will be available after a download, creation waits: the
// request is registered as pending and resumes when the backend
// announces an availability change, or is abandoned when the caller's
// context is cancelled. All other unavailability is reported
// immediately as a [CreationError] carrying the [Availability] code.
//
// A [Session] owns one executor session and one
// [contextwindow.Window]. [Session.Prompt] executes the conversation
// so far plus the new input, streams the response to listeners, and on
// success commits the user input and the response to the window,
// evicting the oldest history when the token budget is exceeded. A
// failed prompt leaves the window untouched. A session runs one
// execution at a time; a Prompt or CountPromptTokens call that arrives
// while another is in flight fails with [ErrExecutionInProgress].
//
// [Session.Fork] creates a sibling session from a deep copy of the
// window. The sibling gets its own executor session through the same
// creation path, except that it may never wait for a download: the
// model was evidently available when the original was created, so the
// pending branch is an internal fault.
//
// Sessions refer back to their manager only through a narrow interface
// keyed by session ID, and the manager's registry is the only place
// sessions are enumerated.
//
// Streamed text is delivered to a [Listener] as deltas regardless of
// how the backend chunks it. [FullResponse] wraps a listener so that
// it sees the response so far instead.
package languagemodel
