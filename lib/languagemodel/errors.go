// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package languagemodel

import (
	"errors"
	"fmt"
)

var (
	// ErrExecutionInProgress is returned by Prompt and
	// CountPromptTokens while another call on the same session is in
	// flight.
	ErrExecutionInProgress = errors.New("languagemodel: execution already in progress")

	// ErrSessionDestroyed is returned by operations on a destroyed
	// session, and by a Prompt whose session was destroyed while it
	// ran.
	ErrSessionDestroyed = errors.New("languagemodel: session destroyed")

	// ErrInternalFault marks states the manager's own invariants rule
	// out, such as a fork waiting for a model download.
	ErrInternalFault = errors.New("languagemodel: internal fault")

	// ErrManagerClosed is returned by creation after Close.
	ErrManagerClosed = errors.New("languagemodel: manager closed")

	// ErrIncompleteResponse is returned when an execution stream ends
	// without a completion chunk.
	ErrIncompleteResponse = errors.New("languagemodel: response ended before completion")

	// ErrNoSnapshotStore is returned by save and restore when the
	// manager has no snapshot store.
	ErrNoSnapshotStore = errors.New("languagemodel: no snapshot store configured")
)

// CreationErrorCode classifies a failed session creation.
type CreationErrorCode int

const (
	// CreationUnavailable: the backend cannot serve the capability.
	// CreationError.Availability says why.
	CreationUnavailable CreationErrorCode = iota

	// CreationUnableToCalculateTokenSize: the backend produced no
	// session, or could not size the initial prompts.
	CreationUnableToCalculateTokenSize

	// CreationInitialPromptsTooLarge: the initial prompts alone exceed
	// the session's context capacity.
	CreationInitialPromptsTooLarge

	// CreationInvalidInitialPrompt: an initial prompt has an unknown
	// role.
	CreationInvalidInitialPrompt
)

func (code CreationErrorCode) String() string {
	switch code {
	case CreationUnavailable:
		return "unavailable"
	case CreationUnableToCalculateTokenSize:
		return "unable-to-calculate-token-size"
	case CreationInitialPromptsTooLarge:
		return "initial-prompts-too-large"
	case CreationInvalidInitialPrompt:
		return "invalid-initial-prompt"
	default:
		return fmt.Sprintf("CreationErrorCode(%d)", int(code))
	}
}

// CreationError is returned when a session cannot be created. No
// session object exists after a creation error.
type CreationError struct {
	Code CreationErrorCode

	// Availability is meaningful for CreationUnavailable.
	Availability Availability

	Err error
}

func (err *CreationError) Error() string {
	message := "languagemodel: creating session: " + err.Code.String()
	if err.Code == CreationUnavailable {
		message += " (" + err.Availability.String() + ")"
	}
	if err.Err != nil {
		message += ": " + err.Err.Error()
	}
	return message
}

func (err *CreationError) Unwrap() error { return err.Err }
