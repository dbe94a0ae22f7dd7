// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contextwindow

import (
	"slices"
	"strings"
)

// Payload is the structured request handed to an executor. Initial
// and History come from [Window.Materialize]; Current holds the turns
// of the request being made, which are not yet part of the window.
type Payload struct {
	Initial []Turn
	History []Turn
	Current []Turn
}

// WithCurrent returns a copy of the payload with turns appended to
// Current.
func (payload Payload) WithCurrent(turns ...Turn) Payload {
	return Payload{
		Initial: payload.Initial,
		History: payload.History,
		Current: append(slices.Clone(payload.Current), turns...),
	}
}

// Turns returns initial, history, and current turns as one ordered
// slice.
func (payload Payload) Turns() []Turn {
	turns := make([]Turn, 0, len(payload.Initial)+len(payload.History)+len(payload.Current))
	turns = append(turns, payload.Initial...)
	turns = append(turns, payload.History...)
	return append(turns, payload.Current...)
}

// Empty reports whether the payload has no turns at all.
func (payload Payload) Empty() bool {
	return len(payload.Initial) == 0 && len(payload.History) == 0 && len(payload.Current) == 0
}

// Tokens sums the token cost of every turn in the payload.
func (payload Payload) Tokens() int {
	return TotalTokens(payload.Initial) + TotalTokens(payload.History) + TotalTokens(payload.Current)
}

// RenderText flattens the payload into the legacy single-string prompt
// format. Each turn becomes "<Label>: <text>\n" with labels "User" and
// "Model"; system turns are written bare. When Current is non-empty
// the result ends with "Model: " to ask for the assistant's
// continuation.
func (payload Payload) RenderText() string {
	return payload.render(textLabel)
}

// String renders the payload with compact role markers ("S: ", "U: ",
// "M: "), for logs and diagnostics.
func (payload Payload) String() string {
	return payload.render(compactLabel)
}

func (payload Payload) render(label func(Role) string) string {
	var builder strings.Builder
	for _, turn := range payload.Turns() {
		builder.WriteString(label(turn.Role))
		builder.WriteString(turn.Text)
		builder.WriteByte('\n')
	}
	if len(payload.Current) > 0 {
		builder.WriteString(label(RoleAssistant))
	}
	return builder.String()
}

func textLabel(role Role) string {
	switch role {
	case RoleUser:
		return "User: "
	case RoleAssistant:
		return "Model: "
	default:
		return ""
	}
}

func compactLabel(role Role) string {
	switch role {
	case RoleSystem:
		return "S: "
	case RoleUser:
		return "U: "
	case RoleAssistant:
		return "M: "
	default:
		return ""
	}
}
