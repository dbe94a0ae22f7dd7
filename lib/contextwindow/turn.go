// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contextwindow

import "fmt"

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the known roles.
func (role Role) Valid() bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ParseRole converts a role name to a Role.
func ParseRole(name string) (Role, error) {
	role := Role(name)
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", name)
	}
	return role, nil
}

// Turn is one role-tagged unit of conversation together with its cost
// in tokens. Turns are values; nothing in this package mutates one
// after it is created.
type Turn struct {
	Role   Role   `json:"role"`
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

// SystemTurn returns a system turn with the given text and cost.
func SystemTurn(text string, tokens int) Turn {
	return Turn{Role: RoleSystem, Text: text, Tokens: tokens}
}

// UserTurn returns a user turn with the given text and cost.
func UserTurn(text string, tokens int) Turn {
	return Turn{Role: RoleUser, Text: text, Tokens: tokens}
}

// AssistantTurn returns an assistant turn with the given text and cost.
func AssistantTurn(text string, tokens int) Turn {
	return Turn{Role: RoleAssistant, Text: text, Tokens: tokens}
}

// TotalTokens sums the token cost of turns.
func TotalTokens(turns []Turn) int {
	total := 0
	for _, turn := range turns {
		total += turn.Tokens
	}
	return total
}
