// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contextwindow

import "testing"

func seededPayload() Payload {
	window := New(100,
		SystemTurn("Test system prompt", 3),
		UserTurn("How are you?", 3),
		AssistantTurn("I'm fine, thank you, and you?", 7),
		UserTurn("I'm fine too.", 4),
	)
	return window.Materialize()
}

func TestRenderText_Context(t *testing.T) {
	t.Parallel()

	want := "Test system prompt\n" +
		"User: How are you?\n" +
		"Model: I'm fine, thank you, and you?\n" +
		"User: I'm fine too.\n"
	if got := seededPayload().RenderText(); got != want {
		t.Errorf("RenderText() = %q, want %q", got, want)
	}
}

func TestRenderText_CurrentPromptsForContinuation(t *testing.T) {
	t.Parallel()

	payload := Payload{}.WithCurrent(UserTurn("Test prompt", 2))
	if got, want := payload.RenderText(), "User: Test prompt\nModel: "; got != want {
		t.Errorf("RenderText() = %q, want %q", got, want)
	}
}

func TestString_CompactMarkers(t *testing.T) {
	t.Parallel()

	payload := seededPayload().WithCurrent(UserTurn("Test prompt", 2))
	want := "S: Test system prompt\n" +
		"U: How are you?\n" +
		"M: I'm fine, thank you, and you?\n" +
		"U: I'm fine too.\n" +
		"U: Test prompt\n" +
		"M: "
	if got := payload.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestWithCurrent_DoesNotAlias(t *testing.T) {
	t.Parallel()

	base := Payload{}.WithCurrent(UserTurn("first", 1))
	first := base.WithCurrent(UserTurn("a", 1))
	second := base.WithCurrent(UserTurn("b", 1))

	if first.Current[1].Text != "a" {
		t.Errorf("first.Current[1] = %q, want a", first.Current[1].Text)
	}
	if second.Current[1].Text != "b" {
		t.Errorf("second.Current[1] = %q, want b", second.Current[1].Text)
	}
	if len(base.Current) != 1 {
		t.Errorf("base.Current has %d turns, want 1", len(base.Current))
	}
}

func TestPayloadTokens(t *testing.T) {
	t.Parallel()

	payload := seededPayload().WithCurrent(UserTurn("x", 2))
	if payload.Tokens() != 19 {
		t.Errorf("Tokens() = %d, want 19", payload.Tokens())
	}
	if payload.Empty() {
		t.Error("Empty() = true, want false")
	}
	if !(Payload{}).Empty() {
		t.Error("Payload{}.Empty() = false, want true")
	}
}
