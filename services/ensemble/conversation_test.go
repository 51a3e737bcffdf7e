// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNewConversationState_DefaultSystemPrompt verifies the fallback when no
// instruction is given.
func TestNewConversationState_DefaultSystemPrompt(t *testing.T) {
	// Act
	conv := NewConversationState("", "What is 2+2?")

	// Assert
	assert.Contains(t, conv.Render(), DefaultSystemPrompt)
}

// TestRender_EmptyConversation verifies the exact prompt shape before any
// segment is accepted.
func TestRender_EmptyConversation(t *testing.T) {
	// Arrange
	conv := NewConversationState("Be brief.", "  What is 2+2?  ")

	// Act
	got := conv.Render()

	// Assert
	want := "[SYSTEM] Be brief. [/SYSTEM]" +
		"<user>\nWhat is 2+2?\n</user>" +
		"<assistant>\n"
	assert.Equal(t, want, got)
}

// TestRender_SegmentsJoinedWithNewlines verifies accepted segments appear in
// order, newline-separated, after the assistant marker.
func TestRender_SegmentsJoinedWithNewlines(t *testing.T) {
	// Arrange
	conv := NewConversationState("Be brief.", "q")
	conv.Append("First we expand.")
	conv.Append("  Then we simplify.  ")

	// Act
	got := conv.Render()

	// Assert
	assert.Contains(t, got, "<assistant>\nFirst we expand.\nThen we simplify.")
}

// TestRender_Idempotent verifies rendering has no side effects.
func TestRender_Idempotent(t *testing.T) {
	// Arrange
	conv := NewConversationState("s", "q")
	conv.Append("One step.")

	// Act / Assert
	assert.Equal(t, conv.Render(), conv.Render())
}

// TestRenderStructured_JoinsSegmentsWithoutSeparator verifies the structured
// view concatenates segments directly.
func TestRenderStructured_JoinsSegmentsWithoutSeparator(t *testing.T) {
	// Arrange
	conv := NewConversationState("inst", " q ")
	conv.Append("part one ")
	conv.Append("part two")

	// Act
	ex := conv.RenderStructured()

	// Assert
	assert.Equal(t, "inst", ex.Instruction)
	assert.Equal(t, "q", ex.Input)
	assert.Equal(t, "part onepart two", ex.Output)
}

// TestRenderMessages verifies the chat view: three messages, with the
// assistant turn carrying the accumulated text to be continued.
func TestRenderMessages(t *testing.T) {
	// Arrange
	conv := NewConversationState("inst", "q")
	conv.Append("so far")

	// Act
	msgs := conv.RenderMessages()

	// Assert
	assert.Len(t, msgs, 3)
	assert.Equal(t, Message{Role: RoleSystem, Content: "inst"}, msgs[0])
	assert.Equal(t, Message{Role: RoleUser, Content: "q"}, msgs[1])
	assert.Equal(t, Message{Role: RoleAssistant, Content: "so far"}, msgs[2])
}

// TestSegments_ReturnsCopy verifies callers cannot mutate internal state
// through the returned slice.
func TestSegments_ReturnsCopy(t *testing.T) {
	// Arrange
	conv := NewConversationState("s", "q")
	conv.Append("original")

	// Act
	segs := conv.Segments()
	segs[0] = "mutated"

	// Assert
	assert.Equal(t, []string{"original"}, conv.Segments())
}

// TestFinalAnswer verifies the caller-facing output joins with newlines.
func TestFinalAnswer(t *testing.T) {
	// Arrange
	conv := NewConversationState("s", "q")
	assert.Empty(t, conv.FinalAnswer())

	conv.Append("line one")
	conv.Append("line two")

	// Act / Assert
	assert.Equal(t, "line one\nline two", conv.FinalAnswer())
}
