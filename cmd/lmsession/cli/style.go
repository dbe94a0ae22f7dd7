// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)

	readyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	faintStyle = lipgloss.NewStyle().Faint(true)

	barFilledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	barEmptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// RoleLabel renders the transcript label for a turn role ("user",
// "assistant", "system").
func RoleLabel(role string) string {
	switch role {
	case "user":
		return userStyle.Render("you")
	case "assistant":
		return assistantStyle.Render("model")
	case "system":
		return systemStyle.Render("system")
	default:
		return faintStyle.Render(role)
	}
}

// Status colors an availability or outcome string: "readily" in green,
// "after-download" in yellow, anything else in red.
func Status(code string) string {
	switch code {
	case "readily":
		return readyStyle.Render(code)
	case "after-download":
		return pendingStyle.Render(code)
	default:
		return failureStyle.Render(code)
	}
}

// Faint renders secondary text such as session statistics.
func Faint(text string) string {
	return faintStyle.Render(text)
}

// SanitizeModelOutput removes terminal escape sequences from text
// produced by a model so it cannot move the cursor or recolor the
// terminal.
func SanitizeModelOutput(text string) string {
	return ansi.Strip(text)
}

// ProgressBar renders "[█████░░░░░]  50%  1.0 MiB / 2.0 MiB" with a
// bar of width cells. An unknown total (zero) renders only the byte
// count.
func ProgressBar(downloaded, total int64, width int) string {
	if total <= 0 {
		return fmt.Sprintf("%s downloaded", FormatBytes(downloaded))
	}
	fraction := min(float64(downloaded)/float64(total), 1)
	filled := int(fraction * float64(width))
	bar := barFilledStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("[%s] %3d%%  %s / %s", bar, int(fraction*100), FormatBytes(downloaded), FormatBytes(total))
}

// FormatBytes formats a byte count with binary units.
func FormatBytes(count int64) string {
	const unit = 1024
	if count < unit {
		return fmt.Sprintf("%d B", count)
	}
	divisor, exponent := int64(unit), 0
	for remaining := count / unit; remaining >= unit; remaining /= unit {
		divisor *= unit
		exponent++
	}
	return fmt.Sprintf("%.1f %ciB", float64(count)/float64(divisor), "KMGTPE"[exponent])
}
