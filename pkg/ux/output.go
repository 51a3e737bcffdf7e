// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the ensemble CLI.
//
// Styling degrades to plain text when stdout is not a terminal or when
// NO_COLOR is set, so piped output stays machine-readable.
package ux

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Muted text
	ColorWarning     = lipgloss.Color("#F4D03F") // Gold for warnings
	ColorError       = lipgloss.Color("#E74C3C") // Red for errors
)

// Styles provides pre-configured lipgloss styles for the CLI.
var Styles = struct {
	Title     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary),
	Success:   lipgloss.NewStyle().Foreground(ColorTealBright),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError).Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// plain reports whether styling should be suppressed.
func plain() bool {
	if os.Getenv("NO_COLOR") != "" {
		return true
	}
	return !isatty.IsTerminal(os.Stdout.Fd())
}

// Header renders a section header line, e.g. for one example's result.
func Header(text string) string {
	if plain() {
		return fmt.Sprintf("=== %s ===", text)
	}
	return Styles.Title.Render(text)
}

// KeyValue renders a muted "key: value" line.
func KeyValue(key, value string) string {
	if plain() {
		return fmt.Sprintf("%s: %s", key, value)
	}
	return Styles.Muted.Render(key+":") + " " + value
}

// Success prints a success line with a check mark.
func Success(message string) {
	if plain() {
		fmt.Println("OK: " + message)
		return
	}
	fmt.Println(Styles.Success.Render("✓ " + message))
}

// Warning prints a warning line.
func Warning(message string) {
	if plain() {
		fmt.Println("WARNING: " + message)
		return
	}
	fmt.Println(Styles.Warning.Render("⚠ " + message))
}

// Error prints an error line to stderr.
func Error(message string) {
	if plain() {
		fmt.Fprintln(os.Stderr, "ERROR: "+message)
		return
	}
	fmt.Fprintln(os.Stderr, Styles.Error.Render("✗ "+message))
}

// Divider returns a horizontal rule sized to the given width.
func Divider(width int) string {
	if width <= 0 {
		width = 40
	}
	if plain() {
		return strings.Repeat("-", width)
	}
	return Styles.Muted.Render(strings.Repeat("─", width))
}
