// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared styling for navstream's terminal output.
//
// USABILITY: Consistent colors across chat, listings and errors
//
// Styles are defined once here and applied through RenderConditional, so
// colors are disabled for non-TTY output and when NO_COLOR is set.

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// PALETTE
// =============================================================================

var (
	colorPurple  = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}
	colorCyan    = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}
	colorEmerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	colorRose    = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}
	colorAmber   = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#6C7086"}
	colorText    = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
)

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			MarginBottom(1)

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Width(20)

	ValueStyle = lipgloss.NewStyle().
			Foreground(colorText)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(colorEmerald).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(colorRose).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(colorAmber)

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	promptStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	userLabelStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(colorPurple).
				Bold(true)

	nodeStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)

	// interruptBoxStyle frames HITL prompts
	interruptBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorAmber).
				Padding(0, 1)

	optionStyle = lipgloss.NewStyle().
			Foreground(colorEmerald)
)

// =============================================================================
// HELPERS
// =============================================================================

// RenderSeparator renders a horizontal separator line. Default width is 70.
func RenderSeparator(width ...int) string {
	w := 70
	if len(width) > 0 && width[0] > 0 {
		w = width[0]
	}
	return SeparatorStyle.Render(strings.Repeat("─", w))
}

// RenderLabel renders a label with consistent width.
func RenderLabel(label string, width ...int) string {
	if len(width) > 0 && width[0] > 0 {
		return LabelStyle.Width(width[0]).Render(label)
	}
	return LabelStyle.Render(label)
}

// RenderConditional renders text with style if colors are enabled,
// otherwise returns the text unmodified.
// USABILITY: Every styled string goes through here.
func RenderConditional(style lipgloss.Style, text string) string {
	if !ColorsEnabled() {
		return text
	}
	return style.Render(text)
}

// RenderSeparatorAdaptive renders a separator sized to the terminal.
func RenderSeparatorAdaptive() string {
	width := GetTerminalWidth()
	if width > 4 {
		width -= 4
	}
	if width > 80 {
		width = 80
	}
	return RenderSeparator(width)
}
