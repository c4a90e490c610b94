// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme is the color palette for terminal output. Colors are ANSI
// 256-color codes; lipgloss degrades them on smaller profiles.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Role labels in a transcript.
	UserLabel      lipgloss.Color
	AssistantLabel lipgloss.Color
	ErrorText      lipgloss.Color
	WarningText    lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	PanelBorder      lipgloss.Color
	LinkForeground   lipgloss.Color
	CheckedBox       lipgloss.Color

	// Selected row and fuzzy-match highlighting in lists.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color
	MatchForeground    lipgloss.Color
	HelpText           lipgloss.Color
}

// DefaultTheme is tuned for 256-color terminals with a dark
// background.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	UserLabel:      lipgloss.Color("114"), // green
	AssistantLabel: lipgloss.Color("75"),  // blue
	ErrorText:      lipgloss.Color("196"), // red
	WarningText:    lipgloss.Color("220"), // amber

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	PanelBorder:      lipgloss.Color("69"),
	LinkForeground:   lipgloss.Color("75"),
	CheckedBox:       lipgloss.Color("114"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),
	MatchForeground:    lipgloss.Color("220"),
	HelpText:           lipgloss.Color("241"),
}

// NewRenderer returns a lipgloss renderer for output with a fixed color
// profile. lipgloss re-detects the profile from the environment unless
// it is set explicitly, so the profile is applied twice.
func NewRenderer(output io.Writer, profile termenv.Profile) *lipgloss.Renderer {
	renderer := lipgloss.NewRenderer(output, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)
	return renderer
}

// DetectProfile reports the color profile output supports: none for a
// pipe or file, otherwise what the terminal and environment
// (NO_COLOR, CLICOLOR_FORCE, COLORTERM) allow.
func DetectProfile(output io.Writer) termenv.Profile {
	return termenv.NewOutput(output).EnvColorProfile()
}
