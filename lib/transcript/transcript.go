// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/parley/lib/sessionlog"
	"github.com/bureau-foundation/parley/lib/tui"
)

// DefaultWidth is used when the output width is unknown.
const DefaultWidth = 100

// Renderer styles chat output for one destination.
type Renderer struct {
	theme     tui.Theme
	width     int
	profile   termenv.Profile
	lipgloss  *lipgloss.Renderer
	codeStyle string

	// Labels printed before each side of the conversation.
	userName      string
	assistantName string
}

// Options configures a [Renderer]. Zero fields take defaults.
type Options struct {
	// Width wraps paragraphs. Zero means DefaultWidth.
	Width int

	// Profile fixes the color profile. Nil detects it from the
	// output.
	Profile *termenv.Profile

	// Theme defaults to tui.DefaultTheme.
	Theme *tui.Theme

	// CodeStyle is the chroma style for code blocks, "monokai" by
	// default.
	CodeStyle string

	// UserName and AssistantName label the two roles, "You" and
	// "Assistant" by default.
	UserName      string
	AssistantName string
}

// New returns a Renderer for output.
func New(output io.Writer, options Options) *Renderer {
	profile := tui.DetectProfile(output)
	if options.Profile != nil {
		profile = *options.Profile
	}
	renderer := &Renderer{
		theme:         tui.DefaultTheme,
		width:         options.Width,
		profile:       profile,
		lipgloss:      tui.NewRenderer(output, profile),
		codeStyle:     options.CodeStyle,
		userName:      options.UserName,
		assistantName: options.AssistantName,
	}
	if options.Theme != nil {
		renderer.theme = *options.Theme
	}
	if renderer.width <= 0 {
		renderer.width = DefaultWidth
	}
	if renderer.codeStyle == "" {
		renderer.codeStyle = "monokai"
	}
	if renderer.userName == "" {
		renderer.userName = "You"
	}
	if renderer.assistantName == "" {
		renderer.assistantName = "Assistant"
	}
	return renderer
}

// Profile returns the color profile the renderer writes for.
func (renderer *Renderer) Profile() termenv.Profile {
	return renderer.profile
}

// UserLabel returns the styled label that precedes a user prompt.
func (renderer *Renderer) UserLabel() string {
	return renderer.lipgloss.NewStyle().Bold(true).Foreground(renderer.theme.UserLabel).Render(renderer.userName + ":")
}

// AssistantLabel returns the styled label that precedes an answer.
func (renderer *Renderer) AssistantLabel() string {
	return renderer.lipgloss.NewStyle().Bold(true).Foreground(renderer.theme.AssistantLabel).Render(renderer.assistantName + ":")
}

// Error styles an inline failure message as "Error: message".
func (renderer *Renderer) Error(message string) string {
	return renderer.lipgloss.NewStyle().Foreground(renderer.theme.ErrorText).Render("Error: " + message)
}

// Notice styles a short status line such as "Interrupted".
func (renderer *Renderer) Notice(message string) string {
	return renderer.lipgloss.NewStyle().Foreground(renderer.theme.WarningText).Render(message)
}

// Faint styles secondary text such as the usage footer.
func (renderer *Renderer) Faint(message string) string {
	return renderer.lipgloss.NewStyle().Foreground(renderer.theme.FaintText).Render(message)
}

// Rule returns a horizontal divider across the width.
func (renderer *Renderer) Rule() string {
	return renderer.lipgloss.NewStyle().Foreground(renderer.theme.BorderColor).Render(strings.Repeat("─", renderer.width))
}

// Panel draws content in a rounded border with a title line above it.
func (renderer *Renderer) Panel(title, content string) string {
	box := renderer.lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(renderer.theme.PanelBorder).
		Padding(0, 1).
		Render(content)
	if title == "" {
		return box
	}
	heading := renderer.lipgloss.NewStyle().Bold(true).Foreground(renderer.theme.HeaderForeground).Render(title)
	return heading + "\n" + box
}

// Conversation writes events as a labeled transcript. User prompts
// print verbatim, answers render as markdown, and errors print inline
// in place of an answer. Other event kinds are skipped.
func (renderer *Renderer) Conversation(output io.Writer, events []sessionlog.Event) error {
	for _, event := range events {
		var block string
		switch event.Kind {
		case sessionlog.KindUserMessage:
			block = renderer.UserLabel() + " " + event.Content
		case sessionlog.KindAssistantResponse:
			block = renderer.AssistantLabel() + "\n" + renderer.Markdown(event.Content)
		case sessionlog.KindError:
			block = renderer.AssistantLabel() + "\n" + renderer.Error(strings.TrimPrefix(event.Content, "Error: "))
		default:
			continue
		}
		if _, err := fmt.Fprintf(output, "%s\n\n", block); err != nil {
			return fmt.Errorf("transcript: writing: %w", err)
		}
	}
	return nil
}
