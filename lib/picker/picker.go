// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package picker is the interactive session chooser behind
// "parley chat --resume" with no ID. It lists sessions most recent
// first and narrows them with an fzf-scored filter over title and ID.
package picker

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/junegunn/fzf/src/util"

	"github.com/bureau-foundation/parley/lib/ledger"
	"github.com/bureau-foundation/parley/lib/session"
	"github.com/bureau-foundation/parley/lib/tui"
)

// ErrCancelled is returned by Pick when the user leaves without
// choosing.
var ErrCancelled = errors.New("picker: cancelled")

// ErrNoSessions is returned by Pick when there is nothing to choose.
var ErrNoSessions = errors.New("picker: no sessions")

const (
	defaultWidth  = 80
	defaultHeight = 20

	// Rows taken by the title, filter, blank line and help footer.
	chromeRows = 4
)

// match is one visible row: an index into the session list and where
// the filter matched its label.
type match struct {
	index     int
	score     int
	positions []int
}

// Model is the bubbletea model of the picker.
type Model struct {
	sessions []session.Summary
	labels   []string
	matches  []match

	filter textinput.Model
	keys   KeyMap
	theme  tui.Theme
	styles *lipgloss.Renderer
	slab   *util.Slab
	now    func() time.Time

	cursor int
	offset int
	width  int
	height int

	chosen    string
	cancelled bool
}

// Options configures a picker. Zero fields take defaults.
type Options struct {
	// Input and Output default to the process's terminal.
	Input  io.Reader
	Output io.Writer

	// Renderer draws the styles. Nil uses lipgloss's default.
	Renderer *lipgloss.Renderer

	Theme *tui.Theme
	Keys  *KeyMap

	// Now anchors relative ages such as "3h ago".
	Now func() time.Time
}

// New builds a picker over sessions, which should already be ordered
// most recent first.
func New(sessions []session.Summary, options Options) Model {
	filter := textinput.New()
	filter.Prompt = "> "
	filter.Placeholder = "type to filter by title or ID"
	filter.Focus()

	model := Model{
		sessions: sessions,
		labels:   make([]string, len(sessions)),
		filter:   filter,
		keys:     DefaultKeyMap,
		theme:    tui.DefaultTheme,
		styles:   options.Renderer,
		slab:     util.MakeSlab(100*1024, 2048),
		now:      options.Now,
		width:    defaultWidth,
		height:   defaultHeight,
	}
	if options.Theme != nil {
		model.theme = *options.Theme
	}
	if options.Keys != nil {
		model.keys = *options.Keys
	}
	if model.styles == nil {
		model.styles = lipgloss.DefaultRenderer()
	}
	if model.now == nil {
		model.now = time.Now
	}
	for index, summary := range sessions {
		model.labels[index] = label(summary)
	}
	model.applyFilter()
	return model
}

// label is the text the filter matches against.
func label(summary session.Summary) string {
	title := summary.Title
	if title == "" {
		title = session.PlaceholderTitle
	}
	return title + "  " + summary.ID
}

// Chosen returns the picked session ID, or "" if none was picked.
func (model Model) Chosen() string {
	return model.chosen
}

// Cancelled reports whether the user left without choosing.
func (model Model) Cancelled() bool {
	return model.cancelled
}

// Visible returns the IDs currently listed, in display order.
func (model Model) Visible() []string {
	ids := make([]string, len(model.matches))
	for position, match := range model.matches {
		ids[position] = model.sessions[match.index].ID
	}
	return ids
}

// Init starts the cursor blinking.
func (model Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles one message.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.clampOffset()
		return model, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(message, model.keys.Cancel):
			model.cancelled = true
			return model, tea.Quit

		case key.Matches(message, model.keys.Clear):
			if model.filter.Value() != "" {
				model.filter.SetValue("")
				model.applyFilter()
				return model, nil
			}
			model.cancelled = true
			return model, tea.Quit

		case key.Matches(message, model.keys.Choose):
			if len(model.matches) == 0 {
				return model, nil
			}
			model.chosen = model.sessions[model.matches[model.cursor].index].ID
			return model, tea.Quit

		case key.Matches(message, model.keys.Up):
			model.move(-1)
			return model, nil

		case key.Matches(message, model.keys.Down):
			model.move(1)
			return model, nil

		case key.Matches(message, model.keys.PageUp):
			model.move(-model.listRows())
			return model, nil

		case key.Matches(message, model.keys.PageDown):
			model.move(model.listRows())
			return model, nil
		}
	}

	previous := model.filter.Value()
	var command tea.Cmd
	model.filter, command = model.filter.Update(message)
	if model.filter.Value() != previous {
		model.applyFilter()
	}
	return model, command
}

func (model *Model) move(delta int) {
	if len(model.matches) == 0 {
		return
	}
	model.cursor = max(0, min(len(model.matches)-1, model.cursor+delta))
	model.clampOffset()
}

// listRows is how many sessions fit on screen.
func (model *Model) listRows() int {
	return max(1, model.height-chromeRows)
}

func (model *Model) clampOffset() {
	rows := model.listRows()
	if model.cursor < model.offset {
		model.offset = model.cursor
	}
	if model.cursor >= model.offset+rows {
		model.offset = model.cursor - rows + 1
	}
	model.offset = max(0, min(model.offset, max(0, len(model.matches)-rows)))
}

// applyFilter rescores every session against the filter. With an
// empty filter every session shows in its original order; otherwise
// matches are ordered by score, ties keeping the original order.
func (model *Model) applyFilter() {
	pattern := []rune(strings.TrimSpace(model.filter.Value()))
	model.matches = model.matches[:0]
	for index, text := range model.labels {
		if len(pattern) == 0 {
			model.matches = append(model.matches, match{index: index})
			continue
		}
		result := tui.FuzzyMatch(text, pattern, model.slab)
		if result.Score > 0 {
			model.matches = append(model.matches, match{index: index, score: result.Score, positions: result.Positions})
		}
	}
	sort.SliceStable(model.matches, func(i, j int) bool {
		return model.matches[i].score > model.matches[j].score
	})
	model.cursor = 0
	model.offset = 0
}

// View draws the picker.
func (model Model) View() string {
	var builder strings.Builder

	header := model.styles.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground)
	fmt.Fprintf(&builder, "%s %s\n",
		header.Render("Resume a session"),
		model.styles.NewStyle().Foreground(model.theme.FaintText).Render(
			fmt.Sprintf("(%d of %d)", len(model.matches), len(model.sessions))))
	builder.WriteString(model.filter.View())
	builder.WriteString("\n\n")

	if len(model.matches) == 0 {
		builder.WriteString(model.styles.NewStyle().Foreground(model.theme.FaintText).Render("  no matching sessions"))
		builder.WriteString("\n")
	}
	end := min(len(model.matches), model.offset+model.listRows())
	for position := model.offset; position < end; position++ {
		builder.WriteString(model.row(position))
		builder.WriteString("\n")
	}

	builder.WriteString(model.help())
	return builder.String()
}

// row renders one session: a cursor marker, the highlighted title and
// ID, and right-aligned details.
func (model Model) row(position int) string {
	entry := model.matches[position]
	summary := model.sessions[entry.index]
	selected := position == model.cursor

	base := model.styles.NewStyle().Foreground(model.theme.NormalText)
	highlight := model.styles.NewStyle().Foreground(model.theme.MatchForeground).Bold(true)
	faint := model.styles.NewStyle().Foreground(model.theme.FaintText)
	if selected {
		base = base.Background(model.theme.SelectedBackground).Foreground(model.theme.SelectedForeground)
		highlight = highlight.Background(model.theme.SelectedBackground)
		faint = faint.Background(model.theme.SelectedBackground)
	}

	marker := "  "
	if selected {
		marker = "▸ "
	}

	details := model.details(summary)
	available := max(10, model.width-ansi.StringWidth(marker)-ansi.StringWidth(details)-2)
	text := model.labels[entry.index]
	if ansi.StringWidth(text) > available {
		text = ansi.Truncate(text, available, "…")
	}

	var label strings.Builder
	matched := make(map[int]bool, len(entry.positions))
	for _, index := range entry.positions {
		matched[index] = true
	}
	for index, character := range []rune(text) {
		if matched[index] {
			label.WriteString(highlight.Render(string(character)))
		} else {
			label.WriteString(base.Render(string(character)))
		}
	}

	gap := max(1, model.width-ansi.StringWidth(marker)-ansi.StringWidth(text)-ansi.StringWidth(details))
	return base.Render(marker) + label.String() + base.Render(strings.Repeat(" ", gap)) + faint.Render(details)
}

// details summarizes a session's size, age and cost.
func (model Model) details(summary session.Summary) string {
	parts := []string{
		strconv.Itoa(summary.MessageCount) + " msgs",
		age(model.now().Sub(summary.LastActivity)),
	}
	if summary.Costs.Total.CostUSD != nil {
		parts = append(parts, ledger.FormatCost(summary.Costs.Total.CostUSD))
	}
	return strings.Join(parts, " · ")
}

func (model Model) help() string {
	var parts []string
	for _, binding := range model.keys.shortHelp() {
		help := binding.Help()
		parts = append(parts, help.Key+" "+help.Desc)
	}
	return model.styles.NewStyle().Foreground(model.theme.HelpText).Render(strings.Join(parts, " • "))
}

// age renders a duration the way session lists show recency.
func age(elapsed time.Duration) string {
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return strconv.Itoa(int(elapsed/time.Minute)) + "m ago"
	case elapsed < 24*time.Hour:
		return strconv.Itoa(int(elapsed/time.Hour)) + "h ago"
	default:
		return strconv.Itoa(int(elapsed/(24*time.Hour))) + "d ago"
	}
}

// Pick runs the picker until a session is chosen or the user cancels.
func Pick(sessions []session.Summary, options Options) (string, error) {
	if len(sessions) == 0 {
		return "", ErrNoSessions
	}

	var programOptions []tea.ProgramOption
	if options.Input != nil {
		programOptions = append(programOptions, tea.WithInput(options.Input))
	}
	if options.Output != nil {
		programOptions = append(programOptions, tea.WithOutput(options.Output))
	}

	final, err := tea.NewProgram(New(sessions, options), programOptions...).Run()
	if err != nil {
		return "", fmt.Errorf("picker: %w", err)
	}
	model := final.(Model)
	if model.chosen == "" {
		return "", ErrCancelled
	}
	return model.chosen, nil
}
