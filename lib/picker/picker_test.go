// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package picker

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/parley/lib/session"
)

var now = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func testSessions() []session.Summary {
	return []session.Summary{
		{ID: "20260314-120000", Title: "Planning a trip to Lisbon", LastActivity: now.Add(-3 * time.Hour), MessageCount: 4},
		{ID: "20260313-090000", Title: "Rust lifetimes explained", LastActivity: now.Add(-30 * time.Hour), MessageCount: 12},
		{ID: "20260301-080000", Title: "", LastActivity: now.Add(-13 * 24 * time.Hour), MessageCount: 1},
	}
}

func newTestModel() Model {
	return New(testSessions(), Options{Now: func() time.Time { return now }})
}

func update(t *testing.T, model Model, messages ...tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	var command tea.Cmd
	for _, message := range messages {
		var next tea.Model
		next, command = model.Update(message)
		model = next.(Model)
	}
	return model, command
}

func typed(text string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)}
}

func isQuit(command tea.Cmd) bool {
	if command == nil {
		return false
	}
	_, quit := command().(tea.QuitMsg)
	return quit
}

func TestInitialOrder(t *testing.T) {
	t.Parallel()
	model := newTestModel()
	visible := model.Visible()
	want := []string{"20260314-120000", "20260313-090000", "20260301-080000"}
	if strings.Join(visible, ",") != strings.Join(want, ",") {
		t.Errorf("Visible = %v, want %v", visible, want)
	}
}

func TestFilterNarrowsAndChooses(t *testing.T) {
	t.Parallel()
	model, _ := update(t, newTestModel(), typed("rust"))
	if visible := model.Visible(); len(visible) != 1 || visible[0] != "20260313-090000" {
		t.Fatalf("Visible after filtering = %v", visible)
	}

	model, command := update(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	if model.Chosen() != "20260313-090000" || !isQuit(command) {
		t.Errorf("Chosen = %q, quit = %v", model.Chosen(), isQuit(command))
	}
}

func TestFilterMatchesIDAndPlaceholder(t *testing.T) {
	t.Parallel()
	model, _ := update(t, newTestModel(), typed("0301"))
	if visible := model.Visible(); len(visible) != 1 || visible[0] != "20260301-080000" {
		t.Errorf("filter by ID = %v", visible)
	}
	model, _ = update(t, newTestModel(), typed("new sess"))
	if visible := model.Visible(); len(visible) != 1 || visible[0] != "20260301-080000" {
		t.Errorf("filter by placeholder title = %v", visible)
	}
}

func TestCursorMovement(t *testing.T) {
	t.Parallel()
	model, _ := update(t, newTestModel(),
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyUp},
	)
	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	if model.Chosen() != "20260313-090000" {
		t.Errorf("Chosen = %q, want the second session", model.Chosen())
	}
}

func TestEscapeClearsThenCancels(t *testing.T) {
	t.Parallel()
	model, command := update(t, newTestModel(), typed("zzz"), tea.KeyMsg{Type: tea.KeyEsc})
	if model.Cancelled() || isQuit(command) {
		t.Fatal("first esc with filter text cancelled the picker")
	}
	if len(model.Visible()) != 3 {
		t.Errorf("esc did not clear the filter: %v", model.Visible())
	}

	model, command = update(t, model, tea.KeyMsg{Type: tea.KeyEsc})
	if !model.Cancelled() || !isQuit(command) {
		t.Error("esc on an empty filter did not cancel")
	}
}

func TestEnterWithNoMatches(t *testing.T) {
	t.Parallel()
	model, command := update(t, newTestModel(), typed("qqqq"), tea.KeyMsg{Type: tea.KeyEnter})
	if model.Chosen() != "" || isQuit(command) {
		t.Errorf("enter with no matches chose %q", model.Chosen())
	}
	if !strings.Contains(ansi.Strip(model.View()), "no matching sessions") {
		t.Error("empty result not reported")
	}
}

func TestView(t *testing.T) {
	t.Parallel()
	model, _ := update(t, newTestModel(), tea.WindowSizeMsg{Width: 60, Height: 10})
	view := ansi.Strip(model.View())
	for _, want := range []string{
		"Resume a session",
		"(3 of 3)",
		"▸ Planning a trip to Lisbon",
		"4 msgs · 3h ago",
		"12 msgs · 1d ago",
		"13d ago",
		session.PlaceholderTitle,
		"enter resume",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q:\n%s", want, view)
		}
	}
	for _, line := range strings.Split(view, "\n") {
		if ansi.StringWidth(line) > 60 {
			t.Errorf("line wider than the window: %q", line)
		}
	}
}

func TestViewScrollsToCursor(t *testing.T) {
	t.Parallel()
	model, _ := update(t, newTestModel(),
		tea.WindowSizeMsg{Width: 80, Height: 5},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyDown},
	)
	view := ansi.Strip(model.View())
	if strings.Contains(view, "Lisbon") || !strings.Contains(view, "▸ "+session.PlaceholderTitle) {
		t.Errorf("view did not follow the cursor:\n%s", view)
	}
}

func TestPickWithoutSessions(t *testing.T) {
	t.Parallel()
	if _, err := Pick(nil, Options{}); !errors.Is(err, ErrNoSessions) {
		t.Errorf("Pick(nil) = %v, want ErrNoSessions", err)
	}
}
