// Package tui is the interactive browser over the failures of a recorded run.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nixlim/failloc/internal/history"
)

// Model lists the failures of one run. Choosing a failure ends the program;
// the caller reads the choice with Selected.
type Model struct {
	run    *history.Run
	keys   KeyMap
	now    func() time.Time
	width  int
	height int

	cursor int
	offset int

	selected string
	chosen   bool
	quitting bool
}

type ModelOption func(*Model)

// WithNow overrides the clock used for the run age in the header.
func WithNow(now func() time.Time) ModelOption {
	return func(m *Model) { m.now = now }
}

// WithKeyMap replaces the default bindings.
func WithKeyMap(k KeyMap) ModelOption {
	return func(m *Model) { m.keys = k }
}

func NewModel(run *history.Run, opts ...ModelOption) Model {
	m := Model{
		run:  run,
		keys: DefaultKeyMap(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.offset = m.clampOffset()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	failures := m.failures()

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Select):
		if m.cursor < len(failures) {
			m.selected = failures[m.cursor].Location
			m.chosen = true
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(failures)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Top):
		m.cursor = 0

	case key.Matches(msg, m.keys.Bottom):
		if len(failures) > 0 {
			m.cursor = len(failures) - 1
		}
	}

	m.offset = m.clampOffset()
	return m, nil
}

// Selected returns the location of the chosen failure, if one was chosen.
func (m Model) Selected() (string, bool) {
	return m.selected, m.chosen
}

func (m Model) failures() []history.Failure {
	if m.run == nil {
		return nil
	}
	return m.run.Failures
}

// clampOffset keeps the cursor inside the visible window.
func (m Model) clampOffset() int {
	rows := m.listRows()
	if rows <= 0 {
		return 0
	}
	offset := m.offset
	if m.cursor < offset {
		offset = m.cursor
	}
	if m.cursor >= offset+rows {
		offset = m.cursor - rows + 1
	}
	return offset
}
