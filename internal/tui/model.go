// Package tui is the interactive review screen for pending candidates.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/smart-captures/internal/model"
)

// Reviewer decides on candidates.
type Reviewer interface {
	Accept(ctx context.Context, id string) (model.Transaction, error)
	Reject(ctx context.Context, id string) error
}

// Lister supplies the candidates to show.
type Lister interface {
	ListPending() []model.PendingCandidate
}

// Model holds the review screen state.
type Model struct {
	ctx      context.Context
	reviewer Reviewer
	lister   Lister
	busy     map[string]bool
	lastErr  error
	help     help.Model
	keymap   KeyMap
	status   string
	items    []model.PendingCandidate
	cursor   int
	width    int
	height   int
	added    int
	ignored  int
	quitting bool
}

// New creates the review model.
func New(ctx context.Context, reviewer Reviewer, lister Lister) Model {
	return Model{
		ctx:      ctx,
		reviewer: reviewer,
		lister:   lister,
		busy:     make(map[string]bool),
		help:     help.New(),
		keymap:   DefaultKeyMap(),
	}
}

// Init loads the candidates.
func (m Model) Init() tea.Cmd {
	return m.loadCandidates()
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case candidatesLoadedMsg:
		m.items = msg.items
		m.clampCursor()

	case acceptedMsg:
		delete(m.busy, msg.id)
		if msg.err != nil {
			m.lastErr = msg.err
			m.status = ""
			return m, nil
		}
		m.added++
		m.lastErr = nil
		m.status = fmt.Sprintf("Added %s to %s", msg.txn.Amount.StringFixed(2), msg.txn.Category)
		return m, m.loadCandidates()

	case rejectedMsg:
		delete(m.busy, msg.id)
		if msg.err != nil {
			m.lastErr = msg.err
			m.status = ""
			return m, nil
		}
		m.ignored++
		m.lastErr = nil
		m.status = "Ignored " + msg.id
		return m, m.loadCandidates()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keymap.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keymap.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keymap.Refresh):
		return m, m.loadCandidates()
	case key.Matches(msg, m.keymap.Accept):
		if c, ok := m.selected(); ok && !m.busy[c.ID] {
			m.busy[c.ID] = true
			m.status = "Adding " + c.ID + "…"
			return m, m.acceptCandidate(c.ID)
		}
	case key.Matches(msg, m.keymap.Reject):
		if c, ok := m.selected(); ok && !m.busy[c.ID] {
			m.busy[c.ID] = true
			return m, m.rejectCandidate(c.ID)
		}
	}
	return m, nil
}

func (m Model) selected() (model.PendingCandidate, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return model.PendingCandidate{}, false
	}
	return m.items[m.cursor], true
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Counts returns how many candidates were added and ignored this session.
func (m Model) Counts() (added, ignored int) {
	return m.added, m.ignored
}
