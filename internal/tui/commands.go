package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) loadCandidates() tea.Cmd {
	lister := m.lister
	return func() tea.Msg {
		return candidatesLoadedMsg{items: lister.ListPending()}
	}
}

func (m Model) acceptCandidate(id string) tea.Cmd {
	ctx, reviewer := m.ctx, m.reviewer
	return func() tea.Msg {
		txn, err := reviewer.Accept(ctx, id)
		return acceptedMsg{id: id, txn: txn, err: err}
	}
}

func (m Model) rejectCandidate(id string) tea.Cmd {
	ctx, reviewer := m.ctx, m.reviewer
	return func() tea.Msg {
		return rejectedMsg{id: id, err: reviewer.Reject(ctx, id)}
	}
}
