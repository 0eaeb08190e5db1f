package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the review screen until the user quits or ctx ends. It returns
// how many candidates were added and ignored.
func Run(ctx context.Context, reviewer Reviewer, lister Lister) (added, ignored int, err error) {
	program := tea.NewProgram(New(ctx, reviewer, lister), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return 0, 0, fmt.Errorf("review screen failed: %w", err)
	}
	if m, ok := final.(Model); ok {
		added, ignored = m.Counts()
	}
	return added, ignored, nil
}
