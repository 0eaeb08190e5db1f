package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/smart-captures/internal/cli"
)

var (
	cursorStyle   = lipgloss.NewStyle().Foreground(cli.PrimaryColor).Bold(true)
	busyStyle     = lipgloss.NewStyle().Foreground(cli.SubtleColor).Italic(true)
	detailStyle   = cli.BoxStyle.Padding(0, 1)
	categoryStyle = lipgloss.NewStyle().Foreground(cli.InfoColor)
)

// View renders the screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(cli.FormatTitle(fmt.Sprintf("Smart captures (%d pending)", len(m.items))))
	sb.WriteString("\n")

	if len(m.items) == 0 {
		sb.WriteString(cli.FormatInfo("Nothing to review"))
		sb.WriteString("\n")
	}

	for i, c := range m.items {
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		line := fmt.Sprintf("%s  %10s  %-20s %s",
			c.OccurredAt.Local().Format("Jan 02 15:04"),
			c.Amount.StringFixed(2),
			cli.Truncate(c.DisplayName(), 20),
			categoryStyle.Render(c.SuggestedCategory))
		if m.busy[c.ID] {
			line = busyStyle.Render(line + "  working…")
		}
		sb.WriteString(prefix + line + "\n")
	}

	if c, ok := m.selected(); ok {
		sb.WriteString("\n")
		sb.WriteString(detailStyle.Render(cli.Truncate(c.RawText, 200)))
		sb.WriteString("\n")
	}

	switch {
	case m.lastErr != nil:
		sb.WriteString("\n" + cli.FormatError(m.lastErr.Error()) + "\n")
	case m.status != "":
		sb.WriteString("\n" + cli.SubtleStyle.Render(m.status) + "\n")
	}

	sb.WriteString("\n" + m.help.View(m.keymap))
	return sb.String()
}
