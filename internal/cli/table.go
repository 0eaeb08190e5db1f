package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/smart-captures/internal/ingest"
	"github.com/Veraticus/smart-captures/internal/model"
)

const dateLayout = "2006-01-02 15:04"

// Table is a minimal column-aligned table.
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// Row appends a row. Missing cells render empty.
func (t *Table) Row(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render lays the table out with padded columns.
func (t *Table) Render() string {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i := range widths {
			if i < len(row) {
				widths[i] = max(widths[i], lipgloss.Width(row[i]))
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(t.line(t.headers, widths, TableHeaderStyle))
	for _, row := range t.rows {
		sb.WriteString("\n")
		sb.WriteString(t.line(row, widths, TableCellStyle))
	}
	return sb.String()
}

func (t *Table) line(cells []string, widths []int, style lipgloss.Style) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		parts[i] = style.Width(w + 2).Render(cell)
	}
	return strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " ")
}

// Truncate shortens s to n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(runes[:n-1]) + "…"
}

// RenderCandidates writes candidates as a table.
func RenderCandidates(w io.Writer, items []model.PendingCandidate) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No candidates"))
		return err
	}

	table := NewTable("ID", "DATE", "AMOUNT", "FROM", "CATEGORY", "STATUS", "MESSAGE")
	for _, c := range items {
		table.Row(
			c.ID,
			c.OccurredAt.Local().Format(dateLayout),
			c.Amount.StringFixed(2),
			Truncate(c.DisplayName(), 24),
			c.SuggestedCategory,
			string(c.Status),
			Truncate(c.RawText, 48),
		)
	}
	_, err := fmt.Fprintln(w, table.Render())
	return err
}

// RenderTransactions writes ledger rows as a table.
func RenderTransactions(w io.Writer, txns []model.Transaction) error {
	if len(txns) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("Ledger is empty"))
		return err
	}

	table := NewTable("DATE", "AMOUNT", "NAME", "CATEGORY", "SOURCE")
	for _, txn := range txns {
		table.Row(
			txn.Date.Local().Format("2006-01-02"),
			txn.Amount.StringFixed(2),
			Truncate(txn.Name, 32),
			txn.Category,
			txn.Source,
		)
	}
	_, err := fmt.Fprintln(w, table.Render())
	return err
}

// FormatBatch summarizes a drain.
func FormatBatch(result ingest.BatchResult) string {
	if result.Total == 0 {
		return FormatInfo("Relay was empty")
	}

	outcomes := make([]string, 0, len(result.Counts))
	for outcome := range result.Counts {
		outcomes = append(outcomes, string(outcome))
	}
	sort.Strings(outcomes)

	parts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		parts = append(parts, fmt.Sprintf("%s=%d", o, result.Counts[ingest.Outcome(o)]))
	}

	summary := fmt.Sprintf("Processed %d messages (%s)", result.Total, strings.Join(parts, ", "))
	if len(result.Errors) > 0 {
		return FormatWarning(summary)
	}
	return FormatSuccess(summary)
}
