package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/smart-captures/internal/ingest"
	"github.com/Veraticus/smart-captures/internal/model"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "short", n: 10, want: "short"},
		{in: "exactly ten", n: 11, want: "exactly ten"},
		{in: "Rs 500 debited at Zomato", n: 10, want: "Rs 500 de…"},
		{in: "multi\nline\ttext", n: 40, want: "multi line text"},
		{in: "₹₹₹₹₹", n: 3, want: "₹₹…"},
		{in: "anything", n: 0, want: "anything"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.n), tt.in)
	}
}

func TestTable_Render(t *testing.T) {
	table := NewTable("ID", "AMOUNT")
	table.Row("sms_1", "12.00")
	table.Row("sms_22222", "1250.50")
	table.Row("short")

	out := table.Render()
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, 3, table.Len())
	assert.Contains(t, lines[0], "ID")
	assert.Contains(t, lines[2], "sms_22222")
	assert.Contains(t, lines[2], "1250.50")
	assert.Contains(t, lines[3], "short")
}

func TestRenderCandidates(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderCandidates(&buf, nil))
	assert.Contains(t, buf.String(), "No candidates")

	buf.Reset()
	require.NoError(t, RenderCandidates(&buf, []model.PendingCandidate{{
		ID:                "sms_1705314600000_abc123",
		OccurredAt:        time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Amount:            decimal.RequireFromString("1250.5"),
		RawText:           "Rs. 1,250.50 debited at Zomato",
		SuggestedBank:     "HDFC",
		SuggestedCategory: model.CategoryFood,
		Status:            model.StatusPending,
	}}))
	out := buf.String()
	assert.Contains(t, out, "sms_1705314600000_abc123")
	assert.Contains(t, out, "1250.50")
	assert.Contains(t, out, "HDFC")
	assert.Contains(t, out, "pending")
}

func TestRenderTransactions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderTransactions(&buf, []model.Transaction{{
		Name:     "Zomato",
		Amount:   decimal.NewFromInt(300),
		Date:     time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC),
		Category: model.CategoryFood,
		Source:   model.TransactionSourceSMS,
	}}))
	assert.Contains(t, buf.String(), "300.00")
	assert.Contains(t, buf.String(), "Zomato")
}

func TestFormatBatch(t *testing.T) {
	assert.Contains(t, FormatBatch(ingest.BatchResult{}), "Relay was empty")

	out := FormatBatch(ingest.BatchResult{
		Total:  3,
		Counts: map[ingest.Outcome]int{ingest.OutcomeQueued: 2, ingest.OutcomeDuplicate: 1},
	})
	assert.Contains(t, out, "Processed 3 messages (duplicate=1, queued=2)")
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
		{input: "", want: false},
		{input: "yes", want: true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := Confirm(context.Background(), NewNonBlockingReader(strings.NewReader(tt.input)), &out, "Clear?")
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
		assert.Contains(t, out.String(), "Clear? [y/N]")
	}
}

func TestNonBlockingReader_Cancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewNonBlockingReader(pr).ReadLine(ctx)
	assert.True(t, errors.Is(err, ErrInputCancelled))
}

func TestInterruptHandler_Trigger(t *testing.T) {
	var buf bytes.Buffer
	h := NewInterruptHandler(&buf)
	assert.False(t, h.WasInterrupted())

	h.trigger()
	h.trigger()
	assert.True(t, h.WasInterrupted())
	assert.Equal(t, 1, strings.Count(buf.String(), "Stopping capture"))
}
