package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateStatus(t *testing.T) {
	tests := []struct {
		status   CandidateStatus
		valid    bool
		terminal bool
	}{
		{StatusPending, true, false},
		{StatusAdded, true, true},
		{StatusIgnored, true, true},
		{CandidateStatus("deleted"), false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.IsValid())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestPendingCandidate_JSONNames(t *testing.T) {
	c := PendingCandidate{
		ID:                "sms_1704448800000_ab12cd",
		RawText:           "Rs. 1,250.50 debited at Zomato",
		Amount:            decimal.RequireFromString("1250.50"),
		SuggestedBank:     "HDFC",
		SuggestedCategory: CategoryFood,
		OccurredAt:        time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC),
		Status:            StatusPending,
	}

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"id", "raw_text", "amount", "bank", "category_suggested", "date", "status"} {
		assert.Contains(t, fields, key)
	}
	assert.NotContains(t, fields, "title")
	assert.Equal(t, "2024-01-05T10:00:00Z", fields["date"])

	var back PendingCandidate
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, c.Amount.Equal(back.Amount))
	assert.Equal(t, c.Status, back.Status)
}

func TestPendingCandidate_DisplayName(t *testing.T) {
	assert.Equal(t, "HDFC", PendingCandidate{SuggestedBank: "HDFC", SuggestedTitle: "Zomato"}.DisplayName())
	assert.Equal(t, "Zomato", PendingCandidate{SuggestedTitle: "Zomato"}.DisplayName())
	assert.Equal(t, "Bank", PendingCandidate{}.DisplayName())
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"food", CategoryFood, true},
		{" Travel ", CategoryTravel, true},
		{"Other", CategoryMisc, true},
		{"MISC", CategoryMisc, true},
		{"Groceries", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeCategory(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSuggestion(t *testing.T) {
	assert.NoError(t, Suggestion{Category: CategoryFood, Confidence: 0.9}.Validate())
	assert.NoError(t, NoSuggestion.Validate())
	assert.Error(t, Suggestion{Category: CategoryFood, Confidence: 1.2}.Validate())
	assert.Error(t, Suggestion{Confidence: 0.3}.Validate())

	assert.True(t, Suggestion{Category: CategoryFood, Confidence: 0.5}.Usable(0.5))
	assert.False(t, Suggestion{Category: CategoryFood, Confidence: 0.49}.Usable(0.5))
	assert.False(t, NoSuggestion.Usable(0))
}
