package llm

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/smart-captures/internal/common"
)

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "bare", content: `{"a":1}`, want: `{"a":1}`},
		{name: "json fence", content: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "plain fence", content: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose around", content: "Sure! Here it is: {\"a\":1} Hope that helps.", want: `{"a":1}`},
		{name: "no object", content: "nothing here", want: "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanMarkdownWrapper(tt.content))
		})
	}
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name           string
		content        string
		wantCategory   string
		wantConfidence float64
		wantErr        bool
	}{
		{name: "standard", content: `{"category":"Food","confidence":0.92}`, wantCategory: "Food", wantConfidence: 0.92},
		{name: "fenced", content: "```json\n{\"category\":\"Travel\",\"confidence\":0.8}\n```", wantCategory: "Travel", wantConfidence: 0.8},
		{name: "percentage rejected", content: `{"category":"Bills","confidence":85}`, wantErr: true},
		{name: "just above one rejected", content: `{"category":"Bills","confidence":5}`, wantErr: true},
		{name: "negative rejected", content: `{"category":"Bills","confidence":-0.1}`, wantErr: true},
		{name: "boundary one", content: `{"category":"Bills","confidence":1}`, wantCategory: "Bills", wantConfidence: 1},
		{name: "missing category", content: `{"confidence":0.9}`, wantErr: true},
		{name: "out of range", content: `{"category":"Food","confidence":250}`, wantErr: true},
		{name: "not json", content: "Food, probably", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClassification(tt.content)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCategory, got.Category)
			assert.InDelta(t, tt.wantConfidence, got.Confidence, 1e-9)
		})
	}
}

func TestParseExtraction(t *testing.T) {
	t.Run("all fields", func(t *testing.T) {
		got, err := ParseExtraction(`{"amount":1250.5,"category":"Food","date":"2024-01-05T10:00:00Z","name":"Zomato"}`)
		require.NoError(t, err)
		require.NotNil(t, got.Amount)
		assert.True(t, decimal.RequireFromString("1250.50").Equal(*got.Amount))
		assert.Equal(t, "Food", got.Category)
		assert.Equal(t, "Zomato", got.Name)
		assert.True(t, got.Date.Equal(time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)))
	})

	t.Run("amount as string and day-first date", func(t *testing.T) {
		got, err := ParseExtraction("```json\n{\"amount\":\"320\",\"date\":\"05-01-2024\",\"name\":\"Uber\"}\n```")
		require.NoError(t, err)
		require.NotNil(t, got.Amount)
		assert.Equal(t, "320", got.Amount.String())
		assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), got.Date)
	})

	t.Run("unusable fields are dropped", func(t *testing.T) {
		got, err := ParseExtraction(`{"amount":null,"date":"yesterday","name":" "}`)
		require.NoError(t, err)
		assert.Nil(t, got.Amount)
		assert.True(t, got.Date.IsZero())
		assert.Empty(t, got.Name)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ParseExtraction("no json")
		assert.ErrorIs(t, err, common.ErrMalformedResponse)
	})
}
