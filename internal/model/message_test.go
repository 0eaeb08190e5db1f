package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayEntry_ToRawMessage(t *testing.T) {
	body := "Rs. 500 debited"
	sender := "VM-HDFCBK"

	tests := []struct {
		name  string
		entry RelayEntry
		want  RawMessage
	}{
		{
			name:  "all fields",
			entry: RelayEntry{Body: &body, OriginatingAddress: &sender, Timestamp: 1704448800000},
			want: RawMessage{
				Body:       body,
				Sender:     sender,
				ObservedAt: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC),
			},
		},
		{
			name:  "zero timestamp means unknown",
			entry: RelayEntry{Body: &body},
			want:  RawMessage{Body: body},
		},
		{
			name:  "negative timestamp means unknown",
			entry: RelayEntry{Body: &body, Timestamp: -5},
			want:  RawMessage{Body: body},
		},
		{
			name:  "missing body",
			entry: RelayEntry{OriginatingAddress: &sender, Timestamp: 1},
			want:  RawMessage{Sender: sender, ObservedAt: time.UnixMilli(1).UTC()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.entry.ToRawMessage()
			assert.Equal(t, tt.want.Body, got.Body)
			assert.Equal(t, tt.want.Sender, got.Sender)
			assert.True(t, tt.want.ObservedAt.Equal(got.ObservedAt), "want %v got %v", tt.want.ObservedAt, got.ObservedAt)
		})
	}
}

func TestRelayEntry_WireFormat(t *testing.T) {
	msg := RawMessage{
		Sender:     "AX-ICICIB",
		Body:       "INR 2,000 spent",
		ObservedAt: time.UnixMilli(1704448800000),
	}

	data, err := json.Marshal(NewRelayEntry(msg))
	require.NoError(t, err)
	assert.JSONEq(t, `{"body":"INR 2,000 spent","originatingAddress":"AX-ICICIB","timestamp":1704448800000}`, string(data))

	var decoded RelayEntry
	require.NoError(t, json.Unmarshal([]byte(`{"body":"hi"}`), &decoded))
	assert.Nil(t, decoded.OriginatingAddress)
	assert.False(t, decoded.ToRawMessage().HasTimestamp())
}

func TestRawMessage_Fingerprint(t *testing.T) {
	a := RawMessage{Sender: "HDFC", Body: "Rs 10"}
	b := RawMessage{Sender: "HDFC", Body: "Rs 10", ObservedAt: time.Now()}
	c := RawMessage{Body: "Rs 10"}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "timestamp is not part of the fingerprint")
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Equal(t, "|Rs 10", c.Fingerprint())
}

func TestRawMessage_HasBody(t *testing.T) {
	assert.False(t, RawMessage{}.HasBody())
	assert.False(t, RawMessage{Body: "  \n"}.HasBody())
	assert.True(t, RawMessage{Body: "x"}.HasBody())
}
