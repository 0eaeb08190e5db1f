package model

import (
	"strings"
	"time"
)

// RawMessage is a single SMS as observed by the capture boundary.
// An empty Sender or Body means the field was not supplied; a zero ObservedAt
// means no timestamp is known.
type RawMessage struct {
	ObservedAt time.Time
	Sender     string
	Body       string
}

// HasBody reports whether the message carries any text worth parsing.
func (m RawMessage) HasBody() bool {
	return strings.TrimSpace(m.Body) != ""
}

// HasTimestamp reports whether the capture time is known.
func (m RawMessage) HasTimestamp() bool {
	return !m.ObservedAt.IsZero()
}

// Fingerprint returns the deduplication key for the message.
func (m RawMessage) Fingerprint() string {
	return m.Sender + "|" + m.Body
}

// RelayEntry is the persisted shape of a message waiting in the relay.
// Field names match what the platform receiver writes.
type RelayEntry struct {
	Body               *string `json:"body,omitempty"`
	OriginatingAddress *string `json:"originatingAddress,omitempty"`
	Timestamp          int64   `json:"timestamp"`
}

// NewRelayEntry converts a captured message into its relay representation.
func NewRelayEntry(m RawMessage) RelayEntry {
	entry := RelayEntry{}
	if m.Body != "" {
		body := m.Body
		entry.Body = &body
	}
	if m.Sender != "" {
		sender := m.Sender
		entry.OriginatingAddress = &sender
	}
	if m.HasTimestamp() {
		entry.Timestamp = m.ObservedAt.UnixMilli()
	}
	return entry
}

// ToRawMessage normalizes a relay entry. A zero or negative timestamp is
// treated as unknown.
func (e RelayEntry) ToRawMessage() RawMessage {
	var m RawMessage
	if e.Body != nil {
		m.Body = *e.Body
	}
	if e.OriginatingAddress != nil {
		m.Sender = *e.OriginatingAddress
	}
	if e.Timestamp > 0 {
		m.ObservedAt = time.UnixMilli(e.Timestamp).UTC()
	}
	return m
}
