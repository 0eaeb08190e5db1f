package testutil

import (
	"time"

	"github.com/Veraticus/smart-captures/internal/model"
)

// Sample message bodies seen from Indian banks and payment apps.
const (
	BodyZomatoDebit  = "Rs. 1,250.50 debited at Zomato on 05-01-2024"
	BodyUberUPI      = "INR 320.00 paid to Uber via HDFC UPI"
	BodyRentTransfer = "Rs 25,000 transferred to Landlord rent from ICICI a/c"
	BodyOTP          = "Your OTP is 482913. Do not share it with anyone."
)

// MessageBuilder builds RawMessage fixtures.
type MessageBuilder struct {
	msg model.RawMessage
}

// NewMessage starts a message from HDFC with the given body, observed at the
// FixedClock time.
func NewMessage(body string) *MessageBuilder {
	return &MessageBuilder{msg: model.RawMessage{
		Sender:     "VM-HDFCBK",
		Body:       body,
		ObservedAt: FixedClock().Now(),
	}}
}

// From sets the sender.
func (b *MessageBuilder) From(sender string) *MessageBuilder {
	b.msg.Sender = sender
	return b
}

// At sets the observed time.
func (b *MessageBuilder) At(t time.Time) *MessageBuilder {
	b.msg.ObservedAt = t
	return b
}

// Ago sets the observed time to d before the FixedClock time.
func (b *MessageBuilder) Ago(d time.Duration) *MessageBuilder {
	b.msg.ObservedAt = FixedClock().Now().Add(-d)
	return b
}

// WithoutTimestamp clears the observed time.
func (b *MessageBuilder) WithoutTimestamp() *MessageBuilder {
	b.msg.ObservedAt = time.Time{}
	return b
}

// Build returns the message.
func (b *MessageBuilder) Build() model.RawMessage {
	return b.msg
}
