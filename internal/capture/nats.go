package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// ConnectNATS dials a NATS server with reconnects enabled.
func ConnectNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("smart-captures"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// NATSSource feeds a Receiver from JSON payloads published on a subject,
// for example by a phone-side forwarder.
type NATSSource struct {
	conn     *nats.Conn
	receiver *Receiver
	logger   *slog.Logger
	subject  string
}

// NewNATSSource creates a source for subject.
func NewNATSSource(conn *nats.Conn, subject string, receiver *Receiver, logger *slog.Logger) *NATSSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSource{
		conn:     conn,
		subject:  subject,
		receiver: receiver,
		logger:   logger.With("component", "nats_source", "subject", subject),
	}
}

// Run subscribes and delivers until ctx is done.
func (s *NATSSource) Run(ctx context.Context) error {
	ch := make(chan *nats.Msg, 64)
	sub, err := s.conn.ChanSubscribe(s.subject, ch)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	s.logger.Info("Listening for SMS deliveries")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			s.handle(ctx, msg)
		}
	}
}

func (s *NATSSource) handle(ctx context.Context, msg *nats.Msg) {
	decoder := json.NewDecoder(bytes.NewReader(msg.Data))
	decoder.UseNumber()
	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		s.logger.Warn("Dropping malformed delivery", "error", err)
		return
	}
	s.receiver.Deliver(ctx, payload)
}
