// Package notify decouples state transitions from push delivery. State
// machines call through the Queue interface; delivery failures never roll
// back the local transition that triggered them.
package notify

import (
	"context"

	"github.com/zkpermit/zkpermit-go/logging"
)

// Message is one push notification addressed by device token.
type Message struct {
	To    string
	Title string
	Body  string
}

// Queue accepts outbound notifications. Implementations must not block
// the caller on delivery and must never surface delivery errors to it.
type Queue interface {
	Send(ctx context.Context, m Message)
}

// Log records messages to the logger without delivering them. Used in
// development mode, where push delivery is suppressed entirely.
type Log struct {
	Logger logging.Logger
}

func (l Log) Send(_ context.Context, m Message) {
	l.Logger.Info("push suppressed", "to", m.To, "title", m.Title)
}
