package notify

import (
	"context"
	"time"
)

// Action is one inline button attached to a message. The token comes back
// verbatim in an invocation event when the operator presses it.
type Action struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// Message is the wire form of an outbound notification.
type Message struct {
	Text    string    `json:"text"`
	Actions []Action  `json:"actions,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// Invocation is the wire form of an inbound button press.
type Invocation struct {
	Token string    `json:"token"`
	At    time.Time `json:"at"`
}

// Channel delivers notifications to the operator and emits the tokens of
// pressed buttons. Delivery is at-most-once; a failed send is reported to the
// caller and not retried here.
type Channel interface {
	Send(ctx context.Context, text string) error
	SendWithActions(ctx context.Context, text string, actions []Action) error

	// Events yields invoked tokens. The channel is closed on Close.
	Events() <-chan string

	Close()
}
