package eventbus

import (
	"context"
)

// Message is a single delivery from the bus. ReplyAddress is set when the
// sender expects a reply; replying is done by publishing to that address.
type Message struct {
	Address      string
	ReplyAddress string
	Body         []byte
}

// Handler consumes deliveries for a subscribed address. Handlers run on bus
// delivery goroutines and must not block for long periods.
type Handler func(msg Message)

// Subscription is an installed bus handler. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe() error
}

// Bus is a subject-addressed publish/subscribe service.
type Bus interface {
	// Publish delivers body to every handler subscribed to address.
	Publish(address string, body []byte) error

	// Send delivers body point-to-point to address. When reply is non-nil a
	// single-shot reply continuation is armed: the first reply invokes the
	// handler, replies after the bus reply timeout are dropped silently.
	Send(address string, body []byte, reply Handler) error

	// Request sends body to address and waits for the reply, bounded by ctx.
	Request(ctx context.Context, address string, body []byte) (Message, error)

	// Subscribe installs a handler for address.
	Subscribe(address string, h Handler) (Subscription, error)
}
