package eventbus

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/busbridge/errors"
	"github.com/c360/busbridge/natsclient"
)

// DefaultReplyTimeout bounds how long a Send keeps its reply continuation
// armed before the reply subscription is torn down.
const DefaultReplyTimeout = 30 * time.Second

// NATSBus implements Bus over a managed NATS connection.
//
// Send uses an inbox subject as the reply address, so reply addresses are
// ordinary strings that can be carried through client envelopes and replied
// to by publishing. Point-to-point fan-in is the receiving service's
// concern (NATS services conventionally subscribe in queue groups).
type NATSBus struct {
	client       *natsclient.Client
	replyTimeout time.Duration
}

// NATSBusOption configures a NATSBus.
type NATSBusOption func(*NATSBus)

// WithReplyTimeout overrides the reply continuation timeout.
func WithReplyTimeout(d time.Duration) NATSBusOption {
	return func(b *NATSBus) {
		if d > 0 {
			b.replyTimeout = d
		}
	}
}

// NewNATSBus creates a Bus backed by the given NATS client.
func NewNATSBus(client *natsclient.Client, opts ...NATSBusOption) (*NATSBus, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "NATSBus", "NewNATSBus",
			"NATS client is required")
	}
	b := &NATSBus{
		client:       client,
		replyTimeout: DefaultReplyTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *NATSBus) conn() (*nats.Conn, error) {
	nc := b.client.GetConnection()
	if nc == nil || !nc.IsConnected() {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "NATSBus", "conn",
			"get NATS connection")
	}
	return nc, nil
}

// Publish delivers body to every subscriber of address.
func (b *NATSBus) Publish(address string, body []byte) error {
	nc, err := b.conn()
	if err != nil {
		return err
	}
	if err := nc.Publish(address, body); err != nil {
		return errors.WrapTransient(err, "NATSBus", "Publish", "publish to "+address)
	}
	return nil
}

// Send delivers body to address. With a non-nil reply handler an inbox
// subscription is armed for exactly one reply; if no reply arrives within
// the reply timeout the subscription is removed and late replies are dropped.
func (b *NATSBus) Send(address string, body []byte, reply Handler) error {
	nc, err := b.conn()
	if err != nil {
		return err
	}

	if reply == nil {
		if err := nc.Publish(address, body); err != nil {
			return errors.WrapTransient(err, "NATSBus", "Send", "send to "+address)
		}
		return nil
	}

	inbox := nc.NewRespInbox()
	sub, err := nc.Subscribe(inbox, func(msg *nats.Msg) {
		reply(Message{
			Address:      msg.Subject,
			ReplyAddress: msg.Reply,
			Body:         msg.Data,
		})
	})
	if err != nil {
		return errors.WrapTransient(err, "NATSBus", "Send", "subscribe reply inbox")
	}
	if err := sub.AutoUnsubscribe(1); err != nil {
		_ = sub.Unsubscribe()
		return errors.WrapTransient(err, "NATSBus", "Send", "arm reply inbox")
	}
	time.AfterFunc(b.replyTimeout, func() {
		// No-op if the reply already arrived.
		_ = sub.Unsubscribe()
	})

	if err := nc.PublishRequest(address, inbox, body); err != nil {
		_ = sub.Unsubscribe()
		return errors.WrapTransient(err, "NATSBus", "Send", "send to "+address)
	}
	return nil
}

// Request sends body to address and waits for the reply, bounded by ctx.
func (b *NATSBus) Request(ctx context.Context, address string, body []byte) (Message, error) {
	nc, err := b.conn()
	if err != nil {
		return Message{}, err
	}
	msg, err := nc.RequestWithContext(ctx, address, body)
	if err != nil {
		return Message{}, errors.WrapTransient(err, "NATSBus", "Request", "request to "+address)
	}
	return Message{
		Address:      msg.Subject,
		ReplyAddress: msg.Reply,
		Body:         msg.Data,
	}, nil
}

// Subscribe installs a handler for address.
func (b *NATSBus) Subscribe(address string, h Handler) (Subscription, error) {
	nc, err := b.conn()
	if err != nil {
		return nil, err
	}
	sub, err := nc.Subscribe(address, func(msg *nats.Msg) {
		h(Message{
			Address:      msg.Subject,
			ReplyAddress: msg.Reply,
			Body:         msg.Data,
		})
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "NATSBus", "Subscribe", "subscribe to "+address)
	}
	return &natsSubscription{sub: sub}, nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	if !s.sub.IsValid() {
		return nil
	}
	return s.sub.Unsubscribe()
}

var _ Bus = (*NATSBus)(nil)
