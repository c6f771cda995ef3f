package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/c360/busbridge/eventbus"
)

// fakeSocket records envelopes the bridge writes.
type fakeSocket struct {
	id string

	mu     sync.Mutex
	writes [][]byte
}

func newFakeSocket(id string) *fakeSocket {
	return &fakeSocket{id: id}
}

func (s *fakeSocket) WriteMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.writes = append(s.writes, cp)
	return nil
}

func (s *fakeSocket) RemoteID() string { return s.id }

func (s *fakeSocket) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

type sockEnvelope struct {
	Address      string          `json:"address"`
	Body         json.RawMessage `json:"body"`
	ReplyAddress string          `json:"replyAddress,omitempty"`
}

func (s *fakeSocket) envelopes() []sockEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sockEnvelope, 0, len(s.writes))
	for _, w := range s.writes {
		var env sockEnvelope
		if err := json.Unmarshal(w, &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

// busRecord is one message dispatched onto the fake bus.
type busRecord struct {
	address string
	body    []byte
	reply   eventbus.Handler
}

// fakeBus is an in-process Bus for tests. Subscriptions are delivered
// synchronously; Request is answered by per-address responders.
type fakeBus struct {
	mu         sync.Mutex
	published  []busRecord
	sent       []busRecord
	subs       map[string][]*fakeSub
	responders map[string]func(body []byte) ([]byte, error)
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		subs:       make(map[string][]*fakeSub),
		responders: make(map[string]func(body []byte) ([]byte, error)),
	}
}

type fakeSub struct {
	bus     *fakeBus
	address string
	h       eventbus.Handler
	removed bool
}

func (s *fakeSub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.removed = true
	return nil
}

func (b *fakeBus) Publish(address string, body []byte) error {
	b.mu.Lock()
	b.published = append(b.published, busRecord{address: address, body: body})
	handlers := b.activeHandlersLocked(address)
	b.mu.Unlock()

	for _, h := range handlers {
		h(eventbus.Message{Address: address, Body: body})
	}
	return nil
}

func (b *fakeBus) Send(address string, body []byte, reply eventbus.Handler) error {
	b.mu.Lock()
	b.sent = append(b.sent, busRecord{address: address, body: body, reply: reply})
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) Request(_ context.Context, address string, body []byte) (eventbus.Message, error) {
	b.mu.Lock()
	responder, ok := b.responders[address]
	b.mu.Unlock()

	if !ok {
		return eventbus.Message{}, fmt.Errorf("no responder for %s", address)
	}
	replyBody, err := responder(body)
	if err != nil {
		return eventbus.Message{}, err
	}
	return eventbus.Message{Address: address, Body: replyBody}, nil
}

func (b *fakeBus) Subscribe(address string, h eventbus.Handler) (eventbus.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &fakeSub{bus: b, address: address, h: h}
	b.subs[address] = append(b.subs[address], sub)
	return sub, nil
}

func (b *fakeBus) respondTo(address string, fn func(body []byte) ([]byte, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responders[address] = fn
}

// deliver simulates a bus delivery to every active subscriber of address.
func (b *fakeBus) deliver(address string, body []byte, replyAddress string) {
	b.mu.Lock()
	handlers := b.activeHandlersLocked(address)
	b.mu.Unlock()

	for _, h := range handlers {
		h(eventbus.Message{Address: address, ReplyAddress: replyAddress, Body: body})
	}
}

func (b *fakeBus) activeHandlersLocked(address string) []eventbus.Handler {
	var handlers []eventbus.Handler
	for _, sub := range b.subs[address] {
		if !sub.removed {
			handlers = append(handlers, sub.h)
		}
	}
	return handlers
}

func (b *fakeBus) activeSubCount(address string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, sub := range b.subs[address] {
		if !sub.removed {
			n++
		}
	}
	return n
}

func (b *fakeBus) sentRecords() []busRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]busRecord(nil), b.sent...)
}

func (b *fakeBus) publishedRecords() []busRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]busRecord(nil), b.published...)
}

var _ eventbus.Bus = (*fakeBus)(nil)
