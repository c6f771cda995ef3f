package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/busbridge/bridge"
	"github.com/c360/busbridge/eventbus"
	"github.com/c360/busbridge/gateway"
)

// stubBus records bridge traffic and lets tests inject bus deliveries.
type stubBus struct {
	mu        sync.Mutex
	sent      []eventbus.Message
	published []eventbus.Message
	handlers  map[string][]eventbus.Handler
	active    map[string]int
}

func newStubBus() *stubBus {
	return &stubBus{
		handlers: make(map[string][]eventbus.Handler),
		active:   make(map[string]int),
	}
}

func (b *stubBus) Publish(address string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, eventbus.Message{Address: address, Body: body})
	return nil
}

func (b *stubBus) Send(address string, body []byte, _ eventbus.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, eventbus.Message{Address: address, Body: body})
	return nil
}

func (b *stubBus) Request(_ context.Context, address string, _ []byte) (eventbus.Message, error) {
	return eventbus.Message{Address: address, Body: []byte(`{"status":"ok"}`)}, nil
}

func (b *stubBus) Subscribe(address string, h eventbus.Handler) (eventbus.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[address] = append(b.handlers[address], h)
	b.active[address]++
	return &stubSub{bus: b, address: address}, nil
}

type stubSub struct {
	bus     *stubBus
	address string
	once    sync.Once
}

func (s *stubSub) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		s.bus.active[s.address]--
		s.bus.mu.Unlock()
	})
	return nil
}

func (b *stubBus) deliver(address string, body []byte) {
	b.mu.Lock()
	handlers := append([]eventbus.Handler(nil), b.handlers[address]...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(eventbus.Message{Address: address, Body: body})
	}
}

func (b *stubBus) sentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func (b *stubBus) activeSubs(address string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active[address]
}

func newTestGateway(t *testing.T, bus eventbus.Bus, opts ...bridge.Option) (*Gateway, *httptest.Server) {
	t.Helper()

	br, err := bridge.New(bus, opts...)
	require.NoError(t, err)

	cfg := gateway.DefaultConfig()
	cfg.AllowedOrigins = []string{"*"}
	g, err := NewGateway(ConstructorConfig{
		Name:   "ws-gateway-test",
		Config: cfg,
		Bridge: br,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(g.handleWebSocket))
	t.Cleanup(srv.Close)
	return g, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGatewayForwardsSendToBus(t *testing.T) {
	bus := newStubBus()
	_, srv := newTestGateway(t, bus,
		bridge.WithInboundPermitted([]bridge.Rule{{Address: "foo"}}))

	conn := dial(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"send","address":"foo","body":{"x":1}}`)))

	require.Eventually(t, func() bool {
		return bus.sentCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestGatewayDeliversBusMessages(t *testing.T) {
	bus := newStubBus()
	_, srv := newTestGateway(t, bus,
		bridge.WithOutboundPermitted([]bridge.Rule{{Address: "bar"}}))

	conn := dial(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"register","address":"bar"}`)))

	require.Eventually(t, func() bool {
		return bus.activeSubs("bar") == 1
	}, time.Second, 5*time.Millisecond)

	bus.deliver("bar", []byte(`{"k":"v"}`))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Address string          `json:"address"`
		Body    json.RawMessage `json:"body"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "bar", env.Address)
	assert.JSONEq(t, `{"k":"v"}`, string(env.Body))
}

func TestGatewayMalformedFrameKeepsSocketOpen(t *testing.T) {
	bus := newStubBus()
	_, srv := newTestGateway(t, bus,
		bridge.WithInboundPermitted([]bridge.Rule{{Address: "foo"}}))

	conn := dial(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{broken`)))

	// The connection survives the protocol error and later frames still work
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"send","address":"foo","body":{}}`)))

	require.Eventually(t, func() bool {
		return bus.sentCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestGatewayCloseCleansUpSubscriptions(t *testing.T) {
	bus := newStubBus()
	g, srv := newTestGateway(t, bus,
		bridge.WithOutboundPermitted([]bridge.Rule{{Address: "bar"}}))

	conn := dial(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"register","address":"bar"}`)))

	require.Eventually(t, func() bool {
		return bus.activeSubs("bar") == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return bus.activeSubs("bar") == 0
	}, time.Second, 5*time.Millisecond)

	g.clientsMu.Lock()
	remaining := len(g.clients)
	g.clientsMu.Unlock()
	assert.Zero(t, remaining)
}

func TestGatewayRequiresBridge(t *testing.T) {
	_, err := NewGateway(ConstructorConfig{Config: gateway.DefaultConfig()})
	assert.Error(t, err)
}

func TestCheckOrigin(t *testing.T) {
	br, err := bridge.New(newStubBus())
	require.NoError(t, err)

	mk := func(origins []string) *Gateway {
		cfg := gateway.DefaultConfig()
		cfg.AllowedOrigins = origins
		g, err := NewGateway(ConstructorConfig{Config: cfg, Bridge: br})
		require.NoError(t, err)
		return g
	}

	req := func(origin, host string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/eventbus", nil)
		r.Host = host
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	t.Run("no origin header allowed", func(t *testing.T) {
		g := mk(nil)
		assert.True(t, g.checkOrigin(req("", "example.com")))
	})

	t.Run("same host allowed", func(t *testing.T) {
		g := mk(nil)
		assert.True(t, g.checkOrigin(req("http://example.com", "example.com")))
	})

	t.Run("cross origin refused by default", func(t *testing.T) {
		g := mk(nil)
		assert.False(t, g.checkOrigin(req("http://evil.com", "example.com")))
	})

	t.Run("allowlisted origin", func(t *testing.T) {
		g := mk([]string{"http://app.example.com"})
		assert.True(t, g.checkOrigin(req("http://app.example.com", "example.com")))
		assert.False(t, g.checkOrigin(req("http://other.example.com", "example.com")))
	})

	t.Run("wildcard", func(t *testing.T) {
		g := mk([]string{"*"})
		assert.True(t, g.checkOrigin(req("http://anything.com", "example.com")))
	})
}

func TestGatewayStartStop(t *testing.T) {
	bus := newStubBus()
	br, err := bridge.New(bus)
	require.NoError(t, err)

	cfg := gateway.DefaultConfig()
	cfg.Port = 18934
	g, err := NewGateway(ConstructorConfig{Config: cfg, Bridge: br})
	require.NoError(t, err)

	require.NoError(t, g.Initialize())
	require.NoError(t, g.Start(context.Background()))
	assert.True(t, g.Health().Healthy)

	// Double start is refused
	assert.Error(t, g.Start(context.Background()))

	require.NoError(t, g.Stop(2*time.Second))
	assert.False(t, g.Health().Healthy)

	// Stop is idempotent
	require.NoError(t, g.Stop(time.Second))
}

func TestGatewayMeta(t *testing.T) {
	bus := newStubBus()
	br, err := bridge.New(bus)
	require.NoError(t, err)

	g, err := NewGateway(ConstructorConfig{Config: gateway.DefaultConfig(), Bridge: br})
	require.NoError(t, err)

	meta := g.Meta()
	assert.Equal(t, "ws-gateway", meta.Name)
	assert.Equal(t, "gateway", meta.Type)
}
