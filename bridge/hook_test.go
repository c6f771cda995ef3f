package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/busbridge/eventbus"
)

// recordingHook vetoes according to its fields and records calls.
type recordingHook struct {
	DefaultHook

	vetoSendOrPub   bool
	vetoPreRegister bool
	vetoUnregister  bool
	vetoSendAuth    bool
	vetoReceiveAuth bool

	closedSockets []string
	postRegisters []string
	unregisters   []string
}

func (h *recordingHook) SocketClosed(sock Socket) {
	h.closedSockets = append(h.closedSockets, sock.RemoteID())
}

func (h *recordingHook) SendOrPub(Socket, bool, map[string]any, string) bool {
	return !h.vetoSendOrPub
}

func (h *recordingHook) PreRegister(Socket, string) bool {
	return !h.vetoPreRegister
}

func (h *recordingHook) PostRegister(_ Socket, address string) {
	h.postRegisters = append(h.postRegisters, address)
}

func (h *recordingHook) Unregister(_ Socket, address string) bool {
	h.unregisters = append(h.unregisters, address)
	return !h.vetoUnregister
}

func (h *recordingHook) ApplySendAuthRules([]map[string]any, string, eventbus.Message) bool {
	return !h.vetoSendAuth
}

func (h *recordingHook) ApplyReceiveAuthRules(map[string]any, map[string]any) bool {
	return !h.vetoReceiveAuth
}

func TestHookSendOrPubVeto(t *testing.T) {
	bus := newFakeBus()
	hook := &recordingHook{vetoSendOrPub: true}
	b := newTestBridge(t, bus,
		WithInboundPermitted([]Rule{{}}),
		WithHook(hook))
	sess := b.NewSession(newFakeSocket("s1"))

	err := sess.HandleFrame(frame(t, map[string]any{
		"type": "send", "address": "foo", "body": map[string]any{},
	}))
	require.NoError(t, err)
	assert.Empty(t, bus.sentRecords())
}

func TestHookPreRegisterVeto(t *testing.T) {
	bus := newFakeBus()
	hook := &recordingHook{vetoPreRegister: true}
	b := newTestBridge(t, bus,
		WithOutboundPermitted([]Rule{{}}),
		WithHook(hook))
	sess := b.NewSession(newFakeSocket("s1"))

	require.NoError(t, sess.HandleFrame(frame(t, map[string]any{
		"type": "register", "address": "bar",
	})))

	assert.Equal(t, 0, bus.activeSubCount("bar"))
	assert.Empty(t, hook.postRegisters)
}

func TestHookPostRegisterCalled(t *testing.T) {
	bus := newFakeBus()
	hook := &recordingHook{}
	b := newTestBridge(t, bus,
		WithOutboundPermitted([]Rule{{}}),
		WithHook(hook))
	sess := b.NewSession(newFakeSocket("s1"))

	require.NoError(t, sess.HandleFrame(frame(t, map[string]any{
		"type": "register", "address": "bar",
	})))

	assert.Equal(t, []string{"bar"}, hook.postRegisters)
}

func TestHookUnregisterVeto(t *testing.T) {
	bus := newFakeBus()
	hook := &recordingHook{vetoUnregister: true}
	b := newTestBridge(t, bus,
		WithOutboundPermitted([]Rule{{}}),
		WithHook(hook))
	sess := b.NewSession(newFakeSocket("s1"))

	require.NoError(t, sess.HandleFrame(frame(t, map[string]any{
		"type": "register", "address": "bar",
	})))
	require.NoError(t, sess.HandleFrame(frame(t, map[string]any{
		"type": "unregister", "address": "bar",
	})))

	// Vetoed: the handler stays installed
	assert.Equal(t, 1, bus.activeSubCount("bar"))
}

func TestHookUnregisterVetoIgnoredOnClose(t *testing.T) {
	bus := newFakeBus()
	hook := &recordingHook{vetoUnregister: true}
	b := newTestBridge(t, bus,
		WithOutboundPermitted([]Rule{{}}),
		WithHook(hook))
	sock := newFakeSocket("s1")
	sess := b.NewSession(sock)

	require.NoError(t, sess.HandleFrame(frame(t, map[string]any{
		"type": "register", "address": "bar",
	})))

	sess.Close()

	// The hook is informed but cannot keep the handler alive
	assert.Contains(t, hook.unregisters, "bar")
	assert.Equal(t, 0, bus.activeSubCount("bar"))
	assert.Equal(t, []string{"s1"}, hook.closedSockets)
}

func TestHookApplySendAuthRulesVeto(t *testing.T) {
	bus := newFakeBus()
	hook := &recordingHook{vetoSendAuth: true}
	b := newTestBridge(t, bus,
		WithOutboundPermitted([]Rule{{Address: "bar"}}),
		WithHook(hook))
	sock := newFakeSocket("s1")
	sess := b.NewSession(sock)

	require.NoError(t, sess.HandleFrame(frame(t, map[string]any{
		"type": "register", "address": "bar",
	})))

	bus.deliver("bar", []byte(`{}`), "")
	assert.Zero(t, sock.writeCount())
}

func TestHookApplyReceiveAuthRulesVetoOnCacheHit(t *testing.T) {
	bus := newFakeBus()
	hook := &recordingHook{vetoReceiveAuth: true}
	b := newTestBridge(t, bus,
		WithInboundPermitted([]Rule{{Address: "foo", RequiresAuth: true}}),
		WithHook(hook))
	sock := newFakeSocket("s1")
	sess := b.NewSession(sock)

	// Pre-populate the cache: the receive rule is still consulted per send
	b.auths.put("S", sock, map[string]any{"sessionID": "S"})

	err := sess.HandleFrame(frame(t, map[string]any{
		"type": "send", "address": "foo", "body": map[string]any{}, "sessionID": "S",
	}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sock.writeCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, RejectAuthAddress, sock.envelopes()[0].Address)
	assert.Empty(t, bus.sentRecords())
}

type panickyHook struct {
	DefaultHook
}

func (panickyHook) SendOrPub(Socket, bool, map[string]any, string) bool {
	panic("hook blew up")
}

func TestHookPanicTreatedAsVeto(t *testing.T) {
	bus := newFakeBus()
	b := newTestBridge(t, bus,
		WithInboundPermitted([]Rule{{}}),
		WithHook(panickyHook{}))
	sess := b.NewSession(newFakeSocket("s1"))

	err := sess.HandleFrame(frame(t, map[string]any{
		"type": "send", "address": "foo", "body": map[string]any{},
	}))
	require.NoError(t, err)
	assert.Empty(t, bus.sentRecords())
}

func TestDefaultHookAllowsEverything(t *testing.T) {
	var h Hook = DefaultHook{}
	assert.True(t, h.SendOrPub(nil, true, nil, "a"))
	assert.True(t, h.PreRegister(nil, "a"))
	assert.True(t, h.Unregister(nil, "a"))
	assert.True(t, h.ApplySendAuthRules(nil, "a", eventbus.Message{}))
	assert.True(t, h.ApplyReceiveAuthRules(nil, nil))
}
