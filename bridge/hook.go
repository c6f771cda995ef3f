package bridge

import (
	"github.com/c360/busbridge/eventbus"
)

// Hook intercepts bridge decision points. Boolean hooks veto the action by
// returning false. Embed DefaultHook to implement only a subset.
type Hook interface {
	// SocketClosed is called after a session's socket has closed and its
	// state has been torn down.
	SocketClosed(sock Socket)

	// SendOrPub is called before any send or publish is processed. The frame
	// is the raw decoded client frame.
	SendOrPub(sock Socket, send bool, frame map[string]any, address string) bool

	// PreRegister gates handler registration for an address.
	PreRegister(sock Socket, address string) bool

	// PostRegister is called after a handler has been installed.
	PostRegister(sock Socket, address string)

	// Unregister gates explicit handler removal. On socket close it is still
	// invoked for each remaining handler but its verdict is ignored.
	Unregister(sock Socket, address string) bool

	// ApplySendAuthRules gates delivery of a bus message to the client.
	// metadata holds the metadata of every authorisation currently cached
	// for the socket.
	ApplySendAuthRules(metadata []map[string]any, address string, msg eventbus.Message) bool

	// ApplyReceiveAuthRules gates acceptance of an inbound frame against the
	// auth metadata of its session. Consulted on every authorised send,
	// including cache hits.
	ApplyReceiveAuthRules(frame map[string]any, authMetadata map[string]any) bool
}

// DefaultHook is a no-op Hook: boolean hooks allow everything. Embed it to
// override individual callbacks.
type DefaultHook struct{}

// SocketClosed implements Hook.
func (DefaultHook) SocketClosed(Socket) {}

// SendOrPub implements Hook.
func (DefaultHook) SendOrPub(Socket, bool, map[string]any, string) bool { return true }

// PreRegister implements Hook.
func (DefaultHook) PreRegister(Socket, string) bool { return true }

// PostRegister implements Hook.
func (DefaultHook) PostRegister(Socket, string) {}

// Unregister implements Hook.
func (DefaultHook) Unregister(Socket, string) bool { return true }

// ApplySendAuthRules implements Hook.
func (DefaultHook) ApplySendAuthRules([]map[string]any, string, eventbus.Message) bool { return true }

// ApplyReceiveAuthRules implements Hook.
func (DefaultHook) ApplyReceiveAuthRules(map[string]any, map[string]any) bool { return true }

var _ Hook = DefaultHook{}
