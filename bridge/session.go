package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/c360/busbridge/errors"
	"github.com/c360/busbridge/eventbus"
)

// Session is the bridge-side state of one client socket. The hosting
// gateway feeds raw frames to HandleFrame and calls Close when the socket's
// end event fires.
type Session struct {
	bridge *Bridge
	sock   Socket

	mu       sync.Mutex
	handlers map[string]eventbus.Subscription
	closed   bool
}

// NewSession creates the session for a freshly connected socket.
func (b *Bridge) NewSession(sock Socket) *Session {
	if b.metrics != nil {
		b.metrics.sessionsActive.Inc()
	}
	return &Session{
		bridge:   b,
		sock:     sock,
		handlers: make(map[string]eventbus.Subscription),
	}
}

// envelope is the bridge-to-client wire format.
type envelope struct {
	Address      string          `json:"address"`
	Body         json.RawMessage `json:"body"`
	ReplyAddress string          `json:"replyAddress,omitempty"`
}

// HandleFrame processes one raw client frame. A malformed frame (non-object
// JSON, missing mandatory field, unknown type) returns an invalid error and
// is fatal to that frame only; the caller decides whether to surface it to
// the client or tear the socket down.
func (s *Session) HandleFrame(data []byte) error {
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return errors.WrapInvalid(err, "Session", "HandleFrame", "decode frame")
	}
	if frame == nil {
		return errors.WrapInvalid(errors.ErrInvalidFrame, "Session", "HandleFrame", "decode frame")
	}

	frameType, err := mandatoryString(frame, "type")
	if err != nil {
		return err
	}
	address, err := mandatoryString(frame, "address")
	if err != nil {
		return err
	}

	if s.bridge.metrics != nil {
		s.bridge.metrics.framesTotal.WithLabelValues(frameType).Inc()
	}

	switch frameType {
	case "send":
		return s.handleSendOrPub(true, frame, address)
	case "publish":
		return s.handleSendOrPub(false, frame, address)
	case "register":
		s.register(address)
		return nil
	case "unregister":
		s.unregister(address)
		return nil
	default:
		return errors.WrapInvalid(errors.ErrUnknownType, "Session", "HandleFrame",
			fmt.Sprintf("frame type %q", frameType))
	}
}

func mandatoryString(frame map[string]any, field string) (string, error) {
	value, ok := frame[field].(string)
	if !ok || value == "" {
		return "", errors.WrapInvalid(errors.ErrMissingField, "Session", "HandleFrame",
			fmt.Sprintf("field %q", field))
	}
	return value, nil
}

// handleSendOrPub runs the inbound pipeline: hook gate, mandatory body,
// inbound match, optional authorisation, then dispatch onto the bus.
func (s *Session) handleSendOrPub(send bool, frame map[string]any, address string) error {
	if !s.bridge.hookSendOrPub(s.sock, send, frame, address) {
		return nil
	}

	body, ok := frame["body"]
	if !ok {
		return errors.WrapInvalid(errors.ErrMissingField, "Session", "handleSendOrPub",
			`field "body"`)
	}
	replyAddress, _ := frame["replyAddress"].(string)

	s.logInbound(address, body)

	match := s.bridge.engine.checkMatches(Inbound, address, body)
	if !match.DoesMatch {
		s.bridge.logger.Debug("inbound message rejected, no match",
			"address", address, "socket", s.sock.RemoteID())
		s.dropInbound("no_match")
		return nil
	}

	if !match.RequiresAuth {
		s.forward(send, address, body, replyAddress)
		return nil
	}

	sessionID, _ := frame["sessionID"].(string)
	if sessionID == "" {
		s.bridge.logger.Debug("inbound message rejected, auth required and sessionID missing",
			"address", address, "socket", s.sock.RemoteID())
		s.deny()
		return nil
	}

	s.bridge.authorise(frame, sessionID, s.sock, func(authed bool, err error) {
		switch {
		case err != nil:
			s.bridge.logger.Error("error in performing authorisation", "error", err,
				"address", address, "socket", s.sock.RemoteID())
			s.deny()
		case !authed:
			s.bridge.logger.Debug("inbound message rejected, sessionID is not authorised",
				"address", address, "socket", s.sock.RemoteID())
			s.deny()
		default:
			s.forward(send, address, body, replyAddress)
		}
	})
	return nil
}

// logInbound debug-logs an accepted-for-checking frame. Bodies mentioning
// passwords are not logged.
func (s *Session) logInbound(address string, body any) {
	if !s.bridge.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	rendered := fmt.Sprintf("%v", body)
	if strings.Contains(rendered, "password") {
		return
	}
	s.bridge.logger.Debug("received message from client",
		"address", address, "body", rendered, "socket", s.sock.RemoteID())
}

// forward dispatches an approved frame onto the bus. Its reply address (if
// any) is whitelisted first so the client's reply traffic passes without
// matching rules, and a reply continuation is armed that keeps the chain
// alive: each reply's own reply address is whitelisted in turn.
func (s *Session) forward(send bool, address string, body any, replyAddress string) {
	data, err := json.Marshal(body)
	if err != nil {
		s.bridge.logger.Error("failed to encode body for bus dispatch",
			"address", address, "error", err)
		return
	}

	var reply eventbus.Handler
	if replyAddress != "" {
		reply = func(msg eventbus.Message) {
			// Replies are not checked against outbound matches: they are
			// implicitly accepted because the original message was.
			s.bridge.replies.add(msg.ReplyAddress)
			s.deliver(replyAddress, msg.Body, msg.ReplyAddress)
		}
	}
	s.bridge.replies.add(replyAddress)

	if send {
		if err := s.bridge.bus.Send(address, data, reply); err != nil {
			s.bridge.logger.Error("bus send failed", "address", address, "error", err)
		}
		return
	}
	if err := s.bridge.bus.Publish(address, data); err != nil {
		s.bridge.logger.Error("bus publish failed", "address", address, "error", err)
	}
}

// register installs the outbound-filter bus handler for address. The last
// register wins: the new handler is installed first, then a handler already
// installed for the address is released, so no bus subscription leaks.
func (s *Session) register(address string) {
	if !s.bridge.hookPreRegister(s.sock, address) {
		return
	}

	sub, err := s.bridge.bus.Subscribe(address, s.outboundHandler(address))
	if err != nil {
		// Surfaced but not fatal: the session continues.
		s.bridge.logger.Error("failed to install bus handler",
			"address", address, "socket", s.sock.RemoteID(), "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = sub.Unsubscribe()
		return
	}
	prev, replaced := s.handlers[address]
	s.handlers[address] = sub
	s.mu.Unlock()

	if replaced {
		_ = prev.Unsubscribe()
	} else if s.bridge.metrics != nil {
		s.bridge.metrics.handlersActive.Inc()
	}

	s.bridge.hookPostRegister(s.sock, address)
}

// unregister removes the bus handler for address, if any.
func (s *Session) unregister(address string) {
	if !s.bridge.hookUnregister(s.sock, address) {
		return
	}

	s.mu.Lock()
	sub, ok := s.handlers[address]
	if ok {
		delete(s.handlers, address)
	}
	s.mu.Unlock()

	if ok {
		_ = sub.Unsubscribe()
		if s.bridge.metrics != nil {
			s.bridge.metrics.handlersActive.Dec()
		}
	}
}

// outboundHandler builds the bus delivery filter for a registered address:
// outbound match, auth presence when required, send-auth hook, then the
// envelope write. The delivered message's reply address is whitelisted so
// the client's reply to it will be accepted inbound.
func (s *Session) outboundHandler(address string) eventbus.Handler {
	return func(msg eventbus.Message) {
		var body any
		if len(msg.Body) > 0 {
			// Non-JSON bodies stay nil and skip structural matching.
			_ = json.Unmarshal(msg.Body, &body)
		}

		match := s.bridge.engine.checkMatches(Outbound, address, body)
		if !match.DoesMatch {
			s.bridge.logger.Debug("outbound message rejected, no match", "address", address)
			s.dropOutbound("no_match")
			return
		}

		if match.RequiresAuth && !s.bridge.auths.hasAuths(s.sock) {
			s.bridge.logger.Debug("outbound message rejected, auth required and socket is not authed",
				"address", address, "socket", s.sock.RemoteID())
			s.dropOutbound("not_authed")
			return
		}

		metadata := s.bridge.auths.metadataFor(s.sock)
		if !s.bridge.hookApplySendAuthRules(metadata, address, msg) {
			s.bridge.logger.Debug("outbound message rejected by custom auth rules",
				"address", address, "socket", s.sock.RemoteID())
			s.dropOutbound("hook_veto")
			return
		}

		s.bridge.replies.add(msg.ReplyAddress)
		s.deliver(address, msg.Body, msg.ReplyAddress)
	}
}

// deliver writes one envelope to the socket. Bodies that are not valid JSON
// are delivered as JSON strings.
func (s *Session) deliver(address string, body []byte, replyAddress string) {
	if !json.Valid(body) {
		encoded, err := json.Marshal(string(body))
		if err != nil {
			return
		}
		body = encoded
	}

	data, err := json.Marshal(envelope{
		Address:      address,
		Body:         body,
		ReplyAddress: replyAddress,
	})
	if err != nil {
		s.bridge.logger.Error("failed to encode envelope", "address", address, "error", err)
		return
	}

	if err := s.sock.WriteMessage(data); err != nil {
		s.bridge.logger.Debug("socket write failed", "address", address,
			"socket", s.sock.RemoteID(), "error", err)
	}
}

// deny sends the denial frame on the reserved auth address.
func (s *Session) deny() {
	if s.bridge.metrics != nil {
		s.bridge.metrics.denialsTotal.Inc()
	}
	s.deliver(RejectAuthAddress, []byte(`{"status":"denied"}`), "")
}

func (s *Session) dropInbound(reason string) {
	if s.bridge.metrics != nil {
		s.bridge.metrics.inboundDropped.WithLabelValues(reason).Inc()
	}
}

func (s *Session) dropOutbound(reason string) {
	if s.bridge.metrics != nil {
		s.bridge.metrics.outboundDropped.WithLabelValues(reason).Inc()
	}
}

// Close tears the session down: every remaining bus handler is released
// (the unregister hook is informed, its verdict ignored), all of the
// socket's cached authorisations are cancelled, and the socketClosed hook
// fires. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handlers := s.handlers
	s.handlers = nil
	s.mu.Unlock()

	for address, sub := range handlers {
		s.bridge.hookUnregister(s.sock, address)
		if err := sub.Unsubscribe(); err != nil {
			s.bridge.logger.Debug("unsubscribe on close failed",
				"address", address, "error", err)
		}
		if s.bridge.metrics != nil {
			s.bridge.metrics.handlersActive.Dec()
		}
	}

	s.bridge.auths.cancelAllFor(s.sock)
	s.bridge.hookSocketClosed(s.sock)

	if s.bridge.metrics != nil {
		s.bridge.metrics.sessionsActive.Dec()
	}
}
