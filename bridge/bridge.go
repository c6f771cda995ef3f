package bridge

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/busbridge/errors"
	"github.com/c360/busbridge/eventbus"
	"github.com/c360/busbridge/metric"
)

const (
	// RejectAuthAddress is the reserved address auth denials are delivered on.
	RejectAuthAddress = "client.auth"

	// DefaultAuthAddress is the bus subject of the auth authority.
	DefaultAuthAddress = "vertx.basicauthmanager.authorise"

	// DefaultAuthTimeout is the TTL of cached authorisations.
	DefaultAuthTimeout = 5 * time.Minute
)

// Bridge owns the bridge-wide state shared by all client sessions: the
// permission rules, the auth cache, and the reply-address whitelist.
// Bridges do not share state with each other.
type Bridge struct {
	bus    eventbus.Bus
	logger *slog.Logger
	hook   Hook

	engine  *matchEngine
	replies *replyRegistry
	auths   *authCache

	authAddress string
	authTimeout time.Duration
	metrics     *Metrics
}

// Option is a functional option for configuring a Bridge
type Option func(*Bridge) error

// WithInboundPermitted sets the ordered client-to-bus permission list.
func WithInboundPermitted(rules []Rule) Option {
	return func(b *Bridge) error {
		normalized, err := normalizeRules(rules)
		if err != nil {
			return err
		}
		b.engine.inbound = normalized
		return nil
	}
}

// WithOutboundPermitted sets the ordered bus-to-client permission list.
func WithOutboundPermitted(rules []Rule) Option {
	return func(b *Bridge) error {
		normalized, err := normalizeRules(rules)
		if err != nil {
			return err
		}
		b.engine.outbound = normalized
		return nil
	}
}

// WithAuthTimeout sets the TTL of cached authorisations. Zero is permitted
// and evicts entries immediately after the timer tick.
func WithAuthTimeout(d time.Duration) Option {
	return func(b *Bridge) error {
		if d < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Bridge", "New",
				fmt.Sprintf("authTimeout %v < 0", d))
		}
		b.authTimeout = d
		return nil
	}
}

// WithAuthAddress sets the bus subject of the auth authority.
func WithAuthAddress(address string) Option {
	return func(b *Bridge) error {
		if address != "" {
			b.authAddress = address
		}
		return nil
	}
}

// WithHook installs policy hooks around every bridge decision point.
func WithHook(hook Hook) Option {
	return func(b *Bridge) error {
		b.hook = hook
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) error {
		if logger != nil {
			b.logger = logger
		}
		return nil
	}
}

// WithMetrics registers bridge metrics with the given registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(b *Bridge) error {
		metrics, err := newMetrics(registry)
		if err != nil {
			return err
		}
		b.metrics = metrics
		return nil
	}
}

// New creates a Bridge over the given bus. With no options every frame is
// rejected: both permission lists default to empty.
func New(bus eventbus.Bus, opts ...Option) (*Bridge, error) {
	if bus == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Bridge", "New",
			"bus is required")
	}

	replies := newReplyRegistry(DefaultReplyTimeout)
	b := &Bridge{
		bus:         bus,
		logger:      slog.Default(),
		engine:      newMatchEngine(nil, nil, replies),
		replies:     replies,
		authAddress: DefaultAuthAddress,
		authTimeout: DefaultAuthTimeout,
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	b.auths = newAuthCache(b.authTimeout)

	if b.metrics != nil {
		b.metrics.bindSizeGauges(b.auths.size, b.replies.size)
	}

	return b, nil
}

// Hook callbacks run user code; a panicking hook must not take the session
// down, so the wrappers below recover and treat a panic as a veto.

func (b *Bridge) hookSocketClosed(sock Socket) {
	if b.hook == nil {
		return
	}
	defer b.recoverHook("socketClosed")
	b.hook.SocketClosed(sock)
}

func (b *Bridge) hookSendOrPub(sock Socket, send bool, frame map[string]any, address string) (ok bool) {
	if b.hook == nil {
		return true
	}
	defer b.recoverHookVeto("sendOrPub", &ok)
	return b.hook.SendOrPub(sock, send, frame, address)
}

func (b *Bridge) hookPreRegister(sock Socket, address string) (ok bool) {
	if b.hook == nil {
		return true
	}
	defer b.recoverHookVeto("preRegister", &ok)
	return b.hook.PreRegister(sock, address)
}

func (b *Bridge) hookPostRegister(sock Socket, address string) {
	if b.hook == nil {
		return
	}
	defer b.recoverHook("postRegister")
	b.hook.PostRegister(sock, address)
}

func (b *Bridge) hookUnregister(sock Socket, address string) (ok bool) {
	if b.hook == nil {
		return true
	}
	defer b.recoverHookVeto("unregister", &ok)
	return b.hook.Unregister(sock, address)
}

func (b *Bridge) hookApplySendAuthRules(metadata []map[string]any, address string, msg eventbus.Message) (ok bool) {
	if b.hook == nil {
		return true
	}
	defer b.recoverHookVeto("applySendAuthRules", &ok)
	return b.hook.ApplySendAuthRules(metadata, address, msg)
}

func (b *Bridge) hookApplyReceiveAuthRules(frame map[string]any, authMetadata map[string]any) (ok bool) {
	if b.hook == nil {
		return true
	}
	defer b.recoverHookVeto("applyReceiveAuthRules", &ok)
	return b.hook.ApplyReceiveAuthRules(frame, authMetadata)
}

func (b *Bridge) recoverHook(name string) {
	if r := recover(); r != nil {
		b.logger.Error("hook panicked", "hook", name, "panic", r)
	}
}

func (b *Bridge) recoverHookVeto(name string, ok *bool) {
	if r := recover(); r != nil {
		b.logger.Error("hook panicked, treating as veto", "hook", name, "panic", r)
		*ok = false
	}
}
