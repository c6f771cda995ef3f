// Package busbridge bridges a server-side NATS event bus to untrusted
// browser-style clients over persistent WebSocket connections.
//
// # Architecture
//
// The module is organised around one core package and a set of supporting
// infrastructure packages:
//
//   - bridge: the permission-checked bridge core. Each client session may
//     send, publish, register and unregister against bus addresses. Two
//     ordered permission lists (inbound and outbound) gate all traffic,
//     sessions are authorised asynchronously against an auth authority
//     reachable on the bus itself, and reply traffic for approved sends is
//     forwarded transparently.
//   - eventbus: the bus abstraction the bridge talks to (publish, send with
//     reply continuation, request, subscribe) plus its NATS binding.
//   - natsclient: managed NATS connection with reconnect handling and
//     structured status reporting.
//   - gateway/ws: the WebSocket gateway component that owns client
//     connections and feeds frames into bridge sessions.
//   - config, errors, metric, component, health: configuration loading and
//     validation, classified error handling, Prometheus metrics, component
//     lifecycle contracts and health aggregation.
//
// # Wire protocol
//
// Clients exchange JSON text frames:
//
//	{"type":"send","address":"orders.create","body":{...},"replyAddress":"...","sessionID":"..."}
//	{"type":"publish","address":"ticker","body":{...}}
//	{"type":"register","address":"ticker"}
//	{"type":"unregister","address":"ticker"}
//
// The bridge delivers bus messages to registered clients as envelopes:
//
//	{"address":"ticker","body":{...},"replyAddress":"..."}
//
// Authorisation denials are delivered on the reserved address "client.auth"
// with body {"status":"denied"}.
//
// The cmd/bridged daemon wires a complete deployment: YAML configuration,
// NATS connection, bridge, WebSocket gateway, /metrics and /healthz.
package busbridge
