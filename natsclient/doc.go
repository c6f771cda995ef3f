// Package natsclient provides a managed NATS connection with circuit
// breaker pattern, reconnect handling and structured status reporting.
//
// The Client wraps a single *nats.Conn. Connection failures feed a circuit
// breaker: after a threshold of consecutive failures the circuit opens and
// connection attempts are refused until a backoff elapses. Reconnects are
// otherwise delegated to the NATS client library.
package natsclient
