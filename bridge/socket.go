package bridge

// Socket is the client-facing half of a bridge session: a duplex channel the
// bridge writes JSON envelopes to. Implementations must be comparable - the
// bridge keys per-socket state (cached authorisations) on the Socket value.
type Socket interface {
	// WriteMessage writes one complete frame to the client.
	WriteMessage(data []byte) error

	// RemoteID identifies the connection for logging.
	RemoteID() string
}
