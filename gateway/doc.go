// Package gateway holds configuration shared by busbridge protocol
// gateways. Concrete gateways live in subpackages (ws for WebSocket).
package gateway
