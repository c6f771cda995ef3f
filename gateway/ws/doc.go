// Package ws implements the WebSocket gateway: an HTTP server that upgrades
// client connections, owns their read/write lifecycle, and feeds JSON text
// frames into per-connection bridge sessions.
package ws
