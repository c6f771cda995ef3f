// Package bridge implements the permission-checked core of the event-bus
// bridge: per-socket sessions that dispatch client frames (send, publish,
// register, unregister) onto the bus, an ordered-rule match engine gating
// both directions of traffic, asynchronous session authorisation against an
// auth authority reachable on the bus, a TTL cache of granted
// authorisations, and a whitelist of transient reply addresses so that
// replies to approved sends pass without re-validation.
//
// A Bridge owns the bridge-wide state (permission rules, auth cache, reply
// whitelist); the hosting gateway creates one Session per client socket and
// feeds it raw frames. All decision points can be intercepted by an optional
// Hook.
package bridge
