// Package eventbus defines the subject-addressed publish/subscribe bus the
// bridge talks to, together with its NATS binding.
//
// The Bus interface captures the four operations the bridge needs: publish,
// point-to-point send with an optional single-shot reply continuation,
// request/reply, and subscription management. Reply addresses are plain bus
// subjects; the NATS binding uses inbox subjects, which keeps reply routing
// string-addressable end to end.
package eventbus
