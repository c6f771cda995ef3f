package bridge

import (
	"context"
	"encoding/json"

	"github.com/c360/busbridge/errors"
)

// authorise resolves whether sessionID may perform the operation carried by
// frame. Cache hits answer immediately (the hook receive-rule is re-consulted
// on every send). Cache misses forward the raw client frame verbatim to the
// auth authority over the bus and continue asynchronously: done runs on a
// separate goroutine once the authority replies or the request times out.
//
// A socket closing while a request is outstanding does not cancel it; a late
// grant is cached safely and expires by TTL.
func (b *Bridge) authorise(frame map[string]any, sessionID string, sock Socket, done func(authed bool, err error)) {
	if auth, ok := b.auths.get(sessionID); ok {
		done(b.hookApplyReceiveAuthRules(frame, auth.Metadata), nil)
		return
	}

	raw, err := json.Marshal(frame)
	if err != nil {
		done(false, errors.WrapInvalid(err, "Bridge", "authorise", "encode auth request"))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultReplyTimeout)
		defer cancel()

		reply, err := b.bus.Request(ctx, b.authAddress, raw)
		if err != nil {
			done(false, errors.WrapTransient(err, "Bridge", "authorise", "auth authority request"))
			return
		}

		var metadata map[string]any
		if err := json.Unmarshal(reply.Body, &metadata); err != nil {
			done(false, errors.WrapInvalid(err, "Bridge", "authorise", "decode auth reply"))
			return
		}

		status, _ := metadata["status"].(string)
		metadata["sessionID"] = sessionID

		authed := status == "ok" && b.hookApplyReceiveAuthRules(frame, metadata)
		if authed {
			b.auths.put(sessionID, sock, metadata)
		}
		done(authed, nil)
	}()
}
