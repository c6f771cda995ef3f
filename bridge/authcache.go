package bridge

import (
	"sync"
	"time"
)

// Auth is one cached authorisation: a sessionID granted by the auth
// authority over a particular socket, with the authority's reply metadata.
type Auth struct {
	SessionID string
	Metadata  map[string]any

	sock  Socket
	timer *time.Timer
}

func (a *Auth) cancel() {
	if a.timer != nil {
		a.timer.Stop()
	}
}

// authCache holds granted authorisations keyed by sessionID, with an inverse
// index from socket to its sessionIDs so a closing socket can drop all of
// its grants. Invariant: entries[sid].sock == s exactly when sid is in
// sockAuths[s].
type authCache struct {
	mu        sync.Mutex
	timeout   time.Duration
	entries   map[string]*Auth
	sockAuths map[Socket]map[string]struct{}
}

func newAuthCache(timeout time.Duration) *authCache {
	return &authCache{
		timeout:   timeout,
		entries:   make(map[string]*Auth),
		sockAuths: make(map[Socket]map[string]struct{}),
	}
}

// put caches an authorisation and arms its TTL timer. A pre-existing entry
// for the same sessionID is cancelled and replaced so the inverse index
// stays consistent even if the old grant was held by a different socket.
func (c *authCache) put(sessionID string, sock Socket, metadata map[string]any) *Auth {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries[sessionID]; ok {
		prev.cancel()
		c.removeLocked(sessionID, prev.sock)
	}

	auth := &Auth{
		SessionID: sessionID,
		Metadata:  metadata,
		sock:      sock,
	}
	auth.timer = time.AfterFunc(c.timeout, func() {
		c.evict(sessionID, sock)
	})

	c.entries[sessionID] = auth
	set, ok := c.sockAuths[sock]
	if !ok {
		set = make(map[string]struct{})
		c.sockAuths[sock] = set
	}
	set[sessionID] = struct{}{}

	return auth
}

// get returns the cached Auth for sessionID, if any.
func (c *authCache) get(sessionID string) (*Auth, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	auth, ok := c.entries[sessionID]
	return auth, ok
}

// evict drops sessionID if it is still held by sock. Called by TTL timers;
// a timer firing after the entry was already removed is a no-op.
func (c *authCache) evict(sessionID string, sock Socket) {
	c.mu.Lock()
	defer c.mu.Unlock()

	auth, ok := c.entries[sessionID]
	if !ok || auth.sock != sock {
		return
	}
	auth.cancel()
	c.removeLocked(sessionID, sock)
}

// cancelAllFor cancels every authorisation held by sock.
func (c *authCache) cancelAllFor(sock Socket) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.sockAuths[sock]
	if !ok {
		return
	}
	for sessionID := range set {
		if auth, ok := c.entries[sessionID]; ok {
			auth.cancel()
			delete(c.entries, sessionID)
		}
	}
	delete(c.sockAuths, sock)
}

// hasAuths reports whether sock holds at least one cached authorisation.
func (c *authCache) hasAuths(sock Socket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sockAuths[sock]) > 0
}

// metadataFor aggregates the metadata of every authorisation held by sock.
func (c *authCache) metadataFor(sock Socket) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := c.sockAuths[sock]
	if len(set) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(set))
	for sessionID := range set {
		if auth, ok := c.entries[sessionID]; ok {
			out = append(out, auth.Metadata)
		}
	}
	return out
}

func (c *authCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *authCache) removeLocked(sessionID string, sock Socket) {
	delete(c.entries, sessionID)
	set, ok := c.sockAuths[sock]
	if !ok {
		return
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(c.sockAuths, sock)
	}
}
