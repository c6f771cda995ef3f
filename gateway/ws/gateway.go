package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/busbridge/bridge"
	"github.com/c360/busbridge/component"
	"github.com/c360/busbridge/errors"
	"github.com/c360/busbridge/gateway"
	"github.com/c360/busbridge/metric"
)

// Gateway is the WebSocket gateway component. It runs an HTTP server with a
// single bridge endpoint, upgrades connections, and drives one bridge
// session per connection until its socket closes.
type Gateway struct {
	name   string
	config gateway.Config
	bridge *bridge.Bridge
	logger *slog.Logger

	server   *http.Server
	upgrader websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[*client]struct{}

	// Lifecycle management
	lifecycleMu sync.Mutex
	shutdown    chan struct{}
	wg          *sync.WaitGroup
	running     atomic.Bool
	startTime   time.Time

	errorCount atomic.Int64
	metrics    *Metrics
}

// ConstructorConfig holds everything needed to construct a Gateway
type ConstructorConfig struct {
	Name            string
	Config          gateway.Config
	Bridge          *bridge.Bridge
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// NewGateway creates a WebSocket gateway serving the given bridge.
func NewGateway(cfg ConstructorConfig) (*Gateway, error) {
	if cfg.Bridge == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Gateway", "NewGateway",
			"bridge is required")
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = "ws-gateway"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newMetrics(cfg.MetricsRegistry)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		name:     name,
		config:   cfg.Config,
		bridge:   cfg.Bridge,
		logger:   logger.With("component", name),
		clients:  make(map[*client]struct{}),
		shutdown: make(chan struct{}),
		wg:       &sync.WaitGroup{},
		metrics:  metrics,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g, nil
}

// checkOrigin enforces the configured origin allowlist. No configured
// origins means browser cross-origin connections are refused.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser client
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(parsed.Host, r.Host) {
		return true
	}
	for _, allowed := range g.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Meta returns component metadata
func (g *Gateway) Meta() component.Metadata {
	return component.Metadata{
		Name:        g.name,
		Type:        "gateway",
		Description: fmt.Sprintf("WebSocket event-bus bridge on :%d%s", g.config.Port, g.config.Path),
		Version:     "1.0.0",
	}
}

// Health returns the current health status
func (g *Gateway) Health() component.HealthStatus {
	running := g.running.Load()
	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(g.errorCount.Load()),
		Uptime:     time.Since(g.startTime),
	}
}

// Initialize prepares the gateway but does not start the server
func (g *Gateway) Initialize() error {
	return nil
}

// Start begins serving the bridge endpoint
func (g *Gateway) Start(ctx context.Context) error {
	g.lifecycleMu.Lock()
	defer g.lifecycleMu.Unlock()

	if g.running.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Gateway", "Start",
			"gateway already running")
	}
	if ctx == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Start",
			"context cannot be nil")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(g.config.Path, g.handleWebSocket)
	g.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", g.config.Port),
		Handler: mux,
	}

	g.running.Store(true)
	g.startTime = time.Now()

	g.wg.Add(2)
	go g.runServer()
	go g.maintainClients(ctx)

	g.logger.Info("gateway started", "port", g.config.Port, "path", g.config.Path)
	return nil
}

func (g *Gateway) runServer() {
	defer g.wg.Done()

	err := g.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		g.logger.Error("http server failed", "error", err)
		g.errorCount.Add(1)
		g.running.Store(false)
	}
}

// maintainClients pings connected clients periodically; clients that fail
// the write are dropped and their read loop unwinds.
func (g *Gateway) maintainClients(ctx context.Context) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.shutdown:
			return
		case <-ticker.C:
			g.clientsMu.Lock()
			clients := make([]*client, 0, len(g.clients))
			for c := range g.clients {
				clients = append(clients, c)
			}
			g.clientsMu.Unlock()

			for _, c := range clients {
				if err := c.ping(); err != nil {
					c.close()
				}
			}
		}
	}
}

// Stop gracefully stops the server and closes all client connections
func (g *Gateway) Stop(timeout time.Duration) error {
	g.lifecycleMu.Lock()
	defer g.lifecycleMu.Unlock()

	if !g.running.Load() {
		return nil
	}
	g.running.Store(false)
	close(g.shutdown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := g.server.Shutdown(shutdownCtx); err != nil {
		g.logger.Warn("http server shutdown error", "error", err)
	}

	// Closing the connections unwinds every read loop, which closes the
	// bridge sessions.
	g.clientsMu.Lock()
	for c := range g.clients {
		c.close()
	}
	g.clientsMu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		g.logger.Warn("gateway goroutines did not exit within timeout")
	}

	g.logger.Info("gateway stopped")
	return nil
}

// handleWebSocket upgrades one connection and runs its session
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.errorCount.Add(1)
		if g.metrics != nil {
			g.metrics.errorsTotal.WithLabelValues("upgrade").Inc()
		}
		return
	}

	c := newClient(uuid.NewString(), conn, g.config.WriteTimeout)

	g.clientsMu.Lock()
	g.clients[c] = struct{}{}
	count := len(g.clients)
	g.clientsMu.Unlock()

	if g.metrics != nil {
		g.metrics.connectionsTotal.Inc()
		g.metrics.clientsConnected.Set(float64(count))
	}
	g.logger.Debug("client connected", "socket", c.id, "remote", r.RemoteAddr)

	g.wg.Add(1)
	go g.readLoop(c)
}

// readLoop feeds client frames into the bridge session until the connection
// ends, then tears the session down.
func (g *Gateway) readLoop(c *client) {
	defer g.wg.Done()

	session := g.bridge.NewSession(c)
	defer func() {
		session.Close()
		c.close()
		g.removeClient(c)
	}()

	c.conn.SetReadLimit(g.config.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(g.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.lastPong.Store(time.Now())
		return c.conn.SetReadDeadline(time.Now().Add(g.config.PongTimeout))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Debug("client read failed", "socket", c.id, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if g.metrics != nil {
			g.metrics.framesReceived.Inc()
			g.metrics.bytesReceived.Add(float64(len(data)))
		}

		if err := g.handleFrame(session, c, data); err != nil {
			// A malformed frame is fatal to that frame only; the socket
			// stays open.
			g.logger.Warn("protocol error", "socket", c.id, "error", err)
			g.errorCount.Add(1)
			if g.metrics != nil {
				g.metrics.errorsTotal.WithLabelValues("protocol").Inc()
			}
		}
	}
}

// handleFrame isolates session processing from handler panics so one bad
// frame cannot take the gateway down.
func (g *Gateway) handleFrame(session *bridge.Session, c *client, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling frame from %s: %v", c.id, r)
		}
	}()
	return session.HandleFrame(data)
}

func (g *Gateway) removeClient(c *client) {
	g.clientsMu.Lock()
	delete(g.clients, c)
	count := len(g.clients)
	g.clientsMu.Unlock()

	if g.metrics != nil {
		g.metrics.disconnectionsTotal.Inc()
		g.metrics.clientsConnected.Set(float64(count))
	}
	g.logger.Debug("client disconnected", "socket", c.id)
}

var _ component.LifecycleComponent = (*Gateway)(nil)
