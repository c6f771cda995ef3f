// Package main implements the busbridge daemon: it connects to NATS, builds
// the permission-checked bridge, and serves the WebSocket endpoint together
// with /metrics and /healthz.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/busbridge/bridge"
	"github.com/c360/busbridge/component"
	"github.com/c360/busbridge/config"
	"github.com/c360/busbridge/eventbus"
	"github.com/c360/busbridge/gateway/ws"
	"github.com/c360/busbridge/health"
	"github.com/c360/busbridge/metric"
	"github.com/c360/busbridge/natsclient"
)

// Build information constants
const (
	Version = "1.0.0"
	appName = "bridged"
)

const shutdownTimeout = 10 * time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "busbridge.yaml", "path to configuration file")
	validateOnly := flag.Bool("validate", false, "validate configuration and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *validateOnly {
		fmt.Println("configuration is valid")
		return nil
	}

	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics and health surfaces
	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	// Bus connection
	natsOpts := []natsclient.ClientOption{
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithLogger(slogNATSLogger{logger: logger.With("component", "natsclient")}),
	}
	if cfg.NATS.Username != "" {
		natsOpts = append(natsOpts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		natsOpts = append(natsOpts, natsclient.WithToken(cfg.NATS.Token))
	}
	nc, err := natsclient.NewClient(cfg.NATS.URL, natsOpts...)
	if err != nil {
		return err
	}
	if err := nc.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := nc.Close(closeCtx); err != nil {
			logger.Warn("NATS close failed", "error", err)
		}
	}()

	bus, err := eventbus.NewNATSBus(nc)
	if err != nil {
		return err
	}

	// Bridge
	inbound, err := cfg.InboundRules()
	if err != nil {
		return err
	}
	outbound, err := cfg.OutboundRules()
	if err != nil {
		return err
	}
	authTimeout, err := cfg.AuthTimeout()
	if err != nil {
		return err
	}
	br, err := bridge.New(bus,
		bridge.WithInboundPermitted(inbound),
		bridge.WithOutboundPermitted(outbound),
		bridge.WithAuthTimeout(authTimeout),
		bridge.WithAuthAddress(cfg.Bridge.AuthAddress),
		bridge.WithLogger(logger.With("component", "bridge")),
		bridge.WithMetrics(registry),
	)
	if err != nil {
		return err
	}

	// WebSocket gateway
	gw, err := ws.NewGateway(ws.ConstructorConfig{
		Config:          cfg.Server,
		Bridge:          br,
		Logger:          logger,
		MetricsRegistry: registry,
	})
	if err != nil {
		return err
	}
	if err := gw.Initialize(); err != nil {
		return err
	}
	monitor.Register("ws-gateway", gw)
	monitor.Register("natsclient", natsHealth{client: nc})

	if err := gw.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// Admin endpoint: metrics and health
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", registry.Handler())
	adminMux.Handle("/healthz", monitor.Handler())
	adminServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler: adminMux,
	}
	g.Go(func() error {
		logger.Info("admin endpoint started", "port", cfg.Admin.Port)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = adminServer.Shutdown(shutdownCtx)

		return gw.Stop(shutdownTimeout)
	})

	logger.Info("busbridge started",
		"version", Version,
		"nats", cfg.NATS.URL,
		"endpoint", fmt.Sprintf(":%d%s", cfg.Server.Port, cfg.Server.Path))

	return g.Wait()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// slogNATSLogger adapts slog to the natsclient Logger seam.
type slogNATSLogger struct {
	logger *slog.Logger
}

func (l slogNATSLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l slogNATSLogger) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func (l slogNATSLogger) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

// natsHealth exposes the NATS client on the health surface.
type natsHealth struct {
	client *natsclient.Client
}

func (n natsHealth) Meta() component.Metadata {
	return component.Metadata{
		Name:        "natsclient",
		Type:        "connection",
		Description: fmt.Sprintf("NATS connection to %s", n.client.URL()),
		Version:     Version,
	}
}

func (n natsHealth) Health() component.HealthStatus {
	status := n.client.GetStatus()
	h := component.HealthStatus{
		Healthy:    n.client.IsHealthy(),
		LastCheck:  time.Now(),
		ErrorCount: int(status.FailureCount),
	}
	if !h.Healthy {
		h.LastError = status.Status.String()
	}
	return h
}
