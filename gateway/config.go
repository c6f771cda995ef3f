package gateway

import (
	"fmt"
	"time"

	"github.com/c360/busbridge/errors"
)

// Default connection tuning values
const (
	DefaultPath         = "/eventbus"
	DefaultReadLimit    = 1 << 20 // 1 MiB per frame
	DefaultPingInterval = 30 * time.Second
	DefaultPongTimeout  = 60 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Config holds gateway listener configuration
type Config struct {
	// Port the gateway listens on
	Port int `json:"port" yaml:"port"`
	// Path of the bridge endpoint
	Path string `json:"path" yaml:"path"`
	// AllowedOrigins for browser connections; "*" allows any origin. An
	// empty list allows same-host connections only.
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	// ReadLimit is the maximum client frame size in bytes
	ReadLimit int64 `json:"read_limit" yaml:"read_limit"`
	// PingInterval between keepalive pings to clients
	PingInterval time.Duration `json:"-" yaml:"-"`
	// PongTimeout is how long a connection may go silent before it is
	// considered dead
	PongTimeout time.Duration `json:"-" yaml:"-"`
	// WriteTimeout bounds a single frame write
	WriteTimeout time.Duration `json:"-" yaml:"-"`
}

// DefaultConfig returns sensible defaults for a gateway listener
func DefaultConfig() Config {
	return Config{
		Port:         8080,
		Path:         DefaultPath,
		ReadLimit:    DefaultReadLimit,
		PingInterval: DefaultPingInterval,
		PongTimeout:  DefaultPongTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Validate checks the configuration, filling unset tuning values with
// defaults.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.Path[0] != '/' {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("path %q must start with /", c.Path))
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = DefaultReadLimit
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= c.PingInterval {
		c.PongTimeout = 2 * c.PingInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return nil
}
