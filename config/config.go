package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/busbridge/bridge"
	"github.com/c360/busbridge/errors"
	"github.com/c360/busbridge/gateway"
)

// NATSConfig holds the bus connection settings
type NATSConfig struct {
	// URL of the NATS server; environment variables are expanded
	URL string `yaml:"url"`
	// Name reported to the server for this client
	Name string `yaml:"name"`
	// Username and Password for authentication (optional)
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	// Token authentication (optional, exclusive with username/password)
	Token string `yaml:"token,omitempty"`
}

// BridgeConfig holds the bridge permission and authorisation settings
type BridgeConfig struct {
	// InboundPermitted and OutboundPermitted are raw rule objects; they are
	// schema-validated before being decoded into bridge rules.
	InboundPermitted  []map[string]any `yaml:"inbound_permitted"`
	OutboundPermitted []map[string]any `yaml:"outbound_permitted"`
	// AuthTimeout is the TTL of cached authorisations (duration string)
	AuthTimeout string `yaml:"auth_timeout,omitempty"`
	// AuthAddress is the bus subject of the auth authority
	AuthAddress string `yaml:"auth_address,omitempty"`
}

// AdminConfig holds the operational HTTP endpoint settings
type AdminConfig struct {
	// Port serving /metrics and /healthz
	Port int `yaml:"port"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
}

// Config represents the complete daemon configuration
type Config struct {
	NATS    NATSConfig     `yaml:"nats"`
	Server  gateway.Config `yaml:"server"`
	Bridge  BridgeConfig   `yaml:"bridge"`
	Admin   AdminConfig    `yaml:"admin"`
	Logging LoggingConfig  `yaml:"logging"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:  "nats://127.0.0.1:4222",
			Name: "busbridge",
		},
		Server: gateway.DefaultConfig(),
		Bridge: BridgeConfig{
			AuthTimeout: "5m",
			AuthAddress: bridge.DefaultAuthAddress,
		},
		Admin: AdminConfig{
			Port: 9090,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads, expands and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "read config file")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "parse config file")
	}

	// Environment expansion for deploy-time values
	cfg.NATS.URL = os.ExpandEnv(cfg.NATS.URL)
	cfg.NATS.Username = os.ExpandEnv(cfg.NATS.Username)
	cfg.NATS.Password = os.ExpandEnv(cfg.NATS.Password)
	cfg.NATS.Token = os.ExpandEnv(cfg.NATS.Token)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the full configuration
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "nats.url")
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if c.Admin.Port != 0 && (c.Admin.Port < 1 || c.Admin.Port > 65535) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("admin.port %d out of range", c.Admin.Port))
	}
	if _, err := c.AuthTimeout(); err != nil {
		return err
	}
	if _, err := ValidateRules(c.Bridge.InboundPermitted); err != nil {
		return errors.Wrap(err, "Config", "Validate", "inbound_permitted")
	}
	if _, err := ValidateRules(c.Bridge.OutboundPermitted); err != nil {
		return errors.Wrap(err, "Config", "Validate", "outbound_permitted")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("logging.level %q", c.Logging.Level))
	}
	return nil
}

// AuthTimeout parses the configured authorisation TTL.
func (c *Config) AuthTimeout() (time.Duration, error) {
	if c.Bridge.AuthTimeout == "" {
		return bridge.DefaultAuthTimeout, nil
	}
	d, err := time.ParseDuration(c.Bridge.AuthTimeout)
	if err != nil {
		return 0, errors.WrapInvalid(err, "Config", "AuthTimeout", "parse auth_timeout")
	}
	if d < 0 {
		return 0, errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "AuthTimeout",
			fmt.Sprintf("auth_timeout %v < 0", d))
	}
	return d, nil
}

// InboundRules returns the validated inbound permission list.
func (c *Config) InboundRules() ([]bridge.Rule, error) {
	return ValidateRules(c.Bridge.InboundPermitted)
}

// OutboundRules returns the validated outbound permission list.
func (c *Config) OutboundRules() ([]bridge.Rule, error) {
	return ValidateRules(c.Bridge.OutboundPermitted)
}

// decodeRules converts raw rule objects into typed bridge rules.
func decodeRules(raw []map[string]any) ([]bridge.Rule, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "decodeRules", "encode rules")
	}
	var rules []bridge.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "decodeRules", "decode rules")
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return rules, nil
}
