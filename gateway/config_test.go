package gateway_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/busbridge/gateway"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		config      gateway.Config
		expectError bool
	}{
		{
			name:        "defaults are valid",
			config:      gateway.DefaultConfig(),
			expectError: false,
		},
		{
			name:        "port zero",
			config:      gateway.Config{Port: 0},
			expectError: true,
		},
		{
			name:        "port out of range",
			config:      gateway.Config{Port: 70000},
			expectError: true,
		},
		{
			name:        "path without leading slash",
			config:      gateway.Config{Port: 8080, Path: "eventbus"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfigValidateFillsDefaults(t *testing.T) {
	c := gateway.Config{Port: 9000}
	require.NoError(t, c.Validate())

	assert.Equal(t, gateway.DefaultPath, c.Path)
	assert.Equal(t, int64(gateway.DefaultReadLimit), c.ReadLimit)
	assert.Equal(t, gateway.DefaultPingInterval, c.PingInterval)
	assert.Greater(t, c.PongTimeout, c.PingInterval)
	assert.Equal(t, gateway.DefaultWriteTimeout, c.WriteTimeout)
}

func TestConfigValidatePongTimeoutRaised(t *testing.T) {
	c := gateway.Config{Port: 9000, PingInterval: 10 * time.Second, PongTimeout: 5 * time.Second}
	require.NoError(t, c.Validate())
	assert.Equal(t, 20*time.Second, c.PongTimeout)
}
