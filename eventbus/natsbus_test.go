package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/busbridge/natsclient"
)

func TestNewNATSBusRequiresClient(t *testing.T) {
	_, err := NewNATSBus(nil)
	assert.Error(t, err)
}

func TestNewNATSBusDefaults(t *testing.T) {
	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)

	bus, err := NewNATSBus(client)
	require.NoError(t, err)
	assert.Equal(t, DefaultReplyTimeout, bus.replyTimeout)

	bus, err = NewNATSBus(client, WithReplyTimeout(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, bus.replyTimeout)

	// Non-positive overrides are ignored
	bus, err = NewNATSBus(client, WithReplyTimeout(0))
	require.NoError(t, err)
	assert.Equal(t, DefaultReplyTimeout, bus.replyTimeout)
}

func TestNATSBusOperationsRequireConnection(t *testing.T) {
	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)

	bus, err := NewNATSBus(client)
	require.NoError(t, err)

	assert.Error(t, bus.Publish("foo", []byte(`{}`)))
	assert.Error(t, bus.Send("foo", []byte(`{}`), nil))
	_, err = bus.Subscribe("foo", func(Message) {})
	assert.Error(t, err)
}
