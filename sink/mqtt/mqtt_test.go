package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertof/go-mijia-exporter/config"
	"github.com/robertof/go-mijia-exporter/device"
	"github.com/robertof/go-mijia-exporter/sink"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} {
	return t.done
}

func (t *fakeToken) Error() error {
	return t.err
}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	token        func() pahomqtt.Token
	messages     []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, published{topic, retained, payload.([]byte)})

	if c.token != nil {
		return c.token()
	}

	return completedToken(nil)
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

func testReading() device.Reading {
	return device.Reading{
		Temperature: 24,
		Humidity:    42,
		Voltage:     2.959,
		Battery:     84,
		Timestamp:   1700000000,
		Counter:     175,
		Firmware:    device.FirmwareATC1441,
		Sensor: &device.Thermometer{
			Address: "A4:C1:38:01:02:03",
			Name:    "kitchen",
		},
	}
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "mijia/kitchen/reading", ReadingTopic("mijia", "kitchen"))
	assert.Equal(t, "home/sensors/status", StatusTopic("home/sensors"))
}

func TestDeliver(t *testing.T) {
	c := &fakeClient{connected: true}
	p := newPublisher(c, "mijia", time.Second)

	require.NoError(t, p.Deliver(context.Background(), testReading()))
	require.Len(t, c.messages, 1)

	msg := c.messages[0]
	assert.Equal(t, "mijia/kitchen/reading", msg.topic)
	assert.False(t, msg.retained)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.payload, &got))

	assert.Equal(t, 24.0, got["temperature"])
	assert.Equal(t, 42.0, got["humidity"])
	assert.Equal(t, 2.959, got["voltage"])
	assert.Equal(t, 84.0, got["battery"])
	assert.Equal(t, 1700000000.0, got["timestamp"])
	assert.Equal(t, "atc1441", got["firmware"])
	assert.Equal(t, map[string]interface{}{
		"address": "A4:C1:38:01:02:03",
		"name":    "kitchen",
	}, got["sensor"])
}

func TestDeliver_Failures(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		p := newPublisher(&fakeClient{}, "mijia", time.Second)

		err := p.Deliver(context.Background(), testReading())
		assert.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("publish error", func(t *testing.T) {
		c := &fakeClient{
			connected: true,
			token:     func() pahomqtt.Token { return completedToken(errors.New("boom")) },
		}
		p := newPublisher(c, "mijia", time.Second)

		err := p.Deliver(context.Background(), testReading())
		assert.ErrorIs(t, err, sink.ErrTransient)
	})

	t.Run("timeout", func(t *testing.T) {
		c := &fakeClient{
			connected: true,
			token:     func() pahomqtt.Token { return &fakeToken{done: make(chan struct{})} },
		}
		p := newPublisher(c, "mijia", 20*time.Millisecond)

		err := p.Deliver(context.Background(), testReading())
		assert.ErrorIs(t, err, sink.ErrTransient)
	})

	t.Run("no sensor", func(t *testing.T) {
		p := newPublisher(&fakeClient{connected: true}, "mijia", time.Second)

		r := testReading()
		r.Sensor = nil

		err := p.Deliver(context.Background(), r)
		assert.ErrorIs(t, err, sink.ErrPermanent)
	})
}

func TestClose(t *testing.T) {
	c := &fakeClient{connected: true}
	p := newPublisher(c, "mijia", time.Second)

	p.Close()

	require.Len(t, c.messages, 1)
	assert.Equal(t, "mijia/status", c.messages[0].topic)
	assert.True(t, c.messages[0].retained)
	assert.Equal(t, StatusOffline, string(c.messages[0].payload))
	assert.True(t, c.disconnected)
}

func TestClientOptions(t *testing.T) {
	opts := clientOptions(config.MQTTConfig{
		Broker:      "broker.local",
		Port:        1884,
		ClientID:    "test",
		Username:    "user",
		Password:    "secret",
		TopicPrefix: "mijia",
	})

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://broker.local:1884", opts.Servers[0].String())
	assert.Equal(t, "test", opts.ClientID)
	assert.Equal(t, "user", opts.Username)
	assert.True(t, opts.WillEnabled)
	assert.True(t, opts.WillRetained)
	assert.Equal(t, "mijia/status", opts.WillTopic)
	assert.Equal(t, StatusOffline, string(opts.WillPayload))
}
