// Package mqtt publishes readings to an MQTT broker.
//
// Readings go to <prefix>/<sensor name>/reading as JSON. The retained
// <prefix>/status topic tracks the exporter itself: "Online" on every (re)connect,
// "Offline" on graceful shutdown and as the last will.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/robertof/go-mijia-exporter/config"
	"github.com/robertof/go-mijia-exporter/device"
	"github.com/robertof/go-mijia-exporter/sink"
)

const (
	StatusOnline  = "Online"
	StatusOffline = "Offline"

	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = time.Second
	defaultKeepAlive      = 60 * time.Second

	// milliseconds
	disconnectQuiesce = 250
)

var ErrNotConnected = errors.New("mqtt: client not connected")

// client is the subset of pahomqtt.Client in use.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

type Publisher struct {
	client  client
	prefix  string
	timeout time.Duration
}

func ReadingTopic(prefix, name string) string {
	return fmt.Sprintf("%s/%s/reading", prefix, name)
}

func StatusTopic(prefix string) string {
	return fmt.Sprintf("%s/status", prefix)
}

func clientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(StatusTopic(cfg.TopicPrefix), StatusOffline, 0, true)

	return opts
}

// Connect dials the broker and waits for the first connection.
func Connect(cfg config.MQTTConfig, timeout time.Duration) (*Publisher, error) {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	opts := clientOptions(cfg)
	statusTopic := StatusTopic(cfg.TopicPrefix)

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		log.Info().
			Str("Broker", cfg.Broker).
			Int("Port", cfg.Port).
			Msg("Connected to MQTT broker")

		// don't wait for the token here, we're on paho's callback goroutine.
		c.Publish(statusTopic, 0, true, StatusOnline)
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Msg("Lost connection to MQTT broker, reconnecting")
	})

	c := pahomqtt.NewClient(opts)
	token := c.Connect()

	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connecting to %s:%d: timeout after %v", cfg.Broker, cfg.Port, defaultConnectTimeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connecting to %s:%d: %w", cfg.Broker, cfg.Port, err)
	}

	return newPublisher(c, cfg.TopicPrefix, timeout), nil
}

func newPublisher(c client, prefix string, timeout time.Duration) *Publisher {
	return &Publisher{
		client:  c,
		prefix:  prefix,
		timeout: timeout,
	}
}

func (p *Publisher) Name() string {
	return "mqtt"
}

// Deliver publishes the reading with QoS 0. It never blocks for longer than the
// publish timeout.
func (p *Publisher) Deliver(ctx context.Context, r device.Reading) error {
	if r.Sensor == nil {
		return fmt.Errorf("%w: mqtt: reading has no sensor attached", sink.ErrPermanent)
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: mqtt: %w", sink.ErrPermanent, err)
	}

	return p.publish(ctx, ReadingTopic(p.prefix, r.Sensor.Name), false, payload)
}

func (p *Publisher) publish(ctx context.Context, topic string, retained bool, payload []byte) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("%w: %w", sink.ErrTransient, ErrNotConnected)
	}

	token := p.client.Publish(topic, 0, retained, payload)

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: mqtt: %w", sink.ErrTransient, ctx.Err())
	case <-token.Done():
	case <-time.After(p.timeout):
		return fmt.Errorf("%w: mqtt: publish to %s timed out after %v", sink.ErrTransient, topic, p.timeout)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: mqtt: publish to %s: %w", sink.ErrTransient, topic, err)
	}

	return nil
}

// Close publishes the graceful offline status and disconnects.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		err := p.publish(context.Background(), StatusTopic(p.prefix), true, []byte(StatusOffline))

		if err != nil {
			log.Warn().Err(err).Msg("Failed to publish offline status")
		}
	}

	p.client.Disconnect(disconnectQuiesce)
}
