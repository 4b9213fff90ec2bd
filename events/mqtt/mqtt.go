// Package mqtt publishes bot lifecycle events to an MQTT broker.
//
// Events are JSON objects published to "{prefix}/{botID}/{type}", for
// example "modgate/yakmods/post.published".
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kabili207/modgate/events"
)

// Compile-time interface check.
var _ events.Publisher = (*Publisher)(nil)

const (
	// DefaultTopicPrefix is the default MQTT topic prefix for bot events.
	DefaultTopicPrefix = "modgate"
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("not connected")

// Config holds the configuration for an MQTT event publisher.
type Config struct {
	// Broker is the MQTT broker URL (e.g., "tcp://broker.example.com:1883").
	Broker string
	// Username for MQTT authentication. Leave empty if not required.
	Username string
	// Password for MQTT authentication. Leave empty if not required.
	Password string
	// UseTLS enables TLS for the MQTT connection.
	UseTLS bool
	// ClientID is the MQTT client identifier. If empty, a random one is generated.
	ClientID string
	// TopicPrefix is the MQTT topic prefix (default: "modgate").
	TopicPrefix string
	// BotID identifies this bot instance in topic names.
	BotID string
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Publisher implements events.Publisher over MQTT.
type Publisher struct {
	cfg       Config
	client    paho.Client
	log       *slog.Logger
	mu        sync.RWMutex
	connected bool
}

// New creates a new MQTT publisher with the given configuration.
func New(cfg Config) *Publisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Publisher{
		cfg: cfg,
		log: cfg.Logger.WithGroup("mqtt"),
	}
}

// Start connects to the MQTT broker.
func (p *Publisher) Start(ctx context.Context) error {
	if p.cfg.Broker == "" {
		return errors.New("broker URL is required")
	}
	if p.cfg.BotID == "" {
		return errors.New("bot ID is required")
	}

	clientID := p.cfg.ClientID
	if clientID == "" {
		clientID = "modgate-" + randomString(16)
	}

	opts := paho.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetOnConnectHandler(p.onConnected).
		SetConnectionLostHandler(p.onConnectionLost).
		SetReconnectingHandler(p.onReconnecting)

	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
	}
	if p.cfg.Password != "" {
		opts.SetPassword(p.cfg.Password)
	}
	if p.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	p.mu.Lock()
	p.client = paho.NewClient(opts)
	client := p.client
	p.mu.Unlock()

	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(30 * time.Second):
		return errors.New("connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if token.Error() != nil {
		return fmt.Errorf("connecting to broker: %w", token.Error())
	}

	return nil
}

// Stop gracefully disconnects from the MQTT broker.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		p.client.Disconnect(1000)
		p.connected = false
	}
	return nil
}

// IsConnected returns true if the publisher is connected to the broker.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.client != nil && p.client.IsConnected()
}

// Topic returns the topic an event type is published to.
func (p *Publisher) Topic(t events.Type) string {
	return p.cfg.TopicPrefix + "/" + p.cfg.BotID + "/" + string(t)
}

// Publish encodes e as JSON and publishes it at QoS 1.
func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	token := p.client.Publish(p.Topic(e.Type), 1, false, payload)
	select {
	case <-token.Done():
	case <-time.After(10 * time.Second):
		return errors.New("timeout publishing to MQTT")
	case <-ctx.Done():
		return ctx.Err()
	}
	return token.Error()
}

func (p *Publisher) onConnected(_ paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()

	p.log.Info("connected to MQTT broker", "broker", p.cfg.Broker)
}

func (p *Publisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	p.log.Error("MQTT connection lost", "error", err)
}

func (p *Publisher) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	p.log.Info("reconnecting to MQTT broker")
}

func randomString(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}
