// Package mqttbus owns the single MQTT connection used by the server for
// telemetry and for bridging actuator commands to an external hardware daemon.
package mqttbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/konkon3660/graduationP/internal/logger"
)

const connectTimeout = 5 * time.Second

// Publisher publishes a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Options configures a Bus.
type Options struct {
	// Broker is host:port or a full URL (tcp://, ssl://, ws://).
	Broker   string
	ClientID string
	Username string
	Password string
	// PublishTimeout bounds how long Publish waits for the broker ack.
	PublishTimeout time.Duration
	QoS            byte
}

// Stats reports connection health and publish counters.
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// Bus is a reconnecting MQTT client.
type Bus struct {
	opts   Options
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
}

var _ Publisher = (*Bus)(nil)

// New returns an unconnected Bus.
func New(opts Options) *Bus {
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	return &Bus{opts: opts, published: make(map[string]uint64)}
}

func brokerURL(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "tcp://" + raw
}

// Connect dials the broker. The client reconnects on its own afterwards.
func (b *Bus) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(b.opts.Broker))
	opts.SetClientID(b.opts.ClientID)
	if b.opts.Username != "" {
		opts.SetUsername(b.opts.Username)
		opts.SetPassword(b.opts.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		b.setConnected(true)
		logger.Infof("[mqtt] connected broker=%s client_id=%s", b.opts.Broker, b.opts.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.setConnected(false)
		logger.Warnf("[mqtt] connection lost, reconnecting: %v", err)
	}

	b.client = mqtt.NewClient(opts)

	logger.Infof("[mqtt] connecting to %s", b.opts.Broker)
	token := b.client.Connect()

	timeout := connectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect failed: %w", err)
	}
	b.setConnected(true)
	return nil
}

// Publish sends payload to topic and waits up to PublishTimeout for the ack.
func (b *Bus) Publish(topic string, payload []byte) error {
	if !b.isConnected() {
		b.countError()
		return fmt.Errorf("mqtt not connected")
	}
	token := b.client.Publish(topic, b.opts.QoS, false, payload)
	if !token.WaitTimeout(b.opts.PublishTimeout) {
		b.countError()
		return fmt.Errorf("mqtt publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		b.countError()
		return fmt.Errorf("mqtt publish failed: %w", err)
	}

	b.mu.Lock()
	b.published[topic]++
	b.mu.Unlock()
	logger.Tracef("[mqtt] published topic=%s size=%d", topic, len(payload))
	return nil
}

// Disconnect closes the connection with a short grace period.
func (b *Bus) Disconnect() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
		logger.Infof("[mqtt] disconnected")
	}
	b.setConnected(false)
}

// Stats returns a copy of the counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	published := make(map[string]uint64, len(b.published))
	for k, v := range b.published {
		published[k] = v
	}
	return Stats{Connected: b.connected, Published: published, Errors: b.errors}
}

func (b *Bus) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}

func (b *Bus) isConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *Bus) countError() {
	b.mu.Lock()
	b.errors++
	b.mu.Unlock()
}
