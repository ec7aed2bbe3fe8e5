package notify

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/andresmejia3/rollcall/internal/types"
)

// MQTTConfig holds the broker settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Format   string
	QoS      byte
}

// MQTTPublisher sends every record to a topic. Publishing never waits for the broker.
type MQTTPublisher struct {
	cfg    MQTTConfig
	Client mqtt.Client

	connected atomic.Bool
	published atomic.Uint64
	errors    atomic.Uint64
}

// NewMQTTPublisher creates a publisher. Call Connect before publishing.
func NewMQTTPublisher(cfg MQTTConfig) *MQTTPublisher {
	p := &MQTTPublisher{cfg: cfg}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	// Connection handlers
	opts.OnConnect = func(c mqtt.Client) {
		p.connected.Store(true)
		slog.Info("mqtt connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		p.connected.Store(false)
		slog.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", cfg.Broker)
	}

	p.Client = mqtt.NewClient(opts)
	return p
}

// Connect waits up to timeout for the first connection.
func (p *MQTTPublisher) Connect(timeout time.Duration) error {
	slog.Info("connecting to mqtt broker", "broker", p.cfg.Broker)

	token := p.Client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	p.connected.Store(true)
	return nil
}

// Publish implements ledger.Sink.
func (p *MQTTPublisher) Publish(rec types.AttendanceRecord) {
	if !p.connected.Load() {
		p.errors.Add(1)
		return
	}

	payload, err := Encode(p.cfg.Format, rec)
	if err != nil {
		p.errors.Add(1)
		slog.Error("mqtt: encode failed", "err", err)
		return
	}

	token := p.Client.Publish(p.cfg.Topic, p.cfg.QoS, false, payload)
	go func() {
		if !token.WaitTimeout(2 * time.Second) {
			p.errors.Add(1)
			slog.Warn("mqtt: publish timeout", "topic", p.cfg.Topic)
			return
		}
		if err := token.Error(); err != nil {
			p.errors.Add(1)
			slog.Warn("mqtt: publish failed", "topic", p.cfg.Topic, "err", err)
			return
		}
		p.published.Add(1)
	}()
}

// Stats returns how many records were published and how many failed.
func (p *MQTTPublisher) Stats() (published, errors uint64) {
	return p.published.Load(), p.errors.Load()
}

// Disconnect closes the MQTT connection
func (p *MQTTPublisher) Disconnect() {
	if p.Client != nil && p.Client.IsConnected() {
		p.Client.Disconnect(250) // 250ms grace period
		slog.Info("mqtt disconnected")
	}
	p.connected.Store(false)
}
