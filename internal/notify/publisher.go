// Package notify announces cancellations on an MQTT broker so that other
// systems (home automation, chat bridges) can react to them.
package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// ErrNotStarted is returned by publish calls made before Start.
var ErrNotStarted = errors.New("mqtt publisher not started")

// Config holds the broker connection settings.
type Config struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
}

// Cancellation is the payload published when an event is cancelled.
type Cancellation struct {
	EventUUID   string    `json:"event_uuid"`
	EventName   string    `json:"event_name,omitempty"`
	StartTime   string    `json:"start_time"`
	RequestID   string    `json:"request_id,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// Publisher manages the MQTT connection and publishes availability and
// cancellation messages.
type Publisher struct {
	cfg    Config
	logger *slog.Logger

	mu sync.Mutex // guards cm; Start may run in its own goroutine
	cm *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection.
func New(cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "calbot"
	}
	cfg.TopicPrefix = strings.TrimRight(cfg.TopicPrefix, "/")
	if cfg.ClientID == "" {
		cfg.ClientID = "calbot"
	}
	return &Publisher{cfg: cfg, logger: logger}
}

// Start connects to the broker. The connection is maintained in the
// background until ctx is cancelled; Start itself returns once the first
// connection succeeds or 30 seconds pass, whichever comes first.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.cfg.ClientID,
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.mu.Lock()
	p.cm = cm
	p.mu.Unlock()

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Stop publishes "offline" and disconnects. The context bounds both.
func (p *Publisher) Stop(ctx context.Context) error {
	cm := p.conn()
	if cm == nil {
		return nil
	}
	p.publishAvailability(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

func (p *Publisher) conn() *autopaho.ConnectionManager {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cm
}

// AnnounceCancellation publishes c on the cancellation topic.
func (p *Publisher) AnnounceCancellation(ctx context.Context, c Cancellation) error {
	cm := p.conn()
	if cm == nil {
		return ErrNotStarted
	}
	payload, err := cancellationPayload(c)
	if err != nil {
		return err
	}
	topic := p.cancellationTopic()
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.logger.Debug("mqtt cancellation published", "topic", topic, "uuid", c.EventUUID)
	return nil
}

// --- Topic helpers ---

func (p *Publisher) availabilityTopic() string {
	return p.cfg.TopicPrefix + "/availability"
}

func (p *Publisher) cancellationTopic() string {
	return p.cfg.TopicPrefix + "/events/cancelled"
}

func cancellationPayload(c Cancellation) ([]byte, error) {
	if c.CancelledAt.IsZero() {
		c.CancelledAt = time.Now()
	}
	c.CancelledAt = c.CancelledAt.UTC()
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal cancellation: %w", err)
	}
	return payload, nil
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}
