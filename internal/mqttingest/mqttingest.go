// Package mqttingest feeds readings published over MQTT into the same ingest
// path the HTTP endpoint uses.
package mqttingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"health-telemetry/internal/ingest"
	"health-telemetry/internal/logger"
)

// Client is the subset of mqtt.Client the subscriber uses.
type Client interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// Submitter accepts one raw payload.
type Submitter interface {
	Submit(ctx context.Context, transport string, payload []byte) (ingest.Result, error)
}

type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

const tokenTimeout = 10 * time.Second

// Connect dials the broker with auto-reconnect enabled.
func Connect(cfg Config, log *zap.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("MQTT connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if err := wait(client.Connect()); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}
	log.Info("MQTT connected", zap.String("broker", cfg.Broker))
	return client, nil
}

func wait(t mqtt.Token) error {
	if !t.WaitTimeout(tokenTimeout) {
		return errors.New("timed out waiting for broker")
	}
	return t.Error()
}

// Subscriber forwards every message on topic to the ingest service.
type Subscriber struct {
	client Client
	topic  string
	qos    byte
	svc    Submitter
	log    *zap.Logger
}

// NewSubscriber returns a subscriber for topic at qos. Call Start to subscribe.
func NewSubscriber(client Client, topic string, qos byte, svc Submitter, log *zap.Logger) *Subscriber {
	return &Subscriber{client: client, topic: topic, qos: qos, svc: svc, log: log}
}

// Start subscribes to the configured topic.
func (s *Subscriber) Start() error {
	err := wait(s.client.Subscribe(s.topic, s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.HandleMessage(msg.Topic(), msg.Payload())
	}))
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", s.topic, err)
	}
	s.log.Info("MQTT subscriber started", zap.String("topic", s.topic), zap.Uint8("qos", s.qos))
	return nil
}

// Stop unsubscribes and disconnects, allowing 250ms for in-flight work.
func (s *Subscriber) Stop() {
	if err := wait(s.client.Unsubscribe(s.topic)); err != nil {
		s.log.Error("failed to unsubscribe", zap.String("topic", s.topic), zap.Error(err))
	}
	s.client.Disconnect(250)
	s.log.Info("MQTT subscriber stopped")
}

// HandleMessage submits one payload. Outcomes are logged by the ingest
// service; nothing is sent back to the device.
func (s *Subscriber) HandleMessage(topic string, payload []byte) ingest.Status {
	log := s.log.With(zap.String("topic", topic))
	ctx := logger.WithContext(context.Background(), log)

	log.Debug("received MQTT message", zap.Int("payload_size", len(payload)))
	res, err := s.svc.Submit(ctx, ingest.TransportMQTT, payload)
	if err != nil {
		return ""
	}
	return res.Status
}
