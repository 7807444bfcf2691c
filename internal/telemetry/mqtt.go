// Package telemetry publishes glove state over MQTT and streams replayed
// instructions to browsers over a WebSocket.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/losdos/motionglove/internal/glove/flex"
	"github.com/losdos/motionglove/internal/glove/orientation"
	"github.com/losdos/motionglove/internal/glove/sampler"
)

// Config selects the broker and topics.
type Config struct {
	Broker   string        `help:"MQTT broker URL, e.g. tcp://localhost:1883; empty disables telemetry" env:"MOTIONGLOVE_TELEMETRY_BROKER"`
	ClientID string        `help:"MQTT client id" default:"motionglove" env:"MOTIONGLOVE_TELEMETRY_CLIENT_ID"`
	Username string        `help:"MQTT username" env:"MOTIONGLOVE_TELEMETRY_USERNAME"`
	Password string        `help:"MQTT password" env:"MOTIONGLOVE_TELEMETRY_PASSWORD"`
	Prefix   string        `help:"Topic prefix" default:"motionglove" env:"MOTIONGLOVE_TELEMETRY_PREFIX"`
	Interval time.Duration `help:"Publish interval" default:"100ms" env:"MOTIONGLOVE_TELEMETRY_INTERVAL"`
	QoS      byte          `name:"qos" help:"MQTT quality of service" default:"0" env:"MOTIONGLOVE_TELEMETRY_QOS"`
}

// PoseTopic returns the orientation topic.
func (c Config) PoseTopic() string { return c.Prefix + "/pose" }

// FingersTopic returns the finger state topic.
func (c Config) FingersTopic() string { return c.Prefix + "/fingers" }

// Fingers is the payload of the fingers topic.
type Fingers struct {
	Readings flex.Readings `json:"readings"`
	Closed   flex.States   `json:"closed"`
	Tap      bool          `json:"tap"`
}

// Publisher is the subset of mqtt.Client used to publish.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Subscriber is the subset of mqtt.Client used to subscribe.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Connect dials the broker with automatic reconnection.
func Connect(cfg Config, logger *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT connection lost", "error", err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("Connected to MQTT broker", "broker", cfg.Broker)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	return client, nil
}

// Reporter publishes the latest sampler snapshot at a fixed interval. The
// sampler runs much faster than a broker should be fed, so only the newest
// snapshot of each interval is sent.
type Reporter struct {
	cfg    Config
	client Publisher
	logger *slog.Logger

	mu     sync.Mutex
	latest sampler.Snapshot
	fresh  bool
}

// NewReporter returns a reporter publishing through client.
func NewReporter(cfg Config, client Publisher, logger *slog.Logger) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{cfg: cfg, client: client, logger: logger}
}

// Observe records a snapshot. It is called from the sampling loop and never blocks on the network.
func (r *Reporter) Observe(s sampler.Snapshot) {
	r.mu.Lock()
	r.latest = s
	r.fresh = true
	r.mu.Unlock()
}

// Run publishes until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) error {
	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := r.publish(); err != nil {
				r.logger.Warn("Telemetry publish failed", "error", err)
			}
		}
	}
}

func (r *Reporter) publish() error {
	r.mu.Lock()
	s, fresh := r.latest, r.fresh
	r.fresh = false
	r.mu.Unlock()
	if !fresh {
		return nil
	}

	pose, err := json.Marshal(s.Pose)
	if err != nil {
		return err
	}
	fingers, err := json.Marshal(Fingers{Readings: s.Readings, Closed: s.Fingers, Tap: s.Tap})
	if err != nil {
		return err
	}
	if err := r.send(r.cfg.PoseTopic(), pose); err != nil {
		return err
	}
	return r.send(r.cfg.FingersTopic(), fingers)
}

func (r *Reporter) send(topic string, payload []byte) error {
	token := r.client.Publish(topic, r.cfg.QoS, false, payload)
	if !token.WaitTimeout(r.cfg.Interval) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe delivers decoded pose and finger messages to the callbacks.
// Malformed payloads are logged and skipped.
func Subscribe(client Subscriber, cfg Config, logger *slog.Logger, onPose func(orientation.Pose), onFingers func(Fingers)) error {
	subs := []struct {
		topic string
		cb    mqtt.MessageHandler
	}{
		{cfg.PoseTopic(), func(_ mqtt.Client, msg mqtt.Message) {
			var p orientation.Pose
			if err := json.Unmarshal(msg.Payload(), &p); err != nil {
				logger.Warn("Bad pose payload", "error", err)
				return
			}
			onPose(p)
		}},
		{cfg.FingersTopic(), func(_ mqtt.Client, msg mqtt.Message) {
			var f Fingers
			if err := json.Unmarshal(msg.Payload(), &f); err != nil {
				logger.Warn("Bad fingers payload", "error", err)
				return
			}
			onFingers(f)
		}},
	}
	for _, s := range subs {
		if token := client.Subscribe(s.topic, cfg.QoS, s.cb); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", s.topic, token.Error())
		}
		logger.Info("Subscribed", "topic", s.topic)
	}
	return nil
}
