package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"power-quality-processor/models"
)

const subscribeTimeout = 10 * time.Second

var messagesReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mqtt_messages_received_total",
		Help: "MQTT messages received by decode result",
	},
	[]string{"result"},
)

// SampleSink accepts decoded samples without blocking.
type SampleSink interface {
	Enqueue(s models.Sample) bool
}

type Config struct {
	Broker   string
	ClientID string
	Topics   []string
	QoS      byte
	Username string
	Password string
}

// Subscriber feeds samples published by the measurement node into a SampleSink.
type Subscriber struct {
	cfg    Config
	sink   SampleSink
	client mqtt.Client
	log    *slog.Logger
}

func NewSubscriber(cfg Config, sink SampleSink, log *slog.Logger) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	s := &Subscriber{
		cfg:  cfg,
		sink: sink,
		log:  log.With("component", "mqtt"),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetKeepAlive(60 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.log.Warn("mqtt connection lost", "error", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	s.client = mqtt.NewClient(opts)

	return s
}

// Start connects and returns once the first connection attempt finishes.
// Subscriptions are (re)established on every connect.
func (s *Subscriber) Start(ctx context.Context) error {
	token := s.client.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.cfg.Broker, err)
	}
	return nil
}

func (s *Subscriber) Stop() {
	s.client.Disconnect(250)
	s.log.Info("mqtt disconnected")
}

func (s *Subscriber) onConnect(c mqtt.Client) {
	s.log.Info("mqtt connected", "broker", s.cfg.Broker)
	for _, topic := range s.cfg.Topics {
		token := c.Subscribe(topic, s.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			s.handle(msg.Topic(), msg.Payload())
		})
		if err := awaitToken(token, subscribeTimeout); err != nil {
			s.log.Error("mqtt subscribe failed", "topic", topic, "error", err)
			continue
		}
		s.log.Info("mqtt subscribed", "topic", topic, "qos", s.cfg.QoS)
	}
}

// awaitToken treats a token that does not complete within timeout as failed.
func awaitToken(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("no broker response within %s", timeout)
	}
	return token.Error()
}

func (s *Subscriber) handle(topic string, payload []byte) {
	sample, err := models.DecodeSample(payload)
	if err != nil {
		messagesReceived.WithLabelValues("malformed").Inc()
		s.log.Warn("dropping mqtt message", "topic", topic, "error", err)
		return
	}

	messagesReceived.WithLabelValues("decoded").Inc()
	if !s.sink.Enqueue(sample) {
		messagesReceived.WithLabelValues("dropped").Inc()
	}
}
