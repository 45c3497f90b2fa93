package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"iot-automation-engine/config"
	"iot-automation-engine/internal/logger"
	"iot-automation-engine/internal/metrics"
	"iot-automation-engine/internal/rule"
)

// NATSNotifier publishes trigger events to a NATS server.
type NATSNotifier struct {
	conn    *nats.Conn
	topic   string // template, slash-separated; converted to a subject
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewNATSNotifier connects to the server and returns a notifier
// publishing on the given topic template. Metrics may be nil.
func NewNATSNotifier(cfg *config.NATSConfig, topicTemplate string, log *logger.Logger, m *metrics.Metrics) (*NATSNotifier, error) {
	n := &NATSNotifier{
		topic:   topicTemplate,
		logger:  log,
		metrics: m,
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(time.Second * 2),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			n.setUp(false)
			log.Error("nats notifier disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.setUp(true)
			log.Info("nats notifier reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			n.setUp(false)
			log.Info("nats notifier connection closed")
		}),
	}

	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	if cfg.TLS.Enable {
		opts = append(opts, nats.ClientCert(cfg.TLS.CertFile, cfg.TLS.KeyFile))
		if cfg.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(cfg.TLS.CAFile))
		}
	}

	conn, err := nats.Connect(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	n.conn = conn
	n.setUp(true)
	return n, nil
}

// Publish implements Notifier.
func (n *NATSNotifier) Publish(event rule.TriggerEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	subject := ToSubject(ExpandTopic(n.topic, event))
	if err := n.conn.Publish(subject, payload); err != nil {
		n.countPublish("error")
		return fmt.Errorf("failed to publish event: %w", err)
	}
	n.countPublish("success")

	n.logger.Debug("published event",
		"backend", n.Name(),
		"subject", subject,
		"eventId", event.ID)

	return nil
}

// Name implements Notifier.
func (n *NATSNotifier) Name() string {
	return "nats"
}

// Close implements Notifier.
func (n *NATSNotifier) Close() {
	n.conn.Close()
}

func (n *NATSNotifier) countPublish(status string) {
	if n.metrics != nil {
		n.metrics.IncNotifications(status)
	}
}

func (n *NATSNotifier) setUp(up bool) {
	if n.metrics != nil {
		n.metrics.SetNotifierUp(n.Name(), up)
	}
}

// ToSubject converts a slash-separated topic to a NATS subject.
func ToSubject(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}
