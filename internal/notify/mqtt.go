package notify

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"iot-automation-engine/config"
	"iot-automation-engine/internal/logger"
	"iot-automation-engine/internal/metrics"
	"iot-automation-engine/internal/rule"
)

// MQTTNotifier publishes trigger events to an MQTT broker.
type MQTTNotifier struct {
	client  mqtt.Client
	topic   string // template
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewMQTTNotifier connects to the broker and returns a notifier
// publishing on the given topic template. Metrics may be nil.
func NewMQTTNotifier(cfg *config.MQTTConfig, topicTemplate string, log *logger.Logger, m *metrics.Metrics) (*MQTTNotifier, error) {
	n := &MQTTNotifier{
		topic:   topicTemplate,
		logger:  log,
		metrics: m,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) {
			n.setUp(true)
			log.Info("mqtt notifier connected", "broker", cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			n.setUp(false)
			log.Error("mqtt notifier connection lost", "error", err)
		})

	if cfg.TLS.Enable {
		tlsConfig, err := newTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", token.Error())
	}

	n.client = client
	return n, nil
}

// Publish implements Notifier.
func (n *MQTTNotifier) Publish(event rule.TriggerEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	topic := ExpandTopic(n.topic, event)
	if token := n.client.Publish(topic, 0, false, payload); token.Wait() && token.Error() != nil {
		n.countPublish("error")
		return fmt.Errorf("failed to publish event: %w", token.Error())
	}
	n.countPublish("success")

	n.logger.Debug("published event",
		"backend", n.Name(),
		"topic", topic,
		"eventId", event.ID)

	return nil
}

// Name implements Notifier.
func (n *MQTTNotifier) Name() string {
	return "mqtt"
}

// Close implements Notifier.
func (n *MQTTNotifier) Close() {
	n.setUp(false)
	n.client.Disconnect(250)
}

func (n *MQTTNotifier) countPublish(status string) {
	if n.metrics != nil {
		n.metrics.IncNotifications(status)
	}
}

func (n *MQTTNotifier) setUp(up bool) {
	if n.metrics != nil {
		n.metrics.SetNotifierUp(n.Name(), up)
	}
}

func newTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
	}

	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, err
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		cfg.RootCAs = caCertPool
	}

	return cfg, nil
}
