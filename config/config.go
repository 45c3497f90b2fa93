package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Backend BackendConfig `json:"backend" yaml:"backend"`
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Notify  NotifyConfig  `json:"notify" yaml:"notify"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// BackendConfig describes the REST backend the engine polls.
type BackendConfig struct {
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`
	Timeout string `json:"timeout" yaml:"timeout"` // Duration string
}

type EngineConfig struct {
	EvalInterval string `json:"evalInterval" yaml:"evalInterval"` // Duration string
	EventLogCap  int    `json:"eventLogCap" yaml:"eventLogCap"`
	WarmStart    bool   `json:"warmStart" yaml:"warmStart"`
}

type StorageConfig struct {
	Directory string `json:"directory" yaml:"directory"`
}

// NotifyConfig configures optional trigger event publishing. A
// backend is off unless its section is present.
type NotifyConfig struct {
	Topic string      `json:"topic" yaml:"topic"` // template, e.g. "automation/events/${espId}"
	MQTT  *MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
	NATS  *NATSConfig `json:"nats,omitempty" yaml:"nats,omitempty"`
}

type MQTTConfig struct {
	Broker   string    `json:"broker" yaml:"broker"`
	ClientID string    `json:"clientId" yaml:"clientId"`
	Username string    `json:"username" yaml:"username"`
	Password string    `json:"password" yaml:"password"`
	TLS      TLSConfig `json:"tls" yaml:"tls"`
}

type NATSConfig struct {
	URLs     []string  `json:"urls" yaml:"urls"`
	Name     string    `json:"name" yaml:"name"`
	Username string    `json:"username" yaml:"username"`
	Password string    `json:"password" yaml:"password"`
	TLS      TLSConfig `json:"tls" yaml:"tls"`
}

type TLSConfig struct {
	Enable   bool   `json:"enable" yaml:"enable"`
	CertFile string `json:"certFile" yaml:"certFile"`
	KeyFile  string `json:"keyFile" yaml:"keyFile"`
	CAFile   string `json:"caFile" yaml:"caFile"`
}

type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"` // debug, info, warn, error
	LogToStdout bool   `json:"logToStdout" yaml:"logToStdout"`
	LogToFile   bool   `json:"logToFile" yaml:"logToFile"`
	Directory   string `json:"directory" yaml:"directory"`
	MaxSize     int    `json:"maxSize" yaml:"maxSize"` // megabytes
	MaxAge      int    `json:"maxAge" yaml:"maxAge"`   // days
	MaxBackups  int    `json:"maxBackups" yaml:"maxBackups"`
	Compress    bool   `json:"compress" yaml:"compress"`
}

type MetricsConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Address        string `json:"address" yaml:"address"`
	Path           string `json:"path" yaml:"path"`
	UpdateInterval string `json:"updateInterval" yaml:"updateInterval"` // Duration string
}

// Load reads and parses the configuration file. YAML files are
// recognized by extension, everything else is parsed as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Backend.Timeout == "" {
		c.Backend.Timeout = "5s"
	}

	if c.Engine.EvalInterval == "" {
		c.Engine.EvalInterval = "5s"
	}
	if c.Engine.EventLogCap <= 0 {
		c.Engine.EventLogCap = 200
	}

	if c.Storage.Directory == "" {
		c.Storage.Directory = "state"
	}

	if c.Notify.Topic == "" {
		c.Notify.Topic = "automation/events/${espId}"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if !c.Logging.LogToStdout && !c.Logging.LogToFile {
		c.Logging.LogToStdout = true
	}
	if c.Logging.MaxSize <= 0 {
		c.Logging.MaxSize = 100
	}
	if c.Logging.MaxAge <= 0 {
		c.Logging.MaxAge = 28
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 3
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":2112"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.UpdateInterval == "" {
		c.Metrics.UpdateInterval = "15s"
	}
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend base url is required")
	}
	if _, err := time.ParseDuration(cfg.Backend.Timeout); err != nil {
		return fmt.Errorf("invalid backend timeout: %w", err)
	}

	if d, err := time.ParseDuration(cfg.Engine.EvalInterval); err != nil {
		return fmt.Errorf("invalid eval interval: %w", err)
	} else if d <= 0 {
		return fmt.Errorf("eval interval must be positive")
	}

	if cfg.Notify.MQTT != nil {
		if cfg.Notify.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker address is required")
		}
		if err := validateTLS(cfg.Notify.MQTT.TLS); err != nil {
			return err
		}
	}
	if cfg.Notify.NATS != nil {
		if len(cfg.Notify.NATS.URLs) == 0 {
			return fmt.Errorf("nats server urls are required")
		}
		if err := validateTLS(cfg.Notify.NATS.TLS); err != nil {
			return err
		}
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogToFile && cfg.Logging.Directory == "" {
		return fmt.Errorf("log directory is required when logging to file")
	}

	if cfg.Metrics.Enabled {
		if _, err := time.ParseDuration(cfg.Metrics.UpdateInterval); err != nil {
			return fmt.Errorf("invalid metrics update interval: %w", err)
		}
	}

	return nil
}

func validateTLS(tls TLSConfig) error {
	if !tls.Enable {
		return nil
	}
	if tls.CertFile == "" {
		return fmt.Errorf("tls cert file is required when tls is enabled")
	}
	if tls.KeyFile == "" {
		return fmt.Errorf("tls key file is required when tls is enabled")
	}
	return nil
}

// EvalInterval returns the parsed evaluation interval. Validation
// guarantees the duration parses.
func (c *Config) EvalInterval() time.Duration {
	d, _ := time.ParseDuration(c.Engine.EvalInterval)
	return d
}

// BackendTimeout returns the parsed backend request timeout.
func (c *Config) BackendTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Backend.Timeout)
	return d
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(evalInterval time.Duration, stateDir, metricsAddr, metricsPath string) {
	if evalInterval > 0 {
		c.Engine.EvalInterval = evalInterval.String()
	}
	if stateDir != "" {
		c.Storage.Directory = stateDir
	}
	if metricsAddr != "" {
		c.Metrics.Address = metricsAddr
	}
	if metricsPath != "" {
		c.Metrics.Path = metricsPath
	}
}
