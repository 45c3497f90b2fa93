package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeConfigFile(t, "config.json", `{
		"backend": {"baseUrl": "http://localhost:8080"},
		"engine": {"evalInterval": "10s"},
		"logging": {"level": "debug", "logToStdout": true}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.Backend.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.EvalInterval())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", `
backend:
  baseUrl: http://localhost:8080
notify:
  mqtt:
    broker: tcp://localhost:1883
    clientId: engine-test
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.Backend.BaseURL)
	require.NotNil(t, cfg.Notify.MQTT)
	assert.Equal(t, "tcp://localhost:1883", cfg.Notify.MQTT.Broker)
	assert.Nil(t, cfg.Notify.NATS)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, "config.json", `{"backend": {"baseUrl": "http://localhost:8080"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.EvalInterval())
	assert.Equal(t, 5*time.Second, cfg.BackendTimeout())
	assert.Equal(t, 200, cfg.Engine.EventLogCap)
	assert.Equal(t, "state", cfg.Storage.Directory)
	assert.Equal(t, "automation/events/${espId}", cfg.Notify.Topic)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.LogToStdout)
	assert.Equal(t, ":2112", cfg.Metrics.Address)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing backend base url",
			content: `{}`,
		},
		{
			name:    "bad eval interval",
			content: `{"backend": {"baseUrl": "http://x"}, "engine": {"evalInterval": "soon"}}`,
		},
		{
			name:    "bad log level",
			content: `{"backend": {"baseUrl": "http://x"}, "logging": {"level": "verbose"}}`,
		},
		{
			name:    "mqtt without broker",
			content: `{"backend": {"baseUrl": "http://x"}, "notify": {"mqtt": {"clientId": "c"}}}`,
		},
		{
			name:    "nats without urls",
			content: `{"backend": {"baseUrl": "http://x"}, "notify": {"nats": {"name": "n"}}}`,
		},
		{
			name:    "tls enabled without cert",
			content: `{"backend": {"baseUrl": "http://x"}, "notify": {"mqtt": {"broker": "tcp://x", "tls": {"enable": true}}}}`,
		},
		{
			name:    "file logging without directory",
			content: `{"backend": {"baseUrl": "http://x"}, "logging": {"logToFile": true}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, "config.json", tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	path := writeConfigFile(t, "config.json", `{"backend": {"baseUrl": "http://x"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.ApplyOverrides(30*time.Second, "/tmp/state", ":9100", "/m")
	assert.Equal(t, 30*time.Second, cfg.EvalInterval())
	assert.Equal(t, "/tmp/state", cfg.Storage.Directory)
	assert.Equal(t, ":9100", cfg.Metrics.Address)
	assert.Equal(t, "/m", cfg.Metrics.Path)

	// Zero/empty overrides leave the config untouched.
	cfg.ApplyOverrides(0, "", "", "")
	assert.Equal(t, 30*time.Second, cfg.EvalInterval())
	assert.Equal(t, ":9100", cfg.Metrics.Address)
}
