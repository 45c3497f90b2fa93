package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	assert.NoError(t, err)
	assert.NotNil(t, m)
}

func TestNewMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	assert.NoError(t, err)

	// Registering the same metrics twice on one registry must fail.
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetricsIncrementCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	assert.NoError(t, err)

	m.IncEvalCycles()
	m.IncReadings("processed")
	m.IncReadings("skipped")
	m.IncReadings("error")
	m.IncRuleMatches()
	m.IncEventsEmitted()
	m.IncNotifications("success")
	m.IncNotifications("error")
}

func TestMetricsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	assert.NoError(t, err)

	m.SetRulesActive(3)
	m.SetNotifierUp("mqtt", true)
	m.SetNotifierUp("nats", false)
}

func TestMetricsCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	assert.NoError(t, err)

	collector := NewMetricsCollector(m, 10*time.Millisecond)
	collector.Start()
	time.Sleep(30 * time.Millisecond)
	collector.Stop()

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
