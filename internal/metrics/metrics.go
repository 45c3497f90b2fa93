// Package metrics exposes Prometheus metrics for the automation
// engine. The registry is injected so tests can use a fresh one.
package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all engine metric instruments.
type Metrics struct {
	evalCycles    prometheus.Counter
	readingsTotal *prometheus.CounterVec
	ruleMatches   prometheus.Counter
	eventsEmitted prometheus.Counter
	rulesActive   prometheus.Gauge
	notifications *prometheus.CounterVec
	notifierUp    *prometheus.GaugeVec
	goroutines    prometheus.Gauge
	uptimeSeconds prometheus.Gauge
}

// NewMetrics creates and registers all engine metrics on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		evalCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "automation_eval_cycles_total",
			Help: "Total number of rule evaluation cycles run.",
		}),
		readingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "automation_readings_total",
			Help: "Device readings handled per cycle, by status.",
		}, []string{"status"}),
		ruleMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "automation_rule_matches_total",
			Help: "Total number of rule matches.",
		}),
		eventsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "automation_events_emitted_total",
			Help: "Total number of trigger events emitted.",
		}),
		rulesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "automation_rules_active",
			Help: "Number of rules currently held by the rule store.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "automation_notifications_total",
			Help: "Trigger event notifications published, by status.",
		}, []string{"status"}),
		notifierUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "automation_notifier_up",
			Help: "Connection status of each notification backend.",
		}, []string{"backend"}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "automation_goroutines",
			Help: "Current number of goroutines.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "automation_uptime_seconds",
			Help: "Seconds since the engine started.",
		}),
	}

	collectors := []prometheus.Collector{
		m.evalCycles,
		m.readingsTotal,
		m.ruleMatches,
		m.eventsEmitted,
		m.rulesActive,
		m.notifications,
		m.notifierUp,
		m.goroutines,
		m.uptimeSeconds,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// IncEvalCycles counts one completed evaluation cycle.
func (m *Metrics) IncEvalCycles() {
	m.evalCycles.Inc()
}

// IncReadings counts one handled device reading. Status is one of
// "processed", "skipped" or "error".
func (m *Metrics) IncReadings(status string) {
	m.readingsTotal.WithLabelValues(status).Inc()
}

// IncRuleMatches counts one rule match.
func (m *Metrics) IncRuleMatches() {
	m.ruleMatches.Inc()
}

// IncEventsEmitted counts one emitted trigger event.
func (m *Metrics) IncEventsEmitted() {
	m.eventsEmitted.Inc()
}

// SetRulesActive records the current rule count.
func (m *Metrics) SetRulesActive(count float64) {
	m.rulesActive.Set(count)
}

// IncNotifications counts one notification publish attempt. Status is
// "success" or "error".
func (m *Metrics) IncNotifications(status string) {
	m.notifications.WithLabelValues(status).Inc()
}

// SetNotifierUp records the connection status of a notification backend.
func (m *Metrics) SetNotifierUp(backend string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	m.notifierUp.WithLabelValues(backend).Set(v)
}

// MetricsCollector periodically refreshes process-level gauges.
type MetricsCollector struct {
	metrics  *Metrics
	interval time.Duration
	started  time.Time
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a collector updating every interval.
func NewMetricsCollector(m *Metrics, interval time.Duration) *MetricsCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &MetricsCollector{
		metrics:  m,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic collection.
func (c *MetricsCollector) Start() {
	c.started = time.Now()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop halts periodic collection and waits for the worker to exit.
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *MetricsCollector) collect() {
	c.metrics.goroutines.Set(float64(runtime.NumGoroutine()))
	c.metrics.uptimeSeconds.Set(time.Since(c.started).Seconds())
}
