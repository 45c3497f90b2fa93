// Package engine drives periodic rule evaluation against polled
// device readings.
package engine

import (
	"context"
	"time"

	"iot-automation-engine/internal/logger"
	"iot-automation-engine/internal/metrics"
	"iot-automation-engine/internal/notify"
	"iot-automation-engine/internal/reading"
	"iot-automation-engine/internal/rule"
	"iot-automation-engine/internal/stats"
)

// ReadingSource provides device readings. *api.Client implements it.
type ReadingSource interface {
	LatestReading(ctx context.Context, espID string) (map[string]interface{}, error)
	Readings(ctx context.Context, espID string) ([]map[string]interface{}, error)
}

// Engine polls the latest reading of every device targeted by an
// enabled rule and evaluates the rules against it. A reading is
// evaluated at most once: per-device last-seen timestamps gate out
// duplicate polls.
type Engine struct {
	store    *rule.Store
	events   *rule.EventLog
	source   ReadingSource
	notifier notify.Notifier
	logger   *logger.Logger
	metrics  *metrics.Metrics
	stats    *stats.StatsCollector
	interval time.Duration
	lastSeen map[string]int64 // device -> newest evaluated reading ts
}

// New creates an engine. Notifier and metrics may be nil.
func New(store *rule.Store, events *rule.EventLog, source ReadingSource, notifier notify.Notifier, log *logger.Logger, m *metrics.Metrics, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Engine{
		store:    store,
		events:   events,
		source:   source,
		notifier: notifier,
		logger:   log,
		metrics:  m,
		stats:    stats.NewStatsCollector(),
		interval: interval,
		lastSeen: make(map[string]int64),
	}
}

// Stats returns the engine's statistics collector.
func (e *Engine) Stats() *stats.StatsCollector {
	return e.stats
}

// WarmStart seeds per-device last-seen timestamps from the backend's
// reading history so a restart does not re-evaluate the reading that
// already fired before shutdown. Failures degrade to a cold start for
// that device.
func (e *Engine) WarmStart(ctx context.Context) {
	for _, device := range e.store.TargetDevices() {
		history, err := e.source.Readings(ctx, device)
		if err != nil {
			e.logger.Debug("warm start skipped for device",
				"espId", device,
				"error", err)
			continue
		}

		var newest int64
		for _, payload := range history {
			if ts := reading.PickTimestamp(payload, 0); ts > newest {
				newest = ts
			}
		}
		if newest > 0 {
			e.lastSeen[device] = newest
		}
	}

	e.logger.Info("warm start complete", "devices", len(e.lastSeen))
}

// Run evaluates rules on a fixed interval until ctx is cancelled. The
// ticker is always released on teardown.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("evaluation loop started", "interval", e.interval.String())

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("evaluation loop stopped")
			return
		case now := <-ticker.C:
			e.runCycle(ctx, now)
		}
	}
}

// runCycle performs one evaluation pass. Any per-device failure is
// logged and the cycle proceeds with the remaining devices.
func (e *Engine) runCycle(ctx context.Context, now time.Time) {
	targets := e.store.TargetDevices()
	if len(targets) == 0 {
		return
	}

	var batch []rule.TriggerEvent
	updates := make(map[string]int64)
	var processed, errs uint64

	for _, device := range targets {
		payload, err := e.source.LatestReading(ctx, device)
		if err != nil {
			e.logger.Error("failed to fetch latest reading",
				"espId", device,
				"error", err)
			e.countReading("error")
			errs++
			continue
		}
		if payload == nil {
			e.countReading("skipped")
			continue
		}

		ts := reading.PickTimestamp(payload, now.UnixMilli())
		if ts <= e.lastSeen[device] {
			// Same reading as last cycle, nothing new to evaluate.
			e.countReading("skipped")
			continue
		}
		e.lastSeen[device] = ts

		flat := reading.FlattenFirstRoot(payload)
		for _, r := range e.store.RulesForDevice(device) {
			var event rule.TriggerEvent
			var fired bool
			switch r.Type {
			case rule.TypeAlert:
				event, fired = rule.EvalAlert(&r, flat, ts)
			case rule.TypeSchedule:
				event, fired = rule.EvalSchedule(&r, ts)
			}
			if !fired {
				continue
			}

			batch = append(batch, event)
			updates[r.ID] = ts
			e.countRuleMatch()

			e.logger.Info("rule fired",
				"rule", r.Name,
				"espId", device,
				"text", event.Text)
		}

		processed++
		e.countReading("processed")
	}

	e.store.ApplyTriggered(updates)
	e.events.PrependBatch(batch)

	if e.notifier != nil {
		for _, event := range batch {
			// Best-effort: notifiers log and count their own failures.
			_ = e.notifier.Publish(event)
		}
	}

	if e.metrics != nil {
		e.metrics.IncEvalCycles()
		for range batch {
			e.metrics.IncEventsEmitted()
		}
	}
	e.stats.AddCycle(processed, uint64(len(updates)), uint64(len(batch)), errs)

	e.logger.Debug("evaluation cycle complete",
		"devices", len(targets),
		"processed", processed,
		"events", len(batch))
}

func (e *Engine) countReading(status string) {
	if e.metrics != nil {
		e.metrics.IncReadings(status)
	}
}

func (e *Engine) countRuleMatch() {
	if e.metrics != nil {
		e.metrics.IncRuleMatches()
	}
}
