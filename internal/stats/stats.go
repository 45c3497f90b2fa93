package stats

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// StatsCollector manages engine-wide statistics
type StatsCollector struct {
	StartTime         time.Time
	CyclesRun         uint64
	ReadingsProcessed uint64
	RulesMatched      uint64
	EventsEmitted     uint64
	Errors            uint64
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		StartTime: time.Now(),
	}
}

// AddCycle records one completed evaluation cycle and its outcomes.
func (s *StatsCollector) AddCycle(readings, matched, emitted, errors uint64) {
	atomic.AddUint64(&s.CyclesRun, 1)
	atomic.AddUint64(&s.ReadingsProcessed, readings)
	atomic.AddUint64(&s.RulesMatched, matched)
	atomic.AddUint64(&s.EventsEmitted, emitted)
	atomic.AddUint64(&s.Errors, errors)
}

// GetStats returns current statistics
func (s *StatsCollector) GetStats() map[string]interface{} {
	uptime := time.Since(s.StartTime)
	return map[string]interface{}{
		"uptime":             uptime.String(),
		"cycles_run":         atomic.LoadUint64(&s.CyclesRun),
		"readings_processed": atomic.LoadUint64(&s.ReadingsProcessed),
		"rules_matched":      atomic.LoadUint64(&s.RulesMatched),
		"events_emitted":     atomic.LoadUint64(&s.EventsEmitted),
		"errors":             atomic.LoadUint64(&s.Errors),
	}
}

// GetStatsJSON returns stats as JSON
func (s *StatsCollector) GetStatsJSON() ([]byte, error) {
	return json.Marshal(s.GetStats())
}

// CalculateRate calculates the evaluation cycle rate per second
func (s *StatsCollector) CalculateRate() float64 {
	uptime := time.Since(s.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.CyclesRun)) / uptime
}
