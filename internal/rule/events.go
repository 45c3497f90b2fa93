package rule

import (
	"sync"

	"iot-automation-engine/internal/logger"
)

// DefaultEventCap bounds the trigger event log.
const DefaultEventCap = 200

// EventLog is the bounded, newest-first list of trigger events. The
// evaluator prepends; nothing mutates entries once inserted. The
// oldest entries are evicted when the cap is exceeded.
type EventLog struct {
	mu     sync.RWMutex
	events []TriggerEvent
	cap    int
	state  StateStore
	logger *logger.Logger
}

// NewEventLog creates an event log persisting through state.
func NewEventLog(capacity int, state StateStore, log *logger.Logger) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventCap
	}
	return &EventLog{
		cap:    capacity,
		state:  state,
		logger: log,
	}
}

// Load rehydrates the log from local storage, truncating oversized
// persisted state to the cap.
func (l *EventLog) Load() {
	var events []TriggerEvent
	if err := l.state.Load(eventsStateKey, &events); err != nil {
		l.logger.Debug("no local event state", "error", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(events) > l.cap {
		events = events[:l.cap]
	}
	l.events = events

	l.logger.Info("events loaded", "count", len(l.events))
}

// PrependBatch inserts a batch of events collected in chronological
// order. The batch is reversed before prepending so the log stays
// newest-first across batch boundaries.
func (l *EventLog) PrependBatch(batch []TriggerEvent) {
	if len(batch) == 0 {
		return
	}

	reversed := make([]TriggerEvent, len(batch))
	for i, e := range batch {
		reversed[len(batch)-1-i] = e
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(reversed, l.events...)
	if len(l.events) > l.cap {
		l.events = l.events[:l.cap]
	}
	l.persistLocked()
}

// Events returns a copy of the log, newest first.
func (l *EventLog) Events() []TriggerEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]TriggerEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of logged events.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

func (l *EventLog) persistLocked() {
	if len(l.events) == 0 {
		if err := l.state.Remove(eventsStateKey); err != nil {
			l.logger.Error("failed to remove event state", "error", err)
		}
		return
	}
	if err := l.state.Save(eventsStateKey, l.events); err != nil {
		l.logger.Error("failed to persist events", "error", err)
	}
}
