// Package notify publishes trigger events to external channels.
// Publishing is best-effort: a failure is logged and counted, never
// surfaced to the evaluation loop.
package notify

import (
	"errors"

	"iot-automation-engine/internal/logger"
	"iot-automation-engine/internal/rule"
)

// Notifier publishes trigger events to one backend.
type Notifier interface {
	// Publish sends one trigger event.
	Publish(event rule.TriggerEvent) error

	// Name identifies the backend in logs and metrics.
	Name() string

	// Close releases the underlying connection.
	Close()
}

// Multi fans an event out to several notifiers. Each backend gets a
// publish attempt regardless of the others' outcomes.
type Multi struct {
	notifiers []Notifier
	logger    *logger.Logger
}

// NewMulti combines notifiers into one.
func NewMulti(log *logger.Logger, notifiers ...Notifier) *Multi {
	return &Multi{
		notifiers: notifiers,
		logger:    log,
	}
}

// Publish implements Notifier.
func (m *Multi) Publish(event rule.TriggerEvent) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Publish(event); err != nil {
			m.logger.Error("failed to publish event",
				"backend", n.Name(),
				"eventId", event.ID,
				"error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Name implements Notifier.
func (m *Multi) Name() string {
	return "multi"
}

// Close implements Notifier.
func (m *Multi) Close() {
	for _, n := range m.notifiers {
		n.Close()
	}
}
