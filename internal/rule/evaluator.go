package rule

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"iot-automation-engine/internal/reading"
)

// scheduleDebounceMillis prevents a schedule rule from re-firing on
// successive polls within the same matching minute.
const scheduleDebounceMillis = 60_000

// Compare applies an alert operator between an observed value and a
// threshold. Equality is exact floating-point equality; fractional
// thresholds may never match sensor-derived values, which mirrors the
// backend's semantics rather than papering over them with an epsilon.
func Compare(value float64, operator string, threshold float64) bool {
	switch operator {
	case OperatorGreaterThan:
		return value > threshold
	case OperatorLessThan:
		return value < threshold
	case OperatorGreaterThanOrEqual:
		return value >= threshold
	case OperatorLessThanOrEqual:
		return value <= threshold
	case OperatorEquals:
		return value == threshold
	case OperatorNotEquals:
		return value != threshold
	default:
		return false
	}
}

// EvalAlert evaluates an alert rule against a flattened reading taken
// at ts. The metric is resolved exactly first, then by fuzzy leaf
// match. Unresolvable or non-numeric values, or an unset operator or
// threshold, mean no trigger.
func EvalAlert(r *Rule, flat map[string]interface{}, ts int64) (TriggerEvent, bool) {
	if r.Operator == "" || r.Threshold == nil {
		return TriggerEvent{}, false
	}

	raw, ok := reading.ResolveMetric(flat, r.MetricKey)
	if !ok {
		return TriggerEvent{}, false
	}
	value := reading.NumericValue(raw)
	if math.IsNaN(value) {
		return TriggerEvent{}, false
	}

	if !Compare(value, r.Operator, *r.Threshold) {
		return TriggerEvent{}, false
	}

	text := fmt.Sprintf("%s: %s %s %s (observed %s)",
		r.Name, r.MetricKey, r.Operator,
		formatValue(*r.Threshold), formatValue(value))

	return newEvent(r, ts, text), true
}

// EvalSchedule evaluates a schedule rule against a reading timestamp.
// It fires only when the timestamp's local hour and minute match the
// schedule and the rule has not triggered within the debounce window.
func EvalSchedule(r *Rule, ts int64) (TriggerEvent, bool) {
	if r.Schedule == nil {
		return TriggerEvent{}, false
	}

	at := time.UnixMilli(ts)
	if at.Hour() != r.Schedule.HH || at.Minute() != r.Schedule.MM {
		return TriggerEvent{}, false
	}
	if r.LastTriggered != 0 && ts-r.LastTriggered < scheduleDebounceMillis {
		return TriggerEvent{}, false
	}

	text := fmt.Sprintf("%s: executed at %02d:%02d", r.Name, r.Schedule.HH, r.Schedule.MM)
	return newEvent(r, ts, text), true
}

func newEvent(r *Rule, ts int64, text string) TriggerEvent {
	return TriggerEvent{
		ID:    uuid.NewString(),
		Ts:    ts,
		EspID: r.EspID,
		Name:  r.Name,
		Text:  text,
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
