package rule

import (
	"fmt"
	"math"
)

// Validate performs per-type validation of a rule. It returns a
// *ValidationError naming the offending field, so callers can surface
// it against the right input.
func Validate(r *Rule) error {
	if r == nil {
		return &ValidationError{
			Field:   "rule",
			Message: "rule cannot be nil",
		}
	}

	if r.Name == "" {
		return &ValidationError{
			Field:   "name",
			Message: "name cannot be empty",
		}
	}
	if r.EspID == "" {
		return &ValidationError{
			Field:   "espId",
			Message: "target device cannot be empty",
		}
	}

	switch r.Type {
	case TypeAlert:
		return validateAlert(r)
	case TypeSchedule:
		return validateSchedule(r)
	default:
		return &ValidationError{
			Field:   "type",
			Message: fmt.Sprintf("invalid rule type: %s", r.Type),
		}
	}
}

func validateAlert(r *Rule) error {
	if r.MetricKey == "" {
		return &ValidationError{
			Field:   "metricKey",
			Message: "metric key cannot be empty",
		}
	}
	if !ValidOperators[r.Operator] {
		return &ValidationError{
			Field:   "operador",
			Message: fmt.Sprintf("invalid operator: %q", r.Operator),
		}
	}
	if r.Threshold == nil {
		return &ValidationError{
			Field:   "threshold",
			Message: "threshold is required",
		}
	}
	if math.IsNaN(*r.Threshold) {
		return &ValidationError{
			Field:   "threshold",
			Message: "threshold must be numeric",
		}
	}
	return nil
}

func validateSchedule(r *Rule) error {
	if r.Schedule == nil {
		return &ValidationError{
			Field:   "schedule",
			Message: "schedule is required",
		}
	}
	if r.Schedule.HH < 0 || r.Schedule.HH > 23 {
		return &ValidationError{
			Field:   "schedule.hh",
			Message: fmt.Sprintf("hour out of range: %d", r.Schedule.HH),
		}
	}
	if r.Schedule.MM < 0 || r.Schedule.MM > 59 {
		return &ValidationError{
			Field:   "schedule.mm",
			Message: fmt.Sprintf("minute out of range: %d", r.Schedule.MM),
		}
	}
	return nil
}
