package rule

import (
	"fmt"
)

// RuleType discriminates which fields of a Rule are meaningful.
type RuleType string

const (
	// TypeAlert compares a reading metric against a threshold.
	TypeAlert RuleType = "alert"
	// TypeSchedule fires at a configured local time of day.
	TypeSchedule RuleType = "schedule"
)

// Comparison operators for alert rules. The wire names come from the
// backend API (`operador`).
const (
	OperatorGreaterThan        = ">"
	OperatorLessThan           = "<"
	OperatorGreaterThanOrEqual = ">="
	OperatorLessThanOrEqual    = "<="
	OperatorEquals             = "=="
	OperatorNotEquals          = "!="
)

// ValidOperators contains all valid comparison operators
var ValidOperators = map[string]bool{
	OperatorGreaterThan:        true,
	OperatorLessThan:           true,
	OperatorGreaterThanOrEqual: true,
	OperatorLessThanOrEqual:    true,
	OperatorEquals:             true,
	OperatorNotEquals:          true,
}

// Schedule is a time-of-day trigger in the device's local time.
type Schedule struct {
	HH int `json:"hh"` // 0-23
	MM int `json:"mm"` // 0-59
}

// Rule is one automation rule. Exactly the fields relevant to Type
// are meaningful; the others are ignored by evaluation but preserved
// for editing.
type Rule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	Type        RuleType  `json:"type"`
	EspID       string    `json:"espId"`
	MetricKey   string    `json:"metricKey,omitempty"` // dotted path or flat key into a reading
	Operator    string    `json:"operador,omitempty"`
	Threshold   *float64  `json:"threshold,omitempty"`
	Schedule    *Schedule `json:"schedule,omitempty"`

	// LastTriggered is the epoch-ms timestamp of the most recent
	// firing, 0 when the rule has never fired.
	LastTriggered int64 `json:"lastTriggered,omitempty"`
}

// TriggerEvent records one rule firing. Events are never mutated once
// created.
type TriggerEvent struct {
	ID    string `json:"id"`
	Ts    int64  `json:"ts"` // epoch ms of the source reading
	EspID string `json:"espId"`
	Name  string `json:"name"` // rule name at fire time
	Text  string `json:"text"`
}

// ValidationError is a field-specific rule validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
