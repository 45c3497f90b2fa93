// Package reading normalizes heterogeneous device reading payloads.
// Payload shapes are not schema-controlled by this client, so metric
// lookup has to tolerate nesting and naming variance; everything
// downstream only ever sees the flattened mapping produced here.
package reading

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// timestampKeys are the recognized timestamp field names, in match
// priority order. Names are compared after NormalizeKey, so
// "createdAt", "created_at" and "CreatedAt" all hit "createdat".
var timestampKeys = []string{
	"timestamp",
	"ts",
	"time",
	"createdat",
	"created",
	"receivedat",
	"date",
	"fecha",
}

// Flatten produces a flat dotted-path mapping from a nested reading.
// Nested objects are descended, arrays are kept as opaque values.
func Flatten(payload map[string]interface{}) map[string]interface{} {
	flat := make(map[string]interface{}, len(payload))
	flattenInto(flat, "", payload)
	return flat
}

func flattenInto(dst map[string]interface{}, prefix string, src map[string]interface{}) {
	for k, v := range src {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			flattenInto(dst, key, nested)
			continue
		}
		dst[key] = v
	}
}

// FlattenFirstRoot flattens like Flatten but peels a single top-level
// wrapper object when the payload nests its metrics under exactly one
// namespace key (a common "data" envelope). Scalar root fields are
// preserved alongside the peeled metrics.
func FlattenFirstRoot(payload map[string]interface{}) map[string]interface{} {
	var wrapper map[string]interface{}
	wrappers := 0
	for _, v := range payload {
		if nested, ok := v.(map[string]interface{}); ok {
			wrapper = nested
			wrappers++
		}
	}
	if wrappers != 1 {
		return Flatten(payload)
	}

	flat := make(map[string]interface{}, len(payload)+len(wrapper))
	for k, v := range payload {
		if _, ok := v.(map[string]interface{}); ok {
			continue
		}
		flat[k] = v
	}
	flattenInto(flat, "", wrapper)
	return flat
}

// PickTimestamp scans the reading for a recognized timestamp field at
// any nesting level and returns its epoch-millisecond value, or
// fallback when none parses.
func PickTimestamp(payload map[string]interface{}, fallback int64) int64 {
	flat := Flatten(payload)
	keys := sortedKeys(flat)

	for _, candidate := range timestampKeys {
		for _, key := range keys {
			if NormalizeKey(leafSegment(key)) != candidate {
				continue
			}
			if ts, ok := parseEpochMillis(flat[key]); ok {
				return ts
			}
		}
	}
	return fallback
}

// parseEpochMillis coerces a raw value to epoch milliseconds. Numeric
// values in the epoch-second range are scaled up; values too small to
// be a plausible epoch are rejected rather than misread.
func parseEpochMillis(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case float64:
		return epochFromNumber(val)
	case int64:
		return epochFromNumber(float64(val))
	case int:
		return epochFromNumber(float64(val))
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UnixMilli(), true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epochFromNumber(f)
		}
	}
	return 0, false
}

func epochFromNumber(n float64) (int64, bool) {
	switch {
	case n >= 1e12:
		return int64(n), true
	case n >= 1e9:
		return int64(n * 1000), true
	default:
		return 0, false
	}
}

// NumericValue coerces a raw reading value to a float64. Values that
// cannot be coerced yield NaN, which every caller treats as "not
// numeric".
func NumericValue(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case bool:
		if val {
			return 1
		}
		return 0
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f
		}
	}
	return math.NaN()
}

// NormalizeKey case-folds a key and strips non-alphanumeric runes so
// configured metric names match reading keys despite naming variance.
func NormalizeKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResolveMetric resolves a configured metric key against a flattened
// mapping: exact key match first, then a fuzzy match comparing the
// normalized final path segments. Fuzzy candidates are scanned in
// sorted key order so resolution is deterministic.
func ResolveMetric(flat map[string]interface{}, key string) (interface{}, bool) {
	if v, ok := flat[key]; ok {
		return v, true
	}

	want := NormalizeKey(leafSegment(key))
	if want == "" {
		return nil, false
	}
	for _, k := range sortedKeys(flat) {
		if NormalizeKey(leafSegment(k)) == want {
			return flat[k], true
		}
	}
	return nil, false
}

func leafSegment(key string) string {
	if i := strings.LastIndex(key, "."); i >= 0 {
		return key[i+1:]
	}
	return key
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
