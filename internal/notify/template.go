package notify

import (
	"regexp"
	"strconv"
	"strings"

	"iot-automation-engine/internal/rule"
)

// templateVarPattern matches ${var} references in topic templates.
var templateVarPattern = regexp.MustCompile(`\${([^}]+)}`)

// ExpandTopic substitutes event fields into a topic template.
// Supported variables: ${id}, ${espId}, ${name}, ${ts}. Unknown
// references are left in place.
func ExpandTopic(template string, event rule.TriggerEvent) string {
	if !strings.Contains(template, "${") {
		return template
	}

	vars := map[string]string{
		"id":    event.ID,
		"espId": event.EspID,
		"name":  event.Name,
		"ts":    strconv.FormatInt(event.Ts, 10),
	}

	result := template
	for _, match := range templateVarPattern.FindAllStringSubmatch(template, -1) {
		if len(match) != 2 {
			continue
		}
		value, ok := vars[match[1]]
		if !ok {
			continue
		}
		result = strings.ReplaceAll(result, match[0], value)
	}
	return result
}
