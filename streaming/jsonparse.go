package streaming

import (
	"strings"

	"github.com/tidwall/gjson"
)

// TryParse attempts to parse an accumulated tool argument buffer as a JSON
// object. It returns false for empty, partial or non-object input and never
// mutates shared state, so callers may invoke it after every fragment.
func TryParse(buffer string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(buffer)
	if trimmed == "" || trimmed[0] != '{' {
		return nil, false
	}
	if !gjson.Valid(trimmed) {
		return nil, false
	}

	out, ok := gjson.Parse(trimmed).Value().(map[string]any)
	if !ok || out == nil {
		return nil, false
	}
	return out, true
}
