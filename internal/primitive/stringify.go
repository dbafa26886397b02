package primitive

import "encoding/json"

// stringify renders a primitive's return value as tool-result text. A
// plain string passes through unchanged; anything else is rendered as
// JSON so capabilities can return structured data that still reads
// fine as a tool-result string.
func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err.Error()
	}
	return string(b)
}
