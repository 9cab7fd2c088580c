package protocol

import "encoding/json"

// mustJSON marshals v, falling back to a literal error string on the
// (practically unreachable) failure path rather than propagating a
// second error out of an error-handling path.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error":"internal","details":"failed to encode response"}`
	}
	return string(b)
}
