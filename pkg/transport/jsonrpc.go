package transport

import "github.com/tidwall/gjson"

// extractRawID returns the raw JSON text of the outbound body's "id" field,
// tolerant of non-JSON or malformed bodies. A JSON-RPC notification has no
// "id" field at all, in which case ok is false and no waiter should be
// registered.
func extractRawID(body []byte) (raw []byte, ok bool) {
	if !gjson.ValidBytes(body) {
		return nil, false
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return nil, false
	}
	idResult := parsed.Get("id")
	if !idResult.Exists() {
		return nil, false
	}
	return []byte(idResult.Raw), true
}
