package proxy

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// rpcError is the JSON-RPC 2.0 error object the proxy emits on lookup and
// upstream failures, always with the internal-error code.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcErrorEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   rpcError        `json:"error"`
}

const codeInternalError = -32603

// errorEnvelope builds the error reply for one failed forward. The id is
// echoed from the request body when one can be extracted, else null —
// extraction is tolerant, matching the audit-field parsing.
func errorEnvelope(reqBody []byte, message string) []byte {
	id := json.RawMessage("null")
	if gjson.ValidBytes(reqBody) {
		if v := gjson.GetBytes(reqBody, "id"); v.Exists() {
			id = json.RawMessage(v.Raw)
		}
	}

	out, err := json.Marshal(rpcErrorEnvelope{
		JSONRPC: "2.0",
		ID:      id,
		Error:   rpcError{Code: codeInternalError, Message: message},
	})
	if err != nil {
		// Marshaling a struct of strings cannot fail; keep a literal
		// fallback anyway so the handler always has bytes to write.
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"Proxy error"}}`)
	}
	return out
}
