// Package audit builds the per-call audit records and ships them to the
// Store off the request path: one record per forwarded call, written
// fire-and-forget so persistence never blocks a live response.
package audit

import (
	"encoding/json"
	"time"
)

// ClientInfo is the caller-identifying subset of request headers:
// user-agent plus the optional named client fields.
type ClientInfo struct {
	UserAgent      string `json:"user_agent,omitempty"`
	ClientName     string `json:"client_name,omitempty"`
	ClientVersion  string `json:"client_version,omitempty"`
	ClientPlatform string `json:"client_platform,omitempty"`
}

// Record is the in-memory shape of one audit record before it is handed to
// the logger for serialization and persistence.
type Record struct {
	RequestID       string
	SessionID       string
	MCPSessionID    *string
	ServerName      string
	ClientInfo      ClientInfo
	Method          *string
	RequestHeaders  map[string]string
	RequestBody     *string
	ResponseHeaders map[string]string
	ResponseBody    *string
	StatusCode      int
	ErrorMessage    *string
	DurationMS      int64
	Timestamp       time.Time
}

// marshalMap JSON-encodes a string map, producing "null" for a nil map:
// a missing mapping persists as null, not as an empty string.
func marshalMap(m map[string]string) (string, error) {
	if m == nil {
		return "null", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func marshalClientInfo(c ClientInfo) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
