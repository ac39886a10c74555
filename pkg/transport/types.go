// Package transport implements the two backend shapes the gateway can
// forward to: a sandboxed/plain local subprocess speaking newline-delimited
// JSON over stdio, and a remote HTTP endpoint speaking one JSON-RPC blob per
// POST. Both satisfy Backend; the supervisor and proxy depend only on that
// interface.
package transport

import "context"

// Kind discriminates the two ServerDefinition transport shapes.
type Kind string

const (
	// KindStdio launches a local subprocess and pipes stdio.
	KindStdio Kind = "stdio"
	// KindHTTP forwards to a remote HTTP endpoint.
	KindHTTP Kind = "http"
)

// Backend is the contract every transport shape implements: send a raw
// JSON-RPC body and, if the caller's request carried an "id", get back the
// correlated response body verbatim.
//
// Waiting for a response is bounded at 30 seconds; ctx can shorten it.
// Process waits to enqueue a body on its bounded outbound queue until ctx
// is done, with no deadline of its own for that step.
type Backend interface {
	// SendAndReceive forwards body and returns the matched response body.
	// Process, for a JSON-RPC notification (no "id" field), returns a nil
	// body and a nil error once the send is queued; no waiter is registered.
	// HTTPBackend POSTs every body, notifications included, and returns the
	// endpoint's reply body.
	SendAndReceive(ctx context.Context, body []byte) ([]byte, error)

	// Close tears the backend down. For Process, this closes the outbound
	// queue; the supervisor then kills the child. For HTTP it is a no-op
	// beyond releasing the client.
	Close() error
}
