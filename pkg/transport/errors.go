package transport

import "errors"

// Sentinel errors for backend transports.
var (
	// ErrSpawnFailed is returned when the child process could not be started.
	ErrSpawnFailed = errors.New("transport: failed to spawn backend process")

	// ErrSandboxUnavailable names a sandbox wrapper that could not be
	// applied. No code path in this module returns it: a failed wrapper
	// surfaces as a start failure of the child.
	ErrSandboxUnavailable = errors.New("transport: sandbox wrapper unavailable")

	// ErrStdioClosed is returned when a write is attempted after the
	// backend's stdin has been closed.
	ErrStdioClosed = errors.New("transport: stdio pipe closed")

	// ErrUpstreamHTTP is returned when an HTTP backend responds with a
	// non-2xx status. The status is carried in the wrapping error text.
	ErrUpstreamHTTP = errors.New("transport: upstream HTTP error")

	// ErrTimeout is returned when a send exceeds its deadline.
	ErrTimeout = errors.New("transport: request timed out")

	// ErrMalformedRequest is returned when the caller-side body could not
	// be parsed enough to extract an id.
	ErrMalformedRequest = errors.New("transport: malformed outbound request")

	// ErrQueueFull names an outbound queue that is not being drained. No
	// code path in this module returns it: Process.SendAndReceive waits on
	// a full queue until its context is done.
	ErrQueueFull = errors.New("transport: outbound queue full")
)
