package transport

import (
	"context"
	"sync/atomic"

	"github.com/mcpgate/gateway/pkg/correlator"
)

// OutboundQueueCapacity bounds the per-backend outbound message queue.
const OutboundQueueCapacity = 100

// Process is the stdio-side half of the subprocess backend. It owns the
// outbound queue and the id-correlation contract; spawning the child and
// pumping its stdout/stderr into this Process's correlator is the
// supervisor's job, which keeps the two concerns — "ship a request" and
// "own a child process" — independently testable.
type Process struct {
	name     string
	outbound chan []byte
	corr     *correlator.Correlator
	closed   atomic.Bool
}

// NewProcess constructs a Process backend that will deliver responses
// through corr. The caller (the supervisor) is responsible for spawning
// the child and pumping its stdout into corr.Ingest.
func NewProcess(name string, corr *correlator.Correlator) *Process {
	return &Process{
		name:     name,
		outbound: make(chan []byte, OutboundQueueCapacity),
		corr:     corr,
	}
}

// Outbound exposes the queue for the supervisor's stdin-writer task to
// drain. Closed by Close.
func (p *Process) Outbound() <-chan []byte {
	return p.outbound
}

// SendAndReceive implements Backend. A JSON-RPC notification (no "id")
// enqueues the write and returns immediately with an empty body — no
// waiter is registered.
func (p *Process) SendAndReceive(ctx context.Context, body []byte) ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrStdioClosed
	}

	idRaw, hasID := extractRawID(body)

	var (
		await       func(context.Context) ([]byte, error)
		awaitCalled bool
	)
	if hasID {
		key, ok := correlator.RequestIDKey(idRaw)
		if !ok {
			return nil, ErrMalformedRequest
		}
		var cancel func()
		await, cancel = p.corr.Register(key)
		defer func() {
			// Only reached without calling await() if the queue send below
			// failed or the caller's context was cancelled first; release
			// the registered waiter so it doesn't leak in the map.
			if !awaitCalled {
				cancel()
			}
		}()
	}

	select {
	case p.outbound <- body:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if !hasID {
		return nil, nil
	}
	awaitCalled = true
	return await(ctx)
}

// Close closes the outbound queue, signaling the stdin-writer task to exit.
// Calls after the first are no-ops; the supervisor owns killing the child
// afterward.
func (p *Process) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		close(p.outbound)
	}
	return nil
}
