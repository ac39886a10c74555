// Package correlator demultiplexes one backend's stdout stream across the
// concurrent callers waiting on it: a single producer (the backend's stdout
// pump) feeding many consumers (proxy request tasks).
//
// This is a rendezvous design rather than a polled buffer: each outbound
// request with an "id" registers a one-shot waiter keyed by that id at
// submit time, and Ingest routes each parsed response line directly to its
// waiter in O(1). Lines that never match a waiter (notifications, init
// chatter, responses to already-timed-out requests) are recorded in a
// bounded ring buffer purely for observability/discard counting, never
// replayed to a later waiter.
package correlator

import (
	"context"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mcpgate/gateway/pkg/logger"
)

// MaxUnmatched bounds the observability ring of lines that arrived with no
// registered waiter; the oldest entry is evicted on overflow.
const MaxUnmatched = 1000

// UnmatchedTTL is how long an unmatched line is kept for observability
// before opportunistic eviction.
const UnmatchedTTL = 5 * time.Minute

// WaitTimeout is how long a registered waiter waits before giving up.
const WaitTimeout = 30 * time.Second

type waiter struct {
	ch chan []byte
}

type unmatchedEntry struct {
	line       []byte
	receivedAt time.Time
}

// Correlator demultiplexes one backend's stdout stream across concurrent
// waiters keyed by JSON-RPC id.
type Correlator struct {
	name string

	mu        sync.Mutex
	waiters   map[string]*waiter
	unmatched []unmatchedEntry

	discarded uint64

	waitTimeout time.Duration
}

// New creates a Correlator for the named backend (used only in logging).
func New(name string) *Correlator {
	return &Correlator{
		name:        name,
		waiters:     make(map[string]*waiter),
		waitTimeout: WaitTimeout,
	}
}

// registerTimeoutForTest overrides the per-waiter timeout; exported only to
// this package's tests so timeout behavior can be exercised without a real
// 30-second sleep.
func (c *Correlator) registerTimeoutForTest(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitTimeout = d
}

// Register creates a one-shot waiter for the given JSON-RPC id. Callers
// with no id (notifications) must not call Register.
func (c *Correlator) Register(id string) (await func(ctx context.Context) ([]byte, error), cancel func()) {
	w := &waiter{ch: make(chan []byte, 1)}

	c.mu.Lock()
	c.waiters[id] = w
	c.mu.Unlock()

	cancel = func() {
		c.mu.Lock()
		if c.waiters[id] == w {
			delete(c.waiters, id)
		}
		c.mu.Unlock()
	}

	await = func(ctx context.Context) ([]byte, error) {
		defer cancel()
		c.mu.Lock()
		timeout := c.waitTimeout
		c.mu.Unlock()
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case line := <-w.ch:
			return line, nil
		case <-timer.C:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return await, cancel
}

// Ingest is called by the backend's stdout pump for every line read. It
// classifies the line, routes a matching JSON-RPC response to its waiter,
// and discards everything else.
func (c *Correlator) Ingest(line []byte) {
	id, ok := responseID(line)
	if !ok {
		c.recordDiscard(line)
		return
	}

	c.mu.Lock()
	w, found := c.waiters[id]
	if found {
		delete(c.waiters, id)
	}
	c.mu.Unlock()

	if !found {
		// Belongs to an already-timed-out or never-issued request.
		c.recordDiscard(line)
		return
	}

	select {
	case w.ch <- line:
	default:
		// Waiter already got a delivery (should not happen: one-shot,
		// removed on first match) — drop rather than block the pump.
		logger.Warnf("correlator[%s]: waiter channel for id %q was full", c.name, id)
	}
}

func (c *Correlator) recordDiscard(line []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.discarded++
	c.sweepLocked()
	if len(c.unmatched) >= MaxUnmatched {
		c.unmatched = c.unmatched[1:]
	}
	c.unmatched = append(c.unmatched, unmatchedEntry{line: line, receivedAt: time.Now()})
}

// sweepLocked evicts unmatched entries older than UnmatchedTTL. Caller must
// hold c.mu.
func (c *Correlator) sweepLocked() {
	cutoff := time.Now().Add(-UnmatchedTTL)
	i := 0
	for i < len(c.unmatched) && c.unmatched[i].receivedAt.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.unmatched = c.unmatched[i:]
	}
}

// DiscardedCount returns the number of lines that were never delivered to a
// waiter, for observability.
func (c *Correlator) DiscardedCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discarded
}

// PendingWaiters returns the number of requests currently awaiting a
// response on this backend.
func (c *Correlator) PendingWaiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// responseID classifies a raw stdout line: it is a JSON-RPC response only
// if it carries both "id" and either "result" or "error". Parsing is
// tolerant: malformed or non-JSON lines simply fail classification rather
// than erroring out.
func responseID(line []byte) (string, bool) {
	if !gjson.ValidBytes(line) {
		return "", false
	}
	parsed := gjson.ParseBytes(line)
	if !parsed.IsObject() {
		return "", false
	}
	idResult := parsed.Get("id")
	if !idResult.Exists() {
		return "", false
	}
	hasResult := parsed.Get("result").Exists()
	hasError := parsed.Get("error").Exists()
	if !hasResult && !hasError {
		return "", false
	}
	return idKey(idResult), true
}

// idKey normalizes a JSON-RPC id value to a comparison key. Ids match by
// strict structural equality — numeric-to-numeric, string-to-string — and
// gjson's raw text already distinguishes `1` from `"1"`, so using the raw
// text as the key preserves that.
func idKey(v gjson.Result) string {
	return v.Raw
}

// RequestIDKey exposes idKey's normalization for a caller-side id value
// (parsed from the outbound body) so Register/Ingest agree on the same key
// space.
func RequestIDKey(idRaw []byte) (string, bool) {
	if len(idRaw) == 0 {
		return "", false
	}
	if !gjson.ValidBytes(idRaw) {
		return "", false
	}
	return gjson.ParseBytes(idRaw).Raw, true
}
