// Package proxy implements the gateway's forwarding handler:
// POST /mcp_proxy/{server_name} with an opaque JSON-RPC body, routed
// through the registry to the named backend, with one audit record enqueued
// per forwarded call.
package proxy

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mcpgate/gateway/pkg/audit"
	"github.com/mcpgate/gateway/pkg/authz"
	"github.com/mcpgate/gateway/pkg/correlator"
	"github.com/mcpgate/gateway/pkg/logger"
	"github.com/mcpgate/gateway/pkg/registry"
	"github.com/mcpgate/gateway/pkg/supervisor"
	"github.com/mcpgate/gateway/pkg/telemetry/metrics"
	"github.com/mcpgate/gateway/pkg/telemetry/tracing"
	"github.com/mcpgate/gateway/pkg/transport"
)

// Recognized request headers.
const (
	headerSessionID      = "x-session-id"
	headerMCPSessionID   = "mcp-session-id"
	headerClientName     = "x-client-name"
	headerClientVersion  = "x-client-version"
	headerClientPlatform = "x-client-platform"
	headerUserAgent      = "user-agent"
)

// Proxy is the forwarding handler. All fields are optional except the
// registry: a nil audit logger skips persistence and a nil authorizer
// permits everything.
type Proxy struct {
	reg        *registry.Registry
	auditLog   *audit.Logger
	authorizer *authz.Authorizer
}

// New constructs a Proxy over reg, auditing to auditLog and gating calls on
// authorizer.
func New(reg *registry.Registry, auditLog *audit.Logger, authorizer *authz.Authorizer) *Proxy {
	return &Proxy{reg: reg, auditLog: auditLog, authorizer: authorizer}
}

// Router mounts the forwarding handler. The gateway mounts this under
// /mcp_proxy.
func (p *Proxy) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/{server_name}", p.handleForward)
	return r
}

// call accumulates one forwarded request's audit fields as the handler
// progresses, so every exit path enqueues exactly one record.
type call struct {
	rec   audit.Record
	start time.Time
}

func (c *call) finish(p *Proxy) {
	c.rec.DurationMS = time.Since(c.start).Milliseconds()
	c.rec.Timestamp = time.Now().UTC()
	p.auditLog.Enqueue(c.rec)
	metrics.ObserveProxyRequest(c.rec.ServerName, c.rec.StatusCode, time.Since(c.start))
}

func (p *Proxy) handleForward(w http.ResponseWriter, r *http.Request) {
	serverName := chi.URLParam(r, "server_name")

	c := &call{start: time.Now()}
	c.rec = audit.Record{
		RequestID:      uuid.NewString(),
		SessionID:      r.Header.Get(headerSessionID),
		ServerName:     serverName,
		RequestHeaders: flattenHeaders(r.Header),
		ClientInfo: audit.ClientInfo{
			UserAgent:      r.Header.Get(headerUserAgent),
			ClientName:     r.Header.Get(headerClientName),
			ClientVersion:  r.Header.Get(headerClientVersion),
			ClientPlatform: r.Header.Get(headerClientPlatform),
		},
	}
	if c.rec.SessionID == "" {
		c.rec.SessionID = uuid.NewString()
	}
	if v := r.Header.Get(headerMCPSessionID); v != "" {
		c.rec.MCPSessionID = &v
	}
	defer c.finish(p)

	ctx, span := tracing.StartSpan(r.Context(), "proxy.forward",
		attribute.String("mcp.server", serverName),
		attribute.String("gateway.request_id", c.rec.RequestID),
	)
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		p.replyBadRequest(w, c, fmt.Sprintf("failed to read request body: %v", err))
		return
	}
	if !utf8.Valid(body) {
		p.replyBadRequest(w, c, "request body is not valid UTF-8")
		return
	}
	bodyStr := string(body)
	c.rec.RequestBody = &bodyStr

	// Tolerant audit-field extraction: non-JSON bodies, missing fields, and
	// unusual id types must not fail the forward.
	if method := gjson.GetBytes(body, "method"); method.Exists() && method.Type == gjson.String {
		m := method.String()
		c.rec.Method = &m
	}

	if err := p.authorizer.Authorize(c.rec.SessionID, serverName, gjson.GetBytes(body, "method").String()); err != nil {
		logger.Warnf("proxy: %v", err)
		p.replyRPCError(w, c, body, http.StatusForbidden, fmt.Sprintf("Proxy error: %v", err))
		return
	}

	entry, err := p.reg.Lookup(serverName)
	if err != nil {
		p.replyRPCError(w, c, body, http.StatusInternalServerError,
			fmt.Sprintf("Proxy error: Server '%s' not found", serverName))
		return
	}

	// Fail fast on a dead backend instead of queueing into a pipe nobody
	// drains.
	switch entry.State() {
	case registry.StateCrashed, registry.StateStopped:
		p.replyRPCError(w, c, body, http.StatusInternalServerError,
			fmt.Sprintf("Proxy error: %v: '%s'", supervisor.ErrBackendDown, serverName))
		return
	default:
	}

	respBody, err := entry.Backend.SendAndReceive(ctx, body)
	if err != nil {
		detail := fmt.Sprintf("Proxy error: %v", err)
		if errors.Is(err, correlator.ErrTimeout) || errors.Is(err, transport.ErrTimeout) {
			detail = fmt.Sprintf("Proxy error: request to '%s' timed out: %v", serverName, err)
		}
		p.replyRPCError(w, c, body, http.StatusInternalServerError, detail)
		return
	}

	// Any returned string is a success, including the empty body a
	// notification acknowledges with.
	respStr := string(respBody)
	c.rec.ResponseBody = &respStr
	c.rec.StatusCode = http.StatusOK
	c.rec.ResponseHeaders = map[string]string{"Content-Type": "application/json"}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(respBody); err != nil {
		logger.Warnf("proxy: writing response for %q: %v", serverName, err)
	}
}

// replyBadRequest handles body-read and decode failures: plain-text 400,
// audit with error_message set and request_body left null.
func (p *Proxy) replyBadRequest(w http.ResponseWriter, c *call, msg string) {
	c.rec.StatusCode = http.StatusBadRequest
	c.rec.ErrorMessage = &msg
	c.rec.ResponseHeaders = map[string]string{"Content-Type": "text/plain; charset=utf-8"}

	http.Error(w, msg, http.StatusBadRequest)
}

// replyRPCError wraps detail in a JSON-RPC error envelope; every
// backend-side failure surfaces this way rather than as a bare HTTP error.
func (p *Proxy) replyRPCError(w http.ResponseWriter, c *call, reqBody []byte, status int, detail string) {
	envelope := errorEnvelope(reqBody, detail)
	envStr := string(envelope)

	c.rec.StatusCode = status
	c.rec.ErrorMessage = &detail
	c.rec.ResponseBody = &envStr
	c.rec.ResponseHeaders = map[string]string{"Content-Type": "application/json"}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(envelope); err != nil {
		logger.Warnf("proxy: writing error response: %v", err)
	}
}

// flattenHeaders snapshots the request headers for the audit record. Go's
// HTTP server canonicalizes header names on parse; the canonical form is
// what "as received" means at this layer. Multi-valued headers are joined
// the way they would appear on the wire.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) == 1 {
			out[name] = values[0]
			continue
		}
		joined := ""
		for i, v := range values {
			if i > 0 {
				joined += ", "
			}
			joined += v
		}
		out[name] = joined
	}
	return out
}
