package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mcpgate/gateway/pkg/logger"
)

// httpRequestTimeout bounds a single forwarded call.
const httpRequestTimeout = 30 * time.Second

// HTTPBackend forwards JSON-RPC bodies to a remote MCP endpoint over plain
// HTTP POST. No correlation is needed: HTTP is already request/response.
type HTTPBackend struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
}

// NewHTTPBackend constructs an HTTPBackend bound to url, sending headers on
// every outbound request. For HTTP definitions the env mapping doubles as
// the outbound-header map.
func NewHTTPBackend(name, url string, headers map[string]string) *HTTPBackend {
	return &HTTPBackend{
		name:    name,
		url:     url,
		headers: headers,
		client: &http.Client{
			Timeout: httpRequestTimeout,
		},
	}
}

// SendAndReceive implements Backend.
func (b *HTTPBackend) SendAndReceive(ctx context.Context, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, httpRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstreamHTTP, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warnf("transport: backend %q: closing response body: %v", b.name, cerr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %w", ErrUpstreamHTTP, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: backend %q returned status %d", ErrUpstreamHTTP, b.name, resp.StatusCode)
	}

	return respBody, nil
}

// Close releases the HTTP client's idle connections.
func (b *HTTPBackend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
