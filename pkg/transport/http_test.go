package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBackend_ForwardsHeadersAndBody(t *testing.T) {
	t.Parallel()

	var gotAuth, gotContentType string
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":42,"method":"ping"}`, string(body))
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":42,"result":{"ok":true}}`))
	}))
	defer stub.Close()

	b := NewHTTPBackend("remote", stub.URL, map[string]string{"Authorization": "Bearer X"})
	resp, err := b.SendAndReceive(context.Background(), []byte(`{"jsonrpc":"2.0","id":42,"method":"ping"}`))
	require.NoError(t, err)

	assert.Equal(t, `{"jsonrpc":"2.0","id":42,"result":{"ok":true}}`, string(resp))
	assert.Equal(t, "Bearer X", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
}

func TestHTTPBackend_Non2xxIsUpstreamError(t *testing.T) {
	t.Parallel()

	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer stub.Close()

	b := NewHTTPBackend("remote", stub.URL, nil)
	_, err := b.SendAndReceive(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrUpstreamHTTP)
}

func TestHTTPBackend_UnreachableEndpoint(t *testing.T) {
	t.Parallel()

	b := NewHTTPBackend("remote", "http://127.0.0.1:1/mcp", nil)
	_, err := b.SendAndReceive(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrUpstreamHTTP)
}

func TestHTTPBackend_CallerContextCancels(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	stub := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-blocked
	}))
	defer stub.Close()
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewHTTPBackend("remote", stub.URL, nil)
	_, err := b.SendAndReceive(ctx, []byte(`{}`))
	assert.ErrorIs(t, err, ErrTimeout)
}
