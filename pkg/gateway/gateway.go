// Package gateway binds the single HTTP surface every external MCP client
// talks to: the proxy route, the built-in gateway MCP server, the LLM
// passthrough, the management API, and the WebSocket event fan-out, all
// under one loopback listener with permissive CORS.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mcpgate/gateway/pkg/audit"
	"github.com/mcpgate/gateway/pkg/authz"
	"github.com/mcpgate/gateway/pkg/catalog"
	"github.com/mcpgate/gateway/pkg/logger"
	"github.com/mcpgate/gateway/pkg/proxy"
	"github.com/mcpgate/gateway/pkg/registry"
	"github.com/mcpgate/gateway/pkg/store"
	"github.com/mcpgate/gateway/pkg/supervisor"
	"github.com/mcpgate/gateway/pkg/telemetry/metrics"
)

// DefaultListenAddr is the fixed loopback address external clients are
// configured with.
const DefaultListenAddr = "127.0.0.1:54587"

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Config carries the gateway's wiring. Zero values get sensible defaults in
// Serve; only Registry, Supervisor and Store are required.
type Config struct {
	ListenAddr string
	Registry   *registry.Registry
	Supervisor *supervisor.Supervisor
	Store      store.Store
	Authorizer *authz.Authorizer

	// LLMProviders maps a provider path segment to the local runtime base
	// URL the /llm passthrough forwards to.
	LLMProviders map[string]string

	// CatalogEntries is the static catalog served at /api/v1/catalog.
	CatalogEntries []catalog.ServerDefinition
}

// Serve builds the router, binds the listener, and blocks until ctx is
// cancelled. It is assumed that the caller sets up signal handling.
func Serve(ctx context.Context, cfg Config) error {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}

	events := NewHub()
	auditLog := audit.NewLogger(cfg.Store)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
		permissiveCORS,
	)

	p := proxy.New(cfg.Registry, auditLog, cfg.Authorizer)

	routers := map[string]http.Handler{
		"/mcp_proxy": p.Router(),
		"/mcp":       BuiltinMCPRouter(cfg.Registry, cfg.Store),
		"/llm":       LLMRouter(cfg.LLMProviders),
		"/api/v1":    APIRouter(cfg.Supervisor, cfg.Store, events, cfg.CatalogEntries),
		"/ws":        events.Router(),
		"/metrics":   metrics.Handler(),
		"/health":    healthRouter(),
	}
	for prefix, router := range routers {
		r.Mount(prefix, router)
	}

	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Infof("gateway: listening on %s", srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway: server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway: shutdown: %w", err)
	}
	logger.Infof("gateway: stopped")
	return nil
}

// permissiveCORS opens origins, methods, and headers wide. The listener is
// loopback-only, so the browser's origin check is the only thing being
// relaxed here.
func permissiveCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func healthRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}
