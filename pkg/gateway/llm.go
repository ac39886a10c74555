package gateway

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mcpgate/gateway/pkg/logger"
)

// LLMRouter is the passthrough HTTP proxy to locally-started model
// runtimes. Each configured provider maps a path segment to the runtime's
// base URL; the remainder of the request path is forwarded unchanged.
func LLMRouter(providers map[string]string) http.Handler {
	proxies := make(map[string]*httputil.ReverseProxy, len(providers))
	for name, base := range providers {
		target, err := url.Parse(base)
		if err != nil {
			logger.Warnf("llm: skipping provider %q with invalid base URL %q: %v", name, base, err)
			continue
		}
		proxies[name] = newPassthroughProxy(target)
	}

	r := chi.NewRouter()
	r.HandleFunc("/{provider}/*", func(w http.ResponseWriter, req *http.Request) {
		provider := chi.URLParam(req, "provider")
		proxy, ok := proxies[provider]
		if !ok {
			http.Error(w, "unknown LLM provider", http.StatusNotFound)
			return
		}

		// Strip the /llm/{provider} prefix so the runtime sees its own path
		// space.
		req.URL.Path = "/" + chi.URLParam(req, "*")
		proxy.ServeHTTP(w, req)
	})
	return r
}

func newPassthroughProxy(target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = joinPath(target.Path, pr.In.URL.Path)
			pr.Out.Host = target.Host
		},
		ErrorHandler: func(w http.ResponseWriter, _ *http.Request, err error) {
			logger.Warnf("llm: upstream error: %v", err)
			http.Error(w, "LLM runtime unavailable", http.StatusBadGateway)
		},
	}
}

func joinPath(base, rest string) string {
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return base + rest
}
