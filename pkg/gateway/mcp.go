package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/mcpgate/gateway/pkg/logger"
	"github.com/mcpgate/gateway/pkg/registry"
	"github.com/mcpgate/gateway/pkg/store"
)

// builtinMCP is the gateway's own MCP server, mounted at /mcp. It exposes
// the gateway itself as a backend: clients that speak MCP can discover and
// query the installed servers through the same protocol they use for
// everything else. It is intentionally thin; the proxy route is the core
// surface.
type builtinMCP struct {
	reg     *registry.Registry
	backend store.Store
}

// BuiltinMCPRouter creates the router for the built-in gateway MCP server.
func BuiltinMCPRouter(reg *registry.Registry, backend store.Store) http.Handler {
	m := &builtinMCP{reg: reg, backend: backend}

	r := chi.NewRouter()
	r.Post("/", m.handle)
	return r
}

type mcpResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcErrorObject `json:"error,omitempty"`
}

type rpcErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	rpcMethodNotFound = -32601
	rpcParseError     = -32700
	rpcInternalError  = -32603
)

func (m *builtinMCP) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	parsed := gjson.ParseBytes(body)
	if !gjson.ValidBytes(body) || !parsed.IsObject() {
		writeMCP(w, mcpResponse{
			JSONRPC: "2.0",
			ID:      json.RawMessage("null"),
			Error:   &rpcErrorObject{Code: rpcParseError, Message: "parse error"},
		})
		return
	}

	id := parsed.Get("id")
	method := parsed.Get("method").String()

	// Notifications get an empty acknowledgement, same as the proxy route.
	if !id.Exists() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}

	resp := mcpResponse{JSONRPC: "2.0", ID: json.RawMessage(id.Raw)}
	switch method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": "2025-03-26",
			"serverInfo":      map[string]string{"name": "mcpgate", "version": "1.0.0"},
			"capabilities":    map[string]any{"tools": map[string]any{}},
		}
	case "ping":
		resp.Result = map[string]any{}
	case "tools/list":
		resp.Result = map[string]any{"tools": builtinTools()}
	case "tools/call":
		result, callErr := m.callTool(r, parsed.Get("params"))
		if callErr != nil {
			resp.Error = &rpcErrorObject{Code: rpcInternalError, Message: callErr.Error()}
		} else {
			resp.Result = result
		}
	default:
		resp.Error = &rpcErrorObject{Code: rpcMethodNotFound, Message: fmt.Sprintf("method %q not found", method)}
	}
	writeMCP(w, resp)
}

func builtinTools() []map[string]any {
	return []map[string]any{
		{
			"name":        "list_servers",
			"description": "List the MCP servers installed in the gateway and their current state.",
			"inputSchema": map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			"name":        "server_status",
			"description": "Report the live state of one installed MCP server by name.",
			"inputSchema": map[string]any{
				"type":       "object",
				"required":   []string{"name"},
				"properties": map[string]any{"name": map[string]any{"type": "string"}},
			},
		},
	}
}

func (m *builtinMCP) callTool(r *http.Request, params gjson.Result) (any, error) {
	switch params.Get("name").String() {
	case "list_servers":
		defs, err := m.backend.LoadAllDefinitions(r.Context())
		if err != nil {
			return nil, fmt.Errorf("listing servers: %w", err)
		}
		lines := make([]string, 0, len(defs))
		for _, def := range defs {
			state := string(registry.StateStopped)
			if entry, lookupErr := m.reg.Lookup(def.Name); lookupErr == nil {
				state = string(entry.State())
			}
			lines = append(lines, fmt.Sprintf("%s (%s): %s", def.Name, def.Transport, state))
		}
		return toolText(lines...), nil
	case "server_status":
		name := params.Get("arguments.name").String()
		entry, err := m.reg.Lookup(name)
		if err != nil {
			return toolText(fmt.Sprintf("%s: not running", name)), nil
		}
		return toolText(fmt.Sprintf("%s: %s", name, entry.State())), nil
	default:
		return nil, fmt.Errorf("unknown tool %q", params.Get("name").String())
	}
}

// toolText wraps lines in the MCP tool-result content shape.
func toolText(lines ...string) map[string]any {
	content := make([]map[string]string, 0, len(lines))
	for _, line := range lines {
		content = append(content, map[string]string{"type": "text", "text": line})
	}
	return map[string]any{"content": content}
}

func writeMCP(w http.ResponseWriter, resp mcpResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Warnf("mcp: encoding response: %v", err)
	}
}
