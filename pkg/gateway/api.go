package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mcpgate/gateway/pkg/catalog"
	"github.com/mcpgate/gateway/pkg/logger"
	"github.com/mcpgate/gateway/pkg/registry"
	"github.com/mcpgate/gateway/pkg/store"
	"github.com/mcpgate/gateway/pkg/supervisor"
)

// apiRoutes is the management CRUD surface: the static catalog, installed
// servers, the audit log, and install/uninstall/update operations that
// drive the supervisor and publish WebSocket events.
type apiRoutes struct {
	sup      *supervisor.Supervisor
	backend  store.Store
	events   *Hub
	shipping []catalog.ServerDefinition
}

// APIRouter creates the router for the management API. catalogEntries is
// the static catalog shown at /catalog; installing one copies it into the
// store.
func APIRouter(sup *supervisor.Supervisor, backend store.Store, events *Hub, catalogEntries []catalog.ServerDefinition) http.Handler {
	routes := apiRoutes{sup: sup, backend: backend, events: events, shipping: catalogEntries}

	r := chi.NewRouter()
	r.Get("/catalog", routes.listCatalog)
	r.Post("/catalog/{name}/install", routes.installFromCatalog)
	r.Get("/servers", routes.listServers)
	r.Get("/servers/{name}", routes.getServer)
	r.Post("/servers", routes.installServer)
	r.Put("/servers/{name}", routes.updateServer)
	r.Delete("/servers/{name}", routes.uninstallServer)
	r.Get("/logs", routes.listAuditLogs)
	r.Delete("/logs", routes.purgeAuditLogs)
	return r
}

// serverStatus is the list/get response shape: the persisted definition
// plus the live registry state, with env withheld because it may hold
// secrets.
type serverStatus struct {
	Name      string            `json:"name"`
	Transport catalog.Transport `json:"transport"`
	Command   string            `json:"command"`
	Args      []string          `json:"args"`
	State     string            `json:"state"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
}

func (a *apiRoutes) status(def catalog.ServerDefinition) serverStatus {
	state := string(registry.StateStopped)
	if entry, err := a.sup.Registry().Lookup(def.Name); err == nil {
		state = string(entry.State())
	}
	return serverStatus{
		Name:      def.Name,
		Transport: def.Transport,
		Command:   def.Command,
		Args:      def.Args,
		State:     state,
		CreatedAt: def.CreatedAt,
	}
}

func (a *apiRoutes) listCatalog(w http.ResponseWriter, _ *http.Request) {
	out := make([]serverStatus, 0, len(a.shipping))
	for _, def := range a.shipping {
		out = append(out, a.status(def))
	}
	writeJSON(w, out)
}

// installFromCatalog copies one catalog entry into the store and starts it.
func (a *apiRoutes) installFromCatalog(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var def *catalog.ServerDefinition
	for i := range a.shipping {
		if a.shipping[i].Name == name {
			def = &a.shipping[i]
			break
		}
	}
	if def == nil {
		http.Error(w, "catalog entry not found", http.StatusNotFound)
		return
	}
	a.install(w, r, *def)
}

func (a *apiRoutes) listServers(w http.ResponseWriter, r *http.Request) {
	defs, err := a.backend.LoadAllDefinitions(r.Context())
	if err != nil {
		logger.Errorf("api: listing servers: %v", err)
		http.Error(w, "failed to list servers", http.StatusInternalServerError)
		return
	}

	out := make([]serverStatus, 0, len(defs))
	for _, def := range defs {
		out = append(out, a.status(def))
	}
	writeJSON(w, out)
}

func (a *apiRoutes) getServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	def, err := a.backend.FindByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "server not found", http.StatusNotFound)
			return
		}
		logger.Errorf("api: finding server %q: %v", name, err)
		http.Error(w, "failed to look up server", http.StatusInternalServerError)
		return
	}
	writeJSON(w, a.status(def))
}

func (a *apiRoutes) installServer(w http.ResponseWriter, r *http.Request) {
	var def catalog.ServerDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		http.Error(w, "invalid server definition: "+err.Error(), http.StatusBadRequest)
		return
	}
	a.install(w, r, def)
}

func (a *apiRoutes) install(w http.ResponseWriter, r *http.Request, def catalog.ServerDefinition) {
	if err := validateDefinition(def); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	persisted, err := a.backend.Upsert(ctx, def)
	if err != nil {
		logger.Errorf("api: persisting %q: %v", def.Name, err)
		http.Error(w, "failed to persist server", http.StatusInternalServerError)
		return
	}

	if _, err := a.sup.Start(ctx, persisted); err != nil {
		if errors.Is(err, supervisor.ErrAlreadyRunning) {
			http.Error(w, "server already running", http.StatusConflict)
			return
		}
		// Start failures leave no partial registry entry; the definition
		// stays persisted so the caller can fix and retry.
		logger.Errorf("api: starting %q: %v", def.Name, err)
		http.Error(w, "failed to start server: "+err.Error(), http.StatusBadGateway)
		return
	}

	a.events.Publish(Event{Type: EventServerInstalled, Server: def.Name})
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, a.status(persisted))
}

func (a *apiRoutes) updateServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var patch catalog.ServerDefinition
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid server definition: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	current, err := a.backend.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "server not found", http.StatusNotFound)
			return
		}
		logger.Errorf("api: finding server %q: %v", name, err)
		http.Error(w, "failed to look up server", http.StatusInternalServerError)
		return
	}

	merged, err := current.Merge(ctx, patch)
	if err != nil {
		http.Error(w, "failed to merge update: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateDefinition(merged); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := a.sup.Update(ctx, merged); err != nil {
		logger.Errorf("api: updating %q: %v", name, err)
		http.Error(w, "failed to update server: "+err.Error(), http.StatusBadGateway)
		return
	}

	a.events.Publish(Event{Type: EventServerUpdated, Server: name})
	writeJSON(w, a.status(merged))
}

func (a *apiRoutes) uninstallServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctx := r.Context()

	if err := a.sup.Stop(ctx, name); err != nil {
		logger.Errorf("api: stopping %q: %v", name, err)
		http.Error(w, "failed to stop server", http.StatusInternalServerError)
		return
	}
	if err := a.backend.Delete(ctx, name); err != nil {
		logger.Errorf("api: deleting %q: %v", name, err)
		http.Error(w, "failed to delete server", http.StatusInternalServerError)
		return
	}

	a.events.Publish(Event{Type: EventServerUninstalled, Server: name})
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiRoutes) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := store.AuditFilters{
		ServerName:   q.Get("server"),
		SessionID:    q.Get("session_id"),
		MCPSessionID: q.Get("mcp_session_id"),
	}
	page := queryInt(q.Get("page"), 0)
	pageSize := queryInt(q.Get("page_size"), 50)

	records, err := a.backend.ListAudit(r.Context(), filters, page, pageSize)
	if err != nil {
		logger.Errorf("api: listing audit logs: %v", err)
		http.Error(w, "failed to list logs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func (a *apiRoutes) purgeAuditLogs(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r.URL.Query().Get("older_than_days"), 30)

	purged, err := a.backend.PurgeAuditOlderThan(r.Context(), days)
	if err != nil {
		logger.Errorf("api: purging audit logs: %v", err)
		http.Error(w, "failed to purge logs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int64{"purged": purged})
}

// validateDefinition runs both validation layers an install/update must
// pass: wire-shape (JSON Schema) and transport-specific invariants.
func validateDefinition(def catalog.ServerDefinition) error {
	if err := catalog.ValidateSchema(def); err != nil {
		return err
	}
	return def.Validate()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("api: encoding response: %v", err)
	}
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
