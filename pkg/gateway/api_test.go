package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/mock/gomock"

	"github.com/mcpgate/gateway/pkg/catalog"
	"github.com/mcpgate/gateway/pkg/registry"
	"github.com/mcpgate/gateway/pkg/store"
	"github.com/mcpgate/gateway/pkg/store/mocks"
	"github.com/mcpgate/gateway/pkg/supervisor"
)

func testAPI(t *testing.T) (*mocks.MockStore, *registry.Registry, http.Handler) {
	t.Helper()

	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockStore(ctrl)
	reg := registry.New()
	sup := supervisor.New(reg, mockStore)
	shipped := []catalog.ServerDefinition{httpDef("shipped-remote")}
	return mockStore, reg, APIRouter(sup, mockStore, NewHub(), shipped)
}

// httpDef is a definition the supervisor can "start" without spawning a
// child process.
func httpDef(name string) catalog.ServerDefinition {
	return catalog.ServerDefinition{
		Name:      name,
		Transport: catalog.TransportHTTP,
		Command:   "http",
		Args:      []string{"http://127.0.0.1:9999/mcp"},
	}
}

func TestInstallServer(t *testing.T) {
	t.Parallel()

	mockStore, reg, handler := testAPI(t)
	def := httpDef("github")
	mockStore.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(def, nil)

	body := `{"name":"github","transport":"http","command":"http","args":["http://127.0.0.1:9999/mcp"]}`
	req := httptest.NewRequest(http.MethodPost, "/servers", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	parsed := gjson.Parse(rec.Body.String())
	assert.Equal(t, "github", parsed.Get("name").String())
	assert.Equal(t, "running", parsed.Get("state").String())

	_, err := reg.Lookup("github")
	assert.NoError(t, err)
}

func TestInstallServerRejectsBadShape(t *testing.T) {
	t.Parallel()

	_, _, handler := testAPI(t)

	// Missing command fails schema validation before anything is persisted.
	body := `{"name":"broken","transport":"stdio"}`
	req := httptest.NewRequest(http.MethodPost, "/servers", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInstallServerConflictWhenRunning(t *testing.T) {
	t.Parallel()

	mockStore, reg, handler := testAPI(t)
	def := httpDef("github")
	_, err := reg.Add("github", nil, registry.StateRunning)
	require.NoError(t, err)
	mockStore.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(def, nil)

	body := `{"name":"github","transport":"http","command":"http","args":["http://127.0.0.1:9999/mcp"]}`
	req := httptest.NewRequest(http.MethodPost, "/servers", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListServers(t *testing.T) {
	t.Parallel()

	mockStore, reg, handler := testAPI(t)
	mockStore.EXPECT().LoadAllDefinitions(gomock.Any()).
		Return([]catalog.ServerDefinition{httpDef("alpha"), httpDef("beta")}, nil)
	_, err := reg.Add("alpha", nil, registry.StateRunning)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/servers", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	parsed := gjson.Parse(rec.Body.String())
	require.Equal(t, int64(2), parsed.Get("#").Int())
	assert.Equal(t, "running", parsed.Get("0.state").String())
	// beta has no registry entry, so it reports stopped.
	assert.Equal(t, "stopped", parsed.Get("1.state").String())
	// env may hold secrets and never appears in API responses.
	assert.False(t, parsed.Get("0.env").Exists())
}

func TestGetServerNotFound(t *testing.T) {
	t.Parallel()

	mockStore, _, handler := testAPI(t)
	mockStore.EXPECT().FindByName(gomock.Any(), "ghost").
		Return(catalog.ServerDefinition{}, store.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/servers/ghost", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUninstallServerIsIdempotent(t *testing.T) {
	t.Parallel()

	mockStore, _, handler := testAPI(t)
	// Neither the supervisor stop nor the store delete errors on an absent
	// name, so a double uninstall is two clean 204s.
	mockStore.EXPECT().Delete(gomock.Any(), "gone").Return(nil).Times(2)

	for range 2 {
		req := httptest.NewRequest(http.MethodDelete, "/servers/gone", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestListCatalog(t *testing.T) {
	t.Parallel()

	_, _, handler := testAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/catalog", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	parsed := gjson.Parse(rec.Body.String())
	require.Equal(t, int64(1), parsed.Get("#").Int())
	assert.Equal(t, "shipped-remote", parsed.Get("0.name").String())
}

func TestInstallFromCatalog(t *testing.T) {
	t.Parallel()

	mockStore, reg, handler := testAPI(t)
	mockStore.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(httpDef("shipped-remote"), nil)

	req := httptest.NewRequest(http.MethodPost, "/catalog/shipped-remote/install", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	_, err := reg.Lookup("shipped-remote")
	assert.NoError(t, err)
}

func TestInstallFromCatalogUnknownEntry(t *testing.T) {
	t.Parallel()

	_, _, handler := testAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/catalog/nope/install", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAuditLogs(t *testing.T) {
	t.Parallel()

	mockStore, _, handler := testAPI(t)
	mockStore.EXPECT().
		ListAudit(gomock.Any(), store.AuditFilters{ServerName: "github"}, 0, 50).
		Return([]store.AuditRecord{{RequestID: "req-1", ServerName: "github"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/logs?server=github", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "req-1")
}

func TestPurgeAuditLogs(t *testing.T) {
	t.Parallel()

	mockStore, _, handler := testAPI(t)
	mockStore.EXPECT().PurgeAuditOlderThan(gomock.Any(), 7).Return(int64(12), nil)

	req := httptest.NewRequest(http.MethodDelete, "/logs?older_than_days=7", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(12), gjson.Parse(rec.Body.String()).Get("purged").Int())
}
