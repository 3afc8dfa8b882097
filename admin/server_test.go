package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscore/nexus/authz"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/routing"
)

func testManifest() pipeline.Manifest {
	return pipeline.Manifest{
		Name: "Plaid", Category: "finance", Platform: "plaid",
		Version: "0.1.0", Status: pipeline.StatusInstalled, HealthStatus: pipeline.HealthHealthy,
	}
}

type testRig struct {
	router   *gin.Engine
	registry *pipeline.Registry
	routing  *routing.Manager
	store    *authz.Store
}

func setupRouter(t *testing.T) *testRig {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, err := pipeline.OpenRegistry(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })
	require.NoError(t, registry.Install(testManifest()))

	routingMgr, err := routing.NewManager("", nil)
	require.NoError(t, err)

	store, err := authz.OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r := gin.New()
	r.Use(authz.RequireAuth(store, nil))
	NewServer(routingMgr, registry, nil).Register(r)

	return &testRig{router: r, registry: registry, routing: routingMgr, store: store}
}

func doRequest(r *gin.Engine, method, path, apiKey string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAdmin_HealthIsPublic(t *testing.T) {
	rig := setupRouter(t)
	w := doRequest(rig.router, http.MethodGet, "/admin/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["modules_loaded"])
}

func TestAdmin_ListModulesRequiresAuth(t *testing.T) {
	rig := setupRouter(t)
	w := doRequest(rig.router, http.MethodGet, "/admin/modules", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_ListModulesRequiresManageModulesPermission(t *testing.T) {
	rig := setupRouter(t)
	plaintext, _, err := rig.store.CreateKey("org-1", authz.RoleViewer, "")
	require.NoError(t, err)

	w := doRequest(rig.router, http.MethodGet, "/admin/modules", plaintext)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmin_EnableDisableModule(t *testing.T) {
	rig := setupRouter(t)
	plaintext, _, err := rig.store.CreateKey("org-1", authz.RoleOperator, "")
	require.NoError(t, err)

	w := doRequest(rig.router, http.MethodPost, "/admin/modules/finance/plaid/disable", plaintext)
	require.Equal(t, http.StatusOK, w.Code)

	var entry pipeline.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, pipeline.StatusDisabled, entry.Status)

	w = doRequest(rig.router, http.MethodPost, "/admin/modules/finance/plaid/enable", plaintext)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, pipeline.StatusInstalled, entry.Status)
}

func TestAdmin_GetUnknownModuleIs404(t *testing.T) {
	rig := setupRouter(t)
	plaintext, _, err := rig.store.CreateKey("org-1", authz.RoleOperator, "")
	require.NoError(t, err)

	w := doRequest(rig.router, http.MethodGet, "/admin/modules/finance/unknown", plaintext)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_RoutingConfigRoundTrip(t *testing.T) {
	rig := setupRouter(t)
	plaintext, _, err := rig.store.CreateKey("org-1", authz.RoleAdmin, "")
	require.NoError(t, err)

	w := doRequest(rig.router, http.MethodGet, "/admin/routing-config", plaintext)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(rig.router, http.MethodPost, "/admin/routing-config/reload", plaintext)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "reloaded", body["status"])
}

func TestAdmin_DeleteUnknownCategoryIs404(t *testing.T) {
	rig := setupRouter(t)
	plaintext, _, err := rig.store.CreateKey("org-1", authz.RoleAdmin, "")
	require.NoError(t, err)

	w := doRequest(rig.router, http.MethodDelete, "/admin/routing-config/category/nonexistent", plaintext)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
