package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dropDatabas3/proctoken/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func devConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("APP_ENV", "dev")
	t.Setenv("KEY_ROTATION_ENABLED", "true")
	t.Setenv("KEY_PRODUCT_ID", "product-a")
	t.Setenv("KEY_REGISTRY_DEV_MODE", "true")
	t.Setenv("CACHE_KIND", "memory")
	t.Setenv("AUDIT_SINK", "none")
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew_DevModeWiresFullNode(t *testing.T) {
	c, err := New(context.Background(), devConfig(t))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Manager.StartupInitialize(context.Background()))
	kid, err := c.Issuer.ActiveKID()
	require.NoError(t, err)
	assert.Equal(t, kid, c.Manager.State().KeyID)

	// dev mode: el material publicado ya está en el cache local
	assert.Equal(t, 1, c.JWKs.Len())

	rec := httptest.NewRecorder()
	c.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"jwk_shared_cache":{"status":"ok"}`)
}

func TestNew_StartupGateFailsWithoutProductID(t *testing.T) {
	cfg := devConfig(t)
	cfg.Keys.ProductID = ""
	cfg.Keys.StartupHealthGate = true

	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.Error(t, c.Manager.StartupInitialize(context.Background()))
	assert.False(t, c.Manager.IsReady())

	rec := httptest.NewRecorder()
	c.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
