package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/DocPay/internal/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Host: "127.0.0.1", Port: "0", Env: "test"},
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", AutoMigrate: true},
		// Nothing listens here; Redis-backed pieces fall back or stay idle.
		Cache:     config.CacheConfig{Host: "127.0.0.1", Port: 1},
		PayMongo:  config.PayMongoConfig{WebhookSecret: "whsk_server_test"},
		Reconcile: config.ReconcileConfig{LeaseTTL: time.Minute},
		Admin:     config.AdminConfig{User: "clerk", Password: "secret"},
	}
}

func TestNewApplication_Routes(t *testing.T) {
	app, manager, err := NewApplication(testConfig())
	require.NoError(t, err)
	require.NotNil(t, manager)
	assert.False(t, manager.IsRunning())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/paymongo", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/admin/webhook-events", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/webhook-events", nil)
	req.SetBasicAuth("clerk", "secret")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewApplication_AdminDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Admin = config.AdminConfig{}

	app, _, err := NewApplication(cfg)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
