package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nityam-7/TELSTAR/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Auth.BcryptCost = 4
	return cfg
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "telstar "+Version)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := openStore(ctx, config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = openStore(ctx, config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "telstar.db")})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	_, err = openStore(ctx, config.StoreConfig{Driver: "redis"})
	assert.Error(t, err)
}

func TestRouterServesAPIAndMetrics(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	s, err := openStore(ctx, cfg.Store)
	require.NoError(t, err)
	a, err := buildApp(ctx, cfg, s, newLogger(cfg.Log, io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.engine.Stop(context.Background()) })

	h := newRouter(a, cfg)

	body, _ := json.Marshal(map[string]any{
		"planName": "Basic", "ratePerUnit": 0.05, "planType": "POSTPAID", "billingCycle": 30,
	})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/addPlan", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Emission waits for each hook, so the counter is set once AddPlan returns.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "telstar_plan_created_total 1"), w.Body.String())
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
