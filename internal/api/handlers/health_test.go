package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type healthCheckerMock struct {
	pingErr error
}

func (m *healthCheckerMock) Ping(_ context.Context) error { return m.pingErr }

func (m *healthCheckerMock) Health() map[string]any {
	return map[string]any{"total_connections": int32(4)}
}

func setupHealthRouter(checker DatabaseHealthChecker, registry *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHealthHandler(checker, registry, zerolog.Nop()).RegisterPublicRoutes(r)
	return r
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("liveness", func(t *testing.T) {
		r := setupHealthRouter(&healthCheckerMock{}, nil)
		w := performJSON(t, r, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("readiness with healthy database", func(t *testing.T) {
		r := setupHealthRouter(&healthCheckerMock{}, nil)
		w := performJSON(t, r, http.MethodGet, "/readyz", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]any
		decodeJSON(t, w, &body)
		assert.Equal(t, "ready", body["status"])
		assert.NotNil(t, body["database"])
	})

	t.Run("readiness with unreachable database", func(t *testing.T) {
		r := setupHealthRouter(&healthCheckerMock{pingErr: errors.New("connection refused")}, nil)
		w := performJSON(t, r, http.MethodGet, "/readyz", nil)
		assertJSONError(t, w, http.StatusServiceUnavailable)
	})

	t.Run("metrics exposition", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "granta_test_total"})
		require.NoError(t, registry.Register(counter))
		counter.Inc()

		r := setupHealthRouter(&healthCheckerMock{}, registry)
		w := performJSON(t, r, http.MethodGet, "/metrics", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "granta_test_total 1")
	})
}

func TestVersionEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewVersionHandler("1.2.3", "abc1234", "2026-08-01").RegisterPublicRoutes(r)

	w := performJSON(t, r, http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	decodeJSON(t, w, &body)
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, "abc1234", body["commit"])
	assert.Equal(t, "2026-08-01", body["build_date"])
}
