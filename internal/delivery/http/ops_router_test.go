package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxhedz/internal/metrics"
)

func TestOpsRouter_Health(t *testing.T) {
	router := NewOpsRouter(&OpsConfig{
		Checks: map[string]HealthCheck{
			"authority": func(context.Context) error { return nil },
		},
		Version: "test",
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestOpsRouter_Degraded(t *testing.T) {
	router := NewOpsRouter(&OpsConfig{
		Checks: map[string]HealthCheck{
			"database": func(context.Context) error { return errors.New("down") },
		},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"unhealthy"`)
}

func TestOpsRouter_Metrics(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.RecordAccessCheck("ACTIVE")

	router := NewOpsRouter(&OpsConfig{Metrics: reg})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `fxhedz_access_checks_total{state="ACTIVE"} 1`)

	rec = httptest.NewRecorder()
	NewOpsRouter(&OpsConfig{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
