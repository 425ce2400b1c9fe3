package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-harvester/internal/metrics"
)

func TestHealthz(t *testing.T) {
	srv := NewServer(nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusReflectsPhase(t *testing.T) {
	status := NewStatus()
	srv := NewServer(status, nil)
	status.Set(PhaseIngesting, 42)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Phase   string `json:"phase"`
		Records int    `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, PhaseIngesting, body.Phase)
	assert.Equal(t, 42, body.Records)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.ObserveUnit("sitemap", "ok")
	srv := NewServer(nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "harvester_units_total")
}

func TestUnknownRoute(t *testing.T) {
	srv := NewServer(nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	srv := NewServer(nil, nil)
	addr, err := srv.Start("127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Contains(t, string(body), "ok")

	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestRecoverMiddleware(t *testing.T) {
	srv := NewServer(nil, nil)
	srv.router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
