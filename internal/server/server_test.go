package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/BOREAL/internal/config"
	"github.com/copyleftdev/BOREAL/internal/logging"
)

func newTestServer(t *testing.T) (*Server, *chi.Mux) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Optimization.InitSamples = 3
	cfg.Optimization.Noise = 1e-6
	cfg.Optimization.MaxIterations = 2
	cfg.Optimization.GridBins = 20
	cfg.Optimization.UCBAlpha = 0.5
	cfg.Optimization.KernelSigma = 1.0
	cfg.Optimization.KernelLengthScale = 0.25
	cfg.Optimization.HPRestarts = 2
	cfg.Optimization.RPROPIterations = 20

	logger := logging.New(logging.ErrorLevel, io.Discard)
	srv := NewServer(cfg, logger)
	t.Cleanup(func() { _ = srv.Close() })

	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	return srv, r
}

func postJSON(t *testing.T, r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListObjectives(t *testing.T) {
	_, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/objectives", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Objectives []string `json:"objectives"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Objectives, "sphere")
	assert.Contains(t, resp.Objectives, "branin")
}

func TestOptimizeUnknownObjective(t *testing.T) {
	_, r := newTestServer(t)

	w := postJSON(t, r, "/api/v1/optimize", optimizeRequest{Objective: "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOptimizeInvalidBody(t *testing.T) {
	_, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/optimize", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOptimizeRunCompletes(t *testing.T) {
	_, r := newTestServer(t)

	w := postJSON(t, r, "/api/v1/optimize", optimizeRequest{
		Objective:  "sphere",
		Dim:        1,
		Iterations: 2,
		Seed:       42,
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var started struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	require.NotEmpty(t, started.RunID)

	// Poll until the run finishes.
	deadline := time.Now().Add(60 * time.Second)
	var status struct {
		Status string `json:"status"`
		Best   *struct {
			Reward float64   `json:"reward"`
			Sample []float64 `json:"sample"`
		} `json:"best"`
		Iterations int `json:"iterations"`
	}
	for {
		require.True(t, time.Now().Before(deadline), "run did not finish in time")

		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/status/%s", started.RunID), nil)
		sw := httptest.NewRecorder()
		r.ServeHTTP(sw, req)
		require.Equal(t, http.StatusOK, sw.Code)
		require.NoError(t, json.Unmarshal(sw.Body.Bytes(), &status))

		if status.Status == "completed" || status.Status == "failed" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	require.Equal(t, "completed", status.Status)
	require.NotNil(t, status.Best)
	assert.Len(t, status.Best.Sample, 1)
	assert.LessOrEqual(t, status.Best.Reward, 0.0)
}

func TestStatusUnknownRun(t *testing.T) {
	_, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status/run_missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelUnknownRun(t *testing.T) {
	_, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/optimization/run_missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelRun(t *testing.T) {
	_, r := newTestServer(t)

	w := postJSON(t, r, "/api/v1/optimize", optimizeRequest{
		Objective:  "sphere",
		Dim:        2,
		Iterations: 100000,
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var started struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/optimization/%s", started.RunID), nil)
	cw := httptest.NewRecorder()
	r.ServeHTTP(cw, req)
	require.Equal(t, http.StatusOK, cw.Code)

	// Cancelling again conflicts: the run is already terminal.
	cw = httptest.NewRecorder()
	r.ServeHTTP(cw, req)
	assert.Equal(t, http.StatusConflict, cw.Code)
}
