// Package server exposes optimization runs over HTTP: start a Bayesian
// optimization of a named benchmark objective, poll its status, cancel it.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/copyleftdev/BOREAL/internal/config"
	"github.com/copyleftdev/BOREAL/internal/logging"
	"github.com/copyleftdev/BOREAL/internal/optimization"
	"github.com/copyleftdev/BOREAL/internal/optimization/bayesian"
	"github.com/copyleftdev/BOREAL/internal/optimization/benchmarks"
)

// Logger defines the logging interface used by the server.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

var (
	runsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boreal_runs_started_total",
		Help: "Optimization runs started, by objective.",
	}, []string{"objective"})

	runsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boreal_runs_active",
		Help: "Optimization runs currently executing.",
	})

	iterationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boreal_iterations_total",
		Help: "Bayesian optimization iterations across all runs.",
	})
)

// RunState tracks one optimization job. It is guarded by the server's mutex.
type RunState struct {
	ID          string
	Objective   string
	Status      string // "pending", "running", "completed", "failed", "cancelled"
	StartTime   time.Time
	EndTime     *time.Time
	Iterations  int
	BestReward  *float64
	BestSample  []float64
	Cancel      context.CancelFunc
	LastUpdated time.Time
}

// Server implements the HTTP API of the optimization service.
type Server struct {
	cfg    *config.Config
	logger Logger

	runs   map[string]*RunState
	runsMu sync.RWMutex
}

// NewServer creates a server instance with the given config and logger.
func NewServer(cfg *config.Config, logger Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		runs:   make(map[string]*RunState),
	}
}

// RegisterRoutes mounts the API on the given router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/objectives", s.handleObjectives)
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
	})
}

type optimizeRequest struct {
	Objective  string `json:"objective"`
	Dim        int    `json:"dim,omitempty"`
	Iterations int    `json:"iterations,omitempty"`
	Seed       int64  `json:"seed,omitempty"`
}

// handleObjectives lists the available benchmark objectives.
func (s *Server) handleObjectives(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"objectives": benchmarks.Names(),
	})
}

// handleOptimize starts a new optimization run over a named benchmark.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}

	obj, ok := benchmarks.Lookup(req.Objective, req.Dim)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":      fmt.Sprintf("unknown objective %q", req.Objective),
			"objectives": benchmarks.Names(),
		})
		return
	}

	params := s.cfg.Params()
	if req.Iterations > 0 {
		params.MaxIterations = req.Iterations
	}
	if req.Seed != 0 {
		params.Seed = req.Seed
	}

	id := fmt.Sprintf("run_%d", time.Now().UnixNano())
	ctx, cancel := context.WithCancel(context.Background())

	state := &RunState{
		ID:          id,
		Objective:   req.Objective,
		Status:      "pending",
		StartTime:   time.Now(),
		Cancel:      cancel,
		LastUpdated: time.Now(),
	}

	s.runsMu.Lock()
	s.runs[id] = state
	s.runsMu.Unlock()

	runsStarted.WithLabelValues(req.Objective).Inc()
	go s.runOptimization(ctx, id, obj, params)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id": id,
		"status": "pending",
	})
}

// handleStatus reports the state of one run.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.runsMu.RLock()
	state, exists := s.runs[id]
	if !exists {
		s.runsMu.RUnlock()
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "run not found",
		})
		return
	}

	response := map[string]interface{}{
		"run_id":      state.ID,
		"objective":   state.Objective,
		"status":      state.Status,
		"iterations":  state.Iterations,
		"start_time":  state.StartTime.Format(time.RFC3339),
		"last_update": state.LastUpdated.Format(time.RFC3339),
	}
	if state.EndTime != nil {
		response["end_time"] = state.EndTime.Format(time.RFC3339)
	}
	if state.BestReward != nil {
		response["best"] = map[string]interface{}{
			"reward": *state.BestReward,
			"sample": state.BestSample,
		}
	}
	s.runsMu.RUnlock()

	writeJSON(w, http.StatusOK, response)
}

// handleCancel requests cancellation of a running job.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	state, exists := s.runs[id]
	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "run not found",
		})
		return
	}

	switch state.Status {
	case "completed", "failed", "cancelled":
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": fmt.Sprintf("cannot cancel run with status %q", state.Status),
		})
		return
	}

	if state.Cancel != nil {
		state.Cancel()
	}
	state.Status = "cancelled"
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("Optimization run cancelled", map[string]interface{}{
		"run_id": id,
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "cancellation requested",
	})
}

// runOptimization executes one run in a goroutine, streaming progress into
// the run state through the observer hook.
func (s *Server) runOptimization(ctx context.Context, id string, obj optimization.Objective, params optimization.Params) {
	s.setStatus(id, "running")
	runsActive.Inc()
	defer runsActive.Dec()

	observer := func(state *optimization.RunState, _ bool) {
		iterationsTotal.Inc()
		s.runsMu.Lock()
		defer s.runsMu.Unlock()
		run, ok := s.runs[id]
		if !ok {
			return
		}
		run.Iterations = state.CurrentIteration + 1
		if state.BestObservation != nil {
			reward := state.BestReward
			run.BestReward = &reward
		}
		run.LastUpdated = time.Now()
	}

	optimizer := bayesian.New(params, bayesian.WithObserver(observer))
	result, err := optimizer.Optimize(ctx, obj, optimization.FirstElem, true)

	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return
	}
	if run.Status == "cancelled" {
		return
	}

	if err != nil && ctx.Err() == nil {
		s.logger.Error("Optimization run failed", map[string]interface{}{
			"run_id": id,
			"error":  err.Error(),
		})
		run.Status = "failed"
	} else {
		run.Status = "completed"
	}
	if result != nil && result.BestObservation != nil {
		reward := result.BestReward
		run.BestReward = &reward
		run.BestSample = result.BestSample
		run.Iterations = result.Iterations
	}
	now := time.Now()
	run.EndTime = &now
	run.LastUpdated = now
}

func (s *Server) setStatus(id, status string) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	// A run cancelled before its goroutine started stays cancelled.
	if run, ok := s.runs[id]; ok && run.Status != "cancelled" {
		run.Status = status
		run.LastUpdated = time.Now()
	}
}

// Close cancels all running optimizations.
func (s *Server) Close() error {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	for _, run := range s.runs {
		if run.Cancel != nil {
			run.Cancel()
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
