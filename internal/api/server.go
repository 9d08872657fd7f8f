// Package api exposes the HTTP trigger surface: launching and inspecting
// aggregation runs, plus the Prometheus metrics endpoint.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scorelab/scorefold/internal/config"
	"github.com/scorelab/scorefold/internal/model"
	"github.com/scorelab/scorefold/internal/repository"
	"github.com/scorelab/scorefold/internal/support/logger"
)

// RunLauncher executes an aggregation run to completion.
type RunLauncher interface {
	Run(ctx context.Context, runID string, mode model.RunMode) (*model.RunExecution, error)
}

// Server is the HTTP trigger server. Launches are asynchronous: POST /runs
// answers 202 with the run id and the run proceeds on a background context,
// so an in-flight run survives the client disconnecting but not a process
// stop, which is what the run ledger's restart path is for.
type Server struct {
	httpServer *http.Server
	launcher   RunLauncher
	ledger     repository.ExecutionRepository

	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      sync.WaitGroup
}

// NewServer creates the HTTP server. registry may be nil, in which case
// /metrics is not mounted.
func NewServer(cfg config.ServerConfig, launcher RunLauncher, ledger repository.ExecutionRepository, registry *prometheus.Registry) *Server {
	runCtx, cancelRun := context.WithCancel(context.Background())
	s := &Server{
		launcher:  launcher,
		ledger:    ledger,
		runCtx:    runCtx,
		cancelRun: cancelRun,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/runs", s.handleLaunchRun)
	r.Get("/runs/{runID}", s.handleGetRun)
	r.Get("/healthz", s.handleHealth)
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		logger.Infof("HTTP server listening on %s.", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP server stopped: %v", err)
		}
	}()
}

// Stop shuts the server down, cancels in-flight runs and waits for them to
// settle their ledger state.
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.cancelRun()
	s.runs.Wait()
	return err
}

func (s *Server) handleLaunchRun(w http.ResponseWriter, r *http.Request) {
	var req launchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	mode := model.RunMode(req.Mode)
	if req.Mode == "" {
		mode = model.RunModeSequential
	}
	if !mode.Valid() {
		writeError(w, http.StatusBadRequest, "mode must be 'sequential' or 'parallel'")
		return
	}

	runID := req.RunID
	if runID == "" {
		runID = model.NewID()
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		if _, err := s.launcher.Run(s.runCtx, runID, mode); err != nil {
			logger.Errorf("Run '%s' failed: %v", runID, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, launchResponse{
		RunID:  runID,
		Mode:   string(mode),
		Status: string(model.RunStatusStarting),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.ledger.FindRun(r.Context(), runID)
	if errors.Is(err, repository.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		logger.Errorf("Failed to load run '%s': %v", runID, err)
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	lanes, err := s.ledger.FindLanes(r.Context(), runID)
	if err != nil {
		logger.Errorf("Failed to load lanes of run '%s': %v", runID, err)
		writeError(w, http.StatusInternalServerError, "failed to load run lanes")
		return
	}

	writeJSON(w, http.StatusOK, newRunResponse(run, lanes))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
