// Package server exposes the analysis engine over HTTP and WebSocket: list
// monitored pages, start and track analysis jobs, and stream job progress.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pagedrift/pagedrift/internal/app"
	"github.com/pagedrift/pagedrift/internal/logging"
	"github.com/pagedrift/pagedrift/internal/store"
	"github.com/pagedrift/pagedrift/internal/webclient"
)

// Server is the HTTP + WebSocket API surface.
type Server struct {
	cfg          Config
	orchestrator *app.Orchestrator
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger

	store     store.Store
	webclient webclient.WebClient
}

// NewServer opens the version store, builds an orchestrator on top of it and
// wires the routes. Close releases everything NewServer opened.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		cfg.AppConfig = app.DefaultConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStderrLogger("server")
	}

	st, err := store.NewSQLiteStore(cfg.AppConfig.StorePath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening version store: %w", err)
	}

	wc, err := webclient.NewNetHTTPClient(cfg.AppConfig.WebClientCfg, logger, nil)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating web client: %w", err)
	}

	orch, err := app.NewOrchestrator(cfg.AppConfig, st, wc, logger)
	if err != nil {
		wc.Close()
		st.Close()
		return nil, err
	}

	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		router:       chi.NewRouter(),
		logger:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: tighten for production
				return true
			},
		},
		store:     st,
		webclient: wc,
	}

	s.routes()
	return s, nil
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/pages", s.optionsHandler("GET"))
	r.Options("/pages/{pageID}", s.optionsHandler("GET"))
	r.Options("/jobs", s.optionsHandler("GET, POST"))
	r.Options("/jobs/{jobID}", s.optionsHandler("GET, DELETE"))
	r.Options("/ws/jobs", s.optionsHandler("GET"))
	r.Options("/ws/jobs/{jobID}", s.optionsHandler("GET"))

	// Pages
	r.Get("/pages", s.handleListPages)
	r.Get("/pages/{pageID}", s.handleGetPage)

	// Jobs over REST
	r.Post("/jobs", s.handleStartJob)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)

	// WebSockets for job progress
	r.Get("/ws/jobs", s.handleJobWS)
	r.Get("/ws/jobs/{jobID}", s.handleJobEventsWS)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close shuts down the resources NewServer opened.
func (s *Server) Close() {
	if s.webclient != nil {
		s.webclient.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- HTTP handlers ---

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	q := store.PageQuery{
		URLPattern: r.URL.Query().Get("url"),
		Tags:       r.URL.Query()["tag"],
	}
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 {
			q.Limit = v
		}
	}
	if off := r.URL.Query().Get("offset"); off != "" {
		if v, err := strconv.Atoi(off); err == nil && v > 0 {
			q.Offset = v
		}
	}

	pages, err := s.orchestrator.ListPages(r.Context(), q)
	if err != nil {
		s.logger.Warn("listing pages", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("listed pages", logging.Field{Key: "count", Value: len(pages)})
	writeJSON(w, http.StatusOK, pages)
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	page, err := s.orchestrator.GetPage(r.Context(), pageID)
	if errors.Is(err, store.ErrPageNotFound) {
		s.logger.Warn("getting page: not found", logging.Field{Key: "page_id", Value: pageID})
		writeError(w, http.StatusNotFound, "page not found")
		return
	}
	if err != nil {
		s.logger.Warn("getting page", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("got page", logging.Field{Key: "page_id", Value: pageID})
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJobRequest(r)
	if err != nil {
		s.logger.Warn("decoding job request", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Jobs outlive the request that started them.
	job, err := s.orchestrator.StartAnalysisJob(context.Background(), req.query(), req.window())
	if err != nil {
		s.logger.Warn("starting analysis job", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("started analysis job", logging.Field{Key: "job_id", Value: job.ID})
	// Serialize a snapshot; the job goroutine is already mutating the live
	// record.
	writeJSON(w, http.StatusAccepted, s.orchestrator.GetJob(job.ID))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		s.logger.Warn("getting job: not found", logging.Field{Key: "job_id", Value: jobID})
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.logger.Info("got job", logging.Field{Key: "job_id", Value: job.ID})
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	s.orchestrator.CancelJob(jobID)
	s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.orchestrator.ListJobs()
	s.logger.Info("listed jobs", logging.Field{Key: "count", Value: len(jobs)})
	writeJSON(w, http.StatusOK, jobs)
}

// --- WebSockets ---

// handleJobWS starts an analysis job from query parameters and streams its
// events over the socket until the job finishes or the client disconnects.
func (s *Server) handleJobWS(w http.ResponseWriter, r *http.Request) {
	req, err := jobRequestFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	job, err := s.orchestrator.StartAnalysisJob(context.Background(), req.query(), req.window())
	if err != nil {
		s.logger.Warn("starting analysis job", logging.Field{Key: "error", Value: err.Error()})
		_ = conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}

	s.logger.Info("started analysis job", logging.Field{Key: "job_id", Value: job.ID})
	_ = conn.WriteJSON(s.orchestrator.GetJob(job.ID))

	for ev := range job.Events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel job
			s.orchestrator.CancelJob(job.ID)
			return
		}
	}
}

// handleJobEventsWS attaches to an already-running job and streams its
// remaining events.
func (s *Server) handleJobEventsWS(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	_ = conn.WriteJSON(job)
	for ev := range job.Events {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
