// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api is the read-only diagnostics HTTP server: device listing,
// health report, recent audit entries, Prometheus metrics and a
// WebSocket stream of lifecycle events. It exposes no mutations; all
// mutation goes through the control socket with peer credentials.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/tundra/internal/audit"
	"grimm.is/tundra/internal/errors"
	"grimm.is/tundra/internal/events"
	"grimm.is/tundra/internal/health"
	"grimm.is/tundra/internal/logging"
	"grimm.is/tundra/internal/netcfg"
)

// ServerConfig wires the diagnostics server.
type ServerConfig struct {
	Listen   string
	Registry *netcfg.Registry
	Health   *health.Runner
	Bus      *events.Bus
	Journal  *audit.Journal
	Gatherer prometheus.Gatherer
	Logger   *logging.Logger
	Version  string
}

// Server serves the diagnostics API.
type Server struct {
	cfg      ServerConfig
	logger   *logging.Logger
	router   *mux.Router
	httpSrv  *http.Server
	upgrader websocket.Upgrader
}

// NewServer builds the server and its routes.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default().WithComponent("api")
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/devices", s.handleDevices).Methods(http.MethodGet)
	v1.HandleFunc("/devices/{handle}", s.handleDevice).Methods(http.MethodGet)
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)
	v1.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	v1.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	if s.cfg.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving. It returns once the listener is running; errors
// after startup are logged.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("diagnostics server failed", "error", err)
		}
	}()
	s.logger.Info("diagnostics API listening", "addr", s.cfg.Listen)
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("encoding response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetKind(err) {
	case errors.KindNotFound:
		status = http.StatusNotFound
	case errors.KindValidation:
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.cfg.Registry.List()
	out := make([]netcfg.Properties, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Properties())
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["handle"]
	d, err := s.cfg.Registry.Get(handle)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d.Properties())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health == nil {
		s.writeJSON(w, http.StatusOK, health.Report{Status: health.StatusHealthy})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	report := s.cfg.Health.Run(ctx)
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, report)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Journal == nil {
		s.writeJSON(w, http.StatusOK, []audit.Event{})
		return
	}
	entries, err := s.cfg.Journal.Recent(100)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Event{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.cfg.Version})
}

// handleEvents upgrades to WebSocket and streams lifecycle events until
// the peer goes away. A slow peer loses events rather than stalling the
// bus.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Bus == nil {
		s.writeError(w, errors.New(errors.KindUnavailable, "event stream not enabled"))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := s.cfg.Bus.Subscribe(64)
	defer cancel()

	// Reader goroutine notices the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
