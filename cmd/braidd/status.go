package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/braidstore/braid/internal/server"
	"github.com/braidstore/braid/internal/version"
)

// VersionResponse represents version information
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
}

// statusServer exposes daemon health and counters over HTTP, for probes and
// operators; the datastore protocol itself stays on the TCP port.
type statusServer struct {
	srv  *server.Server[uuid.UUID]
	http *http.Server
	log  *log.Logger
}

func newStatusServer(addr string, srv *server.Server[uuid.UUID], logger *log.Logger) *statusServer {
	s := &statusServer{srv: srv, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
		r.Get("/version", s.handleVersion)
	})

	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

func (s *statusServer) start() {
	go func() {
		s.log.Info("status endpoint listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("status endpoint failed", "err", err)
		}
	}()
}

func (s *statusServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.log.Error("stopping status endpoint", "err", err)
	}
}

func (s *statusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *statusServer) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.srv.Stats()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *statusServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	response := VersionResponse{
		Version:   version.Version(),
		Commit:    version.Commit(),
		BuildDate: version.Date(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
