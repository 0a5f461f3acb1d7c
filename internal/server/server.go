// Package server exposes the admin HTTP surface: health, metrics, one-shot
// path resolution, and reclamation status.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/wsalloc/internal/allocator"
	"git.home.luguber.info/inful/wsalloc/internal/identity"
	"git.home.luguber.info/inful/wsalloc/internal/logfields"
	"git.home.luguber.info/inful/wsalloc/internal/node"
	"git.home.luguber.info/inful/wsalloc/internal/reclaim"
	"git.home.luguber.info/inful/wsalloc/internal/wserr"
)

// Server is the admin HTTP server.
type Server struct {
	httpServer *http.Server
	alloc      *allocator.Allocator
	sched      *reclaim.Scheduler
	nodes      node.Source
	registry   *prom.Registry
}

// New builds the server on addr ("host:port").
func New(addr string, alloc *allocator.Allocator, sched *reclaim.Scheduler, nodes node.Source, registry *prom.Registry) *Server {
	s := &Server{
		alloc:    alloc,
		sched:    sched,
		nodes:    nodes,
		registry: registry,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/v1/resolve", s.handleResolve)
	mux.HandleFunc("/api/v1/reclaim/status", s.handleReclaimStatus)
	if registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Admin server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type resolveResponse struct {
	Identity string `json:"identity"`
	Node     string `json:"node"`
	Path     string `json:"path"`
}

// handleResolve resolves the workspace path for ?name=a/b on ?node=<name>
// (default: the first configured node).
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := identity.Parse(r.URL.Query().Get("name"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	n, ok := s.pickNode(r.URL.Query().Get("node"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown node"})
		return
	}

	path, err := s.alloc.ResolveWorkspaceRoot(r.Context(), id, n)
	switch {
	case errors.Is(err, wserr.ErrNotApplicable):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not applicable: host default applies"})
	case err != nil:
		slog.Error("Resolve failed", logfields.Identity(id.FullName()), logfields.Error(err))
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, resolveResponse{
			Identity: id.FullName(),
			Node:     n.Name(),
			Path:     path,
		})
	}
}

type reclaimStatusResponse struct {
	Stats   reclaim.Stats  `json:"stats"`
	Active  []reclaim.View `json:"active"`
	History []reclaim.View `json:"history"`
}

func (s *Server) handleReclaimStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, reclaimStatusResponse{
		Stats:   s.sched.Stats(),
		Active:  s.sched.ActiveTasks(),
		History: s.sched.History(),
	})
}

func (s *Server) pickNode(name string) (node.Node, bool) {
	nodes := s.nodes.Nodes()
	if len(nodes) == 0 {
		return nil, false
	}
	if name == "" {
		return nodes[0], true
	}
	for _, n := range nodes {
		if n.Name() == name {
			return n, true
		}
	}
	return nil, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", logfields.Error(err))
	}
}
