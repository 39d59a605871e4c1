package server

import (
	"net/http"
	"strings"

	"github.com/bobmcallan/rollup/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)

	// Reports
	mux.HandleFunc("/api/reports", s.handleReport)

	// Ownership
	mux.HandleFunc("/api/ownership/tree", s.handleOwnershipTree)
	mux.HandleFunc("/api/ownership", s.handleOwnershipReplace)

	// Positions
	mux.HandleFunc("/api/positions/", s.handlePositionSnapshot) // {date}
	mux.HandleFunc("/api/positions", s.handlePositionList)

	// Risk-stat ingestion jobs
	mux.HandleFunc("/api/risk-stats/jobs/", s.handleJobGet) // {id}
	mux.HandleFunc("/api/risk-stats/jobs", s.routeJobs)
	mux.HandleFunc("/api/jobs/ws", s.handleJobsWS)
}

// routeJobs dispatches /api/risk-stats/jobs by method.
func (s *Server) routeJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleJobSubmit(w, r)
	case http.MethodGet:
		s.handleJobList(w, r)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

// handleJobsWS upgrades to a WebSocket streaming job events.
// ?job=<id> limits the stream to one job.
func (s *Server) handleJobsWS(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		WriteError(w, http.StatusBadRequest, "WebSocket upgrade required")
		return
	}
	s.app.JobManager.Hub().ServeWS(w, r)
}
