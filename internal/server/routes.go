package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket routes
	mux.HandleFunc("/ws", s.app.WSHandler.HandleUserFeed)
	mux.HandleFunc("/ws/jobs/", s.app.WSHandler.HandleJobRoom)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)

	// API routes - Provider webhook (shared-secret auth, not user auth)
	mux.HandleFunc("/api/webhooks/provider", s.app.WebhookHandler.ProviderWebhookHandler)

	// API routes - Key issuance (admin-secret guarded)
	mux.HandleFunc("/api/auth/keys", s.app.AuthHandler.IssueKeyHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute routes /api/jobs requests (list and create)
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.requireUser(s.app.JobHandler.ListJobsHandler)(w, r)
	case "POST":
		s.requireUser(s.app.JobHandler.CreateJobHandler)(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobRoutes routes /api/jobs/{id} style requests to the appropriate handler
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// GET /api/jobs/by-snapshot/{trackingId}
	if r.Method == "GET" && strings.HasPrefix(path, "/api/jobs/by-snapshot/") {
		s.requireUser(s.app.JobHandler.GetJobBySnapshotHandler)(w, r)
		return
	}

	// POST /api/jobs/{id}/retry
	if r.Method == "POST" && strings.HasSuffix(path, "/retry") {
		s.requireUser(s.app.JobHandler.RetryJobHandler)(w, r)
		return
	}

	// GET /api/jobs/{id}/retry-info
	if r.Method == "GET" && strings.HasSuffix(path, "/retry-info") {
		s.requireUser(s.app.JobHandler.GetRetryInfoHandler)(w, r)
		return
	}

	// GET /api/jobs/{id}
	if r.Method == "GET" {
		s.requireUser(s.app.JobHandler.GetJobHandler)(w, r)
		return
	}

	// DELETE /api/jobs/{id}
	if r.Method == "DELETE" {
		s.requireUser(s.app.JobHandler.DeleteJobHandler)(w, r)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
