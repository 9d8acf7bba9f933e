package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dcsp-io/dcsp/internal/api/middleware"
)

const healthCheckTimeout = 2 * time.Second

// Route pairs a Go 1.22+ method-and-path pattern with its handler.
type Route struct {
	Pattern string
	Handler http.HandlerFunc
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	s.registerPublicRoutes(
		mux,
		Route{"GET /ping", s.handlePing},
		Route{"GET /ready", s.handleReady},
		Route{"GET /health", s.handleHealth},
		Route{"/", s.handleNotFound},
	)

	// Validated Read (spec.md §4.10): serving path for a committed dataset.
	mux.HandleFunc("GET /api/v1/datasets/{datasetId}", s.handleGetDataset)

	// Admin endpoints (SPEC_FULL.md §1 expansion: admin/ingestion-caller auth).
	mux.HandleFunc("POST /api/v1/admin/datasets/{datasetId}/ingest", s.handleTriggerIngestion)
	mux.HandleFunc("POST /api/v1/admin/schemas", s.handleRegisterSchema)
	mux.HandleFunc("POST /api/v1/admin/identities", s.handleRegisterIdentity)
	mux.HandleFunc("POST /api/v1/admin/keys", s.handleIssueAdminKey)
	mux.HandleFunc("DELETE /api/v1/admin/keys/{keyId}", s.handleRevokeAdminKey)
}

// registerPublicRoutes registers routes with the mux and marks their path
// as bypassing the Auth middleware, mirroring the teacher's
// registerPublicRoutes convenience wrapper. Only health-check endpoints
// should ever be passed here.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	validMethods := map[string]bool{"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true}

	for _, route := range routes {
		mux.HandleFunc(route.Pattern, route.Handler)

		path := route.Pattern
		if parts := strings.Fields(path); len(parts) == 2 && validMethods[parts[0]] {
			path = parts[1]
		}

		middleware.RegisterPublicEndpoint(path)
	}
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

// handleReady responds to orchestration readiness probes with storage
// dependency health checks, distinct from the dataset-level readiness
// gating in internal/readiness.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.commits.HealthCheck(ctx); err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("storage unavailable"))

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","serviceName":"dcsp"}`))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("no route matches "+r.URL.Path).WithInstance(r.URL.Path))
}
