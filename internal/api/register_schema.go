package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dcsp-io/dcsp/internal/api/middleware"
	"github.com/dcsp-io/dcsp/internal/schema"
)

// RegisterSchemaRequest registers a new structural contract version for a
// dataset (spec.md §4.2).
type RegisterSchemaRequest struct {
	DatasetID              string             `json:"datasetId"`
	SchemaVersion          string             `json:"schemaVersion"`
	RequiredFields         []string           `json:"requiredFields"`
	Invariants             []schema.Invariant `json:"invariants"`
	MinimumRenderableCount int                `json:"minimumRenderableCount"`
	SunsetAt               *time.Time         `json:"sunsetAt,omitempty"`
	MarkActive             bool               `json:"markActive"`
}

// handleRegisterSchema handles POST /api/v1/admin/schemas.
func (s *Server) handleRegisterSchema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	if s.schemas == nil {
		WriteErrorResponse(w, r, s.logger, NotFound("schema registry is not configured on this server"))

		return
	}

	var req RegisterSchemaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("invalid request body: "+err.Error()))

		return
	}

	if req.DatasetID == "" || req.SchemaVersion == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("datasetId and schemaVersion are required"))

		return
	}

	hash, err := schema.ComputeSchemaHash(req.RequiredFields, req.Invariants)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("failed to compute schema hash: "+err.Error()))

		return
	}

	sc := schema.Schema{
		DatasetID:              req.DatasetID,
		SchemaVersion:          req.SchemaVersion,
		SchemaHash:             hash,
		RequiredFields:         req.RequiredFields,
		Invariants:             req.Invariants,
		MinimumRenderableCount: req.MinimumRenderableCount,
		SunsetAt:               req.SunsetAt,
	}

	if err := s.schemas.Register(ctx, sc, req.MarkActive); err != nil {
		s.logger.ErrorContext(ctx, "schema registration failed",
			"correlation_id", correlationID,
			"dataset_id", req.DatasetID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to register schema"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"datasetId":"` + req.DatasetID + `","schemaVersion":"` + req.SchemaVersion + `","schemaHash":"` + hash + `"}`))
}
